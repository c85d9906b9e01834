package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Eigen-Consulting/iLEAPP/internal/cli"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [path...]",
		Short: "Show how paths would be categorized",
		Long: `Classify paths by location alone, without reading files or databases.
Useful for checking a custom rule table.

Examples:
  mediaagg classify /private/var/mobile/Library/Ringtones/a.m4r
  mediaagg classify --rules`,
		RunE: runClassify,
	}

	cmd.Flags().Bool("rules", false, "list the rule table in priority order")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	showRules, _ := cmd.Flags().GetBool("rules")

	classifier, err := cfg.Classifier()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showRules {
		rows := make([][]string, 0, classifier.RuleCount())
		for i, r := range classifier.Rules() {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				string(r.ID),
				r.DisplayName,
				cli.FormatTier(r.Tier),
				strconv.Itoa(len(r.Patterns)),
			})
		}
		fmt.Fprintln(out, cli.RenderTable([]string{"#", "ID", "Audio Type", "Relevance", "Patterns"}, rows,
			[]cli.Alignment{cli.AlignRight, cli.AlignLeft, cli.AlignLeft, cli.AlignLeft, cli.AlignRight}))
	}

	if len(args) == 0 {
		if !showRules {
			return cmd.Usage()
		}
		return nil
	}

	rows := make([][]string, 0, len(args))
	for _, path := range args {
		var size int64
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		res := classifier.Classify(path, size)
		rows = append(rows, []string{path, res.Category, res.Subtype, cli.FormatTier(res.Tier), strconv.Itoa(res.Score)})
	}
	fmt.Fprintln(out, cli.RenderTable([]string{"Path", "Audio Type", "Functional Category", "Relevance", "Score"}, rows,
		[]cli.Alignment{cli.AlignLeft, cli.AlignLeft, cli.AlignLeft, cli.AlignLeft, cli.AlignRight}))

	return nil
}
