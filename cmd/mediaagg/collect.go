package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Eigen-Consulting/iLEAPP/internal/cli"
	"github.com/Eigen-Consulting/iLEAPP/internal/collector"
	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/config"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/report"
)

func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect [extraction-root]",
		Short: "Copy aggregated audio into per-category folders",
		Long: `Copy every aggregated audio file into a folder per audio type, named after
its date, source and functional category. Records come from a fresh run over
the extraction, or from a TSV report written earlier by 'mediaagg aggregate'.

Existing files in the output directory are never overwritten.

Examples:
  mediaagg collect ./extraction --out ./audio
  mediaagg collect --from-tsv audio.tsv --out ./audio`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCollect,
	}

	cmd.Flags().StringP("out", "o", "", "output directory (required)")
	cmd.Flags().String("from-tsv", "", "collect the records of this TSV report instead of running the pipeline")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runCollect(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")
	fromTSV, _ := cmd.Flags().GetString("from-tsv")

	if (fromTSV == "") == (len(args) == 0) {
		return common.NewUserError("give either an extraction root or --from-tsv", errors.New("ambiguous record source"))
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), "Collection")

	var records []model.AggregateRecord
	if fromTSV != "" {
		loaded, err := loadTSV(fromTSV)
		if err != nil {
			return err
		}
		records = loaded
	} else {
		audioOnly := *cfg
		audioOnly.Photos.Enabled = false
		res, err := runPipeline(ctx, &audioOnly, args[0], nil)
		if err != nil {
			return err
		}
		records = res.Run.Records
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No audio records to collect"))
		return nil
	}

	outDir = config.ExpandPath(outDir)
	slog.Info("Collecting audio files", "records", len(records), "out", outDir)

	stats, err := collector.New(outDir).Collect(ctx, records)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.CollectionSummary(stats, outDir))
	return nil
}

func loadTSV(path string) ([]model.AggregateRecord, error) {
	f, err := os.Open(config.ExpandPath(path)) //nolint:gosec // path is chosen by the examiner
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("cannot open report %s", path), err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("Failed to close report", "path", path, "error", closeErr)
		}
	}()

	records, err := report.ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	return records, nil
}
