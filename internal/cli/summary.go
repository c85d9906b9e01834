package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/Eigen-Consulting/iLEAPP/internal/collector"
	"github.com/Eigen-Consulting/iLEAPP/internal/engine"
)

// maxListedErrors bounds how many errors a summary prints.
const maxListedErrors = 10

// RunSummary renders the outcome of an aggregation run.
func RunSummary(res *engine.RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %d audio files\n", labelStyle.Render("Records:"), len(res.Records))
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Duplicates removed:"), res.Duplicates)
	if res.Missing > 0 {
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Missing files:"), res.Missing)
	}
	if res.Skipped > 0 {
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Unsupported files:"), res.Skipped)
	}
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Duration:"), res.Duration.Round(time.Millisecond))
	b.WriteString(subtleStyle.Render("Run " + res.RunID.String()))

	if len(res.Errors) > 0 {
		b.WriteString("\n\n")
		b.WriteString(FormatWarning(fmt.Sprintf("%d problems were skipped:", len(res.Errors))))
		b.WriteString(errorList(res.Errors))
	}

	return RenderBox(audioIcon+" Audio Aggregation", b.String())
}

// CollectionSummary renders the outcome of a collection.
func CollectionSummary(stats *collector.Stats, outDir string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Output:"), outDir)
	fmt.Fprintf(&b, "%s %d attempted, %d copied, %d failed (%.1f%%)\n",
		labelStyle.Render("Files:"), stats.Attempted, stats.Successful, stats.Failed(), stats.SuccessRate())

	rows := make([][]string, 0, len(collector.Folders))
	for _, name := range collector.Folders {
		f, ok := stats.Folders[name]
		if !ok || f.Attempted == 0 {
			continue
		}
		rows = append(rows, []string{name, fmt.Sprint(f.Attempted), fmt.Sprint(f.Successful), fmt.Sprint(f.Failed)})
	}
	if len(rows) > 0 {
		b.WriteString("\n")
		b.WriteString(RenderTable([]string{"Folder", "Attempted", "Copied", "Failed"}, rows,
			[]Alignment{AlignLeft, AlignRight, AlignRight, AlignRight}))
	}

	if stats.Attempted > 0 && stats.Failed() == 0 {
		b.WriteString("\n\n")
		b.WriteString(FormatSuccess("Every file was copied"))
	}

	if len(stats.Errors) > 0 {
		b.WriteString("\n\n")
		b.WriteString(FormatWarning(fmt.Sprintf("%d files could not be copied:", len(stats.Errors))))
		b.WriteString(errorList(stats.Errors))
	}

	return RenderBox(folderIcon+" Audio Collection", b.String())
}

func errorList(errs []error) string {
	var b strings.Builder
	for i, err := range errs {
		if i == maxListedErrors {
			fmt.Fprintf(&b, "\n  %s", subtleStyle.Render(fmt.Sprintf("... and %d more", len(errs)-maxListedErrors)))
			break
		}
		fmt.Fprintf(&b, "\n  %s", errStyle.Render(err.Error()))
	}
	return b.String()
}
