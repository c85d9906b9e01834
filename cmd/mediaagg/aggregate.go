package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Eigen-Consulting/iLEAPP/internal/cli"
	"github.com/Eigen-Consulting/iLEAPP/internal/config"
	"github.com/Eigen-Consulting/iLEAPP/internal/engine"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/report"
)

func aggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate <extraction-root>",
		Short: "Classify, correlate and deduplicate all user audio",
		Long: `Walk an iOS filesystem extraction, classify every audio file by location,
enrich it from the app databases found alongside it and drop duplicate content.

Examples:
  mediaagg aggregate ./extraction                     # Print the table
  mediaagg aggregate ./extraction --tsv audio.tsv     # Write the full report
  mediaagg aggregate ./extraction --tsv - > audio.tsv # Report on stdout
  mediaagg aggregate ./extraction --workers 8 --dashboard dash.json
  mediaagg aggregate ./extraction --photos-tsv photos.tsv # Photos and videos too`,
		Args: cobra.ExactArgs(1),
		RunE: runAggregate,
	}

	cmd.Flags().String("tsv", "", "write the full report as TSV to this file (- for stdout)")
	cmd.Flags().String("photos-tsv", "", "write the photo and video report as TSV to this file")
	cmd.Flags().Bool("no-photos", false, "skip the photo and video artifact")
	cmd.Flags().String("dashboard", "", "write dashboard counts as JSON to this file")
	cmd.Flags().IntP("workers", "w", 1, "files hashed and correlated in parallel")
	cmd.Flags().Bool("artifact-globs", false, "only consider the well-known audio locations")
	cmd.Flags().Bool("no-progress", false, "never draw a progress bar")

	_ = viper.BindPFlag("output.tsv", cmd.Flags().Lookup("tsv"))
	_ = viper.BindPFlag("output.photos_tsv", cmd.Flags().Lookup("photos-tsv"))
	_ = viper.BindPFlag("output.dashboard_json", cmd.Flags().Lookup("dashboard"))
	_ = viper.BindPFlag("engine.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("discovery.artifact_globs", cmd.Flags().Lookup("artifact-globs"))

	return cmd
}

func runAggregate(cmd *cobra.Command, args []string) error {
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	if noPhotos, _ := cmd.Flags().GetBool("no-photos"); noPhotos {
		cfg.Photos.Enabled = false
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), "Aggregation")

	toStdout := cfg.Output.TSV == "-"
	progress := progressFor(cmd.ErrOrStderr(), !noProgress, "Hashing audio files...")

	var onProgress engine.ProgressFunc
	if progress != nil {
		onProgress = progress.Update
	}

	res, err := runPipeline(ctx, cfg, args[0], onProgress)
	if err != nil {
		return err
	}
	if progress != nil {
		progress.Finish()
	}

	slog.Info("Aggregation complete",
		"run_id", res.Run.RunID,
		"records", len(res.Run.Records),
		"duplicates", res.Run.Duplicates,
		"databases", res.Databases,
		"errors", len(res.Run.Errors))

	if cfg.Output.TSV != "" {
		if err := writeTSV(cmd.OutOrStdout(), cfg.Output.TSV, res.Run.Records); err != nil {
			return err
		}
	}
	if cfg.Output.PhotosTSV != "" && res.Photos != nil {
		if err := writePhotoTSV(cmd.OutOrStdout(), cfg.Output.PhotosTSV, res.Photos.Records); err != nil {
			return err
		}
	}
	if cfg.Output.DashboardJSON != "" {
		if err := res.Aggregator.ExportJSON(cfg.Output.DashboardJSON); err != nil {
			return err
		}
		slog.Info("Wrote dashboard data", "path", cfg.Output.DashboardJSON)
	}

	// Keep stdout clean when it carries the TSV.
	out := cmd.OutOrStdout()
	if toStdout {
		out = cmd.ErrOrStderr()
	} else if len(res.Run.Records) > 0 {
		fmt.Fprintln(out, cli.RecordsTable(res.Run.Records))
	}
	if len(res.Run.Records) > 0 {
		fmt.Fprintln(out, cli.CountsTable("Audio Type", res.Aggregator.Snapshot().CategoryCounts))
	} else {
		fmt.Fprintln(out, cli.FormatInfo("No audio files found"))
	}
	if res.Photos != nil && len(res.Photos.Records) > 0 {
		fmt.Fprintln(out, cli.CountsTable("Source App", res.Photos.SourceCounts()))
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d photos and videos, %d duplicates skipped",
			len(res.Photos.Records), res.Photos.Duplicates)))
	}
	fmt.Fprintln(out, cli.RunSummary(res.Run))

	return nil
}

// progressFor returns a progress bar on w when enabled and w is a terminal.
func progressFor(w io.Writer, enabled bool, description string) *cli.Progress {
	if !enabled {
		return nil
	}
	f, ok := w.(*os.File)
	if !ok || !cli.IsTerminal(f.Fd()) {
		return nil
	}
	return cli.NewProgress(w, description)
}

// writeTSV writes records to path, or to stdout when path is "-".
func writeTSV(stdout io.Writer, path string, records []model.AggregateRecord) error {
	return writeReport(stdout, path, len(records), func(w io.Writer) error {
		return report.WriteTSV(w, records)
	})
}

// writePhotoTSV writes photo records to path, or to stdout when path is "-".
func writePhotoTSV(stdout io.Writer, path string, records []model.PhotoRecord) error {
	return writeReport(stdout, path, len(records), func(w io.Writer) error {
		return report.WritePhotoTSV(w, records)
	})
}

func writeReport(stdout io.Writer, path string, records int, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}

	path = config.ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path) //nolint:gosec // path is chosen by the examiner
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	slog.Info("Wrote report", "path", path, "records", records)
	return nil
}
