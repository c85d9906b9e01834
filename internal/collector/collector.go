// Package collector copies aggregated audio records into per-category folders
// with descriptive file names, for examiners who want the files themselves.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
)

// ReportName is the summary written into the output directory.
const ReportName = "audio_collection_report.txt"

const lockName = ".collect.lock"

// UnknownFolder receives records whose category has no folder of its own.
const UnknownFolder = "Unknown_Audio"

// Folders lists the category folders in report order.
var Folders = []string{
	"User_Content",
	"Communication_Audio",
	"System_Audio",
	"Voice_Commands",
	"App_Assets",
	UnknownFolder,
}

var folderByCategory = map[string]string{
	"User Content":        "User_Content",
	"Communication Audio": "Communication_Audio",
	"System Audio":        "System_Audio",
	"Voice Commands":      "Voice_Commands",
	"App Assets":          "App_Assets",
	"Unknown Audio":       UnknownFolder,
}

// FolderFor maps a category display name to its folder.
func FolderFor(category string) string {
	if f, ok := folderByCategory[category]; ok {
		return f
	}
	return UnknownFolder
}

// FolderStats counts copy attempts for one folder.
type FolderStats struct {
	Attempted  int
	Successful int
	Failed     int
}

// Stats summarizes one collection.
type Stats struct {
	Folders    map[string]*FolderStats
	Copied     []string
	Errors     []error
	Attempted  int
	Successful int
}

// Failed returns the number of failed copies.
func (s *Stats) Failed() int {
	return s.Attempted - s.Successful
}

// SuccessRate returns the percentage of successful copies.
func (s *Stats) SuccessRate() float64 {
	if s.Attempted == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Attempted) * 100
}

// Collector copies records into outDir.
type Collector struct {
	now    func() time.Time
	outDir string
}

// New creates a collector writing under outDir.
func New(outDir string) *Collector {
	return &Collector{outDir: outDir, now: time.Now}
}

// Collect copies every record with a source path into its category folder and
// writes the summary report. Per-file failures are counted, not returned; only
// setup failures, a held lock or cancellation return an error.
func (c *Collector) Collect(ctx context.Context, records []model.AggregateRecord) (*Stats, error) {
	if err := os.MkdirAll(c.outDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	lock := flock.New(filepath.Join(c.outDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock output directory %s: %w", c.outDir, err)
	}
	if !locked {
		return nil, common.NewUserError(
			fmt.Sprintf("another collection is writing to %s", c.outDir), nil)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	stats := &Stats{Folders: make(map[string]*FolderStats, len(Folders))}
	for _, f := range Folders {
		if err := os.MkdirAll(filepath.Join(c.outDir, f), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create folder %s: %w", f, err)
		}
		stats.Folders[f] = &FolderStats{}
	}

	logger := common.Logger(ctx)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if rec.SourcePath == "" {
			continue
		}

		folder := FolderFor(rec.Category)
		counts := stats.Folders[folder]
		counts.Attempted++
		stats.Attempted++

		dest, err := c.copyRecord(rec, filepath.Join(c.outDir, folder))
		if err != nil {
			counts.Failed++
			stats.Errors = append(stats.Errors, common.NewStageError("collect", rec.SourcePath, err))
			logger.Warn("Failed to collect file", "stage", "collect", "path", rec.SourcePath, "error", err)
			continue
		}
		counts.Successful++
		stats.Successful++
		stats.Copied = append(stats.Copied, dest)
		logger.Debug("Collected file", "category", rec.Category, "dest", dest)
	}

	if err := c.writeReport(stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// copyRecord copies the source file to a free name in dir, keeping its mtime.
func (c *Collector) copyRecord(rec model.AggregateRecord, dir string) (string, error) {
	src, err := os.Open(rec.SourcePath)
	if err != nil {
		return "", fmt.Errorf("source file not readable: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: source is a directory", common.ErrUnreadable)
	}

	dst, dest, err := createUnique(filepath.Join(dir, DescriptiveName(rec)))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dest)
		return "", fmt.Errorf("copy failed: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("copy failed: %w", err)
	}
	_ = os.Chtimes(dest, info.ModTime(), info.ModTime())
	return dest, nil
}

// createUnique creates path exclusively, trying "name_(n).ext" on collision.
func createUnique(path string) (*os.File, string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)

	candidate := path
	for n := 1; ; n++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
		candidate = fmt.Sprintf("%s_(%d)%s", base, n, ext)
	}
}

// DescriptiveName builds "<date>_<source>_<subtype>_<original>" for a record.
func DescriptiveName(rec model.AggregateRecord) string {
	date := "unknown_date"
	if strings.Contains(rec.Timestamp, ":") {
		date = strings.ReplaceAll(strings.Fields(rec.Timestamp)[0], "-", "_")
	}

	source := rec.SourceApp
	if source == "" {
		source = "Unknown"
	}
	subtype := rec.Subtype
	if subtype == "" {
		subtype = "Other"
	}

	original := filepath.Base(strings.ReplaceAll(rec.SourcePath, "\\", "/"))
	name := fmt.Sprintf("%s_%s_%s_%s",
		date,
		strings.ReplaceAll(source, " ", "_"),
		strings.ReplaceAll(subtype, " ", "_"),
		original)
	return Sanitize(name)
}

// Sanitize replaces characters that are unsafe in file names with '_'.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) || r < 0x20 {
			return '_'
		}
		return r
	}, name)
}

func (c *Collector) writeReport(stats *Stats) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Audio Collection Report\n")
	fmt.Fprintf(&b, "Generated: %s\n", c.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Output Directory: %s\n\n", c.outDir)
	fmt.Fprintf(&b, "Summary:\n")
	fmt.Fprintf(&b, "Total files attempted: %d\n", stats.Attempted)
	fmt.Fprintf(&b, "Total files successful: %d\n", stats.Successful)
	fmt.Fprintf(&b, "Total files failed: %d\n\n", stats.Failed())
	fmt.Fprintf(&b, "By Category:\n")
	for _, f := range Folders {
		counts := stats.Folders[f]
		if counts.Attempted > 0 {
			fmt.Fprintf(&b, "%s: %d/%d\n", f, counts.Successful, counts.Attempted)
		}
	}
	if len(stats.Errors) > 0 {
		fmt.Fprintf(&b, "\nErrors:\n")
		for _, err := range stats.Errors {
			fmt.Fprintf(&b, "%v\n", err)
		}
	}

	if err := os.WriteFile(filepath.Join(c.outDir, ReportName), []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write collection report: %w", err)
	}
	return nil
}
