// Package photos aggregates user photos and videos from the photo library,
// message attachments and messaging app media folders into one deduplicated
// report.
//
// Sources are read in a fixed order: the Photos.sqlite library, then
// sms.db attachments, then app media found on disk in discovery order. A file
// reached twice, by path or by content, is reported once, from the first source
// that named it. Content hashes go through the same fingerprint.Index as the
// audio pipeline, so a run shares one dedup set across artifacts.
package photos

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Eigen-Consulting/iLEAPP/internal/aggregation"
	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/fingerprint"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/storage"
)

// ArtifactName is the name this pipeline reports to the aggregator.
const ArtifactName = "All User Photos"

// DefaultImageExtensions lists the still-image extensions collected when none are configured.
func DefaultImageExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif"}
}

// DefaultVideoExtensions lists the video extensions collected when none are configured.
func DefaultVideoExtensions() []string {
	return []string{".mp4", ".mov", ".avi", ".m4v", ".3gp"}
}

// Config holds configuration options for a Collector.
type Config struct {
	ImageExtensions []string
	VideoExtensions []string
	AppRules        []AppRule
	Workers         int
	QueryTimeout    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ImageExtensions: DefaultImageExtensions(),
		VideoExtensions: DefaultVideoExtensions(),
		AppRules:        DefaultAppRules(),
		Workers:         1,
		QueryTimeout:    5 * time.Second,
	}
}

// Result is the outcome of one Run.
type Result struct {
	Records    []model.PhotoRecord
	Errors     []error
	Duration   time.Duration
	Duplicates int
}

// SourceCounts returns the number of records per source app.
func (r *Result) SourceCounts() map[string]int {
	counts := make(map[string]int)
	for _, rec := range r.Records {
		counts[rec.SourceApp]++
	}
	return counts
}

// Collector gathers photo records for one extraction at a time.
type Collector struct {
	querier    storage.Querier
	index      *fingerprint.Index
	aggregator *aggregation.Aggregator
	media      map[string]model.MediaType
	apps       []compiledApp
	config     Config
}

// New creates a collector. index is normally the audio engine's, so both
// artifacts share one dedup set; nil gets a private index. A nil aggregator
// gets a private one.
func New(q storage.Querier, index *fingerprint.Index, agg *aggregation.Aggregator, config Config) (*Collector, error) {
	if index == nil {
		index = fingerprint.NewIndex(fingerprint.Options{})
	}
	if agg == nil {
		agg = aggregation.New()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if len(config.ImageExtensions) == 0 {
		config.ImageExtensions = DefaultImageExtensions()
	}
	if len(config.VideoExtensions) == 0 {
		config.VideoExtensions = DefaultVideoExtensions()
	}
	if config.AppRules == nil {
		config.AppRules = DefaultAppRules()
	}

	apps, err := compileApps(config.AppRules)
	if err != nil {
		return nil, err
	}

	media := make(map[string]model.MediaType)
	for _, ext := range config.ImageExtensions {
		media[normalizeExt(ext)] = model.MediaPhoto
	}
	for _, ext := range config.VideoExtensions {
		media[normalizeExt(ext)] = model.MediaVideo
	}

	return &Collector{
		querier:    q,
		index:      index,
		aggregator: agg,
		media:      media,
		apps:       apps,
		config:     config,
	}, nil
}

// Extensions returns every image and video extension the collector accepts.
func (c *Collector) Extensions() []string {
	out := make([]string, 0, len(c.media))
	for ext := range c.media {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// MediaTypeOf returns the media type for path's extension, or "" when the
// collector does not handle it.
func (c *Collector) MediaTypeOf(path string) model.MediaType {
	return c.media[strings.ToLower(filepath.Ext(path))]
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// entry is one record waiting for dedup. diskPath is the file to hash, or ""
// when the source only names a file that is not in the extraction.
type entry struct {
	rec      model.PhotoRecord
	diskPath string
	hash     string
}

// Run collects photo records from dbPool and candidates. The index is not
// reset, so content already recorded by an earlier artifact counts as seen.
// Per-source failures never abort the run; only context cancellation does.
func (c *Collector) Run(ctx context.Context, candidates []model.CandidateFile, dbPool []string) (*Result, error) {
	start := time.Now()
	logger := common.Logger(ctx)
	result := &Result{}

	report := func(err error) {
		result.Errors = append(result.Errors, err)
		c.aggregator.ReportProcessingError(ArtifactName, err.Error())
	}

	var entries []entry
	for _, db := range dbPool {
		if !isLibraryPath(db) {
			continue
		}
		found, err := c.fromLibrary(ctx, db)
		if err != nil && !c.tolerate(ctx, db, err, report) {
			return nil, err
		}
		entries = append(entries, found...)
	}
	for _, db := range dbPool {
		if !isMessagesPath(db) {
			continue
		}
		found, err := c.fromMessages(ctx, db)
		if err != nil && !c.tolerate(ctx, db, err, report) {
			return nil, err
		}
		entries = append(entries, found...)
	}
	entries = append(entries, c.fromApps(candidates, dbPool)...)

	logger.Info("Starting photo aggregation", "entries", len(entries), "databases", len(dbPool), "workers", c.config.Workers)

	if err := c.hashAll(ctx, entries, report); err != nil {
		return nil, fmt.Errorf("photo aggregation cancelled while hashing: %w", err)
	}

	seen := make(map[string]struct{}, len(entries))
	records := make([]model.PhotoRecord, 0, len(entries))
	for _, e := range entries {
		key := e.rec.FilePath
		if e.diskPath != "" {
			key = e.diskPath
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if c.index.CheckAndRecord(e.hash) {
			result.Duplicates++
			logger.Debug("Skipping duplicate content", "stage", "dedup", "path", key, "hash", e.hash)
			continue
		}
		e.rec.ContentHash = e.hash
		records = append(records, e.rec)
	}

	sortNewestFirst(records)
	result.Records = records
	result.Duration = time.Since(start)

	c.aggregator.ReportArtifactProcessed(ArtifactName, len(records))
	logger.Info("Photo aggregation complete",
		"records", len(records),
		"duplicates", result.Duplicates,
		"errors", len(result.Errors),
		"duration", result.Duration)

	return result, nil
}

// tolerate reports a source failure and says whether the run can go on.
func (c *Collector) tolerate(ctx context.Context, db string, err error, report func(error)) bool {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false
	}
	if common.IsNoMatch(err) {
		common.Logger(ctx).Debug("Photo source has no usable tables", "stage", "photos", "path", db, "reason", err)
		return true
	}
	common.Logger(ctx).Warn("Photo source failed", "stage", "photos", "path", db, "error", err)
	report(common.NewStageError("photos", db, err))
	return true
}

// hashAll fingerprints every entry that has a file on disk, in place.
func (c *Collector) hashAll(ctx context.Context, entries []entry, report func(error)) error {
	logger := common.Logger(ctx)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)

	for i := range entries {
		if gctx.Err() != nil {
			break
		}
		e := &entries[i]
		if e.diskPath == "" {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hash, err := c.index.Fingerprint(gctx, e.diskPath)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("Hashing failed, deduplication disabled for file",
					"stage", "fingerprint", "path", e.diskPath, "error", err)
				mu.Lock()
				report(common.NewStageError("fingerprint", e.diskPath, err))
				mu.Unlock()
			}
			e.hash = hash
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// sortNewestFirst orders records by timestamp, newest first. Records without
// a timestamp go last; ties keep source order.
func sortNewestFirst(records []model.PhotoRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Timestamp, records[j].Timestamp
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a > b
	})
}

// stat returns path's size and mtime, or ok=false when it is not a regular
// file in the extraction.
func stat(path string) (size int64, modTime time.Time, ok bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, time.Time{}, false
	}
	return info.Size(), info.ModTime(), true
}
