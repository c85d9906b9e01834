// Package engine drives candidate files through classification, deduplication,
// database correlation and record synthesis.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Eigen-Consulting/iLEAPP/internal/aggregation"
	"github.com/Eigen-Consulting/iLEAPP/internal/classification"
	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/correlation"
	"github.com/Eigen-Consulting/iLEAPP/internal/fingerprint"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/storage"
)

// ArtifactName is the name this pipeline reports to the aggregator.
const ArtifactName = "All User Audio"

// progressLogInterval is how often Run logs a progress line.
const progressLogInterval = 100

// DefaultExtensions lists the audio extensions processed when none are configured.
func DefaultExtensions() []string {
	return []string{".m4a", ".mp3", ".wav", ".aac", ".amr", ".caf", ".ogg", ".opus"}
}

// ProgressFunc is called after each candidate is hashed. It may be called
// from several goroutines, but never concurrently.
type ProgressFunc func(done, total int)

// Config holds configuration options for the engine.
type Config struct {
	Progress        ProgressFunc
	Signatures      []correlation.Signature
	Extensions      []string
	Fingerprint     fingerprint.Options
	QueryTimeout    time.Duration
	Workers         int
	ResetAggregator bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Extensions:      DefaultExtensions(),
		Workers:         1,
		QueryTimeout:    correlation.DefaultQueryTimeout,
		ResetAggregator: true,
	}
}

// RunResult is the outcome of one Run.
type RunResult struct {
	Records    []model.AggregateRecord
	Errors     []error
	Duration   time.Duration
	Duplicates int
	Missing    int
	Skipped    int
	RunID      uuid.UUID
}

// Engine orchestrates one aggregation run at a time.
type Engine struct {
	classifier *classification.Classifier
	querier    storage.Querier
	aggregator *aggregation.Aggregator
	index      *fingerprint.Index
	extensions map[string]struct{}
	config     Config
}

// New creates an engine with the default configuration.
func New(classifier *classification.Classifier, q storage.Querier, agg *aggregation.Aggregator) *Engine {
	return NewWithConfig(classifier, q, agg, DefaultConfig())
}

// NewWithConfig creates an engine with a custom configuration.
// A nil aggregator gets a private one.
func NewWithConfig(classifier *classification.Classifier, q storage.Querier, agg *aggregation.Aggregator, config Config) *Engine {
	if classifier == nil {
		classifier = classification.NewDefaultClassifier()
	}
	if agg == nil {
		agg = aggregation.New()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultExtensions()
	}

	exts := make(map[string]struct{}, len(config.Extensions))
	for _, ext := range config.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}

	return &Engine{
		classifier: classifier,
		querier:    q,
		aggregator: agg,
		index:      fingerprint.NewIndex(config.Fingerprint),
		extensions: exts,
		config:     config,
	}
}

// Aggregator returns the aggregator this engine reports into.
func (e *Engine) Aggregator() *aggregation.Aggregator {
	return e.aggregator
}

// Index returns the content index shared by every artifact in a run. Run
// resets it, so other artifacts use it after the audio run.
func (e *Engine) Index() *fingerprint.Index {
	return e.index
}

// Supported reports whether c has one of the configured extensions.
func (e *Engine) Supported(c model.CandidateFile) bool {
	ext := c.Extension
	if ext == "" {
		ext = model.NewCandidateFile(c.Path, 0, time.Time{}).Extension
	}
	_, ok := e.extensions[strings.ToLower(ext)]
	return ok
}

// item is one candidate's state between pipeline phases.
type item struct {
	cand    model.CandidateFile
	hash    string
	missing bool
}

// Run processes candidates in discovery order against dbPool. Records come
// back in discovery order; for duplicate content the first candidate wins.
// Per-file failures never abort the run; only context cancellation does.
func (e *Engine) Run(ctx context.Context, candidates []model.CandidateFile, dbPool []string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: uuid.New()}

	logger := common.Logger(ctx).With("run_id", result.RunID.String())
	ctx = common.WithLogger(ctx, logger)

	e.index.Reset()
	if e.config.ResetAggregator {
		e.aggregator.Reset()
	}

	var errMu sync.Mutex
	report := func(err error) {
		errMu.Lock()
		result.Errors = append(result.Errors, err)
		errMu.Unlock()
		e.aggregator.ReportProcessingError(ArtifactName, err.Error())
	}

	items := make([]item, 0, len(candidates))
	for _, c := range candidates {
		if !e.Supported(c) {
			result.Skipped++
			continue
		}
		items = append(items, item{cand: c})
	}
	logger.Info("Starting audio aggregation",
		"candidates", len(items), "skipped", result.Skipped, "databases", len(dbPool), "workers", e.config.Workers)

	if err := e.hashAll(ctx, items, report); err != nil {
		return nil, fmt.Errorf("run %s cancelled while hashing: %w", result.RunID, err)
	}

	// Dedup is decided in discovery order so the first copy always wins.
	kept := make([]item, 0, len(items))
	for _, it := range items {
		switch {
		case it.missing:
			result.Missing++
			if it.cand.Size == 0 && it.cand.ModTime.IsZero() {
				logger.Warn("Omitting missing file without metadata", "stage", "stat", "path", it.cand.Path)
				continue
			}
			kept = append(kept, it)
		case e.index.CheckAndRecord(it.hash):
			result.Duplicates++
			logger.Debug("Skipping duplicate content", "stage", "dedup", "path", it.cand.Path, "hash", it.hash)
		default:
			kept = append(kept, it)
		}
	}

	correlator := correlation.New(e.querier, e.correlatorOptions(report)...)
	records, err := e.synthesizeAll(ctx, kept, dbPool, correlator)
	if err != nil {
		return nil, fmt.Errorf("run %s cancelled while correlating: %w", result.RunID, err)
	}
	result.Records = records

	e.aggregator.ReportArtifactProcessed(ArtifactName, len(records))
	for _, rec := range records {
		e.aggregator.ReportCategoryCount(rec.Category, 1)
	}

	result.Duration = time.Since(start)
	logger.Info("Audio aggregation complete",
		"records", len(records),
		"duplicates", result.Duplicates,
		"missing", result.Missing,
		"errors", len(result.Errors),
		"broken_databases", correlator.Broken(),
		"duration", result.Duration)

	return result, nil
}

func (e *Engine) correlatorOptions(report func(error)) []correlation.Option {
	opts := []correlation.Option{
		correlation.WithQueryTimeout(e.config.QueryTimeout),
		correlation.WithErrorHandler(report),
	}
	if len(e.config.Signatures) > 0 {
		opts = append(opts, correlation.WithSignatures(e.config.Signatures))
	}
	return opts
}

// hashAll refreshes stat metadata and fingerprints every item in place.
func (e *Engine) hashAll(ctx context.Context, items []item, report func(error)) error {
	logger := common.Logger(ctx)
	total := len(items)

	var (
		progressMu sync.Mutex
		done       int
	)
	tick := func() {
		if e.config.Progress == nil {
			return
		}
		progressMu.Lock()
		done++
		e.config.Progress(done, total)
		progressMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)

	for i := range items {
		if gctx.Err() != nil {
			break
		}
		it := &items[i]
		g.Go(func() error {
			defer tick()
			if err := gctx.Err(); err != nil {
				return err
			}

			info, err := os.Stat(it.cand.Path)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				// Discovery metadata stands in; the file takes no part in dedup.
				it.missing = true
				logger.Warn("File not found", "stage", "stat", "path", it.cand.Path)
				return nil
			case err != nil:
				report(common.NewStageError("stat", it.cand.Path, err))
			default:
				it.cand.Size = info.Size()
				it.cand.ModTime = info.ModTime()
			}

			hash, err := e.index.Fingerprint(gctx, it.cand.Path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("Hashing failed, deduplication disabled for file",
					"stage", "fingerprint", "path", it.cand.Path, "error", err)
				report(common.NewStageError("fingerprint", it.cand.Path, err))
			}
			it.hash = hash
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// synthesizeAll classifies, correlates and synthesizes each kept item,
// writing results by index so output order matches input order.
func (e *Engine) synthesizeAll(ctx context.Context, items []item, dbPool []string, correlator *correlation.Correlator) ([]model.AggregateRecord, error) {
	logger := common.Logger(ctx)
	records := make([]model.AggregateRecord, len(items))
	var processed int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)

	for i := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			it := items[i]

			cls := e.classifier.Classify(it.cand.Path, it.cand.Size)
			dc, _ := correlator.Correlate(gctx, it.cand.Name(), dbPool)
			rec := Synthesize(it.cand, cls, dc, e.classifier)
			rec.ContentHash = it.hash
			records[i] = rec

			mu.Lock()
			processed++
			if processed%progressLogInterval == 0 {
				logger.Info("Processed audio files", "processed", processed, "total", len(items))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
