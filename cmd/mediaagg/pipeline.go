package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Eigen-Consulting/iLEAPP/internal/aggregation"
	"github.com/Eigen-Consulting/iLEAPP/internal/config"
	"github.com/Eigen-Consulting/iLEAPP/internal/discovery"
	"github.com/Eigen-Consulting/iLEAPP/internal/engine"
	"github.com/Eigen-Consulting/iLEAPP/internal/fingerprint"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/photos"
	"github.com/Eigen-Consulting/iLEAPP/internal/storage"
)

// pipelineResult is one discovery plus aggregation run over an extraction.
type pipelineResult struct {
	Run        *engine.RunResult
	Photos     *photos.Result
	Aggregator *aggregation.Aggregator
	Databases  int
}

// discoveryOptions builds walk options from the configuration.
func discoveryOptions(c *config.Config) discovery.Options {
	include := append([]string(nil), c.Discovery.Include...)
	if c.Discovery.ArtifactGlobs {
		include = append(include, discovery.ArtifactGlobs()...)
		if c.Photos.Enabled {
			include = append(include, discovery.PhotoGlobs()...)
		}
	}
	extensions := append([]string(nil), c.Engine.Extensions...)
	if c.Photos.Enabled {
		extensions = append(extensions, c.Photos.ImageExtensions...)
		extensions = append(extensions, c.Photos.VideoExtensions...)
	}
	return discovery.Options{
		Extensions: extensions,
		Include:    include,
		Exclude:    c.Discovery.Exclude,
	}
}

// photosConfig builds the photo collector configuration from the loaded config.
func photosConfig(c *config.Config) photos.Config {
	pc := photos.DefaultConfig()
	pc.ImageExtensions = c.Photos.ImageExtensions
	pc.VideoExtensions = c.Photos.VideoExtensions
	pc.Workers = c.Engine.Workers
	if c.Correlation.QueryTimeout > 0 {
		pc.QueryTimeout = c.Correlation.QueryTimeout
	}
	return pc
}

// engineConfig builds the engine configuration from the loaded config.
func engineConfig(c *config.Config, progress engine.ProgressFunc) engine.Config {
	ec := engine.DefaultConfig()
	ec.Progress = progress
	ec.Extensions = c.Engine.Extensions
	ec.Workers = c.Engine.Workers
	ec.Fingerprint = fingerprint.Options{
		MaxBytes: c.Fingerprint.MaxBytes,
		Timeout:  c.Fingerprint.Timeout,
	}
	if c.Correlation.QueryTimeout > 0 {
		ec.QueryTimeout = c.Correlation.QueryTimeout
	}
	return ec
}

// runPipeline walks root, then classifies, correlates and deduplicates
// everything it found. Audio goes through the engine first; when photos are
// enabled the remaining image and video files follow, sharing its dedup index.
func runPipeline(ctx context.Context, c *config.Config, root string, progress engine.ProgressFunc) (*pipelineResult, error) {
	found, err := discovery.Walk(ctx, config.ExpandPath(root), discoveryOptions(c))
	if err != nil {
		return nil, fmt.Errorf("failed to scan extraction: %w", err)
	}

	classifier, err := c.Classifier()
	if err != nil {
		return nil, err
	}

	reader := storage.NewSQLiteReader(c.Correlation.SchemaCacheTTL)
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			slog.Error("Failed to close evidence databases", "error", closeErr)
		}
	}()

	agg := aggregation.New()
	eng := engine.NewWithConfig(classifier, reader, agg, engineConfig(c, progress))

	var audio, media []model.CandidateFile
	for _, cand := range found.Candidates {
		if eng.Supported(cand) || !c.Photos.Enabled {
			audio = append(audio, cand)
		} else {
			media = append(media, cand)
		}
	}

	run, err := eng.Run(ctx, audio, found.Databases)
	if err != nil {
		return nil, err
	}

	var photoResult *photos.Result
	if c.Photos.Enabled {
		collector, err := photos.New(reader, eng.Index(), agg, photosConfig(c))
		if err != nil {
			return nil, err
		}
		if photoResult, err = collector.Run(ctx, media, found.Databases); err != nil {
			return nil, err
		}
		run.Errors = append(run.Errors, photoResult.Errors...)
	}

	// The engine resets the aggregator when a run starts, so walk problems
	// are reported afterwards.
	for _, walkErr := range found.Errors {
		run.Errors = append(run.Errors, walkErr)
		agg.ReportProcessingError(engine.ArtifactName, walkErr.Error())
	}
	agg.ReportDeviceInfo("extraction_root", root)
	agg.ReportDeviceInfo("run_id", run.RunID.String())

	return &pipelineResult{
		Run:        run,
		Photos:     photoResult,
		Aggregator: agg,
		Databases:  len(found.Databases),
	}, nil
}
