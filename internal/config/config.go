// Package config loads and validates runtime configuration from viper.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Eigen-Consulting/iLEAPP/internal/classification"
	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
)

// EnvPrefix is the prefix of environment variables that override config keys.
const EnvPrefix = "MEDIAAGG"

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string         `mapstructure:"level"`
	Format string         `mapstructure:"format" validate:"oneof=console text json"`
	File   common.LogFile `mapstructure:"file"`
}

// EngineConfig controls the pipeline driver.
type EngineConfig struct {
	Extensions []string `mapstructure:"extensions" validate:"min=1,dive,required"`
	Workers    int      `mapstructure:"workers" validate:"min=1,max=256"`
}

// DiscoveryConfig controls the filesystem walk.
type DiscoveryConfig struct {
	Include       []string `mapstructure:"include"`
	Exclude       []string `mapstructure:"exclude"`
	ArtifactGlobs bool     `mapstructure:"artifact_globs"`
}

// FingerprintConfig bounds content hashing.
type FingerprintConfig struct {
	MaxBytes int64         `mapstructure:"max_bytes" validate:"min=0"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// CorrelationConfig bounds database probing.
type CorrelationConfig struct {
	QueryTimeout   time.Duration `mapstructure:"query_timeout" validate:"min=0"`
	SchemaCacheTTL time.Duration `mapstructure:"schema_cache_ttl" validate:"min=0"`
}

// ClassificationConfig optionally replaces the built-in rule table.
type ClassificationConfig struct {
	Rules []model.CategoryRule `mapstructure:"rules"`
}

// PhotosConfig controls the photo and video artifact.
type PhotosConfig struct {
	ImageExtensions []string `mapstructure:"image_extensions" validate:"dive,required"`
	VideoExtensions []string `mapstructure:"video_extensions" validate:"dive,required"`
	Enabled         bool     `mapstructure:"enabled"`
}

// OutputConfig names the files a run writes.
type OutputConfig struct {
	DashboardJSON string `mapstructure:"dashboard_json"`
	TSV           string `mapstructure:"tsv"`
	PhotosTSV     string `mapstructure:"photos_tsv"`
}

// Config is the full runtime configuration.
type Config struct {
	Logging        LoggingConfig        `mapstructure:"logging"`
	Output         OutputConfig         `mapstructure:"output"`
	Discovery      DiscoveryConfig      `mapstructure:"discovery"`
	Classification ClassificationConfig `mapstructure:"classification"`
	Engine         EngineConfig         `mapstructure:"engine"`
	Fingerprint    FingerprintConfig    `mapstructure:"fingerprint"`
	Correlation    CorrelationConfig    `mapstructure:"correlation"`
	Photos         PhotosConfig         `mapstructure:"photos"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.max_size_mb", 10)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 30)
	v.SetDefault("engine.workers", 1)
	v.SetDefault("engine.extensions", []string{".m4a", ".mp3", ".wav", ".aac", ".amr", ".caf", ".ogg", ".opus"})
	v.SetDefault("discovery.artifact_globs", false)
	v.SetDefault("fingerprint.max_bytes", 0)
	v.SetDefault("fingerprint.timeout", time.Duration(0))
	v.SetDefault("correlation.query_timeout", 5*time.Second)
	v.SetDefault("correlation.schema_cache_ttl", 10*time.Minute)
	v.SetDefault("photos.enabled", true)
	v.SetDefault("photos.image_extensions", []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif"})
	v.SetDefault("photos.video_extensions", []string{".mp4", ".mov", ".avi", ".m4v", ".3gp"})
}

// Load decodes v into a Config, expands paths and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	cfg.Logging.File.Path = ExpandPath(cfg.Logging.File.Path)
	cfg.Output.DashboardJSON = ExpandPath(cfg.Output.DashboardJSON)
	cfg.Output.TSV = ExpandPath(cfg.Output.TSV)
	cfg.Output.PhotosTSV = ExpandPath(cfg.Output.PhotosTSV)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every section and joins all problems into one error.
func (c *Config) Validate() error {
	var errs []error

	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, fmt.Errorf("%w: %s %s", common.ErrInvalidConfig, configKey(fe), describe(fe)))
		}
	}

	if len(c.Classification.Rules) > 0 {
		if _, err := classification.NewClassifier(c.Classification.Rules); err != nil {
			errs = append(errs, fmt.Errorf("%w: classification.rules: %v", common.ErrInvalidConfig, err))
		}
	}

	return errors.Join(errs...)
}

// configKey turns a validator namespace like Config.engine.workers into the
// dotted key used in config files.
func configKey(fe validator.FieldError) string {
	_, key, found := strings.Cut(fe.Namespace(), ".")
	if !found {
		return fe.Namespace()
	}
	return key
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must not be empty"
		}
		return fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be at most %s, got %v", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "required":
		return "must not be blank"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// Classifier builds the classifier for this configuration: the configured
// rule table when one is given, otherwise the built-in table.
func (c *Config) Classifier() (*classification.Classifier, error) {
	if len(c.Classification.Rules) == 0 {
		return classification.NewDefaultClassifier(), nil
	}
	return classification.NewClassifier(c.Classification.Rules)
}
