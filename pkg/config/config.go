// Package config loads doctrine settings from DOCTRINE_* environment
// variables and builds the process logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Mindburn-Labs/doctrine/pkg/artifacts"
	"github.com/Mindburn-Labs/doctrine/pkg/observability"
)

// Catalog drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Config holds run configuration.
type Config struct {
	LogLevel  string `env:"DOCTRINE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DOCTRINE_LOG_FORMAT" envDefault:"text"`

	CatalogDriver string  `env:"DOCTRINE_CATALOG_DRIVER" envDefault:"postgres"`
	DatabaseURL   string  `env:"DOCTRINE_DATABASE_URL"`
	Schema        string  `env:"DOCTRINE_SCHEMA" envDefault:"public"`
	CatalogFile   string  `env:"DOCTRINE_CATALOG_FILE"`
	CatalogRPS    float64 `env:"DOCTRINE_CATALOG_RPS" envDefault:"0"`
	CatalogBurst  int     `env:"DOCTRINE_CATALOG_BURST" envDefault:"1"`

	RulesFile     string   `env:"DOCTRINE_RULES_FILE"`
	DisabledRules []string `env:"DOCTRINE_DISABLED_RULES" envSeparator:","`
	RuleWorkers   int      `env:"DOCTRINE_RULE_WORKERS" envDefault:"4"`

	AutoCorrect       bool   `env:"DOCTRINE_AUTO_CORRECT" envDefault:"false"`
	CorrectionWorkers int    `env:"DOCTRINE_CORRECTION_WORKERS" envDefault:"4"`
	RedisAddr         string `env:"DOCTRINE_REDIS_ADDR"`
	RedisPassword     string `env:"DOCTRINE_REDIS_PASSWORD"`
	RedisDB           int    `env:"DOCTRINE_REDIS_DB" envDefault:"0"`

	ReportStorage string `env:"DOCTRINE_REPORT_STORAGE"`
	DataDir       string `env:"DOCTRINE_DATA_DIR" envDefault:"data"`
	S3Bucket      string `env:"DOCTRINE_S3_BUCKET"`
	S3Region      string `env:"DOCTRINE_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint    string `env:"DOCTRINE_S3_ENDPOINT"`
	S3Prefix      string `env:"DOCTRINE_S3_PREFIX"`
	GCSBucket     string `env:"DOCTRINE_GCS_BUCKET"`
	GCSPrefix     string `env:"DOCTRINE_GCS_PREFIX"`

	OTelEnabled    bool          `env:"DOCTRINE_OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint   string        `env:"DOCTRINE_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPInsecure   bool          `env:"DOCTRINE_OTLP_INSECURE" envDefault:"true"`
	SampleRate     float64       `env:"DOCTRINE_OTEL_SAMPLE_RATE" envDefault:"1.0"`
	ExportInterval time.Duration `env:"DOCTRINE_OTEL_EXPORT_INTERVAL" envDefault:"15s"`
	Environment    string        `env:"DOCTRINE_ENVIRONMENT" envDefault:"development"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses an explicit environment instead of the process one.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.CatalogDriver = strings.ToLower(strings.TrimSpace(cfg.CatalogDriver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.CatalogDriver {
	case DriverPostgres, DriverSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DOCTRINE_DATABASE_URL is required for the %s catalog", ErrInvalidConfig, c.CatalogDriver)
		}
	case DriverMemory:
		if c.CatalogFile == "" {
			return fmt.Errorf("%w: DOCTRINE_CATALOG_FILE is required for the memory catalog", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown catalog driver %q", ErrInvalidConfig, c.CatalogDriver)
	}
	if c.RuleWorkers < 1 || c.CorrectionWorkers < 1 {
		return fmt.Errorf("%w: worker counts must be positive", ErrInvalidConfig)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("%w: sample rate %v outside [0,1]", ErrInvalidConfig, c.SampleRate)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ArtifactOptions returns report storage settings. ok is false when no
// storage is configured.
func (c *Config) ArtifactOptions() (opts artifacts.Options, ok bool) {
	if c.ReportStorage == "" {
		return artifacts.Options{}, false
	}
	return artifacts.Options{
		Type:       artifacts.StoreType(c.ReportStorage),
		DataDir:    c.DataDir,
		S3Bucket:   c.S3Bucket,
		S3Region:   c.S3Region,
		S3Endpoint: c.S3Endpoint,
		S3Prefix:   c.S3Prefix,
		GCSBucket:  c.GCSBucket,
		GCSPrefix:  c.GCSPrefix,
	}, true
}

// Observability returns the telemetry settings.
func (c *Config) Observability() *observability.Config {
	oc := observability.DefaultConfig()
	oc.Enabled = c.OTelEnabled
	oc.OTLPEndpoint = c.OTLPEndpoint
	oc.Insecure = c.OTLPInsecure
	oc.SampleRate = c.SampleRate
	oc.ExportInterval = c.ExportInterval
	oc.Environment = c.Environment
	return oc
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalidConfig, s)
	}
	return level, nil
}

// NewLogger builds a slog logger writing to w in the configured format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
