package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	telemetry "creditpool/observability/otel"
)

const (
	defaultListen            = ":8085"
	defaultSchedulerInterval = time.Minute
	defaultSnapshotRetention = 64
	minSecretLength          = 16
)

// Config captures the runtime settings for the pool daemon.
type Config struct {
	ListenAddress     string          `yaml:"listen"`
	Environment       string          `yaml:"env"`
	MarketPath        string          `yaml:"market"`
	DataDir           string          `yaml:"data_dir"`
	SnapshotRetention int             `yaml:"snapshot_retention"`
	Journal           JournalConfig   `yaml:"journal"`
	Auth              AuthConfig      `yaml:"auth"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	Scheduler         SchedulerConfig `yaml:"scheduler"`
	Logging           LoggingConfig   `yaml:"logging"`
	Telemetry         TelemetryConfig `yaml:"telemetry"`
}

// JournalConfig selects the SQL database backing the event journal. An empty
// DSN with the sqlite driver places the database inside the data directory.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	HMACSecret          string        `yaml:"hmac_secret"`
	Issuer              string        `yaml:"issuer"`
	Audience            string        `yaml:"audience"`
	ClockSkew           time.Duration `yaml:"clock_skew"`
	AllowAnonymousReads bool          `yaml:"allow_anonymous_reads"`
}

// RateLimitConfig bounds per-client request rates. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// SchedulerConfig controls the epoch refresh job.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Disabled bool          `yaml:"disabled"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	Traces      bool              `yaml:"traces"`
	Metrics     bool              `yaml:"metrics"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

// Load reads the YAML configuration from disk, applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv(os.Getenv)
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(getenv func(string) string) {
	if env := strings.TrimSpace(getenv("POOLD_ENV")); env != "" {
		cfg.Environment = env
	}
	if secret := strings.TrimSpace(getenv("POOLD_JWT_SECRET")); secret != "" {
		cfg.Auth.HMACSecret = secret
	}
	if endpoint := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		cfg.Telemetry.Endpoint = endpoint
	}
	headers := telemetry.ParseHeaders(getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	if len(headers) > 0 && cfg.Telemetry.Headers == nil {
		cfg.Telemetry.Headers = make(map[string]string, len(headers))
	}
	for key, value := range headers {
		cfg.Telemetry.Headers[key] = value
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.MarketPath = strings.TrimSpace(cfg.MarketPath)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.SnapshotRetention <= 0 {
		cfg.SnapshotRetention = defaultSnapshotRetention
	}
	cfg.Journal.normalize(cfg.DataDir)
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = defaultSchedulerInterval
	}
	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.MarketPath == "" {
		return fmt.Errorf("market: path required")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir: path required")
	}
	if err := cfg.Journal.validate(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if len(cfg.Auth.HMACSecret) < minSecretLength {
		return fmt.Errorf("auth: hmac_secret must be at least %d bytes", minSecretLength)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	if (cfg.Telemetry.Traces || cfg.Telemetry.Metrics) && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry: endpoint required when traces or metrics are enabled")
	}
	return nil
}

func (cfg *JournalConfig) normalize(dataDir string) {
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	if cfg.DSN == "" && cfg.Driver == "sqlite" && dataDir != "" {
		cfg.DSN = filepath.Join(dataDir, "journal.db")
	}
}

func (cfg JournalConfig) validate() error {
	switch cfg.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return fmt.Errorf("dsn required for driver %s", cfg.Driver)
	}
	return nil
}

// SnapshotDir is the LevelDB directory holding ledger snapshots.
func (cfg Config) SnapshotDir() string {
	return filepath.Join(cfg.DataDir, "snapshots")
}
