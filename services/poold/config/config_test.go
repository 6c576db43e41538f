package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :9000 "
market: " market.toml "
data_dir: "/var/lib/poold"
auth:
  hmac_secret: "0123456789abcdef0123"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.MarketPath != "market.toml" {
		t.Fatalf("expected trimmed market path, got %q", cfg.MarketPath)
	}
	if cfg.Journal.Driver != "sqlite" {
		t.Fatalf("expected sqlite journal by default, got %q", cfg.Journal.Driver)
	}
	if cfg.Journal.DSN != filepath.Join("/var/lib/poold", "journal.db") {
		t.Fatalf("unexpected journal dsn: %q", cfg.Journal.DSN)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("unexpected scheduler interval: %s", cfg.Scheduler.Interval)
	}
	if cfg.Auth.ClockSkew != 2*time.Minute {
		t.Fatalf("unexpected clock skew: %s", cfg.Auth.ClockSkew)
	}
	if cfg.SnapshotRetention != defaultSnapshotRetention {
		t.Fatalf("unexpected snapshot retention: %d", cfg.SnapshotRetention)
	}
	if cfg.SnapshotDir() != filepath.Join("/var/lib/poold", "snapshots") {
		t.Fatalf("unexpected snapshot dir: %q", cfg.SnapshotDir())
	}
}

func TestLoadConfigParsesDurations(t *testing.T) {
	path := writeConfig(t, `
market: "market.toml"
data_dir: "data"
auth:
  hmac_secret: "0123456789abcdef0123"
  clock_skew: 30s
scheduler:
  interval: 15m
rate_limit:
  requests_per_minute: 120
  burst: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Scheduler.Interval != 15*time.Minute {
		t.Fatalf("unexpected scheduler interval: %s", cfg.Scheduler.Interval)
	}
	if cfg.Auth.ClockSkew != 30*time.Second {
		t.Fatalf("unexpected clock skew: %s", cfg.Auth.ClockSkew)
	}
	if cfg.RateLimit.RequestsPerMinute != 120 || cfg.RateLimit.Burst != 10 {
		t.Fatalf("unexpected rate limit: %+v", cfg.RateLimit)
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("POOLD_ENV", " Prod ")
	t.Setenv("POOLD_JWT_SECRET", "secret-from-environment")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-tenant=pool,x-key=abc")
	path := writeConfig(t, `
env: dev
market: "market.toml"
data_dir: "data"
auth:
  hmac_secret: "short"
telemetry:
  headers:
    x-tenant: yaml
    x-region: eu
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Environment != "prod" {
		t.Fatalf("expected env override, got %q", cfg.Environment)
	}
	if cfg.Auth.HMACSecret != "secret-from-environment" {
		t.Fatalf("expected secret override, got %q", cfg.Auth.HMACSecret)
	}
	if cfg.Telemetry.Endpoint != "collector:4318" {
		t.Fatalf("expected endpoint override, got %q", cfg.Telemetry.Endpoint)
	}
	want := map[string]string{"x-tenant": "pool", "x-key": "abc", "x-region": "eu"}
	if len(cfg.Telemetry.Headers) != len(want) {
		t.Fatalf("unexpected headers %v", cfg.Telemetry.Headers)
	}
	for key, value := range want {
		if cfg.Telemetry.Headers[key] != value {
			t.Fatalf("header %s: got %q want %q", key, cfg.Telemetry.Headers[key], value)
		}
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"missing market": {
			body: `
data_dir: "data"
auth:
  hmac_secret: "0123456789abcdef0123"
`,
			want: "market",
		},
		"short secret": {
			body: `
market: "market.toml"
data_dir: "data"
auth:
  hmac_secret: "short"
`,
			want: "hmac_secret",
		},
		"unknown driver": {
			body: `
market: "market.toml"
data_dir: "data"
journal:
  driver: mysql
  dsn: "user@tcp/db"
auth:
  hmac_secret: "0123456789abcdef0123"
`,
			want: "unsupported driver",
		},
		"postgres without dsn": {
			body: `
market: "market.toml"
data_dir: "data"
journal:
  driver: postgres
auth:
  hmac_secret: "0123456789abcdef0123"
`,
			want: "dsn required",
		},
		"telemetry without endpoint": {
			body: `
market: "market.toml"
data_dir: "data"
auth:
  hmac_secret: "0123456789abcdef0123"
telemetry:
  traces: true
`,
			want: "endpoint required",
		},
		"unknown key": {
			body: `
market: "market.toml"
data_dir: "data"
surprise: true
auth:
  hmac_secret: "0123456789abcdef0123"
`,
			want: "surprise",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("POOLD_JWT_SECRET", "")
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadConfigRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
