package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleMarket = `
[pool]
address = "0x0000000000000000000000000000000000001001"
underlying = "0x0000000000000000000000000000000000000d5c"
treasury = "0x0000000000000000000000000000000000007ea5"
total_debt_limit = "5000000"
withdraw_fee_bps = 10

[curve]
u1_bps = 8000
u2_bps = 9000
slope1_bps = 400
slope2_bps = 4000
slope3_bps = 7500
forbid_above_u2 = true

[quota]
address = "0x0000000000000000000000000000000000001002"

[keeper]
kind = " Tumbler "
address = "0x0000000000000000000000000000000000001003"
epoch_seconds = 86400

[[assets]]
address = "0x000000000000000000000000000000000000e7e0"
rate_bps = 250
limit = "1000000"
increase_fee_bps = 5

[[borrowers]]
address = "0x0000000000000000000000000000000000000c0c"
debt_limit = "250000"

[roles]
configurator = ["0x00000000000000000000000000000000000a11ce"]
credit_manager = ["0x0000000000000000000000000000000000000c0c"]
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesMarket(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleMarket))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Keeper.Kind != KeeperTumbler {
		t.Fatalf("expected normalised keeper kind, got %q", cfg.Keeper.Kind)
	}
	if !cfg.Curve.ForbidAboveU2 || cfg.Curve.Params().U2 != 9000 {
		t.Fatalf("unexpected curve: %+v", cfg.Curve)
	}
	if len(cfg.Assets) != 1 || cfg.Assets[0].RateBps != 250 {
		t.Fatalf("unexpected assets: %+v", cfg.Assets)
	}
	limit, err := ParseAmount("limit", cfg.Borrowers[0].DebtLimit)
	if err != nil || limit.Int64() != 250000 {
		t.Fatalf("unexpected borrower limit %v (%v)", limit, err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, sampleMarket+"\n[extra]\nvalue = 1\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadWritesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "market.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if err := ValidateConfig(*cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if reloaded.Keeper.EpochSeconds != cfg.Keeper.EpochSeconds {
		t.Fatalf("round trip lost epoch: %d", reloaded.Keeper.EpochSeconds)
	}
}

func TestValidateConfigRejects(t *testing.T) {
	cases := map[string]func(m *Market){
		"bad pool address":     func(m *Market) { m.Pool.Address = "nope" },
		"zero treasury":        func(m *Market) { m.Pool.Treasury = "0x0000000000000000000000000000000000000000" },
		"withdraw fee":         func(m *Market) { m.Pool.WithdrawFeeBps = 101 },
		"curve order":          func(m *Market) { m.Curve.U1Bps = 9500 },
		"unknown keeper":       func(m *Market) { m.Keeper.Kind = "oracle" },
		"zero epoch":           func(m *Market) { m.Keeper.EpochSeconds = 0 },
		"gauge band":           func(m *Market) { m.Assets[0].MinRateBps = 0 },
		"duplicate asset":      func(m *Market) { m.Assets = append(m.Assets, m.Assets[0]) },
		"negative limit":       func(m *Market) { m.Assets[0].Limit = "-1" },
		"missing configurator": func(m *Market) { delete(m.Roles, "configurator") },
		"unknown role":         func(m *Market) { m.Roles["root"] = []string{"0x00000000000000000000000000000000000a11ce"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := Default()
			mutate(m)
			if err := ValidateConfig(*m); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseAmountEmptyIsUnlimited(t *testing.T) {
	v, err := ParseAmount("limit", "  ")
	if err != nil || v != nil {
		t.Fatalf("expected nil amount, got %v (%v)", v, err)
	}
}
