package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads a market description from path. A missing file is replaced by a
// local development market written to path. Unknown keys are rejected.
func Load(path string) (*Market, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Market{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	normalize(cfg)
	if err := ValidateConfig(*cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func normalize(cfg *Market) {
	cfg.Keeper.Kind = strings.ToLower(strings.TrimSpace(cfg.Keeper.Kind))
	if cfg.Keeper.Kind == "" {
		cfg.Keeper.Kind = KeeperGauge
	}
	if cfg.Roles == nil {
		cfg.Roles = map[string][]string{}
	}
}

// Default returns the local development market.
func Default() *Market {
	const (
		admin = "0x00000000000000000000000000000000000a11ce"
		weth  = "0x000000000000000000000000000000000000e7e0"
		wbtc  = "0x0000000000000000000000000000000000000b7c"
	)
	return &Market{
		Pool: Pool{
			Address:    "0x0000000000000000000000000000000000001001",
			Underlying: "0x0000000000000000000000000000000000000d5c",
			Treasury:   "0x0000000000000000000000000000000000007ea5",
		},
		Curve: Curve{U1Bps: 8000, U2Bps: 9000, BaseBps: 0, Slope1Bps: 400, Slope2Bps: 4000, Slope3Bps: 7500},
		Quota: Quota{Address: "0x0000000000000000000000000000000000001002"},
		Keeper: Keeper{
			Kind:         KeeperGauge,
			Address:      "0x0000000000000000000000000000000000001003",
			EpochSeconds: 7 * 24 * 60 * 60,
		},
		Assets: []Asset{
			{Address: weth, MinRateBps: 100, MaxRateBps: 1500, Limit: "1000000000000"},
			{Address: wbtc, MinRateBps: 100, MaxRateBps: 1000, Limit: "500000000000"},
		},
		Roles: map[string][]string{
			"configurator":   {admin},
			"controller":     {admin},
			"pauser":         {admin},
			"unpauser":       {admin},
			"credit_manager": {admin},
		},
	}
}

func createDefault(path string) (*Market, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Market) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
