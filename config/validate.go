package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"creditpool/native/curve"
	"creditpool/native/pool"
)

const (
	KeeperGauge   = "gauge"
	KeeperTumbler = "tumbler"
)

var knownRoles = map[string]struct{}{
	"configurator":   {},
	"controller":     {},
	"pauser":         {},
	"unpauser":       {},
	"credit_manager": {},
}

// ParseAddress decodes a hex address, rejecting malformed and zero values.
func ParseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: zero address", field)
	}
	return addr, nil
}

// ParseAmount decodes a non-negative base-unit decimal. An empty string yields
// nil, which callers treat as unlimited.
func ParseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	return v, nil
}

// ValidateConfig checks a market description before it is wired.
func ValidateConfig(m Market) error {
	addresses := []struct{ field, raw string }{
		{"pool.address", m.Pool.Address},
		{"pool.underlying", m.Pool.Underlying},
		{"pool.treasury", m.Pool.Treasury},
		{"quota.address", m.Quota.Address},
		{"keeper.address", m.Keeper.Address},
	}
	for _, a := range addresses {
		if _, err := ParseAddress(a.field, a.raw); err != nil {
			return err
		}
	}
	if _, err := ParseAmount("pool.total_debt_limit", m.Pool.TotalDebtLimit); err != nil {
		return err
	}
	if m.Pool.WithdrawFeeBps > pool.MaxWithdrawFee {
		return fmt.Errorf("pool.withdraw_fee_bps: %d above %d", m.Pool.WithdrawFeeBps, pool.MaxWithdrawFee)
	}
	if _, err := curve.New(m.Curve.Params()); err != nil {
		return fmt.Errorf("curve: %w", err)
	}

	kind := strings.ToLower(strings.TrimSpace(m.Keeper.Kind))
	if kind != KeeperGauge && kind != KeeperTumbler {
		return fmt.Errorf("keeper.kind: unknown keeper %q", m.Keeper.Kind)
	}
	if m.Keeper.EpochSeconds == 0 {
		return fmt.Errorf("keeper.epoch_seconds: must be positive")
	}

	seen := make(map[common.Address]struct{}, len(m.Assets))
	for i, asset := range m.Assets {
		field := fmt.Sprintf("assets[%d]", i)
		addr, err := ParseAddress(field+".address", asset.Address)
		if err != nil {
			return err
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("%s.address: duplicate asset %s", field, addr.Hex())
		}
		seen[addr] = struct{}{}
		if _, err := ParseAmount(field+".limit", asset.Limit); err != nil {
			return err
		}
		if asset.IncreaseFeeBps > 10_000 {
			return fmt.Errorf("%s.increase_fee_bps: above 100%%", field)
		}
		if kind == KeeperGauge && (asset.MinRateBps == 0 || asset.MinRateBps > asset.MaxRateBps) {
			return fmt.Errorf("%s: gauge band requires 0 < min_rate_bps <= max_rate_bps", field)
		}
	}
	for i, borrower := range m.Borrowers {
		field := fmt.Sprintf("borrowers[%d]", i)
		if _, err := ParseAddress(field+".address", borrower.Address); err != nil {
			return err
		}
		if _, err := ParseAmount(field+".debt_limit", borrower.DebtLimit); err != nil {
			return err
		}
	}

	if len(m.Roles["configurator"]) == 0 {
		return fmt.Errorf("roles.configurator: at least one configurator required")
	}
	for role, members := range m.Roles {
		if _, ok := knownRoles[role]; !ok {
			return fmt.Errorf("roles: unknown role %q", role)
		}
		for i, member := range members {
			if _, err := ParseAddress(fmt.Sprintf("roles.%s[%d]", role, i), member); err != nil {
				return err
			}
		}
	}
	return nil
}
