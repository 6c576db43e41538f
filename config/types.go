package config

import "creditpool/native/curve"

// Market is the static description of one lending market: the pool, its rate
// curve, the quota ledger, the rate keeper and the assets it prices.
type Market struct {
	Pool      Pool                `toml:"pool"`
	Curve     Curve               `toml:"curve"`
	Quota     Quota               `toml:"quota"`
	Keeper    Keeper              `toml:"keeper"`
	Assets    []Asset             `toml:"assets"`
	Borrowers []Borrower          `toml:"borrowers"`
	Roles     map[string][]string `toml:"roles"`
}

// Pool describes the liquidity ledger. Amounts are base-unit decimal strings;
// an empty TotalDebtLimit means unlimited.
type Pool struct {
	Address        string `toml:"address"`
	Underlying     string `toml:"underlying"`
	Treasury       string `toml:"treasury"`
	TotalDebtLimit string `toml:"total_debt_limit"`
	WithdrawFeeBps uint16 `toml:"withdraw_fee_bps"`
}

// Curve holds the two-kink rate curve in basis points.
type Curve struct {
	U1Bps         uint16 `toml:"u1_bps"`
	U2Bps         uint16 `toml:"u2_bps"`
	BaseBps       uint16 `toml:"base_bps"`
	Slope1Bps     uint16 `toml:"slope1_bps"`
	Slope2Bps     uint16 `toml:"slope2_bps"`
	Slope3Bps     uint16 `toml:"slope3_bps"`
	ForbidAboveU2 bool   `toml:"forbid_above_u2"`
}

// Params converts the section into curve parameters.
func (c Curve) Params() curve.Params {
	return curve.Params{
		U1:            c.U1Bps,
		U2:            c.U2Bps,
		Base:          c.BaseBps,
		Slope1:        c.Slope1Bps,
		Slope2:        c.Slope2Bps,
		Slope3:        c.Slope3Bps,
		ForbidAboveU2: c.ForbidAboveU2,
	}
}

// Quota identifies the quota ledger.
type Quota struct {
	Address string `toml:"address"`
}

// Keeper selects and identifies the rate keeper. Kind is "gauge" or "tumbler".
type Keeper struct {
	Kind         string `toml:"kind"`
	Address      string `toml:"address"`
	EpochSeconds uint64 `toml:"epoch_seconds"`
}

// Asset is a quotable collateral asset. Gauges use the min/max band; tumblers
// use RateBps.
type Asset struct {
	Address        string `toml:"address"`
	MinRateBps     uint16 `toml:"min_rate_bps"`
	MaxRateBps     uint16 `toml:"max_rate_bps"`
	RateBps        uint16 `toml:"rate_bps"`
	Limit          string `toml:"limit"`
	IncreaseFeeBps uint16 `toml:"increase_fee_bps"`
}

// Borrower opens a credit line. An empty DebtLimit means unlimited.
type Borrower struct {
	Address   string `toml:"address"`
	DebtLimit string `toml:"debt_limit"`
}
