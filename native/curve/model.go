package curve

import (
	"fmt"
	"math/big"

	coreerrors "creditpool/core/errors"
	"creditpool/native/fixedpoint"
)

// Params configures the two-kink utilization curve. Every field is in basis
// points. Rates are annual.
type Params struct {
	U1            uint16
	U2            uint16
	Base          uint16
	Slope1        uint16
	Slope2        uint16
	Slope3        uint16
	ForbidAboveU2 bool
}

// Model maps pool utilization to an annual borrow rate in ray units. A Model
// is immutable once constructed.
type Model struct {
	params Params

	u1     *big.Int
	u2     *big.Int
	base   *big.Int
	slope1 *big.Int
	slope2 *big.Int
	slope3 *big.Int
}

// New validates params and returns a curve.
//
// The curve requires U1 <= U2 < 100%, base, slope1 and slope2 each at most
// 100%, and non-decreasing slopes (slope1 <= slope2 <= slope3).
func New(params Params) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Model{
		params: params,
		u1:     fixedpoint.BpsToRay(params.U1),
		u2:     fixedpoint.BpsToRay(params.U2),
		base:   fixedpoint.BpsToRay(params.Base),
		slope1: fixedpoint.BpsToRay(params.Slope1),
		slope2: fixedpoint.BpsToRay(params.Slope2),
		slope3: fixedpoint.BpsToRay(params.Slope3),
	}, nil
}

// Validate checks the curve shape.
func (p Params) Validate() error {
	switch {
	case p.U1 > p.U2:
		return fmt.Errorf("%w: U1 %d above U2 %d", coreerrors.ErrIncorrectParameter, p.U1, p.U2)
	case p.U2 >= fixedpoint.PercentageFactor:
		return fmt.Errorf("%w: U2 %d must stay below 100%%", coreerrors.ErrIncorrectParameter, p.U2)
	case p.Base > fixedpoint.PercentageFactor, p.Slope1 > fixedpoint.PercentageFactor, p.Slope2 > fixedpoint.PercentageFactor:
		return fmt.Errorf("%w: base and first slopes capped at 100%%", coreerrors.ErrIncorrectParameter)
	case p.Slope1 > p.Slope2 || p.Slope2 > p.Slope3:
		return fmt.Errorf("%w: slopes must be non-decreasing", coreerrors.ErrIncorrectParameter)
	}
	return nil
}

// Parameters returns the configuration the curve was built with.
func (m *Model) Parameters() Params { return m.params }

// Utilization returns (expected - available) / expected in ray units. A pool
// with no expected liquidity, or with more cash than claims, reports zero.
func Utilization(expected, available *big.Int) *big.Int {
	if !fixedpoint.IsPositive(expected) || expected.Cmp(fixedpoint.Clone(available)) <= 0 {
		return big.NewInt(0)
	}
	borrowed := new(big.Int).Sub(expected, fixedpoint.Clone(available))
	return fixedpoint.MulDiv(borrowed, fixedpoint.Ray, expected, fixedpoint.Floor)
}

// BorrowRate returns the annual borrow rate in ray units for the given
// liquidity. When enforceCap is set and the curve forbids borrowing above U2,
// a utilization past U2 fails with ErrBorrowingAboveU2Forbidden.
func (m *Model) BorrowRate(expected, available *big.Int, enforceCap bool) (*big.Int, error) {
	if !fixedpoint.IsPositive(expected) || expected.Cmp(fixedpoint.Clone(available)) <= 0 {
		return new(big.Int).Set(m.base), nil
	}
	u := Utilization(expected, available)

	if u.Cmp(m.u1) <= 0 {
		rate := new(big.Int).Set(m.base)
		if m.u1.Sign() > 0 {
			rate.Add(rate, fixedpoint.MulDiv(m.slope1, u, m.u1, fixedpoint.Floor))
		}
		return rate, nil
	}

	if u.Cmp(m.u2) <= 0 {
		rate := new(big.Int).Add(m.base, m.slope1)
		if span := new(big.Int).Sub(m.u2, m.u1); span.Sign() > 0 {
			rate.Add(rate, fixedpoint.MulDiv(m.slope2, new(big.Int).Sub(u, m.u1), span, fixedpoint.Floor))
		}
		return rate, nil
	}

	if enforceCap && m.params.ForbidAboveU2 {
		return nil, coreerrors.ErrBorrowingAboveU2Forbidden
	}
	rate := new(big.Int).Add(m.base, m.slope1)
	rate.Add(rate, m.slope2)
	span := new(big.Int).Sub(fixedpoint.Ray, m.u2)
	rate.Add(rate, fixedpoint.MulDiv(m.slope3, new(big.Int).Sub(u, m.u2), span, fixedpoint.Floor))
	return rate, nil
}

// AvailableToBorrow returns how much more can be borrowed before utilization
// reaches U2. Curves that allow borrowing above U2 report the full available
// liquidity, as do pools holding more cash than claims.
func (m *Model) AvailableToBorrow(expected, available *big.Int) *big.Int {
	avail := fixedpoint.Clone(available)
	if !m.params.ForbidAboveU2 || !fixedpoint.IsPositive(expected) || expected.Cmp(avail) < 0 {
		return avail
	}
	borrowed := new(big.Int).Sub(expected, avail)
	ceiling := fixedpoint.MulDiv(expected, m.u2, fixedpoint.Ray, fixedpoint.Floor)
	if borrowed.Cmp(ceiling) >= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(ceiling, borrowed)
}
