package fixedpoint

import "math/big"

// Rounding selects the direction applied when a division leaves a remainder.
type Rounding uint8

const (
	// Floor rounds towards zero. Used wherever rounding must favour the ledger.
	Floor Rounding = iota
	// Ceil rounds away from zero. Used wherever rounding must favour the pool
	// at the caller's expense (e.g. shares burned on withdrawal).
	Ceil
)

const (
	// PercentageFactor is 100% expressed in basis points.
	PercentageFactor = 10_000
	// SecondsPerYear is the accrual year used by every linear growth formula.
	SecondsPerYear = 365 * 24 * 60 * 60
)

var (
	// Ray is the 1e27 fixed-point unit used for rates and cumulative indexes.
	Ray = mustBigInt("1000000000000000000000000000")
	// RayPerBps converts basis points into ray units (1e23).
	RayPerBps = new(big.Int).Quo(Ray, big.NewInt(PercentageFactor))

	bigPercentageFactor = big.NewInt(PercentageFactor)
	bigSecondsPerYear   = big.NewInt(SecondsPerYear)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Clone returns a copy of x, mapping nil to zero.
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(x)
}

// Min returns a copy of the smaller operand.
func Min(a, b *big.Int) *big.Int {
	if Clone(a).Cmp(Clone(b)) <= 0 {
		return Clone(a)
	}
	return Clone(b)
}

// IsPositive reports whether x is non-nil and strictly greater than zero.
func IsPositive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// MulDiv computes a*b/d with the requested rounding. Operands are expected to
// be non-negative; a zero divisor yields zero.
func MulDiv(a, b, d *big.Int, rounding Rounding) *big.Int {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(product, d, new(big.Int))
	if rounding == Ceil && rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// RayMul multiplies a by the ray-denominated factor b, rounding down.
func RayMul(a, b *big.Int) *big.Int {
	return MulDiv(a, b, Ray, Floor)
}

// BpsToRay converts a basis point rate into ray units.
func BpsToRay(bps uint16) *big.Int {
	return new(big.Int).Mul(big.NewInt(int64(bps)), RayPerBps)
}

// PercentMul applies a basis point factor to value.
func PercentMul(value *big.Int, bps uint16, rounding Rounding) *big.Int {
	return MulDiv(value, big.NewInt(int64(bps)), bigPercentageFactor, rounding)
}

// LinearGrowth returns value * elapsed / SecondsPerYear rounded down. With a
// ray-denominated annual rate as value, the result is the ray growth factor
// accumulated over the elapsed seconds.
func LinearGrowth(value *big.Int, elapsed uint64) *big.Int {
	if value == nil || value.Sign() == 0 || elapsed == 0 {
		return big.NewInt(0)
	}
	return MulDiv(value, new(big.Int).SetUint64(elapsed), bigSecondsPerYear, Floor)
}

// GrowIndex advances a cumulative ray index by a linear annual rate over the
// elapsed seconds: index * (RAY + rate*elapsed/year) / RAY. The result never
// falls below index.
func GrowIndex(index, rateRay *big.Int, elapsed uint64) *big.Int {
	if index == nil {
		return new(big.Int).Set(Ray)
	}
	growth := LinearGrowth(rateRay, elapsed)
	if growth.Sign() == 0 {
		return new(big.Int).Set(index)
	}
	return RayMul(index, new(big.Int).Add(Ray, growth))
}

// AddIndex advances an additive ray index by a linear annual rate over the
// elapsed seconds: index + rate*elapsed/year. Successive steps sum, so the
// index grows linearly across rate changes.
func AddIndex(index, rateRay *big.Int, elapsed uint64) *big.Int {
	next := Clone(index)
	if index == nil {
		next.Set(Ray)
	}
	return next.Add(next, LinearGrowth(rateRay, elapsed))
}

// AccruedLinear returns principal * (indexNow - indexLU) / RAY rounded down,
// the interest owed on an additive index. An index that did not grow accrues
// nothing.
func AccruedLinear(principal, indexNow, indexLU *big.Int) *big.Int {
	if principal == nil || principal.Sign() <= 0 || indexLU == nil || indexNow == nil {
		return big.NewInt(0)
	}
	delta := new(big.Int).Sub(indexNow, indexLU)
	if delta.Sign() <= 0 {
		return big.NewInt(0)
	}
	return MulDiv(principal, delta, Ray, Floor)
}

// Elapsed returns now-since, or zero when the clock did not move forward.
func Elapsed(now, since uint64) uint64 {
	if now <= since {
		return 0
	}
	return now - since
}
