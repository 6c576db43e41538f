package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulDivRounding(t *testing.T) {
	require.Equal(t, big.NewInt(3), MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(3), Floor))
	require.Equal(t, big.NewInt(4), MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(3), Ceil))
	require.Equal(t, big.NewInt(5), MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(2), Ceil))
	require.Zero(t, MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(0), Floor).Sign())
}

func TestBpsToRay(t *testing.T) {
	want, _ := new(big.Int).SetString("40000000000000000000000000", 10)
	require.Equal(t, want, BpsToRay(400))
	require.Equal(t, Ray, BpsToRay(PercentageFactor))
}

func TestGrowIndexOneYear(t *testing.T) {
	index := GrowIndex(Ray, BpsToRay(2000), SecondsPerYear)
	want := new(big.Int).Div(new(big.Int).Mul(Ray, big.NewInt(12)), big.NewInt(10))
	require.Equal(t, want, index)
}

func TestGrowIndexNeverShrinks(t *testing.T) {
	index := new(big.Int).Set(Ray)
	for i := 0; i < 10; i++ {
		next := GrowIndex(index, BpsToRay(1), 1)
		require.True(t, next.Cmp(index) >= 0)
		index = next
	}
	require.Equal(t, Ray, GrowIndex(Ray, BpsToRay(500), 0))
}

func TestAddIndexSumsAcrossRateChanges(t *testing.T) {
	half := uint64(SecondsPerYear / 2)
	index := AddIndex(Ray, BpsToRay(1000), half)
	index = AddIndex(index, BpsToRay(3000), half)
	want := new(big.Int).Div(new(big.Int).Mul(Ray, big.NewInt(12)), big.NewInt(10))
	require.Equal(t, want, index)
	require.Equal(t, Ray, AddIndex(nil, BpsToRay(500), 0))
}

func TestAccruedLinear(t *testing.T) {
	indexNow := new(big.Int).Div(new(big.Int).Mul(Ray, big.NewInt(12)), big.NewInt(10))
	require.Equal(t, big.NewInt(200), AccruedLinear(big.NewInt(1000), indexNow, Ray))
	require.Zero(t, AccruedLinear(big.NewInt(1000), Ray, Ray).Sign())
	require.Zero(t, AccruedLinear(big.NewInt(1000), indexNow, nil).Sign())
	require.Zero(t, AccruedLinear(big.NewInt(0), indexNow, Ray).Sign())
}

func TestLinearGrowth(t *testing.T) {
	require.Equal(t, big.NewInt(50), LinearGrowth(big.NewInt(100), SecondsPerYear/2))
	require.Zero(t, LinearGrowth(big.NewInt(100), 0).Sign())
}

func TestElapsed(t *testing.T) {
	require.Equal(t, uint64(5), Elapsed(15, 10))
	require.Zero(t, Elapsed(10, 15))
}
