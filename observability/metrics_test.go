package observability

import (
	"math"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"creditpool/core/events"
	"creditpool/native/market"
)

func TestObserveViewSetsGauges(t *testing.T) {
	m := Ledger()
	view := market.View{
		Pool: market.PoolView{
			ExpectedLiquidity:  "1040",
			AvailableLiquidity: "200",
			TotalBorrowed:      "800",
			Utilization:        "800000000000000000000000000",
			BaseInterestRate:   "40000000000000000000000000",
			SupplyRate:         "32000000000000000000000000",
			QuotaRevenue:       "0",
			Paused:             []string{market.ModuleQuota},
		},
		Keeper: market.KeeperView{Epoch: 3},
		Assets: []market.AssetView{{Asset: "0x000000000000000000000000000000000000E7e0", RateBps: 250, TotalQuoted: "900"}},
	}
	m.ObserveView(view)

	if got := testutil.ToFloat64(m.expectedLiquidity); got != 1040 {
		t.Fatalf("expected liquidity gauge %v", got)
	}
	if got := testutil.ToFloat64(m.utilization); math.Abs(got-0.8) > 1e-12 {
		t.Fatalf("utilization gauge %v", got)
	}
	if got := testutil.ToFloat64(m.baseRate); math.Abs(got-0.04) > 1e-12 {
		t.Fatalf("base rate gauge %v", got)
	}
	if got := testutil.ToFloat64(m.paused.WithLabelValues(market.ModuleQuota)); got != 1 {
		t.Fatalf("quota pause gauge %v", got)
	}
	if got := testutil.ToFloat64(m.paused.WithLabelValues(market.ModulePool)); got != 0 {
		t.Fatalf("pool pause gauge %v", got)
	}
	if got := testutil.ToFloat64(m.quotaRate.WithLabelValues("0x000000000000000000000000000000000000e7e0")); got != 250 {
		t.Fatalf("quota rate gauge %v", got)
	}
}

func TestEventsCountByType(t *testing.T) {
	counter := Events()
	before := testutil.ToFloat64(counter.emitted.WithLabelValues(events.TypePoolBorrow))
	counter.Emit(events.PoolBorrow{Amount: big.NewInt(1)})
	counter.Emit(events.PoolBorrow{Amount: big.NewInt(2)})
	after := testutil.ToFloat64(counter.emitted.WithLabelValues(events.TypePoolBorrow))
	if after-before != 2 {
		t.Fatalf("expected two borrow events, got %v", after-before)
	}
}

func TestRecordRefreshCountsOutcomes(t *testing.T) {
	metrics := Ledger()
	before := testutil.ToFloat64(metrics.refreshes.WithLabelValues("skipped"))
	metrics.RecordRefresh("skipped")
	if got := testutil.ToFloat64(metrics.refreshes.WithLabelValues("skipped")); got-before != 1 {
		t.Fatalf("expected one skipped refresh, got %v", got-before)
	}
	var nilMetrics *LedgerMetrics
	nilMetrics.RecordRefresh("error")
}

func TestDecimalHelpers(t *testing.T) {
	if got := decimal("not-a-number"); got != 0 {
		t.Fatalf("expected zero for malformed input, got %v", got)
	}
	if got := rayRatio("500000000000000000000000000"); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}
