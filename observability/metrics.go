package observability

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"creditpool/native/market"
)

type apiMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// API returns the lazily-initialised metrics registry used to record HTTP
// API activity.
func API() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditpool",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditpool",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "creditpool",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditpool",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by throttling.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.errors,
			apiRegistry.latency,
			apiRegistry.throttles,
		)
	})
	return apiRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *apiMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards and alerts remain consistent.
func (m *apiMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// LedgerMetrics mirrors the market's observable state into gauges.
type LedgerMetrics struct {
	expectedLiquidity  prometheus.Gauge
	availableLiquidity prometheus.Gauge
	totalBorrowed      prometheus.Gauge
	utilization        prometheus.Gauge
	baseRate           prometheus.Gauge
	supplyRate         prometheus.Gauge
	quotaRevenue       prometheus.Gauge
	keeperEpoch        prometheus.Gauge
	paused             *prometheus.GaugeVec
	totalQuoted        *prometheus.GaugeVec
	quotaRate          *prometheus.GaugeVec
	refreshes          *prometheus.CounterVec
	// refreshOutcomes is exported over OTLP when telemetry metrics are on.
	refreshOutcomes otelmetric.Int64Counter
}

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		gauge := func(name, help string) prometheus.Gauge {
			return prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "creditpool",
				Subsystem: "ledger",
				Name:      name,
				Help:      help,
			})
		}
		ledgerRegistry = &LedgerMetrics{
			expectedLiquidity:  gauge("expected_liquidity", "Expected liquidity including accrued interest, in base units."),
			availableLiquidity: gauge("available_liquidity", "Cash held by the pool, in base units."),
			totalBorrowed:      gauge("total_borrowed", "Outstanding principal across borrowers, in base units."),
			utilization:        gauge("utilization_ratio", "Borrowed share of expected liquidity."),
			baseRate:           gauge("base_interest_rate_ratio", "Annual base borrow rate."),
			supplyRate:         gauge("supply_rate_ratio", "Annual rate earned by liquidity providers."),
			quotaRevenue:       gauge("quota_revenue", "Annual quota revenue in base units times basis points."),
			keeperEpoch:        gauge("keeper_epoch", "Number of rate pushes made by the keeper."),
			paused: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creditpool",
				Subsystem: "ledger",
				Name:      "module_paused",
				Help:      "Whether a module is paused (1) or running (0).",
			}, []string{"module"}),
			totalQuoted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creditpool",
				Subsystem: "ledger",
				Name:      "asset_total_quoted",
				Help:      "Total quota across positions per asset, in base units.",
			}, []string{"asset"}),
			quotaRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "creditpool",
				Subsystem: "ledger",
				Name:      "asset_quota_rate_bps",
				Help:      "Quota rate in force per asset, in basis points.",
			}, []string{"asset"}),
			refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditpool",
				Subsystem: "ledger",
				Name:      "rate_refreshes_total",
				Help:      "Scheduled rate refresh attempts segmented by outcome.",
			}, []string{"outcome"}),
		}
		counter, err := otel.Meter("creditpool/observability").Int64Counter(
			"creditpool.ledger.rate_refreshes",
			otelmetric.WithDescription("Scheduled rate refresh attempts segmented by outcome."),
		)
		if err == nil {
			ledgerRegistry.refreshOutcomes = counter
		}
		prometheus.MustRegister(
			ledgerRegistry.expectedLiquidity,
			ledgerRegistry.availableLiquidity,
			ledgerRegistry.totalBorrowed,
			ledgerRegistry.utilization,
			ledgerRegistry.baseRate,
			ledgerRegistry.supplyRate,
			ledgerRegistry.quotaRevenue,
			ledgerRegistry.keeperEpoch,
			ledgerRegistry.paused,
			ledgerRegistry.totalQuoted,
			ledgerRegistry.quotaRate,
			ledgerRegistry.refreshes,
		)
	})
	return ledgerRegistry
}

// ObserveView copies a market view into the gauges.
func (m *LedgerMetrics) ObserveView(view market.View) {
	if m == nil {
		return
	}
	m.expectedLiquidity.Set(decimal(view.Pool.ExpectedLiquidity))
	m.availableLiquidity.Set(decimal(view.Pool.AvailableLiquidity))
	m.totalBorrowed.Set(decimal(view.Pool.TotalBorrowed))
	m.utilization.Set(rayRatio(view.Pool.Utilization))
	m.baseRate.Set(rayRatio(view.Pool.BaseInterestRate))
	m.supplyRate.Set(rayRatio(view.Pool.SupplyRate))
	m.quotaRevenue.Set(decimal(view.Pool.QuotaRevenue))
	m.keeperEpoch.Set(float64(view.Keeper.Epoch))

	for _, module := range []string{market.ModulePool, market.ModuleQuota} {
		m.paused.WithLabelValues(module).Set(0)
	}
	for _, module := range view.Pool.Paused {
		m.paused.WithLabelValues(module).Set(1)
	}
	for _, asset := range view.Assets {
		label := strings.ToLower(asset.Asset)
		m.totalQuoted.WithLabelValues(label).Set(decimal(asset.TotalQuoted))
		m.quotaRate.WithLabelValues(label).Set(float64(asset.RateBps))
	}
}

// RecordRefresh counts a scheduled refresh attempt. Outcomes are "pushed",
// "skipped" or "error".
func (m *LedgerMetrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	if m.refreshOutcomes != nil {
		m.refreshOutcomes.Add(context.Background(), 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

var ray = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil))

func decimal(raw string) float64 {
	v, ok := new(big.Float).SetString(raw)
	if !ok {
		return 0
	}
	f, _ := v.Float64()
	return f
}

func rayRatio(raw string) float64 {
	v, ok := new(big.Float).SetString(raw)
	if !ok {
		return 0
	}
	f, _ := new(big.Float).Quo(v, ray).Float64()
	return f
}
