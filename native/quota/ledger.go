package quota

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	nativecommon "creditpool/native/common"
	"creditpool/native/fixedpoint"
)

const moduleName = "quota"

// MaxIncreaseFee caps the one-off quota increase fee at 100%.
const MaxIncreaseFee = fixedpoint.PercentageFactor

// Pool is the liquidity ledger the quota ledger reports revenue to.
type Pool interface {
	UpdateQuotaRevenue(caller common.Address, delta *big.Int) error
	SetQuotaRevenue(caller common.Address, value *big.Int) error
}

// AssetParams is the per-asset quota state. CumulativeIndexLU is the
// additive interest index as of the last rate refresh and starts at one ray;
// each refresh adds rate*elapsed/year, so quota interest grows linearly like
// the pool's quota revenue. Live turns on once a rate keeper has priced the asset.
type AssetParams struct {
	Rate              uint16
	CumulativeIndexLU *big.Int
	IncreaseFee       uint16
	TotalQuoted       *big.Int
	Limit             *big.Int
	Live              bool
}

func (a *AssetParams) clone() AssetParams {
	return AssetParams{
		Rate:              a.Rate,
		CumulativeIndexLU: fixedpoint.Clone(a.CumulativeIndexLU),
		IncreaseFee:       a.IncreaseFee,
		TotalQuoted:       fixedpoint.Clone(a.TotalQuoted),
		Limit:             fixedpoint.Clone(a.Limit),
		Live:              a.Live,
	}
}

// PositionQuota is a position's quota in one asset and the index its interest
// was last settled at.
type PositionQuota struct {
	Quota             *big.Int
	CumulativeIndexLU *big.Int
}

func (q *PositionQuota) clone() PositionQuota {
	return PositionQuota{Quota: fixedpoint.Clone(q.Quota), CumulativeIndexLU: fixedpoint.Clone(q.CumulativeIndexLU)}
}

// RateUpdate is a new annual rate, in basis points, for an asset.
type RateUpdate struct {
	Asset common.Address
	Rate  uint16
}

// QuotaChange reports what UpdateQuota did.
type QuotaChange struct {
	// Interest accrued on the previous quota and settled by this call.
	Interest *big.Int
	// Fees charged on the increase.
	Fees *big.Int
	// RealizedDelta is the signed change actually applied after clamping.
	RealizedDelta *big.Int
	// Enabled is set when the quota moved from zero to positive.
	Enabled bool
	// Disabled is set when the quota moved from positive to zero.
	Disabled bool
}

func noChange() QuotaChange {
	return QuotaChange{Interest: big.NewInt(0), Fees: big.NewInt(0), RealizedDelta: big.NewInt(0)}
}

// Config carries the identity of a quota ledger. Clock defaults to time.Now.
type Config struct {
	Address common.Address
	Clock   func() time.Time
}

// Ledger tracks per-position quotas on collateral assets, accrues interest on
// them through per-asset cumulative indexes, and keeps the pool's quota
// revenue equal to the sum of quoted amounts times their rates.
//
// A Ledger is not safe for concurrent use; callers serialise access.
type Ledger struct {
	address    common.Address
	pool       Pool
	rateKeeper common.Address

	acl     nativecommon.Authorizer
	pauses  nativecommon.PauseView
	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() time.Time

	assets         map[common.Address]*AssetParams
	order          []common.Address
	positions      map[common.Address]map[common.Address]*PositionQuota
	lastRateUpdate uint64
}

// New creates an empty quota ledger reporting to pool.
func New(cfg Config, pool Pool) (*Ledger, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: quota ledger address required", coreerrors.ErrZeroAddress)
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: pool required", coreerrors.ErrIncorrectParameter)
	}
	l := &Ledger{
		address:   cfg.Address,
		pool:      pool,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		nowFn:     time.Now,
		assets:    make(map[common.Address]*AssetParams),
		positions: make(map[common.Address]map[common.Address]*PositionQuota),
	}
	if cfg.Clock != nil {
		l.nowFn = cfg.Clock
	}
	return l, nil
}

// SetNowFunc overrides the clock. Primarily used in tests.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.nowFn = now
}

// SetEmitter configures the event sink.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetLogger configures the structured logger.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	l.logger = logger.With("module", moduleName)
}

// SetPauses wires the pause switchboard. A paused ledger refuses quota
// increases; decreases and removals keep working.
func (l *Ledger) SetPauses(pauses nativecommon.PauseView) { l.pauses = pauses }

// SetAuthorizer wires the role table.
func (l *Ledger) SetAuthorizer(acl nativecommon.Authorizer) { l.acl = acl }

// Address returns the ledger's identity.
func (l *Ledger) Address() common.Address { return l.address }

// RateKeeper returns the address allowed to add assets and push rates.
func (l *Ledger) RateKeeper() common.Address { return l.rateKeeper }

// LastRateUpdate is the timestamp of the last rate refresh, zero before the
// first one.
func (l *Ledger) LastRateUpdate() uint64 { return l.lastRateUpdate }

func (l *Ledger) timestamp() uint64 {
	unix := l.nowFn().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

func (l *Ledger) emit(evt events.Event) {
	if l.emitter != nil {
		l.emitter.Emit(evt)
	}
}

func (l *Ledger) asset(asset common.Address) (*AssetParams, error) {
	params, ok := l.assets[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrAssetNotQuoted, asset.Hex())
	}
	return params, nil
}

func (l *Ledger) liveAsset(asset common.Address) (*AssetParams, error) {
	params, err := l.asset(asset)
	if err != nil {
		return nil, err
	}
	if !params.Live {
		return nil, fmt.Errorf("%w: %s has no rate yet", coreerrors.ErrAssetNotQuoted, asset.Hex())
	}
	return params, nil
}

// indexAt projects an asset's cumulative index to now under its current rate.
func (l *Ledger) indexAt(params *AssetParams, now uint64) *big.Int {
	return fixedpoint.AddIndex(params.CumulativeIndexLU, fixedpoint.BpsToRay(params.Rate), fixedpoint.Elapsed(now, l.lastRateUpdate))
}

func (l *Ledger) position(position, asset common.Address) *PositionQuota {
	return l.positions[position][asset]
}

func (l *Ledger) storePosition(position, asset common.Address, q *PositionQuota) {
	byAsset, ok := l.positions[position]
	if !ok {
		byAsset = make(map[common.Address]*PositionQuota)
		l.positions[position] = byAsset
	}
	byAsset[asset] = q
}

func (l *Ledger) restorePosition(position, asset common.Address, prev *PositionQuota) {
	if prev == nil {
		delete(l.positions[position], asset)
		if len(l.positions[position]) == 0 {
			delete(l.positions, position)
		}
		return
	}
	l.storePosition(position, asset, prev)
}

// UpdateQuota changes position's quota in asset by delta and settles the
// interest accrued on the previous quota.
//
// Increases are clamped to the room left under the asset's limit and charged
// the asset's increase fee. Decreases are clamped to the position's current
// quota. The resulting quota must fall within [minQuota, maxQuota]; a nil
// bound is open.
func (l *Ledger) UpdateQuota(caller, position, asset common.Address, delta, minQuota, maxQuota *big.Int) (QuotaChange, error) {
	change := noChange()
	if err := nativecommon.Authorize(l.acl, caller, nativecommon.RoleCreditManager); err != nil {
		return change, err
	}
	if position == (common.Address{}) {
		return change, coreerrors.ErrZeroAddress
	}
	params, err := l.liveAsset(asset)
	if err != nil {
		return change, err
	}
	delta = fixedpoint.Clone(delta)
	if delta.Sign() > 0 {
		if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
			return change, err
		}
	}

	now := l.timestamp()
	indexNow := l.indexAt(params, now)
	current := l.position(position, asset)
	quoted := big.NewInt(0)
	if current != nil {
		quoted = fixedpoint.Clone(current.Quota)
		change.Interest = fixedpoint.AccruedLinear(quoted, indexNow, current.CumulativeIndexLU)
	}

	realized := big.NewInt(0)
	switch delta.Sign() {
	case 1:
		room := big.NewInt(0)
		if params.TotalQuoted.Cmp(params.Limit) < 0 {
			room = new(big.Int).Sub(params.Limit, params.TotalQuoted)
		}
		realized = fixedpoint.Min(delta, room)
		change.Fees = fixedpoint.PercentMul(realized, params.IncreaseFee, fixedpoint.Floor)
	case -1:
		realized = new(big.Int).Neg(fixedpoint.Min(new(big.Int).Neg(delta), quoted))
	}
	next := new(big.Int).Add(quoted, realized)
	if (minQuota != nil && next.Cmp(minQuota) < 0) || (maxQuota != nil && next.Cmp(maxQuota) > 0) {
		return noChange(), fmt.Errorf("%w: quota %s outside [%v, %v]", coreerrors.ErrOutOfBounds, next, minQuota, maxQuota)
	}
	change.RealizedDelta = realized
	change.Enabled = quoted.Sign() == 0 && next.Sign() > 0
	change.Disabled = quoted.Sign() > 0 && next.Sign() == 0

	prevTotal := new(big.Int).Set(params.TotalQuoted)
	var prevPosition *PositionQuota
	if current != nil {
		snapshot := current.clone()
		prevPosition = &snapshot
	}
	params.TotalQuoted = new(big.Int).Add(params.TotalQuoted, realized)
	if current != nil || next.Sign() > 0 {
		l.storePosition(position, asset, &PositionQuota{Quota: next, CumulativeIndexLU: indexNow})
	}

	if revenue := new(big.Int).Mul(realized, big.NewInt(int64(params.Rate))); revenue.Sign() != 0 {
		if err := l.pool.UpdateQuotaRevenue(l.address, revenue); err != nil {
			params.TotalQuoted = prevTotal
			l.restorePosition(position, asset, prevPosition)
			return noChange(), err
		}
	}

	if realized.Sign() != 0 || change.Interest.Sign() != 0 {
		l.emit(events.QuotaUpdated{
			Position: position,
			Asset:    asset,
			Delta:    new(big.Int).Set(realized),
			Interest: new(big.Int).Set(change.Interest),
			Fees:     new(big.Int).Set(change.Fees),
		})
	}
	return change, nil
}

// RemoveQuotas zeroes position's quotas in assets. Interest still owed must be
// settled with AccrueInterest beforehand. When zeroLimits is set the assets'
// limits drop to zero too, blocking new quota. Returns the assets whose quota
// went from positive to zero.
func (l *Ledger) RemoveQuotas(caller, position common.Address, assets []common.Address, zeroLimits bool) ([]common.Address, error) {
	if err := nativecommon.Authorize(l.acl, caller, nativecommon.RoleCreditManager); err != nil {
		return nil, err
	}
	for _, asset := range assets {
		if _, err := l.asset(asset); err != nil {
			return nil, err
		}
	}

	type undo struct {
		asset    common.Address
		total    *big.Int
		limit    *big.Int
		position *PositionQuota
	}
	var (
		journal []undo
		removed []common.Address
		revenue = big.NewInt(0)
	)
	for _, asset := range assets {
		params := l.assets[asset]
		entry := undo{asset: asset, total: new(big.Int).Set(params.TotalQuoted), limit: new(big.Int).Set(params.Limit)}
		if current := l.position(position, asset); current != nil {
			snapshot := current.clone()
			entry.position = &snapshot
			if current.Quota.Sign() > 0 {
				revenue.Sub(revenue, new(big.Int).Mul(current.Quota, big.NewInt(int64(params.Rate))))
				params.TotalQuoted = new(big.Int).Sub(params.TotalQuoted, current.Quota)
				current.Quota = big.NewInt(0)
				removed = append(removed, asset)
			}
		}
		if zeroLimits {
			params.Limit = big.NewInt(0)
		}
		journal = append(journal, entry)
	}

	if revenue.Sign() != 0 {
		if err := l.pool.UpdateQuotaRevenue(l.address, revenue); err != nil {
			for i := len(journal) - 1; i >= 0; i-- {
				entry := journal[i]
				params := l.assets[entry.asset]
				params.TotalQuoted = entry.total
				params.Limit = entry.limit
				if entry.position != nil {
					l.storePosition(position, entry.asset, entry.position)
				}
			}
			return nil, err
		}
	}
	for _, asset := range assets {
		if zeroLimits {
			l.emit(events.ConfigChanged{Module: moduleName, Parameter: "token_limit", Subject: asset, Value: "0"})
		}
	}
	for _, asset := range removed {
		l.emit(events.QuotaUpdated{Position: position, Asset: asset, Delta: big.NewInt(0), Interest: big.NewInt(0), Fees: big.NewInt(0)})
	}
	return removed, nil
}

// AccrueInterest settles the interest position owes on assets and moves the
// position's checkpoints to the current indexes. Returns the total settled.
func (l *Ledger) AccrueInterest(caller, position common.Address, assets []common.Address) (*big.Int, error) {
	if err := nativecommon.Authorize(l.acl, caller, nativecommon.RoleCreditManager); err != nil {
		return nil, err
	}
	for _, asset := range assets {
		if _, err := l.asset(asset); err != nil {
			return nil, err
		}
	}
	now := l.timestamp()
	total := big.NewInt(0)
	for _, asset := range assets {
		current := l.position(position, asset)
		if current == nil {
			continue
		}
		indexNow := l.indexAt(l.assets[asset], now)
		total.Add(total, fixedpoint.AccruedLinear(current.Quota, indexNow, current.CumulativeIndexLU))
		current.CumulativeIndexLU = indexNow
	}
	return total, nil
}

// RefreshRates installs new rates. Every asset's index is first checkpointed
// under its old rate, so interest accrued so far is preserved. Assets absent
// from rates keep their current rate. The pool's quota revenue is recomputed
// from scratch. Only the rate keeper may call it.
func (l *Ledger) RefreshRates(caller common.Address, rates []RateUpdate) error {
	if l.rateKeeper == (common.Address{}) || caller != l.rateKeeper {
		return coreerrors.ErrCallerNotRateKeeper
	}
	for _, update := range rates {
		if _, err := l.asset(update.Asset); err != nil {
			return err
		}
	}

	now := l.timestamp()
	prev := make(map[common.Address]AssetParams, len(l.assets))
	for _, asset := range l.order {
		params := l.assets[asset]
		prev[asset] = params.clone()
		params.CumulativeIndexLU = l.indexAt(params, now)
	}
	for _, update := range rates {
		params := l.assets[update.Asset]
		params.Rate = update.Rate
		params.Live = true
	}
	revenue := big.NewInt(0)
	for _, asset := range l.order {
		params := l.assets[asset]
		revenue.Add(revenue, new(big.Int).Mul(params.TotalQuoted, big.NewInt(int64(params.Rate))))
	}
	prevUpdate := l.lastRateUpdate
	l.lastRateUpdate = now

	if err := l.pool.SetQuotaRevenue(l.address, revenue); err != nil {
		for asset, params := range prev {
			restored := params
			l.assets[asset] = &restored
		}
		l.lastRateUpdate = prevUpdate
		return err
	}
	for _, update := range rates {
		l.emit(events.QuotaRateUpdated{Asset: update.Asset, Rate: update.Rate})
	}
	l.logger.Info("quota rates refreshed", "assets", len(rates), "revenue", revenue.String())
	return nil
}

// AddAsset registers asset as quotable. Its index starts at one ray and it
// stays unusable until its first rate refresh. Only the rate keeper may call
// it.
func (l *Ledger) AddAsset(caller, asset common.Address) error {
	if l.rateKeeper == (common.Address{}) || caller != l.rateKeeper {
		return coreerrors.ErrCallerNotRateKeeper
	}
	if asset == (common.Address{}) {
		return coreerrors.ErrZeroAddress
	}
	if _, ok := l.assets[asset]; ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrAssetAlreadyAdded, asset.Hex())
	}
	l.assets[asset] = &AssetParams{
		CumulativeIndexLU: new(big.Int).Set(fixedpoint.Ray),
		TotalQuoted:       big.NewInt(0),
		Limit:             big.NewInt(0),
	}
	l.order = append(l.order, asset)
	l.emit(events.QuotaAssetAdded{Asset: asset})
	return nil
}
