package pool

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	nativecommon "creditpool/native/common"
	"creditpool/native/fixedpoint"
)

const moduleName = "pool"

// MaxWithdrawFee caps the withdrawal fee at 1%.
const MaxWithdrawFee = 100

// Unlimited is the debt ceiling recorded when no explicit limit applies.
var Unlimited = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// RateModel prices borrowing against the pool's liquidity.
type RateModel interface {
	BorrowRate(expected, available *big.Int, enforceCap bool) (*big.Int, error)
	AvailableToBorrow(expected, available *big.Int) *big.Int
}

// QuotaKeeper is the collaborator allowed to move the pool's quota revenue.
type QuotaKeeper interface {
	Address() common.Address
	PoolQuotaRevenue() *big.Int
}

// Config carries the immutable identity of a pool. Clock defaults to
// time.Now.
type Config struct {
	Address    common.Address
	Underlying common.Address
	Treasury   common.Address
	Clock      func() time.Time
}

// DebtParams tracks outstanding principal against its ceiling.
type DebtParams struct {
	Borrowed *big.Int
	Limit    *big.Int
}

func (d *DebtParams) clone() DebtParams {
	return DebtParams{Borrowed: fixedpoint.Clone(d.Borrowed), Limit: fixedpoint.Clone(d.Limit)}
}

// Pool is the liquidity ledger. It books deposits and withdrawals against LP
// shares, lends principal to registered borrowers, and accrues base interest
// and quota revenue into its expected liquidity.
//
// A Pool is not safe for concurrent use; callers serialise access.
type Pool struct {
	address    common.Address
	underlying common.Address
	treasury   common.Address

	model   RateModel
	reserve Reserve
	shares  ShareBook
	locks   ShareLocks

	quotaKeeper common.Address

	acl     nativecommon.Authorizer
	pauses  nativecommon.PauseView
	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() time.Time

	expectedLiquidityLU    *big.Int
	baseInterestRate       *big.Int
	baseInterestIndexLU    *big.Int
	lastBaseInterestUpdate uint64
	lastQuotaRevenueUpdate uint64
	quotaRevenue           *big.Int

	totalDebt    DebtParams
	borrowerDebt map[common.Address]*DebtParams
	withdrawFee  uint16
}

// New creates an empty pool priced by model. The base interest index starts at
// one ray and the rate at the curve's idle value.
func New(cfg Config, model RateModel, reserve Reserve, shares ShareBook) (*Pool, error) {
	if cfg.Address == (common.Address{}) || cfg.Treasury == (common.Address{}) {
		return nil, fmt.Errorf("%w: pool and treasury addresses required", coreerrors.ErrZeroAddress)
	}
	if model == nil || reserve == nil || shares == nil {
		return nil, fmt.Errorf("%w: rate model, reserve and share book required", coreerrors.ErrIncorrectParameter)
	}
	rate, err := model.BorrowRate(big.NewInt(0), big.NewInt(0), false)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		address:             cfg.Address,
		underlying:          cfg.Underlying,
		treasury:            cfg.Treasury,
		model:               model,
		reserve:             reserve,
		shares:              shares,
		emitter:             events.NoopEmitter{},
		logger:              slog.Default(),
		nowFn:               time.Now,
		expectedLiquidityLU: big.NewInt(0),
		baseInterestRate:    rate,
		baseInterestIndexLU: new(big.Int).Set(fixedpoint.Ray),
		quotaRevenue:        big.NewInt(0),
		totalDebt:           DebtParams{Borrowed: big.NewInt(0), Limit: new(big.Int).Set(Unlimited)},
		borrowerDebt:        make(map[common.Address]*DebtParams),
	}
	if cfg.Clock != nil {
		p.nowFn = cfg.Clock
	}
	now := p.timestamp()
	p.lastBaseInterestUpdate = now
	p.lastQuotaRevenueUpdate = now
	return p, nil
}

// SetNowFunc overrides the clock used for accrual. Primarily used in tests.
func (p *Pool) SetNowFunc(now func() time.Time) {
	if now == nil {
		p.nowFn = time.Now
		return
	}
	p.nowFn = now
}

// SetEmitter configures the event sink.
func (p *Pool) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// SetLogger configures the structured logger.
func (p *Pool) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	p.logger = logger.With("module", moduleName)
}

// SetPauses wires the pause switchboard consulted by every mutating operation.
func (p *Pool) SetPauses(pauses nativecommon.PauseView) { p.pauses = pauses }

// SetAuthorizer wires the role table consulted by configuration operations.
func (p *Pool) SetAuthorizer(acl nativecommon.Authorizer) { p.acl = acl }

func (p *Pool) timestamp() uint64 {
	unix := p.nowFn().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

func (p *Pool) emit(evt events.Event) {
	if p.emitter != nil {
		p.emitter.Emit(evt)
	}
}

// Address returns the pool's identity.
func (p *Pool) Address() common.Address { return p.address }

// Underlying returns the lent asset.
func (p *Pool) Underlying() common.Address { return p.underlying }

// Treasury returns the account receiving fees and absorbing losses.
func (p *Pool) Treasury() common.Address { return p.treasury }

// QuotaKeeper returns the address allowed to move quota revenue.
func (p *Pool) QuotaKeeper() common.Address { return p.quotaKeeper }

func (p *Pool) baseInterestAccruedAt(now uint64) *big.Int {
	elapsed := fixedpoint.Elapsed(now, p.lastBaseInterestUpdate)
	if elapsed == 0 || p.totalDebt.Borrowed.Sign() == 0 {
		return big.NewInt(0)
	}
	growth := new(big.Int).Mul(p.baseInterestRate, new(big.Int).SetUint64(elapsed))
	denom := new(big.Int).Mul(fixedpoint.Ray, big.NewInt(fixedpoint.SecondsPerYear))
	return fixedpoint.MulDiv(p.totalDebt.Borrowed, growth, denom, fixedpoint.Floor)
}

func (p *Pool) quotaRevenueAccruedAt(now uint64) *big.Int {
	elapsed := fixedpoint.Elapsed(now, p.lastQuotaRevenueUpdate)
	if elapsed == 0 || p.quotaRevenue.Sign() == 0 {
		return big.NewInt(0)
	}
	accrued := fixedpoint.LinearGrowth(p.quotaRevenue, elapsed)
	return accrued.Quo(accrued, big.NewInt(fixedpoint.PercentageFactor))
}

func (p *Pool) expectedLiquidityAt(now uint64) *big.Int {
	el := new(big.Int).Set(p.expectedLiquidityLU)
	el.Add(el, p.baseInterestAccruedAt(now))
	return el.Add(el, p.quotaRevenueAccruedAt(now))
}

func (p *Pool) baseInterestIndexAt(now uint64) *big.Int {
	return fixedpoint.GrowIndex(p.baseInterestIndexLU, p.baseInterestRate, fixedpoint.Elapsed(now, p.lastBaseInterestUpdate))
}

// checkpoint is a fully validated accrual step waiting to be committed.
type checkpoint struct {
	now      uint64
	expected *big.Int
	index    *big.Int
	rate     *big.Int
}

// prepare folds accrued interest into expected liquidity, applies the deltas
// and prices the result. Nothing is written.
func (p *Pool) prepare(model RateModel, elDelta, alDelta *big.Int, enforceCap bool) (*checkpoint, error) {
	now := p.timestamp()
	expected := new(big.Int).Add(p.expectedLiquidityAt(now), elDelta)
	if expected.Sign() < 0 {
		return nil, fmt.Errorf("%w: expected liquidity would turn negative", coreerrors.ErrInsufficientLiquidity)
	}
	available := new(big.Int).Add(p.reserve.Balance(), alDelta)
	if available.Sign() < 0 {
		return nil, fmt.Errorf("%w: available liquidity would turn negative", coreerrors.ErrInsufficientLiquidity)
	}
	rate, err := model.BorrowRate(expected, available, enforceCap)
	if err != nil {
		return nil, err
	}
	return &checkpoint{now: now, expected: expected, index: p.baseInterestIndexAt(now), rate: rate}, nil
}

func (p *Pool) commit(cp *checkpoint) {
	p.expectedLiquidityLU = cp.expected
	p.baseInterestIndexLU = cp.index
	p.baseInterestRate = cp.rate
	p.lastBaseInterestUpdate = cp.now
	p.lastQuotaRevenueUpdate = cp.now
}

// setQuotaRevenue folds revenue accrued under the old value into expected
// liquidity before installing the new one.
func (p *Pool) setQuotaRevenue(value *big.Int) {
	now := p.timestamp()
	if now != p.lastQuotaRevenueUpdate {
		p.expectedLiquidityLU.Add(p.expectedLiquidityLU, p.quotaRevenueAccruedAt(now))
		p.lastQuotaRevenueUpdate = now
	}
	p.quotaRevenue = fixedpoint.Clone(value)
}

func (p *Pool) requireQuotaKeeper(caller common.Address) error {
	if p.quotaKeeper == (common.Address{}) || caller != p.quotaKeeper {
		return coreerrors.ErrCallerNotQuotaKeeper
	}
	return nil
}

// UpdateQuotaRevenue shifts the annual quota revenue by delta. Only the quota
// keeper may call it.
func (p *Pool) UpdateQuotaRevenue(caller common.Address, delta *big.Int) error {
	if err := p.requireQuotaKeeper(caller); err != nil {
		return err
	}
	next := new(big.Int).Add(p.quotaRevenue, fixedpoint.Clone(delta))
	if next.Sign() < 0 {
		return fmt.Errorf("%w: quota revenue would turn negative", coreerrors.ErrInvalidAmount)
	}
	p.setQuotaRevenue(next)
	return nil
}

// SetQuotaRevenue replaces the annual quota revenue. Only the quota keeper may
// call it.
func (p *Pool) SetQuotaRevenue(caller common.Address, value *big.Int) error {
	if err := p.requireQuotaKeeper(caller); err != nil {
		return err
	}
	if value != nil && value.Sign() < 0 {
		return fmt.Errorf("%w: negative quota revenue", coreerrors.ErrInvalidAmount)
	}
	p.setQuotaRevenue(value)
	return nil
}

// ExpectedLiquidity is what the pool would hold if every borrower repaid now.
func (p *Pool) ExpectedLiquidity() *big.Int { return p.expectedLiquidityAt(p.timestamp()) }

// ExpectedLiquidityLU is expected liquidity as of the last checkpoint.
func (p *Pool) ExpectedLiquidityLU() *big.Int { return new(big.Int).Set(p.expectedLiquidityLU) }

// AvailableLiquidity is the cash held by the pool.
func (p *Pool) AvailableLiquidity() *big.Int { return p.reserve.Balance() }

// TotalAssets backs LP shares; it equals expected liquidity.
func (p *Pool) TotalAssets() *big.Int { return p.ExpectedLiquidity() }

// BaseInterestRate is the current annual borrow rate in ray units.
func (p *Pool) BaseInterestRate() *big.Int { return new(big.Int).Set(p.baseInterestRate) }

// BaseInterestIndex is the cumulative borrow index at the current time.
func (p *Pool) BaseInterestIndex() *big.Int { return p.baseInterestIndexAt(p.timestamp()) }

// BaseInterestIndexLU is the cumulative borrow index at the last checkpoint.
func (p *Pool) BaseInterestIndexLU() *big.Int { return new(big.Int).Set(p.baseInterestIndexLU) }

// LastBaseInterestUpdate is the timestamp of the last checkpoint.
func (p *Pool) LastBaseInterestUpdate() uint64 { return p.lastBaseInterestUpdate }

// LastQuotaRevenueUpdate is the timestamp quota revenue was last folded in.
func (p *Pool) LastQuotaRevenueUpdate() uint64 { return p.lastQuotaRevenueUpdate }

// QuotaRevenue is the annual quota revenue in basis-point-weighted units.
func (p *Pool) QuotaRevenue() *big.Int { return new(big.Int).Set(p.quotaRevenue) }

// SupplyRate is the annual yield paid to LPs in ray units: borrow interest
// plus quota revenue spread across expected liquidity.
func (p *Pool) SupplyRate() *big.Int {
	expected := p.ExpectedLiquidity()
	if expected.Sign() == 0 {
		return big.NewInt(0)
	}
	yield := new(big.Int).Mul(p.baseInterestRate, p.totalDebt.Borrowed)
	yield.Add(yield, new(big.Int).Mul(p.quotaRevenue, fixedpoint.RayPerBps))
	return yield.Quo(yield, expected)
}

// TotalBorrowed is the outstanding principal across all borrowers.
func (p *Pool) TotalBorrowed() *big.Int { return new(big.Int).Set(p.totalDebt.Borrowed) }

// TotalDebtLimit is the pool-wide principal ceiling.
func (p *Pool) TotalDebtLimit() *big.Int { return new(big.Int).Set(p.totalDebt.Limit) }

// WithdrawFee returns the withdrawal fee in basis points.
func (p *Pool) WithdrawFee() uint16 { return p.withdrawFee }

// BorrowerDebt returns the debt record of borrower. Unregistered borrowers
// report zero principal and a zero limit.
func (p *Pool) BorrowerDebt(borrower common.Address) DebtParams {
	if debt, ok := p.borrowerDebt[borrower]; ok {
		return debt.clone()
	}
	return DebtParams{Borrowed: big.NewInt(0), Limit: big.NewInt(0)}
}

// Borrowers lists every registered borrower ordered by address.
func (p *Pool) Borrowers() []common.Address {
	out := make([]common.Address, 0, len(p.borrowerDebt))
	for borrower := range p.borrowerDebt {
		out = append(out, borrower)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// BorrowerBorrowable returns how much borrower could draw right now: the least
// of the pool-wide room, the borrower's room and the curve's allowance.
func (p *Pool) BorrowerBorrowable(borrower common.Address) *big.Int {
	debt, ok := p.borrowerDebt[borrower]
	if !ok {
		return big.NewInt(0)
	}
	room := headroom(p.totalDebt.Borrowed, p.totalDebt.Limit)
	room = fixedpoint.Min(room, headroom(debt.Borrowed, debt.Limit))
	if room.Sign() == 0 {
		return room
	}
	return fixedpoint.Min(room, p.model.AvailableToBorrow(p.ExpectedLiquidity(), p.reserve.Balance()))
}

func headroom(borrowed, limit *big.Int) *big.Int {
	if borrowed.Cmp(limit) >= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(limit, borrowed)
}

// ConvertToShares prices assets in LP shares, rounding down.
func (p *Pool) ConvertToShares(assets *big.Int) *big.Int {
	return p.convertToShares(assets, fixedpoint.Floor)
}

// ConvertToAssets prices shares in the underlying, rounding down.
func (p *Pool) ConvertToAssets(shares *big.Int) *big.Int {
	return p.convertToAssets(shares, fixedpoint.Floor)
}

func (p *Pool) convertToShares(assets *big.Int, rounding fixedpoint.Rounding) *big.Int {
	supply := p.shares.TotalSupply()
	if supply.Sign() == 0 {
		return fixedpoint.Clone(assets)
	}
	return fixedpoint.MulDiv(fixedpoint.Clone(assets), supply, p.ExpectedLiquidity(), rounding)
}

func (p *Pool) convertToAssets(shares *big.Int, rounding fixedpoint.Rounding) *big.Int {
	supply := p.shares.TotalSupply()
	if supply.Sign() == 0 {
		return fixedpoint.Clone(shares)
	}
	return fixedpoint.MulDiv(fixedpoint.Clone(shares), p.ExpectedLiquidity(), supply, rounding)
}

func (p *Pool) guard() error {
	return nativecommon.Guard(p.pauses, moduleName)
}
