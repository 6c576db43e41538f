package pool

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	nativecommon "creditpool/native/common"
	"creditpool/native/curve"
	"creditpool/native/fixedpoint"
)

var (
	poolAddr     = common.HexToAddress("0x0000000000000000000000000000000000000101")
	treasuryAddr = common.HexToAddress("0x0000000000000000000000000000000000000102")
	adminAddr    = common.HexToAddress("0x0000000000000000000000000000000000000103")
	lpAddr       = common.HexToAddress("0x0000000000000000000000000000000000000104")
	borrowerAddr = common.HexToAddress("0x0000000000000000000000000000000000000105")
	keeperAddr   = common.HexToAddress("0x0000000000000000000000000000000000000106")
)

const year = time.Duration(fixedpoint.SecondsPerYear) * time.Second

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeQuotaKeeper struct {
	addr    common.Address
	revenue *big.Int
}

func (f fakeQuotaKeeper) Address() common.Address    { return f.addr }
func (f fakeQuotaKeeper) PoolQuotaRevenue() *big.Int { return f.revenue }

type fixture struct {
	pool    *Pool
	reserve *MemReserve
	shares  *MemShares
	clock   *testClock
	events  *events.Recorder
	pauses  *nativecommon.PauseSet
}

func defaultCurve() curve.Params {
	return curve.Params{U1: 8000, U2: 9000, Base: 0, Slope1: 400, Slope2: 4000, Slope3: 7500}
}

func newFixture(t *testing.T, params curve.Params) *fixture {
	t.Helper()
	model, err := curve.New(params)
	require.NoError(t, err)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	reserve := NewMemReserve(nil)
	shares := NewMemShares()
	p, err := New(Config{Address: poolAddr, Treasury: treasuryAddr, Clock: clock.Now}, model, reserve, shares)
	require.NoError(t, err)

	acl := nativecommon.NewStaticACL(map[nativecommon.Role][]common.Address{
		nativecommon.RoleConfigurator: {adminAddr},
		nativecommon.RolePauser:       {adminAddr},
		nativecommon.RoleUnpauser:     {adminAddr},
	})
	pauses := nativecommon.NewPauseSet(acl)
	recorder := &events.Recorder{}
	p.SetAuthorizer(acl)
	p.SetPauses(pauses)
	p.SetEmitter(recorder)
	require.NoError(t, p.SetBorrowerDebtLimit(adminAddr, borrowerAddr, big.NewInt(1_000_000)))
	return &fixture{pool: p, reserve: reserve, shares: shares, clock: clock, events: recorder, pauses: pauses}
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	model, err := curve.New(defaultCurve())
	require.NoError(t, err)
	_, err = New(Config{Address: poolAddr}, model, NewMemReserve(nil), NewMemShares())
	require.ErrorIs(t, err, coreerrors.ErrZeroAddress)
	_, err = New(Config{Address: poolAddr, Treasury: treasuryAddr}, nil, NewMemReserve(nil), NewMemShares())
	require.ErrorIs(t, err, coreerrors.ErrIncorrectParameter)
}

func TestDepositMintsSharesProportionally(t *testing.T) {
	f := newFixture(t, defaultCurve())

	shares, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), shares)
	require.Equal(t, big.NewInt(1000), f.pool.ExpectedLiquidity())
	require.Equal(t, big.NewInt(1000), f.pool.AvailableLiquidity())

	_, err = f.pool.Deposit(big.NewInt(1000), common.Address{})
	require.ErrorIs(t, err, coreerrors.ErrZeroReceiver)
	_, err = f.pool.Deposit(big.NewInt(0), lpAddr)
	require.ErrorIs(t, err, coreerrors.ErrInvalidAmount)
	require.Equal(t, []string{events.TypeConfigChanged, events.TypePoolDeposit}, f.events.Types())
}

func TestBorrowAccruesBaseInterest(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)

	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(800)))
	require.Equal(t, fixedpoint.BpsToRay(400), f.pool.BaseInterestRate())
	require.Equal(t, big.NewInt(200), f.pool.AvailableLiquidity())
	require.Equal(t, big.NewInt(800), f.pool.TotalBorrowed())

	f.clock.Advance(year)
	require.Equal(t, big.NewInt(1032), f.pool.ExpectedLiquidity())
	wantIndex := new(big.Int).Div(new(big.Int).Mul(fixedpoint.Ray, big.NewInt(104)), big.NewInt(100))
	require.Equal(t, wantIndex, f.pool.BaseInterestIndex())
	require.Equal(t, fixedpoint.Ray, f.pool.BaseInterestIndexLU())

	// the next checkpoint folds accrual into the stored figures
	shares, err := f.pool.Deposit(big.NewInt(1032), lpAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), shares)
	require.Equal(t, big.NewInt(2064), f.pool.ExpectedLiquidityLU())
	require.Equal(t, wantIndex, f.pool.BaseInterestIndexLU())
}

func TestBorrowLimits(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(10_000), lpAddr)
	require.NoError(t, err)

	require.ErrorIs(t, f.pool.Borrow(lpAddr, big.NewInt(1)), coreerrors.ErrDebtLimitExceeded)
	require.ErrorIs(t, f.pool.Borrow(borrowerAddr, big.NewInt(0)), coreerrors.ErrInvalidAmount)

	require.NoError(t, f.pool.SetBorrowerDebtLimit(adminAddr, borrowerAddr, big.NewInt(500)))
	err = f.pool.Borrow(borrowerAddr, big.NewInt(501))
	require.ErrorIs(t, err, coreerrors.ErrDebtLimitExceeded)
	require.ErrorIs(t, err, coreerrors.ErrCapacityExceeded)

	require.NoError(t, f.pool.SetTotalDebtLimit(adminAddr, big.NewInt(300)))
	require.ErrorIs(t, f.pool.Borrow(borrowerAddr, big.NewInt(301)), coreerrors.ErrDebtLimitExceeded)
	require.Equal(t, big.NewInt(300), f.pool.BorrowerBorrowable(borrowerAddr))
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(300)))
	require.Zero(t, f.pool.BorrowerBorrowable(borrowerAddr).Sign())
	require.Equal(t, big.NewInt(300), f.pool.BorrowerDebt(borrowerAddr).Borrowed)
}

func TestBorrowAboveU2Forbidden(t *testing.T) {
	params := defaultCurve()
	params.ForbidAboveU2 = true
	f := newFixture(t, params)
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)

	require.Equal(t, big.NewInt(900), f.pool.BorrowerBorrowable(borrowerAddr))
	require.ErrorIs(t, f.pool.Borrow(borrowerAddr, big.NewInt(901)), coreerrors.ErrBorrowingAboveU2Forbidden)
	require.Zero(t, f.pool.TotalBorrowed().Sign())
	require.Equal(t, big.NewInt(1000), f.pool.AvailableLiquidity())
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(900)))
	require.Equal(t, fixedpoint.BpsToRay(4400), f.pool.BaseInterestRate())
}

func TestWithdrawChargesFee(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)
	require.NoError(t, f.pool.SetWithdrawFee(adminAddr, 100))

	require.Equal(t, big.NewInt(100), f.pool.PreviewWithdraw(big.NewInt(99)))
	shares, err := f.pool.Withdraw(big.NewInt(99), lpAddr, lpAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), shares)
	require.Equal(t, big.NewInt(900), f.pool.AvailableLiquidity())
	require.Equal(t, big.NewInt(900), f.pool.ExpectedLiquidity())
	require.Equal(t, big.NewInt(900), f.shares.BalanceOf(lpAddr))

	last := f.events.Events[len(f.events.Events)-1].(events.PoolWithdraw)
	require.Equal(t, big.NewInt(1), last.Fee)

	assets, err := f.pool.Redeem(big.NewInt(100), lpAddr, lpAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(99), assets)

	_, err = f.pool.Redeem(big.NewInt(10_000), lpAddr, lpAddr)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientShares)
	require.ErrorIs(t, f.pool.SetWithdrawFee(adminAddr, 101), coreerrors.ErrIncorrectParameter)
	require.ErrorIs(t, f.pool.SetWithdrawFee(lpAddr, 10), coreerrors.ErrUnauthorized)
}

func TestWithdrawBoundedByCash(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(700)))

	require.Equal(t, big.NewInt(300), f.pool.MaxWithdraw(lpAddr))
	require.Equal(t, big.NewInt(300), f.pool.MaxRedeem(lpAddr))
	_, err = f.pool.Withdraw(big.NewInt(301), lpAddr, lpAddr)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientLiquidity)
	require.Equal(t, big.NewInt(1000), f.shares.BalanceOf(lpAddr))
}

func TestRepayLossBurnsTreasuryThenReportsUncovered(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(300), treasuryAddr)
	require.NoError(t, err)
	_, err = f.pool.Deposit(big.NewInt(700), lpAddr)
	require.NoError(t, err)
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(1000)))

	f.reserve.Credit(big.NewInt(500))
	result, err := f.pool.Repay(borrowerAddr, big.NewInt(1000), nil, big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(300), result.SharesBurned)
	require.Equal(t, big.NewInt(200), result.UncoveredLoss)
	require.Zero(t, f.shares.BalanceOf(treasuryAddr).Sign())
	require.Equal(t, big.NewInt(700), f.pool.TotalShares())
	require.Zero(t, f.pool.TotalBorrowed().Sign())
	require.Equal(t, big.NewInt(500), f.pool.ExpectedLiquidity())
	require.Equal(t, f.pool.AvailableLiquidity(), f.pool.ExpectedLiquidity())
	require.Contains(t, f.events.Types(), events.TypePoolUncoveredLoss)
}

func TestRepayProfitMintsToTreasury(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(500)))

	f.reserve.Credit(big.NewInt(600))
	result, err := f.pool.Repay(borrowerAddr, big.NewInt(500), big.NewInt(100), nil)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), result.SharesMinted)
	require.Zero(t, result.UncoveredLoss.Sign())
	require.Equal(t, big.NewInt(100), f.shares.BalanceOf(treasuryAddr))
	require.Equal(t, big.NewInt(1100), f.pool.ExpectedLiquidity())
	require.Zero(t, f.pool.BaseInterestRate().Sign())
}

func TestSetTreasuryRedirectsProfit(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(500)))

	next := common.HexToAddress("0x0000000000000000000000000000000000000107")
	require.ErrorIs(t, f.pool.SetTreasury(lpAddr, next), coreerrors.ErrUnauthorized)
	require.ErrorIs(t, f.pool.SetTreasury(adminAddr, common.Address{}), coreerrors.ErrZeroAddress)
	require.NoError(t, f.pool.SetTreasury(adminAddr, next))
	require.Equal(t, next, f.pool.Treasury())

	f.reserve.Credit(big.NewInt(550))
	_, err = f.pool.Repay(borrowerAddr, big.NewInt(500), big.NewInt(50), nil)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), f.shares.BalanceOf(next))
	require.Zero(t, f.shares.BalanceOf(treasuryAddr).Sign())
}

func TestRepayValidation(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Repay(borrowerAddr, big.NewInt(1), nil, nil)
	require.ErrorIs(t, err, coreerrors.ErrNoDebt)

	_, err = f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(100)))
	_, err = f.pool.Repay(borrowerAddr, big.NewInt(101), nil, nil)
	require.ErrorIs(t, err, coreerrors.ErrOutOfBounds)
	_, err = f.pool.Repay(borrowerAddr, big.NewInt(100), big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, coreerrors.ErrInvalidAmount)
	require.Equal(t, big.NewInt(100), f.pool.TotalBorrowed())
}

func TestQuotaRevenueAccrues(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)

	require.ErrorIs(t, f.pool.UpdateQuotaRevenue(keeperAddr, big.NewInt(1)), coreerrors.ErrCallerNotQuotaKeeper)
	require.NoError(t, f.pool.SetQuotaKeeper(adminAddr, fakeQuotaKeeper{addr: keeperAddr, revenue: big.NewInt(0)}))
	require.ErrorIs(t, f.pool.UpdateQuotaRevenue(lpAddr, big.NewInt(1)), coreerrors.ErrCallerNotQuotaKeeper)

	// 1000 units quoted at 5%
	require.NoError(t, f.pool.UpdateQuotaRevenue(keeperAddr, big.NewInt(1000*500)))
	f.clock.Advance(year)
	require.Equal(t, big.NewInt(1050), f.pool.ExpectedLiquidity())

	require.NoError(t, f.pool.SetQuotaRevenue(keeperAddr, big.NewInt(0)))
	require.Equal(t, big.NewInt(1050), f.pool.ExpectedLiquidityLU())
	f.clock.Advance(year)
	require.Equal(t, big.NewInt(1050), f.pool.ExpectedLiquidity())
	require.ErrorIs(t, f.pool.UpdateQuotaRevenue(keeperAddr, big.NewInt(-1)), coreerrors.ErrInvalidAmount)
}

func TestSupplyRate(t *testing.T) {
	f := newFixture(t, defaultCurve())
	require.Zero(t, f.pool.SupplyRate().Sign())
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(800)))
	// 4% on 80% of the pool
	require.Equal(t, fixedpoint.BpsToRay(320), f.pool.SupplyRate())
}

func TestPausedPoolRejectsMutations(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)
	require.NoError(t, f.pauses.Pause(adminAddr, moduleName))

	_, err = f.pool.Deposit(big.NewInt(1), lpAddr)
	require.ErrorIs(t, err, coreerrors.ErrPaused)
	require.ErrorIs(t, f.pool.Borrow(borrowerAddr, big.NewInt(1)), coreerrors.ErrPaused)
	require.Zero(t, f.pool.MaxWithdraw(lpAddr).Sign())

	require.NoError(t, f.pauses.Unpause(adminAddr, moduleName))
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(1)))
}

func TestSetInterestRateModelReprices(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(800)))

	steeper := defaultCurve()
	steeper.Slope1 = 800
	steeper.Slope2 = 4000
	model, err := curve.New(steeper)
	require.NoError(t, err)
	require.ErrorIs(t, f.pool.SetInterestRateModel(lpAddr, model), coreerrors.ErrUnauthorized)
	require.NoError(t, f.pool.SetInterestRateModel(adminAddr, model))
	require.Equal(t, fixedpoint.BpsToRay(800), f.pool.BaseInterestRate())
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t, defaultCurve())
	_, err := f.pool.Deposit(big.NewInt(1000), lpAddr)
	require.NoError(t, err)
	require.NoError(t, f.pool.Borrow(borrowerAddr, big.NewInt(800)))
	f.clock.Advance(time.Hour)
	snap := f.pool.Snapshot()

	g := newFixture(t, defaultCurve())
	g.clock.now = f.clock.now
	g.pool.Restore(snap)
	require.Equal(t, f.pool.ExpectedLiquidity(), g.pool.ExpectedLiquidity())
	require.Equal(t, f.pool.BaseInterestIndex(), g.pool.BaseInterestIndex())
	require.Equal(t, f.pool.AvailableLiquidity(), g.pool.AvailableLiquidity())
	require.Equal(t, f.shares.BalanceOf(lpAddr), g.shares.BalanceOf(lpAddr))
	require.Equal(t, f.pool.BorrowerDebt(borrowerAddr), g.pool.BorrowerDebt(borrowerAddr))
}
