package market

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"creditpool/config"
	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	"creditpool/native/fixedpoint"
	"creditpool/native/ratekeeper"
	"creditpool/state/ledger"
	"creditpool/storage"
)

const (
	adminHex = "0x00000000000000000000000000000000000a11ce"
	cmHex    = "0x0000000000000000000000000000000000000c3e"
	wethHex  = "0x000000000000000000000000000000000000e7e0"
)

var (
	admin    = common.HexToAddress(adminHex)
	cm       = common.HexToAddress(cmHex)
	weth     = common.HexToAddress(wethHex)
	lp       = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	position = common.HexToAddress("0x0000000000000000000000000000000000000f01")
)

const year = time.Duration(fixedpoint.SecondsPerYear) * time.Second

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testConfig(kind string) config.Market {
	cfg := *config.Default()
	cfg.Keeper.Kind = kind
	cfg.Assets = []config.Asset{{Address: wethHex, MinRateBps: 100, MaxRateBps: 1500, RateBps: 300, Limit: "1000"}}
	cfg.Borrowers = []config.Borrower{{Address: cmHex}}
	cfg.Roles = map[string][]string{
		"configurator":   {adminHex},
		"pauser":         {adminHex},
		"unpauser":       {adminHex},
		"credit_manager": {cmHex},
	}
	return cfg
}

func newMarket(t *testing.T, kind string) (*Market, *testClock, *events.Recorder) {
	t.Helper()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	recorder := &events.Recorder{}
	m, err := New(testConfig(kind), WithClock(clock.Now), WithEmitter(recorder))
	require.NoError(t, err)
	return m, clock, recorder
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(config.KeeperGauge)
	cfg.Roles = map[string][]string{}
	_, err := New(cfg)
	require.Error(t, err)
}

func TestBootstrapWiresComponents(t *testing.T) {
	m, _, recorder := newMarket(t, config.KeeperGauge)
	view := m.View()
	require.Equal(t, string(ratekeeper.KindGauge), view.Keeper.Kind)
	require.True(t, view.Keeper.Due)
	require.Len(t, view.Assets, 1)
	require.False(t, view.Assets[0].Live)
	require.Equal(t, "1000", view.Assets[0].Limit)
	require.Equal(t, uint16(100), view.Assets[0].NextRateBps)
	require.Equal(t, common.HexToAddress(testConfig(config.KeeperGauge).Quota.Address).Hex(), view.Pool.QuotaKeeper)
	require.Equal(t, "0", m.Borrower(cm).Borrowed)
	require.Contains(t, recorder.Types(), events.TypeQuotaAssetAdded)
}

func TestLendingLifecycle(t *testing.T) {
	m, clock, _ := newMarket(t, config.KeeperGauge)

	_, err := m.Deposit(lp, big.NewInt(10_000), lp)
	require.NoError(t, err)
	require.NoError(t, m.Borrow(cm, big.NewInt(4_000)))
	require.Equal(t, fixedpoint.BpsToRay(200).String(), m.Pool().BaseInterestRate)

	_, err = m.UpdateQuota(cm, position, weth, big.NewInt(500), nil, nil)
	require.ErrorIs(t, err, coreerrors.ErrAssetNotQuoted)

	pushed, err := m.RefreshIfDue()
	require.NoError(t, err)
	require.True(t, pushed)

	_, err = m.UpdateQuota(lp, position, weth, big.NewInt(500), nil, nil)
	require.ErrorIs(t, err, coreerrors.ErrUnauthorized)
	change, err := m.UpdateQuota(cm, position, weth, big.NewInt(1_500), nil, nil)
	require.NoError(t, err)
	require.True(t, change.Enabled)
	require.Equal(t, big.NewInt(1_000), change.RealizedDelta)
	require.Equal(t, "100000", m.Pool().QuotaRevenue)

	require.NoError(t, m.Vote(lp, weth, uint256.NewInt(5), ratekeeper.SideMax))
	asset, err := m.Asset(weth)
	require.NoError(t, err)
	require.Equal(t, uint16(100), asset.RateBps)
	require.Equal(t, uint16(1500), asset.NextRateBps)

	clock.Advance(year)
	pos, err := m.Position(position, weth)
	require.NoError(t, err)
	require.Equal(t, "1000", pos.Quota)
	require.Equal(t, "10", pos.OutstandingInterest)

	pushed, err = m.RefreshIfDue()
	require.NoError(t, err)
	require.True(t, pushed)
	asset, err = m.Asset(weth)
	require.NoError(t, err)
	require.Equal(t, uint16(1500), asset.RateBps)
	require.Equal(t, "1500000", m.Pool().QuotaRevenue)

	interest, err := m.AccrueInterest(cm, position, []common.Address{weth})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), interest)

	removed, err := m.UpdateQuota(cm, position, weth, RemoveAll(), nil, nil)
	require.NoError(t, err)
	require.True(t, removed.Disabled)
	require.Equal(t, big.NewInt(-1_000), removed.RealizedDelta)
	require.Equal(t, "0", m.Pool().QuotaRevenue)
}

func TestRepayMovesCash(t *testing.T) {
	m, _, _ := newMarket(t, config.KeeperGauge)
	_, err := m.Deposit(lp, big.NewInt(1_000), lp)
	require.NoError(t, err)
	require.NoError(t, m.Borrow(cm, big.NewInt(500)))
	require.Equal(t, "500", m.Pool().AvailableLiquidity)

	_, err = m.Repay(lp, Repayment{Repaid: big.NewInt(100)})
	require.ErrorIs(t, err, coreerrors.ErrNoDebt)
	require.Equal(t, "500", m.Pool().AvailableLiquidity)

	result, err := m.Repay(cm, Repayment{Repaid: big.NewInt(500), Profit: big.NewInt(50)})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), result.SharesMinted)
	view := m.Pool()
	require.Equal(t, "1050", view.AvailableLiquidity)
	require.Equal(t, "1050", view.ExpectedLiquidity)
	require.Equal(t, "0", view.TotalBorrowed)
}

func TestWithdrawUsesCallerAsOwner(t *testing.T) {
	m, _, _ := newMarket(t, config.KeeperGauge)
	_, err := m.Deposit(lp, big.NewInt(1_000), lp)
	require.NoError(t, err)

	_, err = m.Withdraw(cm, big.NewInt(100), cm)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientShares)
	shares, err := m.Withdraw(lp, big.NewInt(100), lp)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), shares)
	require.Equal(t, "900", m.Holder(lp).Shares)
}

func TestKeeperSpecificOperations(t *testing.T) {
	gauge, _, _ := newMarket(t, config.KeeperGauge)
	require.ErrorIs(t, gauge.SetRate(admin, weth, 200), coreerrors.ErrUnsupportedOperation)
	require.NoError(t, gauge.ChangeRateBand(admin, weth, ratekeeper.RateBand{Min: 200, Max: 900}))
	asset, err := gauge.Asset(weth)
	require.NoError(t, err)
	require.Equal(t, uint16(200), asset.MinRateBps)
	require.Equal(t, uint16(900), asset.MaxRateBps)
	require.NoError(t, gauge.SetFrozenEpoch(admin, true))
	pushed, err := gauge.RefreshIfDue()
	require.NoError(t, err)
	require.False(t, pushed)
	require.False(t, gauge.Keeper().Due)

	tumbler, clock, _ := newMarket(t, config.KeeperTumbler)
	require.ErrorIs(t, tumbler.Vote(lp, weth, uint256.NewInt(1), ratekeeper.SideMin), coreerrors.ErrUnsupportedOperation)
	_, err = tumbler.VotesOf(lp, weth)
	require.ErrorIs(t, err, coreerrors.ErrUnsupportedOperation)
	pushed, err = tumbler.RefreshIfDue()
	require.NoError(t, err)
	require.True(t, pushed)
	asset, err = tumbler.Asset(weth)
	require.NoError(t, err)
	require.Equal(t, uint16(300), asset.RateBps)

	require.NoError(t, tumbler.SetRate(admin, weth, 450))
	require.NoError(t, tumbler.SetEpochLength(admin, 60))
	clock.Advance(time.Minute)
	pushed, err = tumbler.RefreshIfDue()
	require.NoError(t, err)
	require.True(t, pushed)
	asset, err = tumbler.Asset(weth)
	require.NoError(t, err)
	require.Equal(t, uint16(450), asset.RateBps)
}

func TestPauseModules(t *testing.T) {
	m, _, _ := newMarket(t, config.KeeperGauge)
	require.ErrorIs(t, m.Pause(admin, "oracle"), ErrUnknownModule)
	require.ErrorIs(t, m.Pause(lp, ModulePool), coreerrors.ErrUnauthorized)
	require.NoError(t, m.Pause(admin, ModulePool))
	require.Equal(t, []string{ModulePool}, m.Pool().Paused)

	_, err := m.Deposit(lp, big.NewInt(1), lp)
	require.ErrorIs(t, err, coreerrors.ErrPaused)
	require.NoError(t, m.Unpause(admin, ModulePool))
	_, err = m.Deposit(lp, big.NewInt(1), lp)
	require.NoError(t, err)
}

func TestPersistAndOpen(t *testing.T) {
	m, clock, _ := newMarket(t, config.KeeperGauge)
	_, err := m.Deposit(lp, big.NewInt(10_000), lp)
	require.NoError(t, err)
	require.NoError(t, m.Borrow(cm, big.NewInt(2_500)))
	_, err = m.RefreshIfDue()
	require.NoError(t, err)
	_, err = m.UpdateQuota(cm, position, weth, big.NewInt(700), nil, nil)
	require.NoError(t, err)
	require.NoError(t, m.Vote(lp, weth, uint256.NewInt(3), ratekeeper.SideMax))
	treasury := common.HexToAddress("0x0000000000000000000000000000000000007777")
	require.NoError(t, m.SetTreasury(admin, treasury))
	require.NoError(t, m.Pause(admin, ModulePool))
	clock.Advance(30 * 24 * time.Hour)

	store := ledger.NewStore(storage.NewMemDB())
	receipt, err := m.Persist(store)
	require.NoError(t, err)
	require.Equal(t, uint64(1), receipt.Version)
	root, err := m.StateRoot()
	require.NoError(t, err)
	require.Equal(t, receipt.Root.Hex(), root)

	restored, err := Open(testConfig(config.KeeperGauge), store, WithClock(clock.Now))
	require.NoError(t, err)
	require.Equal(t, m.View(), restored.View())
	require.Equal(t, m.Holder(lp), restored.Holder(lp))
	require.Equal(t, m.Borrowers(), restored.Borrowers())
	votes, err := restored.VotesOf(lp, weth)
	require.NoError(t, err)
	require.Equal(t, uint64(3), votes.MaxSide.Uint64())
	require.Equal(t, treasury.Hex(), restored.Pool().Treasury)
	require.Equal(t, []string{ModulePool}, restored.Pool().Paused)
	_, err = restored.Deposit(lp, big.NewInt(1), lp)
	require.ErrorIs(t, err, coreerrors.ErrPaused)

	_, err = Open(testConfig(config.KeeperTumbler), store, WithClock(clock.Now))
	require.ErrorIs(t, err, ledger.ErrMalformed)
}

func TestOpenEmptyStoreBootstraps(t *testing.T) {
	store := ledger.NewStore(storage.NewMemDB())
	m, err := Open(testConfig(config.KeeperTumbler), store)
	require.NoError(t, err)
	require.Equal(t, string(ratekeeper.KindTumbler), m.Keeper().Kind)
}

func TestQuotaInterestMatchesPoolRevenue(t *testing.T) {
	cfg := testConfig(config.KeeperTumbler)
	cfg.Assets[0].RateBps = 1000
	cfg.Assets[0].Limit = "2000000"
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	m, err := New(cfg, WithClock(clock.Now))
	require.NoError(t, err)

	_, err = m.Deposit(lp, big.NewInt(10_000), lp)
	require.NoError(t, err)
	pushed, err := m.RefreshIfDue()
	require.NoError(t, err)
	require.True(t, pushed)
	_, err = m.UpdateQuota(cm, position, weth, big.NewInt(1_000_000), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "10000", m.Pool().ExpectedLiquidity)

	for _, rate := range []uint16{2000, 500, 1500, 1000} {
		clock.Advance(year / 2)
		require.NoError(t, m.SetRate(admin, weth, rate))
		pushed, err := m.RefreshIfDue()
		require.NoError(t, err)
		require.True(t, pushed)
	}

	pos, err := m.Position(position, weth)
	require.NoError(t, err)
	require.Equal(t, "250000", pos.OutstandingInterest)
	require.Equal(t, "260000", m.Pool().ExpectedLiquidity)

	interest, err := m.AccrueInterest(cm, position, []common.Address{weth})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(250_000), interest)
}

func TestGaugeVotesLockShares(t *testing.T) {
	m, _, _ := newMarket(t, config.KeeperGauge)

	stranger := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	require.ErrorIs(t, m.Vote(stranger, weth, huge, ratekeeper.SideMax), coreerrors.ErrInsufficientStake)
	asset, err := m.Asset(weth)
	require.NoError(t, err)
	require.Equal(t, uint16(100), asset.NextRateBps)

	_, err = m.Deposit(lp, big.NewInt(1_000), lp)
	require.NoError(t, err)
	require.NoError(t, m.Vote(lp, weth, uint256.NewInt(600), ratekeeper.SideMax))
	require.ErrorIs(t, m.Vote(lp, weth, uint256.NewInt(401), ratekeeper.SideMin), coreerrors.ErrInsufficientStake)
	require.Equal(t, "400", m.Holder(lp).MaxRedeem)

	_, err = m.Redeem(lp, big.NewInt(401), lp)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientShares)
	_, err = m.Redeem(lp, big.NewInt(400), lp)
	require.NoError(t, err)

	require.NoError(t, m.Unvote(lp, weth, uint256.NewInt(600), ratekeeper.SideMax))
	_, err = m.Redeem(lp, big.NewInt(600), lp)
	require.NoError(t, err)
	require.Equal(t, "0", m.Holder(lp).Shares)
}
