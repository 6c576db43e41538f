package market

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"creditpool/config"
	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	nativecommon "creditpool/native/common"
	"creditpool/native/curve"
	"creditpool/native/pool"
	"creditpool/native/quota"
	"creditpool/native/ratekeeper"
)

// Pausable modules.
const (
	ModulePool  = "pool"
	ModuleQuota = "quota"
)

// ErrUnknownModule is returned by Pause and Unpause for modules other than
// pool and quota.
var ErrUnknownModule = errors.New("market: unknown module")

// Option customises a market at construction.
type Option func(*options)

type options struct {
	clock   func() time.Time
	emitter events.Emitter
	logger  *slog.Logger
}

// WithClock sets the clock shared by every component.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithEmitter sets the event sink shared by every component.
func WithEmitter(emitter events.Emitter) Option {
	return func(o *options) { o.emitter = emitter }
}

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Market wires a rate curve, a pool, a quota ledger and a rate keeper into
// one lending market and serialises every call into them.
type Market struct {
	mu sync.Mutex

	nowFn  func() time.Time
	logger *slog.Logger

	acl     *nativecommon.StaticACL
	pauses  *nativecommon.PauseSet
	reserve *pool.MemReserve
	shares  *pool.MemShares

	model   *curve.Model
	pool    *pool.Pool
	quota   *quota.Ledger
	keeper  ratekeeper.Keeper
	gauge   *ratekeeper.Gauge
	tumbler *ratekeeper.Tumbler
}

// New builds a market from cfg. Borrowers and assets listed in cfg are
// registered on behalf of the first configured configurator.
func New(cfg config.Market, opts ...Option) (*Market, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	o := options{clock: time.Now, emitter: events.NoopEmitter{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.emitter == nil {
		o.emitter = events.NoopEmitter{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	acl, err := buildACL(cfg.Roles)
	if err != nil {
		return nil, err
	}
	admin := mustAddress(cfg.Roles["configurator"][0])

	m := &Market{
		nowFn:   o.clock,
		logger:  o.logger.With("component", "market"),
		acl:     acl,
		pauses:  nativecommon.NewPauseSet(acl),
		reserve: pool.NewMemReserve(nil),
		shares:  pool.NewMemShares(),
	}
	if m.model, err = curve.New(cfg.Curve.Params()); err != nil {
		return nil, err
	}
	m.pool, err = pool.New(pool.Config{
		Address:    mustAddress(cfg.Pool.Address),
		Underlying: mustAddress(cfg.Pool.Underlying),
		Treasury:   mustAddress(cfg.Pool.Treasury),
		Clock:      o.clock,
	}, m.model, m.reserve, m.shares)
	if err != nil {
		return nil, err
	}
	m.pool.SetAuthorizer(acl)
	m.pool.SetPauses(m.pauses)
	m.pool.SetEmitter(o.emitter)
	m.pool.SetLogger(o.logger)

	m.quota, err = quota.New(quota.Config{Address: mustAddress(cfg.Quota.Address), Clock: o.clock}, m.pool)
	if err != nil {
		return nil, err
	}
	m.quota.SetAuthorizer(acl)
	m.quota.SetPauses(m.pauses)
	m.quota.SetEmitter(o.emitter)
	m.quota.SetLogger(o.logger)

	keeperCfg := ratekeeper.Config{
		Address:     mustAddress(cfg.Keeper.Address),
		EpochLength: cfg.Keeper.EpochSeconds,
		Clock:       o.clock,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Keeper.Kind)) {
	case config.KeeperTumbler:
		if m.tumbler, err = ratekeeper.NewTumbler(keeperCfg, m.quota); err != nil {
			return nil, err
		}
		m.tumbler.SetAuthorizer(acl)
		m.tumbler.SetEmitter(o.emitter)
		m.tumbler.SetLogger(o.logger)
		m.keeper = m.tumbler
	default:
		if m.gauge, err = ratekeeper.NewGauge(keeperCfg, m.quota); err != nil {
			return nil, err
		}
		m.gauge.SetAuthorizer(acl)
		m.gauge.SetEmitter(o.emitter)
		m.gauge.SetLogger(o.logger)
		m.gauge.SetStakeView(shareStake{shares: m.shares})
		m.pool.SetShareLocks(voteLocks{gauge: m.gauge})
		m.keeper = m.gauge
	}

	if err := m.bootstrap(admin, cfg); err != nil {
		return nil, fmt.Errorf("market: bootstrap: %w", err)
	}
	m.logger.Info("market ready",
		"pool", m.pool.Address().Hex(),
		"keeper", string(m.keeper.Kind()),
		"assets", len(cfg.Assets),
		"borrowers", len(cfg.Borrowers))
	return m, nil
}

func (m *Market) bootstrap(admin common.Address, cfg config.Market) error {
	if err := m.pool.SetQuotaKeeper(admin, m.quota); err != nil {
		return err
	}
	if err := m.quota.SetRateKeeper(admin, m.keeper.Address()); err != nil {
		return err
	}
	limit, _ := config.ParseAmount("pool.total_debt_limit", cfg.Pool.TotalDebtLimit)
	if err := m.pool.SetTotalDebtLimit(admin, limit); err != nil {
		return err
	}
	if cfg.Pool.WithdrawFeeBps > 0 {
		if err := m.pool.SetWithdrawFee(admin, cfg.Pool.WithdrawFeeBps); err != nil {
			return err
		}
	}
	for _, b := range cfg.Borrowers {
		limit, _ := config.ParseAmount("debt_limit", b.DebtLimit)
		if err := m.pool.SetBorrowerDebtLimit(admin, mustAddress(b.Address), limit); err != nil {
			return err
		}
	}
	for _, a := range cfg.Assets {
		asset := mustAddress(a.Address)
		band := ratekeeper.RateBand{Min: a.MinRateBps, Max: a.MaxRateBps}
		if m.tumbler != nil {
			band = ratekeeper.FixedRate(a.RateBps)
		}
		if err := m.keeper.RegisterAsset(admin, asset, band); err != nil {
			return err
		}
		limit, _ := config.ParseAmount("limit", a.Limit)
		if limit == nil {
			limit = pool.Unlimited
		}
		if err := m.quota.SetTokenLimit(admin, asset, limit); err != nil {
			return err
		}
		if a.IncreaseFeeBps > 0 {
			if err := m.quota.SetTokenIncreaseFee(admin, asset, a.IncreaseFeeBps); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildACL(roles map[string][]string) (*nativecommon.StaticACL, error) {
	grants := make(map[nativecommon.Role][]common.Address, len(roles))
	for role, members := range roles {
		for i, raw := range members {
			addr, err := config.ParseAddress(fmt.Sprintf("roles.%s[%d]", role, i), raw)
			if err != nil {
				return nil, err
			}
			grants[nativecommon.Role(role)] = append(grants[nativecommon.Role(role)], addr)
		}
	}
	return nativecommon.NewStaticACL(grants), nil
}

// mustAddress decodes an address that ValidateConfig already accepted.
func mustAddress(raw string) common.Address {
	return common.HexToAddress(strings.TrimSpace(raw))
}

// RemoveAll is a quota delta that removes a position's entire quota.
func RemoveAll() *big.Int {
	return new(big.Int).Neg(pool.Unlimited)
}

// ACL exposes the role table. Roles are fixed at construction.
func (m *Market) ACL() nativecommon.Authorizer { return m.acl }

// KeeperKind reports which rate keeper prices the market.
func (m *Market) KeeperKind() ratekeeper.Kind { return m.keeper.Kind() }

func (m *Market) now() uint64 {
	unix := m.nowFn().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

func (m *Market) requireGauge() (*ratekeeper.Gauge, error) {
	if m.gauge == nil {
		return nil, fmt.Errorf("%w: market is priced by a %s", coreerrors.ErrUnsupportedOperation, m.keeper.Kind())
	}
	return m.gauge, nil
}

func (m *Market) requireTumbler() (*ratekeeper.Tumbler, error) {
	if m.tumbler == nil {
		return nil, fmt.Errorf("%w: market is priced by a %s", coreerrors.ErrUnsupportedOperation, m.keeper.Kind())
	}
	return m.tumbler, nil
}

func knownModule(module string) error {
	switch module {
	case ModulePool, ModuleQuota:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownModule, module)
}
