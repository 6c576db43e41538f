package ratekeeper

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	nativecommon "creditpool/native/common"
	"creditpool/native/quota"
)

// Kind distinguishes keeper implementations.
type Kind string

const (
	KindGauge   Kind = "gauge"
	KindTumbler Kind = "tumbler"
)

// RateBand is the rate range, in basis points, an asset may be priced within.
// A Tumbler treats the band as a single fixed rate and requires Min == Max.
type RateBand struct {
	Min uint16
	Max uint16
}

// FixedRate is the band of a directly set rate.
func FixedRate(rate uint16) RateBand { return RateBand{Min: rate, Max: rate} }

// QuotaLedger is the quota state a keeper prices.
type QuotaLedger interface {
	Assets() []common.Address
	IsQuoted(asset common.Address) bool
	LastRateUpdate() uint64
	AddAsset(caller, asset common.Address) error
	RefreshRates(caller common.Address, rates []quota.RateUpdate) error
}

// Keeper decides per-asset quota rates and pushes them to the quota ledger
// once per epoch.
type Keeper interface {
	Address() common.Address
	Kind() Kind
	// RegisterAsset makes asset priceable, adding it to the quota ledger if
	// needed.
	RegisterAsset(caller, asset common.Address, band RateBand) error
	// GetRates returns the rate each asset would be charged now.
	GetRates(assets []common.Address) ([]uint16, error)
	// RefreshIfDue pushes new rates when a full epoch has passed since the
	// ledger's last refresh. Reports whether a push happened.
	RefreshIfDue() (bool, error)
	Assets() []common.Address
	Epoch() uint64
	EpochLength() uint64
	LastUpdate() uint64
}

// Config carries the identity and cadence of a keeper. Clock defaults to
// time.Now.
type Config struct {
	Address     common.Address
	EpochLength uint64
	Clock       func() time.Time
}

// schedule is the epoch bookkeeping shared by every keeper.
type schedule struct {
	address     common.Address
	kind        Kind
	ledger      QuotaLedger
	epochLength uint64
	epoch       uint64
	lastUpdate  uint64

	acl     nativecommon.Authorizer
	emitter events.Emitter
	logger  *slog.Logger
	nowFn   func() time.Time
}

func newSchedule(cfg Config, kind Kind, ledger QuotaLedger) (schedule, error) {
	if cfg.Address == (common.Address{}) {
		return schedule{}, fmt.Errorf("%w: keeper address required", coreerrors.ErrZeroAddress)
	}
	if ledger == nil {
		return schedule{}, fmt.Errorf("%w: quota ledger required", coreerrors.ErrIncorrectParameter)
	}
	if cfg.EpochLength == 0 {
		return schedule{}, fmt.Errorf("%w: epoch length must be positive", coreerrors.ErrIncorrectParameter)
	}
	s := schedule{
		address:     cfg.Address,
		kind:        kind,
		ledger:      ledger,
		epochLength: cfg.EpochLength,
		emitter:     events.NoopEmitter{},
		logger:      slog.Default().With("module", "ratekeeper", "kind", string(kind)),
		nowFn:       time.Now,
	}
	if cfg.Clock != nil {
		s.nowFn = cfg.Clock
	}
	return s, nil
}

func (s *schedule) Address() common.Address { return s.address }
func (s *schedule) Kind() Kind              { return s.kind }
func (s *schedule) Epoch() uint64           { return s.epoch }
func (s *schedule) EpochLength() uint64     { return s.epochLength }
func (s *schedule) LastUpdate() uint64      { return s.lastUpdate }

// SetNowFunc overrides the clock. Primarily used in tests.
func (s *schedule) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.nowFn = now
}

// SetEmitter configures the event sink.
func (s *schedule) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	s.emitter = emitter
}

// SetLogger configures the structured logger.
func (s *schedule) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger.With("module", "ratekeeper", "kind", string(s.kind))
}

// SetAuthorizer wires the role table.
func (s *schedule) SetAuthorizer(acl nativecommon.Authorizer) { s.acl = acl }

// SetEpochLength changes the minimum spacing, in seconds, between rate
// pushes. The next push is due relative to the ledger's last refresh.
func (s *schedule) SetEpochLength(caller common.Address, length uint64) error {
	if err := nativecommon.AuthorizeController(s.acl, caller); err != nil {
		return err
	}
	if length == 0 {
		return fmt.Errorf("%w: epoch length must be positive", coreerrors.ErrIncorrectParameter)
	}
	s.epochLength = length
	value := strconv.FormatUint(length, 10)
	s.emitter.Emit(events.ConfigChanged{Module: "ratekeeper", Parameter: "epoch_length", Subject: s.address, Value: value})
	s.logger.Info("epoch length updated", "seconds", value)
	return nil
}

func (s *schedule) timestamp() uint64 {
	unix := s.nowFn().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

func (s *schedule) due(now uint64) bool {
	return now >= s.ledger.LastRateUpdate()+s.epochLength
}

// addToLedger registers asset with the quota ledger unless it already is.
func (s *schedule) addToLedger(asset common.Address) error {
	if s.ledger.IsQuoted(asset) {
		return nil
	}
	return s.ledger.AddAsset(s.address, asset)
}

func (s *schedule) push(rates []quota.RateUpdate, now uint64) error {
	if err := s.ledger.RefreshRates(s.address, rates); err != nil {
		return err
	}
	s.epoch++
	s.lastUpdate = now
	s.emitter.Emit(events.KeeperEpoch{Keeper: s.address, Kind: string(s.kind), Epoch: s.epoch, Assets: len(rates)})
	s.logger.Info("quota rates pushed", "epoch", s.epoch, "assets", len(rates))
	return nil
}

func toUpdates(assets []common.Address, rates []uint16) []quota.RateUpdate {
	out := make([]quota.RateUpdate, 0, len(assets))
	for i, asset := range assets {
		out = append(out, quota.RateUpdate{Asset: asset, Rate: rates[i]})
	}
	return out
}
