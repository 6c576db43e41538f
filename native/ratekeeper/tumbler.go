package ratekeeper

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	nativecommon "creditpool/native/common"
	"creditpool/native/quota"
)

// Tumbler prices assets with rates set directly by a controller. Rates are
// pushed to the quota ledger at most once per epoch.
//
// A Tumbler is not safe for concurrent use; callers serialise access.
type Tumbler struct {
	schedule

	rates map[common.Address]uint16
	order []common.Address
}

var _ Keeper = (*Tumbler)(nil)

// NewTumbler creates a tumbler pricing assets of ledger.
func NewTumbler(cfg Config, ledger QuotaLedger) (*Tumbler, error) {
	s, err := newSchedule(cfg, KindTumbler, ledger)
	if err != nil {
		return nil, err
	}
	return &Tumbler{schedule: s, rates: make(map[common.Address]uint16)}, nil
}

// RegisterAsset adds asset to the tumbler. The band must be a single rate;
// a zero rate registers the asset unpriced until SetRate is called.
func (t *Tumbler) RegisterAsset(caller, asset common.Address, band RateBand) error {
	if err := nativecommon.Authorize(t.acl, caller, nativecommon.RoleConfigurator); err != nil {
		return err
	}
	if asset == (common.Address{}) {
		return coreerrors.ErrZeroAddress
	}
	if _, ok := t.rates[asset]; ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrAssetAlreadyAdded, asset.Hex())
	}
	if band.Min != band.Max {
		return fmt.Errorf("%w: tumbler takes a single rate, got [%d, %d]", coreerrors.ErrInvalidRate, band.Min, band.Max)
	}
	if err := t.addToLedger(asset); err != nil {
		return err
	}
	t.rates[asset] = band.Min
	t.order = append(t.order, asset)
	t.configChanged(asset, band.Min)
	return nil
}

// SetRate sets asset's rate for the next push.
func (t *Tumbler) SetRate(caller, asset common.Address, rate uint16) error {
	if err := nativecommon.AuthorizeController(t.acl, caller); err != nil {
		return err
	}
	if rate == 0 {
		return fmt.Errorf("%w: rate must be positive", coreerrors.ErrInvalidRate)
	}
	if _, ok := t.rates[asset]; !ok {
		return fmt.Errorf("%w: %s not on tumbler", coreerrors.ErrAssetNotQuoted, asset.Hex())
	}
	t.rates[asset] = rate
	t.configChanged(asset, rate)
	return nil
}

func (t *Tumbler) configChanged(asset common.Address, rate uint16) {
	value := strconv.Itoa(int(rate))
	t.emitter.Emit(events.ConfigChanged{Module: "ratekeeper", Parameter: "rate", Subject: asset, Value: value})
	t.logger.Info("tumbler rate set", "asset", asset.Hex(), "rate_bps", rate)
}

// GetRates implements Keeper. Unpriced assets fail with ErrInvalidRate.
func (t *Tumbler) GetRates(assets []common.Address) ([]uint16, error) {
	rates := make([]uint16, len(assets))
	for i, asset := range assets {
		rate, ok := t.rates[asset]
		if !ok {
			return nil, fmt.Errorf("%w: %s not on tumbler", coreerrors.ErrAssetNotQuoted, asset.Hex())
		}
		if rate == 0 {
			return nil, fmt.Errorf("%w: %s has no rate", coreerrors.ErrInvalidRate, asset.Hex())
		}
		rates[i] = rate
	}
	return rates, nil
}

// RefreshIfDue implements Keeper. Assets still unpriced are left out of the
// push and stay unusable on the quota ledger.
func (t *Tumbler) RefreshIfDue() (bool, error) {
	now := t.timestamp()
	if !t.due(now) {
		return false, nil
	}
	var updates []quota.RateUpdate
	for _, asset := range t.ledger.Assets() {
		rate, ok := t.rates[asset]
		if !ok {
			return false, fmt.Errorf("%w: %s not on tumbler", coreerrors.ErrAssetNotQuoted, asset.Hex())
		}
		if rate == 0 {
			continue
		}
		updates = append(updates, quota.RateUpdate{Asset: asset, Rate: rate})
	}
	if err := t.push(updates, now); err != nil {
		return false, err
	}
	return true, nil
}

// Assets lists assets on the tumbler in registration order.
func (t *Tumbler) Assets() []common.Address {
	return append([]common.Address(nil), t.order...)
}

// Rate returns asset's configured rate.
func (t *Tumbler) Rate(asset common.Address) (uint16, error) {
	rate, ok := t.rates[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s not on tumbler", coreerrors.ErrAssetNotQuoted, asset.Hex())
	}
	return rate, nil
}
