package quota

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	nativecommon "creditpool/native/common"
)

func (l *Ledger) configChanged(parameter string, subject common.Address, value string) {
	l.emit(events.ConfigChanged{Module: moduleName, Parameter: parameter, Subject: subject, Value: value})
	l.logger.Info("quota parameter updated", "parameter", parameter, "subject", subject.Hex(), "value", value)
}

// SetRateKeeper installs the keeper allowed to add assets and push rates.
func (l *Ledger) SetRateKeeper(caller, keeper common.Address) error {
	if err := nativecommon.Authorize(l.acl, caller, nativecommon.RoleConfigurator); err != nil {
		return err
	}
	if keeper == (common.Address{}) {
		return coreerrors.ErrZeroAddress
	}
	l.rateKeeper = keeper
	l.configChanged("rate_keeper", keeper, keeper.Hex())
	return nil
}

// SetTokenLimit caps the total quota across positions for asset. Lowering the
// limit below the current total blocks further increases without touching
// existing quotas.
func (l *Ledger) SetTokenLimit(caller, asset common.Address, limit *big.Int) error {
	if err := nativecommon.AuthorizeController(l.acl, caller); err != nil {
		return err
	}
	params, err := l.asset(asset)
	if err != nil {
		return err
	}
	if limit == nil || limit.Sign() < 0 {
		return fmt.Errorf("%w: token limit must be non-negative", coreerrors.ErrIncorrectParameter)
	}
	params.Limit = new(big.Int).Set(limit)
	l.configChanged("token_limit", asset, limit.String())
	return nil
}

// SetTokenIncreaseFee sets the one-off fee charged on quota increases for
// asset, in basis points.
func (l *Ledger) SetTokenIncreaseFee(caller, asset common.Address, fee uint16) error {
	if err := nativecommon.AuthorizeController(l.acl, caller); err != nil {
		return err
	}
	params, err := l.asset(asset)
	if err != nil {
		return err
	}
	if fee > MaxIncreaseFee {
		return fmt.Errorf("%w: increase fee %d above 100%%", coreerrors.ErrIncorrectParameter, fee)
	}
	params.IncreaseFee = fee
	l.configChanged("token_increase_fee", asset, strconv.Itoa(int(fee)))
	return nil
}
