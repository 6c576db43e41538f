package pool

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	nativecommon "creditpool/native/common"
	"creditpool/native/fixedpoint"
)

func (p *Pool) configChanged(parameter string, subject common.Address, value string) {
	p.emit(events.ConfigChanged{Module: moduleName, Parameter: parameter, Subject: subject, Value: value})
	p.logger.Info("pool parameter updated", "parameter", parameter, "subject", subject.Hex(), "value", value)
}

// SetTotalDebtLimit caps outstanding principal across all borrowers. A nil
// limit removes the cap.
func (p *Pool) SetTotalDebtLimit(caller common.Address, limit *big.Int) error {
	if err := nativecommon.AuthorizeController(p.acl, caller); err != nil {
		return err
	}
	next, err := normaliseLimit(limit)
	if err != nil {
		return err
	}
	p.totalDebt.Limit = next
	p.configChanged("total_debt_limit", common.Address{}, next.String())
	return nil
}

// SetBorrowerDebtLimit opens or resizes a borrower's credit line. A nil limit
// lifts the borrower's cap; the pool-wide ceiling still applies.
func (p *Pool) SetBorrowerDebtLimit(caller, borrower common.Address, limit *big.Int) error {
	if err := nativecommon.AuthorizeController(p.acl, caller); err != nil {
		return err
	}
	if borrower == (common.Address{}) {
		return coreerrors.ErrZeroAddress
	}
	next, err := normaliseLimit(limit)
	if err != nil {
		return err
	}
	debt, ok := p.borrowerDebt[borrower]
	if !ok {
		debt = &DebtParams{Borrowed: big.NewInt(0)}
		p.borrowerDebt[borrower] = debt
	}
	debt.Limit = next
	p.configChanged("borrower_debt_limit", borrower, next.String())
	return nil
}

func normaliseLimit(limit *big.Int) (*big.Int, error) {
	if limit == nil {
		return new(big.Int).Set(Unlimited), nil
	}
	if limit.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative debt limit", coreerrors.ErrIncorrectParameter)
	}
	if limit.Cmp(Unlimited) > 0 {
		return new(big.Int).Set(Unlimited), nil
	}
	return new(big.Int).Set(limit), nil
}

// SetWithdrawFee sets the withdrawal fee, at most MaxWithdrawFee basis points.
func (p *Pool) SetWithdrawFee(caller common.Address, fee uint16) error {
	if err := nativecommon.AuthorizeController(p.acl, caller); err != nil {
		return err
	}
	if fee > MaxWithdrawFee {
		return fmt.Errorf("%w: withdraw fee %d above %d", coreerrors.ErrIncorrectParameter, fee, MaxWithdrawFee)
	}
	p.withdrawFee = fee
	p.configChanged("withdraw_fee", common.Address{}, strconv.Itoa(int(fee)))
	return nil
}

// SetInterestRateModel swaps the pricing curve and reprices immediately.
func (p *Pool) SetInterestRateModel(caller common.Address, model RateModel) error {
	if err := nativecommon.Authorize(p.acl, caller, nativecommon.RoleConfigurator); err != nil {
		return err
	}
	if model == nil {
		return fmt.Errorf("%w: nil rate model", coreerrors.ErrIncorrectParameter)
	}
	cp, err := p.prepare(model, big.NewInt(0), big.NewInt(0), false)
	if err != nil {
		return err
	}
	p.model = model
	p.commit(cp)
	p.configChanged("interest_rate_model", common.Address{}, cp.rate.String())
	return nil
}

// SetQuotaKeeper authorises keeper to move quota revenue and adopts its
// current revenue figure.
func (p *Pool) SetQuotaKeeper(caller common.Address, keeper QuotaKeeper) error {
	if err := nativecommon.Authorize(p.acl, caller, nativecommon.RoleConfigurator); err != nil {
		return err
	}
	if keeper == nil || keeper.Address() == (common.Address{}) {
		return coreerrors.ErrZeroAddress
	}
	if keeper.Address() == p.quotaKeeper {
		return nil
	}
	p.setQuotaRevenue(fixedpoint.Clone(keeper.PoolQuotaRevenue()))
	p.quotaKeeper = keeper.Address()
	p.configChanged("quota_keeper", keeper.Address(), keeper.Address().Hex())
	return nil
}

// SetTreasury redirects withdrawal fees, profit shares and loss absorption
// to treasury. Shares already held by the old treasury stay where they are.
func (p *Pool) SetTreasury(caller, treasury common.Address) error {
	if err := nativecommon.Authorize(p.acl, caller, nativecommon.RoleConfigurator); err != nil {
		return err
	}
	if treasury == (common.Address{}) {
		return coreerrors.ErrZeroAddress
	}
	p.treasury = treasury
	p.configChanged("treasury", treasury, treasury.Hex())
	return nil
}
