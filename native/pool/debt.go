package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	"creditpool/native/fixedpoint"
)

// RepayResult reports the share movements a repayment triggered.
type RepayResult struct {
	SharesMinted  *big.Int
	SharesBurned  *big.Int
	UncoveredLoss *big.Int
}

func emptyRepay() RepayResult {
	return RepayResult{SharesMinted: big.NewInt(0), SharesBurned: big.NewInt(0), UncoveredLoss: big.NewInt(0)}
}

// Borrow lends amount to a registered borrower. The draw must fit under both
// the pool-wide and the borrower's debt ceiling, and under U2 when the curve
// forbids borrowing past it.
func (p *Pool) Borrow(borrower common.Address, amount *big.Int) error {
	if err := p.guard(); err != nil {
		return err
	}
	if !fixedpoint.IsPositive(amount) {
		return fmt.Errorf("%w: borrow must be positive", coreerrors.ErrInvalidAmount)
	}
	debt, ok := p.borrowerDebt[borrower]
	if !ok {
		return fmt.Errorf("%w: %s has no credit line", coreerrors.ErrDebtLimitExceeded, borrower.Hex())
	}
	borrowed := new(big.Int).Add(debt.Borrowed, amount)
	if borrowed.Cmp(debt.Limit) > 0 {
		return fmt.Errorf("%w: borrower limit %s", coreerrors.ErrDebtLimitExceeded, debt.Limit)
	}
	total := new(big.Int).Add(p.totalDebt.Borrowed, amount)
	if total.Cmp(p.totalDebt.Limit) > 0 {
		return fmt.Errorf("%w: pool limit %s", coreerrors.ErrDebtLimitExceeded, p.totalDebt.Limit)
	}
	if available := p.reserve.Balance(); available.Cmp(amount) < 0 {
		return fmt.Errorf("%w: pool holds %s, need %s", coreerrors.ErrInsufficientLiquidity, available, amount)
	}
	cp, err := p.prepare(p.model, big.NewInt(0), new(big.Int).Neg(amount), true)
	if err != nil {
		return err
	}
	if err := p.reserve.Debit(amount); err != nil {
		return err
	}
	p.commit(cp)
	debt.Borrowed = borrowed
	p.totalDebt.Borrowed = total
	p.emit(events.PoolBorrow{Borrower: borrower, Amount: new(big.Int).Set(amount)})
	p.logger.Debug("borrow booked", "borrower", borrower.Hex(), "amount", amount.String())
	return nil
}

// Repay closes repaid principal of borrower. The cash is expected to already
// sit in the reserve. Profit mints shares to the treasury. Loss burns the
// treasury's shares; whatever the treasury cannot cover is reported as
// uncovered and the remaining LPs absorb it.
func (p *Pool) Repay(borrower common.Address, repaid, profit, loss *big.Int) (RepayResult, error) {
	result := emptyRepay()
	if err := p.guard(); err != nil {
		return result, err
	}
	repaid, profit, loss = fixedpoint.Clone(repaid), fixedpoint.Clone(profit), fixedpoint.Clone(loss)
	if repaid.Sign() < 0 || profit.Sign() < 0 || loss.Sign() < 0 {
		return result, fmt.Errorf("%w: negative repayment component", coreerrors.ErrInvalidAmount)
	}
	if profit.Sign() > 0 && loss.Sign() > 0 {
		return result, fmt.Errorf("%w: repayment cannot carry both profit and loss", coreerrors.ErrInvalidAmount)
	}
	debt, ok := p.borrowerDebt[borrower]
	if !ok || debt.Borrowed.Sign() == 0 {
		return result, coreerrors.ErrNoDebt
	}
	if repaid.Cmp(debt.Borrowed) > 0 {
		return result, fmt.Errorf("%w: repaying %s of %s outstanding", coreerrors.ErrOutOfBounds, repaid, debt.Borrowed)
	}

	if profit.Sign() > 0 {
		result.SharesMinted = p.convertToShares(profit, fixedpoint.Floor)
	} else if loss.Sign() > 0 {
		burn := p.convertToShares(loss, fixedpoint.Floor)
		held := p.shares.BalanceOf(p.treasury)
		if burn.Cmp(held) > 0 {
			result.UncoveredLoss = p.convertToAssets(new(big.Int).Sub(burn, held), fixedpoint.Floor)
			burn = held
		}
		result.SharesBurned = burn
	}

	cp, err := p.prepare(p.model, new(big.Int).Sub(profit, loss), big.NewInt(0), false)
	if err != nil {
		return emptyRepay(), err
	}
	if err := p.shares.Burn(p.treasury, result.SharesBurned); err != nil {
		return emptyRepay(), err
	}
	p.shares.Mint(p.treasury, result.SharesMinted)
	p.commit(cp)
	debt.Borrowed = new(big.Int).Sub(debt.Borrowed, repaid)
	p.totalDebt.Borrowed = new(big.Int).Sub(p.totalDebt.Borrowed, repaid)
	if p.totalDebt.Borrowed.Sign() < 0 {
		p.totalDebt.Borrowed = big.NewInt(0)
	}

	p.emit(events.PoolRepay{
		Borrower:     borrower,
		Repaid:       repaid,
		Profit:       profit,
		Loss:         loss,
		SharesMinted: new(big.Int).Set(result.SharesMinted),
		SharesBurned: new(big.Int).Set(result.SharesBurned),
	})
	if result.UncoveredLoss.Sign() > 0 {
		p.emit(events.PoolUncoveredLoss{Borrower: borrower, Amount: new(big.Int).Set(result.UncoveredLoss)})
		p.logger.Warn("loss exceeded treasury cover", "borrower", borrower.Hex(), "uncovered", result.UncoveredLoss.String())
	}
	return result, nil
}
