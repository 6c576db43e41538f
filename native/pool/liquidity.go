package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	"creditpool/native/fixedpoint"
)

// Deposit books assets supplied by an LP and mints shares to receiver, rounded
// down against the depositor. Returns the shares minted.
func (p *Pool) Deposit(assets *big.Int, receiver common.Address) (*big.Int, error) {
	if err := p.guard(); err != nil {
		return nil, err
	}
	if receiver == (common.Address{}) {
		return nil, coreerrors.ErrZeroReceiver
	}
	if !fixedpoint.IsPositive(assets) {
		return nil, fmt.Errorf("%w: deposit must be positive", coreerrors.ErrInvalidAmount)
	}
	shares := p.convertToShares(assets, fixedpoint.Floor)
	if shares.Sign() == 0 {
		return nil, fmt.Errorf("%w: deposit too small to mint a share", coreerrors.ErrInvalidAmount)
	}
	if err := p.deposit(assets, shares, receiver); err != nil {
		return nil, err
	}
	return shares, nil
}

// Mint issues exactly shares to receiver, pulling the assets they are worth
// rounded up. Returns the assets booked.
func (p *Pool) Mint(shares *big.Int, receiver common.Address) (*big.Int, error) {
	if err := p.guard(); err != nil {
		return nil, err
	}
	if receiver == (common.Address{}) {
		return nil, coreerrors.ErrZeroReceiver
	}
	if !fixedpoint.IsPositive(shares) {
		return nil, fmt.Errorf("%w: shares must be positive", coreerrors.ErrInvalidAmount)
	}
	assets := p.convertToAssets(shares, fixedpoint.Ceil)
	if assets.Sign() == 0 {
		return nil, fmt.Errorf("%w: shares are worthless", coreerrors.ErrInvalidAmount)
	}
	if err := p.deposit(assets, shares, receiver); err != nil {
		return nil, err
	}
	return assets, nil
}

func (p *Pool) deposit(assets, shares *big.Int, receiver common.Address) error {
	cp, err := p.prepare(p.model, assets, assets, false)
	if err != nil {
		return err
	}
	p.commit(cp)
	p.reserve.Credit(assets)
	p.shares.Mint(receiver, shares)
	p.emit(events.PoolDeposit{Receiver: receiver, Assets: new(big.Int).Set(assets), Shares: new(big.Int).Set(shares)})
	p.logger.Debug("deposit booked", "receiver", receiver.Hex(), "assets", assets.String(), "shares", shares.String())
	return nil
}

// Withdraw releases assets to receiver by burning owner's shares. The amount
// drawn from the pool is grossed up by the withdrawal fee, which goes to the
// treasury. Shares are rounded up against the owner. Returns the shares burned.
func (p *Pool) Withdraw(assets *big.Int, receiver, owner common.Address) (*big.Int, error) {
	if err := p.guard(); err != nil {
		return nil, err
	}
	if receiver == (common.Address{}) {
		return nil, coreerrors.ErrZeroReceiver
	}
	if owner == (common.Address{}) {
		return nil, coreerrors.ErrZeroAddress
	}
	if !fixedpoint.IsPositive(assets) {
		return nil, fmt.Errorf("%w: withdrawal must be positive", coreerrors.ErrInvalidAmount)
	}
	gross := p.amountWithWithdrawalFee(assets)
	shares := p.convertToShares(gross, fixedpoint.Ceil)
	if err := p.withdraw(gross, assets, shares, receiver, owner); err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns shares from owner and releases what they are worth, net of the
// withdrawal fee, to receiver. Returns the assets received.
func (p *Pool) Redeem(shares *big.Int, receiver, owner common.Address) (*big.Int, error) {
	if err := p.guard(); err != nil {
		return nil, err
	}
	if receiver == (common.Address{}) {
		return nil, coreerrors.ErrZeroReceiver
	}
	if owner == (common.Address{}) {
		return nil, coreerrors.ErrZeroAddress
	}
	if !fixedpoint.IsPositive(shares) {
		return nil, fmt.Errorf("%w: shares must be positive", coreerrors.ErrInvalidAmount)
	}
	gross := p.convertToAssets(shares, fixedpoint.Floor)
	net := p.amountMinusWithdrawalFee(gross)
	if err := p.withdraw(gross, net, shares, receiver, owner); err != nil {
		return nil, err
	}
	return net, nil
}

// SetShareLocks wires the registry of shares that may not leave the pool.
func (p *Pool) SetShareLocks(locks ShareLocks) { p.locks = locks }

// freeShares is owner's balance less whatever is locked.
func (p *Pool) freeShares(owner common.Address) *big.Int {
	free := p.shares.BalanceOf(owner)
	if p.locks == nil {
		return free
	}
	if locked := p.locks.LockedShares(owner); locked != nil && locked.Sign() > 0 {
		free.Sub(free, locked)
		if free.Sign() < 0 {
			free.SetInt64(0)
		}
	}
	return free
}

func (p *Pool) withdraw(gross, net, shares *big.Int, receiver, owner common.Address) error {
	if free := p.freeShares(owner); free.Cmp(shares) < 0 {
		return fmt.Errorf("%w: %s can release %s, need %s", coreerrors.ErrInsufficientShares, owner.Hex(), free, shares)
	}
	if available := p.reserve.Balance(); available.Cmp(gross) < 0 {
		return fmt.Errorf("%w: pool holds %s, need %s", coreerrors.ErrInsufficientLiquidity, available, gross)
	}
	negGross := new(big.Int).Neg(gross)
	cp, err := p.prepare(p.model, negGross, negGross, false)
	if err != nil {
		return err
	}
	if err := p.reserve.Debit(gross); err != nil {
		return err
	}
	if err := p.shares.Burn(owner, shares); err != nil {
		p.reserve.Credit(gross)
		return err
	}
	p.commit(cp)
	fee := new(big.Int).Sub(gross, net)
	p.emit(events.PoolWithdraw{
		Receiver: receiver,
		Owner:    owner,
		Assets:   new(big.Int).Set(net),
		Shares:   new(big.Int).Set(shares),
		Fee:      fee,
	})
	p.logger.Debug("withdrawal booked", "owner", owner.Hex(), "assets", net.String(), "fee", fee.String())
	return nil
}

func (p *Pool) amountWithWithdrawalFee(amount *big.Int) *big.Int {
	if p.withdrawFee == 0 {
		return fixedpoint.Clone(amount)
	}
	keep := big.NewInt(int64(fixedpoint.PercentageFactor - int(p.withdrawFee)))
	return fixedpoint.MulDiv(amount, big.NewInt(fixedpoint.PercentageFactor), keep, fixedpoint.Ceil)
}

func (p *Pool) amountMinusWithdrawalFee(amount *big.Int) *big.Int {
	if p.withdrawFee == 0 {
		return fixedpoint.Clone(amount)
	}
	return fixedpoint.PercentMul(amount, uint16(fixedpoint.PercentageFactor-int(p.withdrawFee)), fixedpoint.Floor)
}

// PreviewDeposit returns the shares Deposit would mint.
func (p *Pool) PreviewDeposit(assets *big.Int) *big.Int {
	return p.convertToShares(assets, fixedpoint.Floor)
}

// PreviewMint returns the assets Mint would pull.
func (p *Pool) PreviewMint(shares *big.Int) *big.Int {
	return p.convertToAssets(shares, fixedpoint.Ceil)
}

// PreviewWithdraw returns the shares Withdraw would burn.
func (p *Pool) PreviewWithdraw(assets *big.Int) *big.Int {
	return p.convertToShares(p.amountWithWithdrawalFee(assets), fixedpoint.Ceil)
}

// PreviewRedeem returns the assets Redeem would release.
func (p *Pool) PreviewRedeem(shares *big.Int) *big.Int {
	return p.amountMinusWithdrawalFee(p.convertToAssets(shares, fixedpoint.Floor))
}

// MaxWithdraw returns the most owner can withdraw, bounded by cash on hand and
// by shares locked elsewhere.
func (p *Pool) MaxWithdraw(owner common.Address) *big.Int {
	if p.guard() != nil {
		return big.NewInt(0)
	}
	gross := fixedpoint.Min(p.reserve.Balance(), p.convertToAssets(p.freeShares(owner), fixedpoint.Floor))
	return p.amountMinusWithdrawalFee(gross)
}

// MaxRedeem returns the most shares owner can redeem, bounded by cash on hand.
func (p *Pool) MaxRedeem(owner common.Address) *big.Int {
	if p.guard() != nil {
		return big.NewInt(0)
	}
	return fixedpoint.Min(p.freeShares(owner), p.convertToShares(p.reserve.Balance(), fixedpoint.Floor))
}

// SharesOf returns holder's LP share balance.
func (p *Pool) SharesOf(holder common.Address) *big.Int { return p.shares.BalanceOf(holder) }

// TotalShares returns the LP share supply.
func (p *Pool) TotalShares() *big.Int { return p.shares.TotalSupply() }
