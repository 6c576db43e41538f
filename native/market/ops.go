package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/native/fixedpoint"
	"creditpool/native/pool"
	"creditpool/native/quota"
	"creditpool/native/ratekeeper"
)

// Deposit supplies assets from caller and mints shares to receiver.
func (m *Market) Deposit(caller common.Address, assets *big.Int, receiver common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.Deposit(assets, receiver)
}

// Mint issues exactly shares to receiver and returns the assets caller
// supplied for them.
func (m *Market) Mint(caller common.Address, shares *big.Int, receiver common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.Mint(shares, receiver)
}

// Withdraw burns caller's shares for assets sent to receiver.
func (m *Market) Withdraw(caller common.Address, assets *big.Int, receiver common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.Withdraw(assets, receiver, caller)
}

// Redeem burns exactly shares of caller and sends what they are worth to
// receiver.
func (m *Market) Redeem(caller common.Address, shares *big.Int, receiver common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.Redeem(shares, receiver, caller)
}

// Borrow draws amount against caller's credit line.
func (m *Market) Borrow(caller common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.Borrow(caller, amount)
}

// Repayment describes cash a borrower returns to the pool. Repaid principal
// closes debt; Profit is interest and fees above it; Loss is the part of the
// debt that could not be recovered.
type Repayment struct {
	Repaid *big.Int
	Profit *big.Int
	Loss   *big.Int
}

// Inflow is the cash the repayment moves into the pool.
func (r Repayment) Inflow() *big.Int {
	inflow := new(big.Int).Add(fixedpoint.Clone(r.Repaid), fixedpoint.Clone(r.Profit))
	inflow.Sub(inflow, fixedpoint.Clone(r.Loss))
	if inflow.Sign() < 0 {
		return big.NewInt(0)
	}
	return inflow
}

// Repay books caller's repayment. The inflow reaches the reserve only when
// the pool accepts the repayment.
func (m *Market) Repay(caller common.Address, r Repayment) (pool.RepayResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inflow := r.Inflow()
	m.reserve.Credit(inflow)
	result, err := m.pool.Repay(caller, r.Repaid, r.Profit, r.Loss)
	if err != nil {
		if debitErr := m.reserve.Debit(inflow); debitErr != nil {
			return result, fmt.Errorf("%w (reserve rollback: %v)", err, debitErr)
		}
		return result, err
	}
	return result, nil
}

// UpdateQuota changes position's quota in asset. See quota.Ledger.UpdateQuota.
func (m *Market) UpdateQuota(caller, position, asset common.Address, delta, minQuota, maxQuota *big.Int) (quota.QuotaChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quota.UpdateQuota(caller, position, asset, delta, minQuota, maxQuota)
}

// RemoveQuotas zeroes position's quotas in assets.
func (m *Market) RemoveQuotas(caller, position common.Address, assets []common.Address, zeroLimits bool) ([]common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quota.RemoveQuotas(caller, position, assets, zeroLimits)
}

// AccrueInterest settles position's quota interest on assets.
func (m *Market) AccrueInterest(caller, position common.Address, assets []common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quota.AccrueInterest(caller, position, assets)
}

// RegisterAsset makes asset priceable by the keeper and quotable on the
// ledger.
func (m *Market) RegisterAsset(caller, asset common.Address, band ratekeeper.RateBand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keeper.RegisterAsset(caller, asset, band)
}

// RefreshIfDue pushes keeper rates to the quota ledger once an epoch has
// passed.
func (m *Market) RefreshIfDue() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keeper.RefreshIfDue()
}

// Vote stakes votes on one side of asset's gauge band.
func (m *Market) Vote(caller, asset common.Address, votes *uint256.Int, side ratekeeper.Side) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.requireGauge()
	if err != nil {
		return err
	}
	return g.Vote(caller, asset, votes, side)
}

// Unvote withdraws previously cast votes.
func (m *Market) Unvote(caller, asset common.Address, votes *uint256.Int, side ratekeeper.Side) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.requireGauge()
	if err != nil {
		return err
	}
	return g.Unvote(caller, asset, votes, side)
}

// ChangeRateBand moves asset's gauge band. Zero leaves an end unchanged.
func (m *Market) ChangeRateBand(caller, asset common.Address, band ratekeeper.RateBand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.requireGauge()
	if err != nil {
		return err
	}
	if band.Min != 0 {
		if err := g.ChangeMinRate(caller, asset, band.Min); err != nil {
			return err
		}
	}
	if band.Max != 0 {
		return g.ChangeMaxRate(caller, asset, band.Max)
	}
	return nil
}

// SetFrozenEpoch freezes or thaws gauge rate pushes.
func (m *Market) SetFrozenEpoch(caller common.Address, frozen bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.requireGauge()
	if err != nil {
		return err
	}
	return g.SetFrozenEpoch(caller, frozen)
}

// SetRate sets asset's direct rate on a tumbler.
func (m *Market) SetRate(caller, asset common.Address, rate uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.requireTumbler()
	if err != nil {
		return err
	}
	return t.SetRate(caller, asset, rate)
}

// SetEpochLength changes the keeper's epoch.
func (m *Market) SetEpochLength(caller common.Address, seconds uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gauge != nil {
		return m.gauge.SetEpochLength(caller, seconds)
	}
	return m.tumbler.SetEpochLength(caller, seconds)
}

// SetTotalDebtLimit caps pool-wide principal. Nil removes the cap.
func (m *Market) SetTotalDebtLimit(caller common.Address, limit *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.SetTotalDebtLimit(caller, limit)
}

// SetBorrowerDebtLimit opens or resizes borrower's credit line.
func (m *Market) SetBorrowerDebtLimit(caller, borrower common.Address, limit *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.SetBorrowerDebtLimit(caller, borrower, limit)
}

// SetWithdrawFee sets the withdrawal fee in basis points.
func (m *Market) SetWithdrawFee(caller common.Address, fee uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.SetWithdrawFee(caller, fee)
}

// SetTreasury redirects fees and loss cover to treasury.
func (m *Market) SetTreasury(caller, treasury common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.SetTreasury(caller, treasury)
}

// SetTokenLimit caps total quota on asset.
func (m *Market) SetTokenLimit(caller, asset common.Address, limit *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quota.SetTokenLimit(caller, asset, limit)
}

// SetTokenIncreaseFee sets asset's quota increase fee in basis points.
func (m *Market) SetTokenIncreaseFee(caller, asset common.Address, fee uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quota.SetTokenIncreaseFee(caller, asset, fee)
}

// Pause switches module off.
func (m *Market) Pause(caller common.Address, module string) error {
	if err := knownModule(module); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.pauses.Pause(caller, module); err != nil {
		return err
	}
	m.logger.Warn("module paused", "module", module, "by", caller.Hex())
	return nil
}

// Unpause switches module back on.
func (m *Market) Unpause(caller common.Address, module string) error {
	if err := knownModule(module); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.pauses.Unpause(caller, module); err != nil {
		return err
	}
	m.logger.Info("module unpaused", "module", module, "by", caller.Hex())
	return nil
}
