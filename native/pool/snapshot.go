package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"creditpool/native/fixedpoint"
)

// BorrowerDebt is the persisted form of a credit line.
type BorrowerDebt struct {
	Borrower common.Address
	Borrowed *big.Int
	Limit    *big.Int
}

// Snapshot is the RLP-friendly persisted form of a pool. Reserve and share
// balances are captured only when the pool owns in-memory books.
type Snapshot struct {
	ExpectedLiquidityLU    *big.Int
	BaseInterestRate       *big.Int
	BaseInterestIndexLU    *big.Int
	LastBaseInterestUpdate uint64
	LastQuotaRevenueUpdate uint64
	QuotaRevenue           *big.Int
	TotalBorrowed          *big.Int
	TotalDebtLimit         *big.Int
	WithdrawFee            uint16
	QuotaKeeper            common.Address
	Borrowers              []BorrowerDebt
	Reserve                *big.Int
	Shares                 []ShareBalance
	Treasury               common.Address `rlp:"optional"`
}

type reserveLoader interface {
	Set(balance *big.Int)
}

type shareLoader interface {
	Balances() []ShareBalance
	Load(balances []ShareBalance)
}

// Snapshot captures the pool's ledger state.
func (p *Pool) Snapshot() Snapshot {
	snap := Snapshot{
		ExpectedLiquidityLU:    new(big.Int).Set(p.expectedLiquidityLU),
		BaseInterestRate:       new(big.Int).Set(p.baseInterestRate),
		BaseInterestIndexLU:    new(big.Int).Set(p.baseInterestIndexLU),
		LastBaseInterestUpdate: p.lastBaseInterestUpdate,
		LastQuotaRevenueUpdate: p.lastQuotaRevenueUpdate,
		QuotaRevenue:           new(big.Int).Set(p.quotaRevenue),
		TotalBorrowed:          new(big.Int).Set(p.totalDebt.Borrowed),
		TotalDebtLimit:         new(big.Int).Set(p.totalDebt.Limit),
		WithdrawFee:            p.withdrawFee,
		QuotaKeeper:            p.quotaKeeper,
		Reserve:                p.reserve.Balance(),
		Treasury:               p.treasury,
	}
	for _, borrower := range p.Borrowers() {
		debt := p.borrowerDebt[borrower]
		snap.Borrowers = append(snap.Borrowers, BorrowerDebt{
			Borrower: borrower,
			Borrowed: new(big.Int).Set(debt.Borrowed),
			Limit:    new(big.Int).Set(debt.Limit),
		})
	}
	if loader, ok := p.shares.(shareLoader); ok {
		snap.Shares = loader.Balances()
	}
	return snap
}

// Restore replaces the pool's ledger state with snap. A snapshot without a
// treasury keeps the configured one.
func (p *Pool) Restore(snap Snapshot) {
	p.expectedLiquidityLU = fixedpoint.Clone(snap.ExpectedLiquidityLU)
	p.baseInterestRate = fixedpoint.Clone(snap.BaseInterestRate)
	p.baseInterestIndexLU = fixedpoint.Clone(snap.BaseInterestIndexLU)
	if p.baseInterestIndexLU.Sign() == 0 {
		p.baseInterestIndexLU = new(big.Int).Set(fixedpoint.Ray)
	}
	p.lastBaseInterestUpdate = snap.LastBaseInterestUpdate
	p.lastQuotaRevenueUpdate = snap.LastQuotaRevenueUpdate
	p.quotaRevenue = fixedpoint.Clone(snap.QuotaRevenue)
	p.totalDebt = DebtParams{Borrowed: fixedpoint.Clone(snap.TotalBorrowed), Limit: fixedpoint.Clone(snap.TotalDebtLimit)}
	p.withdrawFee = snap.WithdrawFee
	p.quotaKeeper = snap.QuotaKeeper
	if snap.Treasury != (common.Address{}) {
		p.treasury = snap.Treasury
	}
	p.borrowerDebt = make(map[common.Address]*DebtParams, len(snap.Borrowers))
	for _, b := range snap.Borrowers {
		p.borrowerDebt[b.Borrower] = &DebtParams{Borrowed: fixedpoint.Clone(b.Borrowed), Limit: fixedpoint.Clone(b.Limit)}
	}
	if loader, ok := p.reserve.(reserveLoader); ok {
		loader.Set(snap.Reserve)
	}
	if loader, ok := p.shares.(shareLoader); ok {
		loader.Load(snap.Shares)
	}
}
