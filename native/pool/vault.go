package pool

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
	"creditpool/native/fixedpoint"
)

// Reserve tracks the underlying tokens physically held by the pool. Its
// balance is the pool's available liquidity.
type Reserve interface {
	Balance() *big.Int
	Credit(amount *big.Int)
	Debit(amount *big.Int) error
}

// ShareBook is the pool's LP share ledger.
type ShareBook interface {
	TotalSupply() *big.Int
	BalanceOf(holder common.Address) *big.Int
	Mint(holder common.Address, amount *big.Int)
	Burn(holder common.Address, amount *big.Int) error
}

// ShareLocks reports LP shares a holder has committed elsewhere, such as to
// rate gauge votes. Locked shares cannot be withdrawn or redeemed.
type ShareLocks interface {
	LockedShares(holder common.Address) *big.Int
}

// MemReserve is an in-memory Reserve.
type MemReserve struct {
	mu      sync.Mutex
	balance *big.Int
}

// NewMemReserve returns a reserve seeded with the given balance.
func NewMemReserve(initial *big.Int) *MemReserve {
	return &MemReserve{balance: fixedpoint.Clone(initial)}
}

func (r *MemReserve) Balance() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.balance)
}

func (r *MemReserve) Credit(amount *big.Int) {
	if !fixedpoint.IsPositive(amount) {
		return
	}
	r.mu.Lock()
	r.balance.Add(r.balance, amount)
	r.mu.Unlock()
}

func (r *MemReserve) Debit(amount *big.Int) error {
	if !fixedpoint.IsPositive(amount) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: reserve holds %s, need %s", coreerrors.ErrInsufficientLiquidity, r.balance, amount)
	}
	r.balance.Sub(r.balance, amount)
	return nil
}

// MemShares is an in-memory ShareBook.
type MemShares struct {
	mu       sync.Mutex
	supply   *big.Int
	balances map[common.Address]*big.Int
}

// NewMemShares returns an empty share ledger.
func NewMemShares() *MemShares {
	return &MemShares{supply: big.NewInt(0), balances: make(map[common.Address]*big.Int)}
}

func (s *MemShares) TotalSupply() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.supply)
}

func (s *MemShares) BalanceOf(holder common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fixedpoint.Clone(s.balances[holder])
}

func (s *MemShares) Mint(holder common.Address, amount *big.Int) {
	if !fixedpoint.IsPositive(amount) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := fixedpoint.Clone(s.balances[holder])
	s.balances[holder] = bal.Add(bal, amount)
	s.supply.Add(s.supply, amount)
}

func (s *MemShares) Burn(holder common.Address, amount *big.Int) error {
	if !fixedpoint.IsPositive(amount) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := fixedpoint.Clone(s.balances[holder])
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, need %s", coreerrors.ErrInsufficientShares, holder.Hex(), bal, amount)
	}
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(s.balances, holder)
	} else {
		s.balances[holder] = bal
	}
	s.supply.Sub(s.supply, amount)
	return nil
}

// ShareBalance is a single holder's share count.
type ShareBalance struct {
	Holder common.Address
	Amount *big.Int
}

// Balances lists every non-zero holder ordered by address.
func (s *MemShares) Balances() []ShareBalance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ShareBalance, 0, len(s.balances))
	for holder, amount := range s.balances {
		out = append(out, ShareBalance{Holder: holder, Amount: new(big.Int).Set(amount)})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Holder.Cmp(out[j].Holder) < 0
	})
	return out
}

// Load replaces the ledger contents.
func (s *MemShares) Load(balances []ShareBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = make(map[common.Address]*big.Int, len(balances))
	s.supply = big.NewInt(0)
	for _, b := range balances {
		if !fixedpoint.IsPositive(b.Amount) {
			continue
		}
		s.balances[b.Holder] = new(big.Int).Set(b.Amount)
		s.supply.Add(s.supply, b.Amount)
	}
}

// Set replaces the reserve balance.
func (r *MemReserve) Set(balance *big.Int) {
	r.mu.Lock()
	r.balance = fixedpoint.Clone(balance)
	r.mu.Unlock()
}
