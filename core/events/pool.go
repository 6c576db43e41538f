package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypePoolDeposit is emitted when liquidity is supplied against shares.
	TypePoolDeposit = "pool.deposit"
	// TypePoolWithdraw is emitted when shares are redeemed for liquidity.
	TypePoolWithdraw = "pool.withdraw"
	// TypePoolBorrow is emitted when a borrower draws principal.
	TypePoolBorrow = "pool.borrow"
	// TypePoolRepay is emitted when principal returns to the pool.
	TypePoolRepay = "pool.repay"
	// TypePoolUncoveredLoss is emitted when a loss exceeds the treasury's shares.
	TypePoolUncoveredLoss = "pool.uncovered_loss"
	// TypeConfigChanged is emitted by every privileged parameter update.
	TypeConfigChanged = "config.changed"
)

// PoolDeposit captures a liquidity deposit.
type PoolDeposit struct {
	Receiver common.Address
	Assets   *big.Int
	Shares   *big.Int
}

func (PoolDeposit) EventType() string { return TypePoolDeposit }

// Event renders the deposit for downstream consumers.
func (e PoolDeposit) Event() *Record {
	return &Record{
		Type: TypePoolDeposit,
		Attributes: map[string]string{
			"receiver": addressString(e.Receiver),
			"assets":   amountString(e.Assets),
			"shares":   amountString(e.Shares),
		},
	}
}

// PoolWithdraw captures a liquidity withdrawal. Fee is the portion of the
// released assets routed to the treasury.
type PoolWithdraw struct {
	Receiver common.Address
	Owner    common.Address
	Assets   *big.Int
	Shares   *big.Int
	Fee      *big.Int
}

func (PoolWithdraw) EventType() string { return TypePoolWithdraw }

// Event renders the withdrawal for downstream consumers.
func (e PoolWithdraw) Event() *Record {
	return &Record{
		Type: TypePoolWithdraw,
		Attributes: map[string]string{
			"receiver": addressString(e.Receiver),
			"owner":    addressString(e.Owner),
			"assets":   amountString(e.Assets),
			"shares":   amountString(e.Shares),
			"fee":      amountString(e.Fee),
		},
	}
}

// PoolBorrow captures a principal draw.
type PoolBorrow struct {
	Borrower common.Address
	Amount   *big.Int
}

func (PoolBorrow) EventType() string { return TypePoolBorrow }

// Event renders the borrow for downstream consumers.
func (e PoolBorrow) Event() *Record {
	return &Record{
		Type: TypePoolBorrow,
		Attributes: map[string]string{
			"borrower": addressString(e.Borrower),
			"amount":   amountString(e.Amount),
		},
	}
}

// PoolRepay captures a repayment and the profit or loss realised with it.
type PoolRepay struct {
	Borrower     common.Address
	Repaid       *big.Int
	Profit       *big.Int
	Loss         *big.Int
	SharesMinted *big.Int
	SharesBurned *big.Int
}

func (PoolRepay) EventType() string { return TypePoolRepay }

// Event renders the repayment for downstream consumers.
func (e PoolRepay) Event() *Record {
	return &Record{
		Type: TypePoolRepay,
		Attributes: map[string]string{
			"borrower":     addressString(e.Borrower),
			"repaid":       amountString(e.Repaid),
			"profit":       amountString(e.Profit),
			"loss":         amountString(e.Loss),
			"sharesMinted": amountString(e.SharesMinted),
			"sharesBurned": amountString(e.SharesBurned),
		},
	}
}

// PoolUncoveredLoss reports the part of a loss the treasury could not absorb.
type PoolUncoveredLoss struct {
	Borrower common.Address
	Amount   *big.Int
}

func (PoolUncoveredLoss) EventType() string { return TypePoolUncoveredLoss }

// Event renders the uncovered loss for downstream consumers.
func (e PoolUncoveredLoss) Event() *Record {
	return &Record{
		Type: TypePoolUncoveredLoss,
		Attributes: map[string]string{
			"borrower": addressString(e.Borrower),
			"amount":   amountString(e.Amount),
		},
	}
}

// ConfigChanged records a privileged parameter update. Subject identifies the
// borrower or asset the parameter is scoped to, when any.
type ConfigChanged struct {
	Module    string
	Parameter string
	Subject   common.Address
	Value     string
}

func (ConfigChanged) EventType() string { return TypeConfigChanged }

// Event renders the update for downstream consumers.
func (e ConfigChanged) Event() *Record {
	attrs := map[string]string{
		"module":    strings.TrimSpace(e.Module),
		"parameter": strings.TrimSpace(e.Parameter),
		"value":     strings.TrimSpace(e.Value),
	}
	if subject := addressString(e.Subject); subject != "" {
		attrs["subject"] = subject
	}
	return &Record{Type: TypeConfigChanged, Attributes: attrs}
}
