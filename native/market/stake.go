package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/native/pool"
	"creditpool/native/ratekeeper"
)

// shareStake gives LPs one gauge vote per pool share they hold.
type shareStake struct {
	shares pool.ShareBook
}

func (s shareStake) VotingPower(voter common.Address) *uint256.Int {
	power, overflow := uint256.FromBig(s.shares.BalanceOf(voter))
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return power
}

// voteLocks keeps shares backing live gauge votes inside the pool.
type voteLocks struct {
	gauge *ratekeeper.Gauge
}

func (l voteLocks) LockedShares(holder common.Address) *big.Int {
	return l.gauge.Committed(holder).ToBig()
}
