package quota

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"creditpool/native/fixedpoint"
)

// AssetRecord is the persisted form of an asset's parameters.
type AssetRecord struct {
	Asset             common.Address
	Rate              uint16
	CumulativeIndexLU *big.Int
	IncreaseFee       uint16
	TotalQuoted       *big.Int
	Limit             *big.Int
	Live              bool
}

// PositionRecord is the persisted form of one position quota.
type PositionRecord struct {
	Position          common.Address
	Asset             common.Address
	Quota             *big.Int
	CumulativeIndexLU *big.Int
}

// Snapshot is the RLP-friendly persisted form of a quota ledger.
type Snapshot struct {
	RateKeeper     common.Address
	LastRateUpdate uint64
	Assets         []AssetRecord
	Positions      []PositionRecord
}

// Snapshot captures the ledger state. Positions are ordered by position then
// asset so equal ledgers encode identically.
func (l *Ledger) Snapshot() Snapshot {
	snap := Snapshot{RateKeeper: l.rateKeeper, LastRateUpdate: l.lastRateUpdate}
	for _, asset := range l.order {
		params := l.assets[asset]
		snap.Assets = append(snap.Assets, AssetRecord{
			Asset:             asset,
			Rate:              params.Rate,
			CumulativeIndexLU: fixedpoint.Clone(params.CumulativeIndexLU),
			IncreaseFee:       params.IncreaseFee,
			TotalQuoted:       fixedpoint.Clone(params.TotalQuoted),
			Limit:             fixedpoint.Clone(params.Limit),
			Live:              params.Live,
		})
	}
	for position, byAsset := range l.positions {
		for asset, q := range byAsset {
			snap.Positions = append(snap.Positions, PositionRecord{
				Position:          position,
				Asset:             asset,
				Quota:             fixedpoint.Clone(q.Quota),
				CumulativeIndexLU: fixedpoint.Clone(q.CumulativeIndexLU),
			})
		}
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		a, b := snap.Positions[i], snap.Positions[j]
		if c := a.Position.Cmp(b.Position); c != 0 {
			return c < 0
		}
		return a.Asset.Cmp(b.Asset) < 0
	})
	return snap
}

// Restore replaces the ledger state with snap.
func (l *Ledger) Restore(snap Snapshot) {
	l.rateKeeper = snap.RateKeeper
	l.lastRateUpdate = snap.LastRateUpdate
	l.assets = make(map[common.Address]*AssetParams, len(snap.Assets))
	l.order = l.order[:0]
	for _, a := range snap.Assets {
		l.assets[a.Asset] = &AssetParams{
			Rate:              a.Rate,
			CumulativeIndexLU: fixedpoint.Clone(a.CumulativeIndexLU),
			IncreaseFee:       a.IncreaseFee,
			TotalQuoted:       fixedpoint.Clone(a.TotalQuoted),
			Limit:             fixedpoint.Clone(a.Limit),
			Live:              a.Live,
		}
		l.order = append(l.order, a.Asset)
	}
	l.positions = make(map[common.Address]map[common.Address]*PositionQuota)
	for _, p := range snap.Positions {
		l.storePosition(p.Position, p.Asset, &PositionQuota{
			Quota:             fixedpoint.Clone(p.Quota),
			CumulativeIndexLU: fixedpoint.Clone(p.CumulativeIndexLU),
		})
	}
}
