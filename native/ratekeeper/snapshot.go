package ratekeeper

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// GaugeAssetRecord is the persisted form of an asset on a gauge.
type GaugeAssetRecord struct {
	Asset        common.Address
	MinRate      uint16
	MaxRate      uint16
	VotesMinSide *uint256.Int
	VotesMaxSide *uint256.Int
}

// VoteRecord is the persisted form of one voter's stake on one asset.
type VoteRecord struct {
	Voter   common.Address
	Asset   common.Address
	MinSide *uint256.Int
	MaxSide *uint256.Int
}

// GaugeSnapshot is the RLP-friendly persisted form of a gauge.
type GaugeSnapshot struct {
	Epoch       uint64
	EpochLength uint64
	LastUpdate  uint64
	Frozen      bool
	Assets      []GaugeAssetRecord
	Votes       []VoteRecord
}

// TumblerRateRecord is the persisted form of an asset's direct rate.
type TumblerRateRecord struct {
	Asset common.Address
	Rate  uint16
}

// TumblerSnapshot is the RLP-friendly persisted form of a tumbler.
type TumblerSnapshot struct {
	Epoch       uint64
	EpochLength uint64
	LastUpdate  uint64
	Rates       []TumblerRateRecord
}

// Snapshot captures the gauge state.
func (g *Gauge) Snapshot() GaugeSnapshot {
	snap := GaugeSnapshot{Epoch: g.epoch, EpochLength: g.epochLength, LastUpdate: g.lastUpdate, Frozen: g.frozen}
	for _, asset := range g.order {
		params := g.assets[asset]
		snap.Assets = append(snap.Assets, GaugeAssetRecord{
			Asset:        asset,
			MinRate:      params.MinRate,
			MaxRate:      params.MaxRate,
			VotesMinSide: new(uint256.Int).Set(params.VotesMinSide),
			VotesMaxSide: new(uint256.Int).Set(params.VotesMaxSide),
		})
	}
	for voter, byAsset := range g.votes {
		for asset, cast := range byAsset {
			snap.Votes = append(snap.Votes, VoteRecord{
				Voter:   voter,
				Asset:   asset,
				MinSide: new(uint256.Int).Set(cast.MinSide),
				MaxSide: new(uint256.Int).Set(cast.MaxSide),
			})
		}
	}
	sort.Slice(snap.Votes, func(i, j int) bool {
		a, b := snap.Votes[i], snap.Votes[j]
		if c := a.Voter.Cmp(b.Voter); c != 0 {
			return c < 0
		}
		return a.Asset.Cmp(b.Asset) < 0
	})
	return snap
}

// Restore replaces the gauge state with snap.
func (g *Gauge) Restore(snap GaugeSnapshot) {
	g.epoch = snap.Epoch
	if snap.EpochLength > 0 {
		g.epochLength = snap.EpochLength
	}
	g.lastUpdate = snap.LastUpdate
	g.frozen = snap.Frozen
	g.assets = make(map[common.Address]*GaugeAsset, len(snap.Assets))
	g.order = nil
	for _, a := range snap.Assets {
		g.assets[a.Asset] = &GaugeAsset{
			MinRate:      a.MinRate,
			MaxRate:      a.MaxRate,
			VotesMinSide: orZero(a.VotesMinSide),
			VotesMaxSide: orZero(a.VotesMaxSide),
		}
		g.order = append(g.order, a.Asset)
	}
	g.votes = make(map[common.Address]map[common.Address]*Votes)
	for _, v := range snap.Votes {
		byAsset, ok := g.votes[v.Voter]
		if !ok {
			byAsset = make(map[common.Address]*Votes)
			g.votes[v.Voter] = byAsset
		}
		byAsset[v.Asset] = &Votes{MinSide: orZero(v.MinSide), MaxSide: orZero(v.MaxSide)}
	}
}

// Snapshot captures the tumbler state.
func (t *Tumbler) Snapshot() TumblerSnapshot {
	snap := TumblerSnapshot{Epoch: t.epoch, EpochLength: t.epochLength, LastUpdate: t.lastUpdate}
	for _, asset := range t.order {
		snap.Rates = append(snap.Rates, TumblerRateRecord{Asset: asset, Rate: t.rates[asset]})
	}
	return snap
}

// Restore replaces the tumbler state with snap.
func (t *Tumbler) Restore(snap TumblerSnapshot) {
	t.epoch = snap.Epoch
	if snap.EpochLength > 0 {
		t.epochLength = snap.EpochLength
	}
	t.lastUpdate = snap.LastUpdate
	t.rates = make(map[common.Address]uint16, len(snap.Rates))
	t.order = nil
	for _, r := range snap.Rates {
		t.rates[r.Asset] = r.Rate
		t.order = append(t.order, r.Asset)
	}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
