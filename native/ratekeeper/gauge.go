package ratekeeper

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "creditpool/core/errors"
	"creditpool/core/events"
	nativecommon "creditpool/native/common"
)

// Side selects which end of an asset's rate band a vote pulls towards.
type Side uint8

const (
	// SideMin votes count towards the asset's minimum rate.
	SideMin Side = iota
	// SideMax votes count towards the asset's maximum rate.
	SideMax
)

func (s Side) String() string {
	if s == SideMax {
		return "max"
	}
	return "min"
}

// ParseSide maps "min" or "max" to a Side.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "min":
		return SideMin, nil
	case "max":
		return SideMax, nil
	}
	return SideMin, fmt.Errorf("%w: unknown vote side %q", coreerrors.ErrIncorrectParameter, raw)
}

// GaugeAsset is an asset's band and the votes cast on each side of it.
type GaugeAsset struct {
	MinRate      uint16
	MaxRate      uint16
	VotesMinSide *uint256.Int
	VotesMaxSide *uint256.Int
}

func (a *GaugeAsset) clone() GaugeAsset {
	return GaugeAsset{
		MinRate:      a.MinRate,
		MaxRate:      a.MaxRate,
		VotesMinSide: new(uint256.Int).Set(a.VotesMinSide),
		VotesMaxSide: new(uint256.Int).Set(a.VotesMaxSide),
	}
}

// rate is the vote-weighted average of the band ends, or the minimum when no
// votes were cast.
func (a *GaugeAsset) rate() uint16 {
	total := new(uint256.Int).Add(a.VotesMinSide, a.VotesMaxSide)
	if total.IsZero() {
		return a.MinRate
	}
	weighted := new(big.Int).Mul(big.NewInt(int64(a.MinRate)), a.VotesMinSide.ToBig())
	weighted.Add(weighted, new(big.Int).Mul(big.NewInt(int64(a.MaxRate)), a.VotesMaxSide.ToBig()))
	weighted.Quo(weighted, total.ToBig())
	return uint16(weighted.Uint64())
}

// Votes is one voter's stake on one asset.
type Votes struct {
	MinSide *uint256.Int
	MaxSide *uint256.Int
}

// StakeView reports the voting power a voter may spread across gauge votes.
type StakeView interface {
	VotingPower(voter common.Address) *uint256.Int
}

// Gauge prices assets by stake-weighted votes between a minimum and a maximum
// rate. Votes accumulate continuously; rates only reach the quota ledger when
// an epoch rolls over.
//
// A Gauge is not safe for concurrent use; callers serialise access.
type Gauge struct {
	schedule

	frozen bool
	stake  StakeView
	assets map[common.Address]*GaugeAsset
	order  []common.Address
	votes  map[common.Address]map[common.Address]*Votes
}

var _ Keeper = (*Gauge)(nil)

// NewGauge creates a gauge pricing assets of ledger.
func NewGauge(cfg Config, ledger QuotaLedger) (*Gauge, error) {
	s, err := newSchedule(cfg, KindGauge, ledger)
	if err != nil {
		return nil, err
	}
	return &Gauge{
		schedule: s,
		assets:   make(map[common.Address]*GaugeAsset),
		votes:    make(map[common.Address]map[common.Address]*Votes),
	}, nil
}

func validBand(band RateBand) error {
	if band.Min == 0 || band.Min > band.Max {
		return fmt.Errorf("%w: band [%d, %d] must satisfy 0 < min <= max", coreerrors.ErrInvalidRate, band.Min, band.Max)
	}
	return nil
}

func (g *Gauge) asset(asset common.Address) (*GaugeAsset, error) {
	params, ok := g.assets[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s not on gauge", coreerrors.ErrAssetNotQuoted, asset.Hex())
	}
	return params, nil
}

// RegisterAsset adds asset to the gauge with the given band, registering it
// with the quota ledger when needed.
func (g *Gauge) RegisterAsset(caller, asset common.Address, band RateBand) error {
	if err := nativecommon.Authorize(g.acl, caller, nativecommon.RoleConfigurator); err != nil {
		return err
	}
	if asset == (common.Address{}) {
		return coreerrors.ErrZeroAddress
	}
	if _, ok := g.assets[asset]; ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrAssetAlreadyAdded, asset.Hex())
	}
	if err := validBand(band); err != nil {
		return err
	}
	if err := g.addToLedger(asset); err != nil {
		return err
	}
	g.assets[asset] = &GaugeAsset{
		MinRate:      band.Min,
		MaxRate:      band.Max,
		VotesMinSide: new(uint256.Int),
		VotesMaxSide: new(uint256.Int),
	}
	g.order = append(g.order, asset)
	g.configChanged("asset_band", asset, band)
	return nil
}

// ChangeMinRate moves the low end of asset's band.
func (g *Gauge) ChangeMinRate(caller, asset common.Address, rate uint16) error {
	if err := nativecommon.AuthorizeController(g.acl, caller); err != nil {
		return err
	}
	params, err := g.asset(asset)
	if err != nil {
		return err
	}
	band := RateBand{Min: rate, Max: params.MaxRate}
	if err := validBand(band); err != nil {
		return err
	}
	params.MinRate = rate
	g.configChanged("min_rate", asset, band)
	return nil
}

// ChangeMaxRate moves the high end of asset's band.
func (g *Gauge) ChangeMaxRate(caller, asset common.Address, rate uint16) error {
	if err := nativecommon.AuthorizeController(g.acl, caller); err != nil {
		return err
	}
	params, err := g.asset(asset)
	if err != nil {
		return err
	}
	band := RateBand{Min: params.MinRate, Max: rate}
	if err := validBand(band); err != nil {
		return err
	}
	params.MaxRate = rate
	g.configChanged("max_rate", asset, band)
	return nil
}

// SetFrozenEpoch freezes or thaws rate pushes. Votes keep accumulating while
// frozen.
func (g *Gauge) SetFrozenEpoch(caller common.Address, frozen bool) error {
	if err := nativecommon.Authorize(g.acl, caller, nativecommon.RoleConfigurator); err != nil {
		return err
	}
	g.frozen = frozen
	g.emitter.Emit(events.ConfigChanged{Module: "ratekeeper", Parameter: "frozen_epoch", Value: strconv.FormatBool(frozen)})
	return nil
}

// Frozen reports whether rate pushes are suspended.
func (g *Gauge) Frozen() bool { return g.frozen }

func (g *Gauge) configChanged(parameter string, asset common.Address, band RateBand) {
	value := fmt.Sprintf("%d-%d", band.Min, band.Max)
	g.emitter.Emit(events.ConfigChanged{Module: "ratekeeper", Parameter: parameter, Subject: asset, Value: value})
	g.logger.Info("gauge band updated", "parameter", parameter, "asset", asset.Hex(), "band", value)
}

// SetStakeView wires the source of voting power. Without one nobody can vote.
func (g *Gauge) SetStakeView(stake StakeView) { g.stake = stake }

// Committed returns the votes voter has cast across every asset and side.
func (g *Gauge) Committed(voter common.Address) *uint256.Int {
	total := new(uint256.Int)
	for _, cast := range g.votes[voter] {
		total.Add(total, cast.MinSide)
		total.Add(total, cast.MaxSide)
	}
	return total
}

func (g *Gauge) votingPower(voter common.Address) *uint256.Int {
	if g.stake == nil {
		return new(uint256.Int)
	}
	if power := g.stake.VotingPower(voter); power != nil {
		return power
	}
	return new(uint256.Int)
}

// Vote stakes votes on side of asset's band. A voter's votes across all
// assets may not exceed their voting power.
func (g *Gauge) Vote(voter, asset common.Address, votes *uint256.Int, side Side) error {
	if voter == (common.Address{}) {
		return coreerrors.ErrZeroAddress
	}
	params, err := g.asset(asset)
	if err != nil {
		return err
	}
	if votes == nil || votes.IsZero() {
		return fmt.Errorf("%w: votes must be positive", coreerrors.ErrInvalidAmount)
	}
	committed := g.Committed(voter)
	power := g.votingPower(voter)
	if wanted, overflow := new(uint256.Int).AddOverflow(committed, votes); overflow || wanted.Gt(power) {
		return fmt.Errorf("%w: %s has %s voting power, %s committed", coreerrors.ErrInsufficientStake, voter.Hex(), power.Dec(), committed.Dec())
	}
	byAsset, ok := g.votes[voter]
	if !ok {
		byAsset = make(map[common.Address]*Votes)
		g.votes[voter] = byAsset
	}
	cast, ok := byAsset[asset]
	if !ok {
		cast = &Votes{MinSide: new(uint256.Int), MaxSide: new(uint256.Int)}
	}
	userSide, totalSide := cast.MinSide, params.VotesMinSide
	if side == SideMax {
		userSide, totalSide = cast.MaxSide, params.VotesMaxSide
	}
	nextTotal, overflow := new(uint256.Int).AddOverflow(totalSide, votes)
	if overflow {
		return fmt.Errorf("%w: vote total overflows", coreerrors.ErrInvalidAmount)
	}
	totalSide.Set(nextTotal)
	userSide.Add(userSide, votes)
	byAsset[asset] = cast
	g.emitter.Emit(events.KeeperVote{Voter: voter, Asset: asset, Votes: new(uint256.Int).Set(votes), Side: side.String()})
	return nil
}

// Unvote withdraws votes previously staked on side of asset's band.
func (g *Gauge) Unvote(voter, asset common.Address, votes *uint256.Int, side Side) error {
	params, err := g.asset(asset)
	if err != nil {
		return err
	}
	if votes == nil || votes.IsZero() {
		return fmt.Errorf("%w: votes must be positive", coreerrors.ErrInvalidAmount)
	}
	cast := g.votes[voter][asset]
	if cast == nil {
		return coreerrors.ErrInsufficientVotes
	}
	userSide, totalSide := cast.MinSide, params.VotesMinSide
	if side == SideMax {
		userSide, totalSide = cast.MaxSide, params.VotesMaxSide
	}
	if userSide.Lt(votes) {
		return fmt.Errorf("%w: %s cast %s, withdrawing %s", coreerrors.ErrInsufficientVotes, voter.Hex(), userSide.Dec(), votes.Dec())
	}
	userSide.Sub(userSide, votes)
	totalSide.Sub(totalSide, votes)
	if cast.MinSide.IsZero() && cast.MaxSide.IsZero() {
		delete(g.votes[voter], asset)
		if len(g.votes[voter]) == 0 {
			delete(g.votes, voter)
		}
	}
	g.emitter.Emit(events.KeeperVote{Voter: voter, Asset: asset, Votes: new(uint256.Int).Set(votes), Side: side.String(), Removed: true})
	return nil
}

// GetRates implements Keeper.
func (g *Gauge) GetRates(assets []common.Address) ([]uint16, error) {
	rates := make([]uint16, len(assets))
	for i, asset := range assets {
		params, err := g.asset(asset)
		if err != nil {
			return nil, err
		}
		rates[i] = params.rate()
	}
	return rates, nil
}

// RefreshIfDue implements Keeper. A frozen gauge never pushes. Every asset of
// the quota ledger must be on the gauge.
func (g *Gauge) RefreshIfDue() (bool, error) {
	now := g.timestamp()
	if g.frozen || !g.due(now) {
		return false, nil
	}
	assets := g.ledger.Assets()
	rates, err := g.GetRates(assets)
	if err != nil {
		return false, err
	}
	if err := g.push(toUpdates(assets, rates), now); err != nil {
		return false, err
	}
	return true, nil
}

// Assets lists assets on the gauge in registration order.
func (g *Gauge) Assets() []common.Address {
	return append([]common.Address(nil), g.order...)
}

// Asset returns a copy of asset's gauge state.
func (g *Gauge) Asset(asset common.Address) (GaugeAsset, error) {
	params, err := g.asset(asset)
	if err != nil {
		return GaugeAsset{}, err
	}
	return params.clone(), nil
}

// VotesOf returns what voter staked on asset.
func (g *Gauge) VotesOf(voter, asset common.Address) Votes {
	if cast := g.votes[voter][asset]; cast != nil {
		return Votes{MinSide: new(uint256.Int).Set(cast.MinSide), MaxSide: new(uint256.Int).Set(cast.MaxSide)}
	}
	return Votes{MinSide: new(uint256.Int), MaxSide: new(uint256.Int)}
}
