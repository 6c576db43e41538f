package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"creditpool/native/curve"
	"creditpool/native/ratekeeper"
)

// PoolView is the observable state of the liquidity ledger. Amounts are
// base-unit decimal strings; rates and indexes are ray-scaled decimal strings.
type PoolView struct {
	Address                string   `json:"address"`
	Underlying             string   `json:"underlying"`
	Treasury               string   `json:"treasury"`
	QuotaKeeper            string   `json:"quotaKeeper"`
	ExpectedLiquidity      string   `json:"expectedLiquidity"`
	AvailableLiquidity     string   `json:"availableLiquidity"`
	TotalBorrowed          string   `json:"totalBorrowed"`
	TotalDebtLimit         string   `json:"totalDebtLimit"`
	Utilization            string   `json:"utilization"`
	BaseInterestRate       string   `json:"baseInterestRate"`
	BaseInterestIndex      string   `json:"baseInterestIndex"`
	SupplyRate             string   `json:"supplyRate"`
	QuotaRevenue           string   `json:"quotaRevenue"`
	TotalShares            string   `json:"totalShares"`
	WithdrawFeeBps         uint16   `json:"withdrawFeeBps"`
	LastBaseInterestUpdate uint64   `json:"lastBaseInterestUpdate"`
	Paused                 []string `json:"paused"`
}

// AssetView is the observable quota state of one asset together with the
// keeper's pricing of it.
type AssetView struct {
	Asset           string `json:"asset"`
	Live            bool   `json:"live"`
	RateBps         uint16 `json:"rateBps"`
	NextRateBps     uint16 `json:"nextRateBps"`
	CumulativeIndex string `json:"cumulativeIndex"`
	TotalQuoted     string `json:"totalQuoted"`
	Limit           string `json:"limit"`
	IncreaseFeeBps  uint16 `json:"increaseFeeBps"`
	MinRateBps      uint16 `json:"minRateBps,omitempty"`
	MaxRateBps      uint16 `json:"maxRateBps,omitempty"`
	VotesMinSide    string `json:"votesMinSide,omitempty"`
	VotesMaxSide    string `json:"votesMaxSide,omitempty"`
}

// KeeperView is the observable state of the rate keeper.
type KeeperView struct {
	Address        string `json:"address"`
	Kind           string `json:"kind"`
	Epoch          uint64 `json:"epoch"`
	EpochLength    uint64 `json:"epochLength"`
	LastUpdate     uint64 `json:"lastUpdate"`
	LastRateUpdate uint64 `json:"lastRateUpdate"`
	NextRefreshAt  uint64 `json:"nextRefreshAt"`
	Due            bool   `json:"due"`
	Frozen         bool   `json:"frozen"`
}

// BorrowerView is a credit line.
type BorrowerView struct {
	Borrower   string `json:"borrower"`
	Borrowed   string `json:"borrowed"`
	Limit      string `json:"limit"`
	Borrowable string `json:"borrowable"`
}

// PositionView is a position's quota in one asset.
type PositionView struct {
	Position            string `json:"position"`
	Asset               string `json:"asset"`
	Quota               string `json:"quota"`
	OutstandingInterest string `json:"outstandingInterest"`
}

// HolderView is an LP's stake.
type HolderView struct {
	Holder      string `json:"holder"`
	Shares      string `json:"shares"`
	Assets      string `json:"assets"`
	MaxWithdraw string `json:"maxWithdraw"`
	MaxRedeem   string `json:"maxRedeem"`
}

// View is the consolidated observable state of a market.
type View struct {
	Pool   PoolView    `json:"pool"`
	Keeper KeeperView  `json:"keeper"`
	Assets []AssetView `json:"assets"`
}

// View returns the consolidated state.
func (m *Market) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := View{Pool: m.poolView(), Keeper: m.keeperView()}
	for _, asset := range m.quota.Assets() {
		view, err := m.assetView(asset)
		if err != nil {
			continue
		}
		out.Assets = append(out.Assets, view)
	}
	return out
}

// Pool returns the liquidity ledger state.
func (m *Market) Pool() PoolView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poolView()
}

// Keeper returns the rate keeper state.
func (m *Market) Keeper() KeeperView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keeperView()
}

// Asset returns asset's quota state.
func (m *Market) Asset(asset common.Address) (AssetView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assetView(asset)
}

// Borrower returns borrower's credit line. Unregistered borrowers report
// zero borrowed and a zero limit.
func (m *Market) Borrower(borrower common.Address) BorrowerView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.borrowerView(borrower)
}

// Borrowers lists every registered credit line.
func (m *Market) Borrowers() []BorrowerView {
	m.mu.Lock()
	defer m.mu.Unlock()
	borrowers := m.pool.Borrowers()
	out := make([]BorrowerView, 0, len(borrowers))
	for _, borrower := range borrowers {
		out = append(out, m.borrowerView(borrower))
	}
	return out
}

// Position returns position's quota in asset and the interest accrued on it.
func (m *Market) Position(position, asset common.Address) (PositionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	quoted, interest, err := m.quota.QuotaAndOutstandingInterest(position, asset)
	if err != nil {
		return PositionView{}, err
	}
	return PositionView{
		Position:            position.Hex(),
		Asset:               asset.Hex(),
		Quota:               quoted.String(),
		OutstandingInterest: interest.String(),
	}, nil
}

// Holder returns holder's LP stake.
func (m *Market) Holder(holder common.Address) HolderView {
	m.mu.Lock()
	defer m.mu.Unlock()
	shares := m.pool.SharesOf(holder)
	return HolderView{
		Holder:      holder.Hex(),
		Shares:      shares.String(),
		Assets:      m.pool.ConvertToAssets(shares).String(),
		MaxWithdraw: m.pool.MaxWithdraw(holder).String(),
		MaxRedeem:   m.pool.MaxRedeem(holder).String(),
	}
}

func (m *Market) poolView() PoolView {
	expected := m.pool.ExpectedLiquidity()
	available := m.pool.AvailableLiquidity()
	return PoolView{
		Address:                m.pool.Address().Hex(),
		Underlying:             m.pool.Underlying().Hex(),
		Treasury:               m.pool.Treasury().Hex(),
		QuotaKeeper:            m.pool.QuotaKeeper().Hex(),
		ExpectedLiquidity:      expected.String(),
		AvailableLiquidity:     available.String(),
		TotalBorrowed:          m.pool.TotalBorrowed().String(),
		TotalDebtLimit:         m.pool.TotalDebtLimit().String(),
		Utilization:            curve.Utilization(expected, available).String(),
		BaseInterestRate:       m.pool.BaseInterestRate().String(),
		BaseInterestIndex:      m.pool.BaseInterestIndex().String(),
		SupplyRate:             m.pool.SupplyRate().String(),
		QuotaRevenue:           m.pool.QuotaRevenue().String(),
		TotalShares:            m.pool.TotalShares().String(),
		WithdrawFeeBps:         m.pool.WithdrawFee(),
		LastBaseInterestUpdate: m.pool.LastBaseInterestUpdate(),
		Paused:                 m.pauses.Paused(),
	}
}

func (m *Market) keeperView() KeeperView {
	lastRate := m.quota.LastRateUpdate()
	next := lastRate + m.keeper.EpochLength()
	view := KeeperView{
		Address:        m.keeper.Address().Hex(),
		Kind:           string(m.keeper.Kind()),
		Epoch:          m.keeper.Epoch(),
		EpochLength:    m.keeper.EpochLength(),
		LastUpdate:     m.keeper.LastUpdate(),
		LastRateUpdate: lastRate,
		NextRefreshAt:  next,
		Due:            m.now() >= next,
	}
	if m.gauge != nil {
		view.Frozen = m.gauge.Frozen()
		view.Due = view.Due && !view.Frozen
	}
	return view
}

func (m *Market) assetView(asset common.Address) (AssetView, error) {
	params, err := m.quota.Asset(asset)
	if err != nil {
		return AssetView{}, err
	}
	index, err := m.quota.CumulativeIndex(asset)
	if err != nil {
		return AssetView{}, err
	}
	view := AssetView{
		Asset:           asset.Hex(),
		Live:            params.Live,
		RateBps:         params.Rate,
		CumulativeIndex: index.String(),
		TotalQuoted:     params.TotalQuoted.String(),
		Limit:           params.Limit.String(),
		IncreaseFeeBps:  params.IncreaseFee,
	}
	if rates, err := m.keeper.GetRates([]common.Address{asset}); err == nil {
		view.NextRateBps = rates[0]
	}
	if m.gauge != nil {
		if g, err := m.gauge.Asset(asset); err == nil {
			view.MinRateBps = g.MinRate
			view.MaxRateBps = g.MaxRate
			view.VotesMinSide = g.VotesMinSide.Dec()
			view.VotesMaxSide = g.VotesMaxSide.Dec()
		}
	}
	return view, nil
}

func (m *Market) borrowerView(borrower common.Address) BorrowerView {
	debt := m.pool.BorrowerDebt(borrower)
	return BorrowerView{
		Borrower:   borrower.Hex(),
		Borrowed:   amountOrZero(debt.Borrowed),
		Limit:      amountOrZero(debt.Limit),
		Borrowable: m.pool.BorrowerBorrowable(borrower).String(),
	}
}

func amountOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// VotesOf returns voter's stake on asset. Only gauges record votes.
func (m *Market) VotesOf(voter, asset common.Address) (ratekeeper.Votes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.requireGauge()
	if err != nil {
		return ratekeeper.Votes{}, err
	}
	return g.VotesOf(voter, asset), nil
}
