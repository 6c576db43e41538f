package quota

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"creditpool/native/fixedpoint"
)

// Assets lists registered assets in registration order.
func (l *Ledger) Assets() []common.Address {
	return append([]common.Address(nil), l.order...)
}

// IsQuoted reports whether asset is registered.
func (l *Ledger) IsQuoted(asset common.Address) bool {
	_, ok := l.assets[asset]
	return ok
}

// Asset returns a copy of asset's parameters.
func (l *Ledger) Asset(asset common.Address) (AssetParams, error) {
	params, err := l.asset(asset)
	if err != nil {
		return AssetParams{}, err
	}
	return params.clone(), nil
}

// CumulativeIndex projects asset's interest index to the current time.
func (l *Ledger) CumulativeIndex(asset common.Address) (*big.Int, error) {
	params, err := l.asset(asset)
	if err != nil {
		return nil, err
	}
	return l.indexAt(params, l.timestamp()), nil
}

// Quota returns position's quota record in asset. Unknown positions report a
// zero quota.
func (l *Ledger) Quota(position, asset common.Address) PositionQuota {
	if current := l.position(position, asset); current != nil {
		return current.clone()
	}
	return PositionQuota{Quota: big.NewInt(0), CumulativeIndexLU: big.NewInt(0)}
}

// QuotaAndOutstandingInterest returns position's quota in asset and the
// interest accrued on it since it was last settled.
func (l *Ledger) QuotaAndOutstandingInterest(position, asset common.Address) (*big.Int, *big.Int, error) {
	params, err := l.asset(asset)
	if err != nil {
		return nil, nil, err
	}
	current := l.position(position, asset)
	if current == nil {
		return big.NewInt(0), big.NewInt(0), nil
	}
	indexNow := l.indexAt(params, l.timestamp())
	return fixedpoint.Clone(current.Quota), fixedpoint.AccruedLinear(current.Quota, indexNow, current.CumulativeIndexLU), nil
}

// Positions lists the positions holding a quota record in asset.
func (l *Ledger) Positions(asset common.Address) []common.Address {
	var out []common.Address
	for position, byAsset := range l.positions {
		if _, ok := byAsset[asset]; ok {
			out = append(out, position)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// PoolQuotaRevenue is the annual revenue implied by current quotas and rates:
// the sum over assets of total quoted times rate in basis points.
func (l *Ledger) PoolQuotaRevenue() *big.Int {
	revenue := big.NewInt(0)
	for _, asset := range l.order {
		params := l.assets[asset]
		revenue.Add(revenue, new(big.Int).Mul(params.TotalQuoted, big.NewInt(int64(params.Rate))))
	}
	return revenue
}
