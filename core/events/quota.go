package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeQuotaUpdated is emitted whenever a position's quota changes.
	TypeQuotaUpdated = "quota.updated"
	// TypeQuotaAssetAdded is emitted when an asset becomes quotable.
	TypeQuotaAssetAdded = "quota.asset_added"
	// TypeQuotaRateUpdated is emitted for each asset repriced by a refresh.
	TypeQuotaRateUpdated = "quota.rate_updated"
)

// QuotaUpdated captures the realised quota change of a position.
type QuotaUpdated struct {
	Position common.Address
	Asset    common.Address
	Delta    *big.Int
	Interest *big.Int
	Fees     *big.Int
}

func (QuotaUpdated) EventType() string { return TypeQuotaUpdated }

// Event renders the quota change for downstream consumers.
func (e QuotaUpdated) Event() *Record {
	return &Record{
		Type: TypeQuotaUpdated,
		Attributes: map[string]string{
			"position": addressString(e.Position),
			"asset":    addressString(e.Asset),
			"delta":    amountString(e.Delta),
			"interest": amountString(e.Interest),
			"fees":     amountString(e.Fees),
		},
	}
}

// QuotaAssetAdded captures the registration of a new quotable asset.
type QuotaAssetAdded struct {
	Asset common.Address
}

func (QuotaAssetAdded) EventType() string { return TypeQuotaAssetAdded }

// Event renders the registration for downstream consumers.
func (e QuotaAssetAdded) Event() *Record {
	return &Record{
		Type:       TypeQuotaAssetAdded,
		Attributes: map[string]string{"asset": addressString(e.Asset)},
	}
}

// QuotaRateUpdated captures a new annual rate installed for an asset.
type QuotaRateUpdated struct {
	Asset common.Address
	Rate  uint16
}

func (QuotaRateUpdated) EventType() string { return TypeQuotaRateUpdated }

// Event renders the rate change for downstream consumers.
func (e QuotaRateUpdated) Event() *Record {
	return &Record{
		Type: TypeQuotaRateUpdated,
		Attributes: map[string]string{
			"asset":   addressString(e.Asset),
			"rateBps": bpsString(e.Rate),
		},
	}
}
