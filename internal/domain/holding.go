package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Market identifies which exchange family a ticker trades on.
// Domestic tickers are quoted in KRW, overseas tickers in their native currency.
type Market string

const (
	MarketDomestic Market = "DOMESTIC"
	MarketOverseas Market = "OVERSEAS"
)

// Currency is an ISO 4217 currency code
type Currency string

const (
	CurrencyKRW Currency = "KRW"
	CurrencyUSD Currency = "USD"
)

// AssetType classifies what kind of instrument a holding is
type AssetType string

const (
	AssetTypeStock AssetType = "STOCK"
	AssetTypeETF   AssetType = "ETF"
	AssetTypeFund  AssetType = "FUND"
	AssetTypeBond  AssetType = "BOND"
	AssetTypeCash  AssetType = "CASH"
)

// RiskLevel is the user-assigned risk classification of a holding.
// The empty string means the user never set one.
type RiskLevel string

const (
	RiskLevelSafe       RiskLevel = "SAFE"
	RiskLevelModerate   RiskLevel = "MODERATE"
	RiskLevelAggressive RiskLevel = "AGGRESSIVE"
	RiskLevelUnset      RiskLevel = ""
)

// SortRank returns the display order of a risk level.
// Known levels sort SAFE < MODERATE < AGGRESSIVE; the unset level always
// sorts last, after any unrecognized value.
func (r RiskLevel) SortRank() int {
	switch r {
	case RiskLevelSafe:
		return 0
	case RiskLevelModerate:
		return 1
	case RiskLevelAggressive:
		return 2
	case RiskLevelUnset:
		return 4
	default:
		return 3
	}
}

// Holding represents a household's aggregated position in one ticker.
// It is a read-only snapshot derived from the recorded buy/sell transactions;
// valuation treats it as immutable for the duration of one request.
type Holding struct {
	Ticker        string
	Name          string
	Quantity      decimal.Decimal
	AvgPrice      decimal.Decimal // per-share cost basis in the holding's native currency
	TotalInvested decimal.Decimal // cumulative invested amount in the holding's native currency
	Market        Market
	Currency      Currency
	AssetType     AssetType
	RiskLevel     RiskLevel
	OwnerID       uuid.UUID
	AccountID     uuid.UUID
}
