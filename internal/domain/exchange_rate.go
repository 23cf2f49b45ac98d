package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultUSDKRWRate is the documented fallback conversion rate used when no
// stored USD/KRW rate can be read. Dashboards keep working on this constant
// rather than failing the whole valuation.
var DefaultUSDKRWRate = decimal.NewFromInt(1300)

// ExchangeRate is a point-in-time conversion rate between two currencies.
// UpdatedAt is nil when the rate is the hardcoded fallback, so callers can
// tell a stored rate from a degraded one.
type ExchangeRate struct {
	From      Currency        `json:"fromCurrency"`
	To        Currency        `json:"toCurrency"`
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt *time.Time      `json:"updatedAt"`
}
