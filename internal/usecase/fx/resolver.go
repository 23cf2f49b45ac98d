package fx

import (
	"context"
	"log"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dayoungkim/stockfolio-backend/internal/domain"
)

// Service resolves currency conversion rates from the stored rate table.
// It never fails: when the lookup errors or no rate row exists, the caller
// gets the documented fallback rate with a nil UpdatedAt so dashboards can
// mark the conversion as degraded.
type Service struct {
	RateRepo domain.ExchangeRateRepository

	group singleflight.Group
}

// NewService creates a new exchange rate resolver
func NewService(rateRepo domain.ExchangeRateRepository) *Service {
	return &Service{RateRepo: rateRepo}
}

// GetRateOrDefault returns the latest stored rate for from→to, the identity
// rate for same-currency pairs, or the fallback rate when the store cannot
// answer. Concurrent lookups of the same pair are collapsed into one read.
func (s *Service) GetRateOrDefault(ctx context.Context, from, to domain.Currency) domain.ExchangeRate {
	if from == to {
		return domain.ExchangeRate{From: from, To: to, Rate: decimal.NewFromInt(1)}
	}

	pair := string(from) + "/" + string(to)
	v, err, _ := s.group.Do(pair, func() (interface{}, error) {
		return s.RateRepo.GetLatest(ctx, from, to)
	})
	if err != nil {
		log.Printf("exchange rate lookup failed for %s, using fallback: %v", pair, err)
		return fallback(from, to)
	}
	rate, ok := v.(*domain.ExchangeRate)
	if !ok || rate == nil {
		return fallback(from, to)
	}
	return *rate
}

// fallback is the documented degraded-mode rate: the fixed USD/KRW constant
// for that pair, identity for anything else we have no constant for.
func fallback(from, to domain.Currency) domain.ExchangeRate {
	rate := decimal.NewFromInt(1)
	if from == domain.CurrencyUSD && to == domain.CurrencyKRW {
		rate = domain.DefaultUSDKRWRate
	}
	return domain.ExchangeRate{From: from, To: to, Rate: rate}
}
