package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QuoteCacheRepository defines the interface for the shared quote cache store
type QuoteCacheRepository interface {
	// ReadFresh retrieves cached quotes for the given keys whose fetch
	// timestamp falls in the same hour bucket as now. Keys without a fresh
	// entry are simply absent from the returned map.
	ReadFresh(ctx context.Context, keys []QuoteKey, now time.Time) (map[QuoteKey]CachedQuote, error)

	// Upsert writes quotes keyed by (market, symbol), last write wins.
	// Callers must de-duplicate rows by key before calling: the store cannot
	// apply two conflicting updates to the same key in one batch.
	Upsert(ctx context.Context, rows []CachedQuote) error
}

// QuoteClient defines the interface to the external quote provider.
// The two upstream APIs are heterogeneous: the domestic one accepts a batch
// of symbols per call (up to a provider-imposed ceiling), the overseas one
// accepts exactly one symbol per call.
type QuoteClient interface {
	// FetchDomesticBatch requests prices for a batch of domestic symbols in
	// one call. Invalid provider rows are dropped, so the result may cover
	// fewer symbols than requested.
	FetchDomesticBatch(ctx context.Context, symbols []string) ([]PriceRow, error)

	// FetchOverseasOne requests the price of a single overseas symbol.
	// Returns (nil, nil) when the provider knows nothing about the symbol.
	FetchOverseasOne(ctx context.Context, symbol string) (*PriceRow, error)
}

// HoldingRepository defines the interface for reading a household's holdings
type HoldingRepository interface {
	// ListByHousehold returns every holding of the household in a single
	// unbounded read. Aggregation needs the whole set at once, so there is
	// deliberately no pagination here.
	ListByHousehold(ctx context.Context, householdID uuid.UUID) ([]Holding, error)
}

// ExchangeRateRepository defines the interface for reading stored FX rates
type ExchangeRateRepository interface {
	// GetLatest retrieves the most recently stored rate for a currency pair
	GetLatest(ctx context.Context, from, to Currency) (*ExchangeRate, error)
}
