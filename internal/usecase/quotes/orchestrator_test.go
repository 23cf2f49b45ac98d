package quotes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/dayoungkim/stockfolio-backend/internal/domain"
)

// MockQuoteCacheRepository is a mock implementation of QuoteCacheRepository for testing
type MockQuoteCacheRepository struct {
	mock.Mock
}

func (m *MockQuoteCacheRepository) ReadFresh(ctx context.Context, keys []domain.QuoteKey, now time.Time) (map[domain.QuoteKey]domain.CachedQuote, error) {
	args := m.Called(ctx, keys, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.QuoteKey]domain.CachedQuote), args.Error(1)
}

func (m *MockQuoteCacheRepository) Upsert(ctx context.Context, rows []domain.CachedQuote) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

// MockQuoteClient is a mock implementation of QuoteClient for testing
type MockQuoteClient struct {
	mock.Mock
}

func (m *MockQuoteClient) FetchDomesticBatch(ctx context.Context, symbols []string) ([]domain.PriceRow, error) {
	args := m.Called(ctx, symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PriceRow), args.Error(1)
}

func (m *MockQuoteClient) FetchOverseasOne(ctx context.Context, symbol string) (*domain.PriceRow, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PriceRow), args.Error(1)
}

var testNow = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func newTestService(cache *MockQuoteCacheRepository, client *MockQuoteClient) *Service {
	svc := NewService(cache, client)
	svc.Now = func() time.Time { return testNow }
	return svc
}

func domesticKey(symbol string) domain.QuoteKey {
	return domain.QuoteKey{Market: domain.MarketDomestic, Symbol: symbol}
}

func overseasKey(symbol string) domain.QuoteKey {
	return domain.QuoteKey{Market: domain.MarketOverseas, Symbol: symbol}
}

func row(symbol string, price int64) domain.PriceRow {
	return domain.PriceRow{Symbol: symbol, Price: decimal.NewFromInt(price)}
}

func cached(key domain.QuoteKey, price int64) domain.CachedQuote {
	return domain.CachedQuote{
		Market:    key.Market,
		Symbol:    key.Symbol,
		Price:     decimal.NewFromInt(price),
		FetchedAt: testNow,
	}
}

func TestGetPrices_EmptyRequest_NoIO(t *testing.T) {
	cache := new(MockQuoteCacheRepository)
	client := new(MockQuoteClient)
	svc := newTestService(cache, client)

	result := svc.GetPrices(context.Background(), nil)

	assert.Empty(t, result)
	cache.AssertNotCalled(t, "ReadFresh", mock.Anything, mock.Anything, mock.Anything)
	cache.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "FetchDomesticBatch", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "FetchOverseasOne", mock.Anything, mock.Anything)
}

func TestGetPrices_AllCacheHits_ZeroProviderCalls(t *testing.T) {
	ctx := context.Background()
	cache := new(MockQuoteCacheRepository)
	client := new(MockQuoteClient)
	svc := newTestService(cache, client)

	keys := []domain.QuoteKey{domesticKey("005930"), overseasKey("AAPL")}
	hits := map[domain.QuoteKey]domain.CachedQuote{
		keys[0]: cached(keys[0], 71000),
		keys[1]: cached(keys[1], 189),
	}
	cache.On("ReadFresh", ctx, keys, testNow).Return(hits, nil).Twice()

	// Two immediate invocations: neither may touch the provider.
	first := svc.GetPrices(ctx, keys)
	second := svc.GetPrices(ctx, keys)

	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
	client.AssertNotCalled(t, "FetchDomesticBatch", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "FetchOverseasOne", mock.Anything, mock.Anything)
	cache.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	cache.AssertExpectations(t)
}

func TestGetPrices_FailedBatchIsolated_SiblingsStillUsed(t *testing.T) {
	ctx := context.Background()
	cache := new(MockQuoteCacheRepository)
	client := new(MockQuoteClient)
	svc := newTestService(cache, client)
	svc.BatchSize = 2

	keys := []domain.QuoteKey{
		domesticKey("A"), domesticKey("B"),
		domesticKey("C"), domesticKey("D"),
		domesticKey("E"), domesticKey("F"),
	}
	cache.On("ReadFresh", ctx, keys, testNow).
		Return(map[domain.QuoteKey]domain.CachedQuote{}, nil)

	client.On("FetchDomesticBatch", ctx, []string{"A", "B"}).
		Return([]domain.PriceRow{row("A", 100), row("B", 200)}, nil)
	client.On("FetchDomesticBatch", ctx, []string{"C", "D"}).
		Return(nil, errors.New("provider timeout"))
	client.On("FetchDomesticBatch", ctx, []string{"E", "F"}).
		Return([]domain.PriceRow{row("E", 500), row("F", 600)}, nil)

	cache.On("Upsert", ctx, mock.MatchedBy(func(rows []domain.CachedQuote) bool {
		return len(rows) == 4
	})).Return(nil)

	result := svc.GetPrices(ctx, keys)

	assert.Len(t, result, 4)
	assert.True(t, result[domesticKey("A")].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, result[domesticKey("F")].Price.Equal(decimal.NewFromInt(600)))
	// The failed batch's symbols must be absent, not zeroed.
	_, okC := result[domesticKey("C")]
	_, okD := result[domesticKey("D")]
	assert.False(t, okC)
	assert.False(t, okD)
	cache.AssertExpectations(t)
	client.AssertExpectations(t)
}

func TestGetPrices_OverseasFanOut_PerSymbolFailureSwallowed(t *testing.T) {
	ctx := context.Background()
	cache := new(MockQuoteCacheRepository)
	client := new(MockQuoteClient)
	svc := newTestService(cache, client)

	keys := []domain.QuoteKey{overseasKey("AAPL"), overseasKey("MSFT"), overseasKey("TSLA")}
	cache.On("ReadFresh", ctx, keys, testNow).
		Return(map[domain.QuoteKey]domain.CachedQuote{}, nil)

	aapl := row("AAPL", 189)
	client.On("FetchOverseasOne", ctx, "AAPL").Return(&aapl, nil)
	client.On("FetchOverseasOne", ctx, "MSFT").Return(nil, errors.New("connection reset"))
	// Unknown symbol: provider answers with no row at all.
	client.On("FetchOverseasOne", ctx, "TSLA").Return(nil, nil)

	cache.On("Upsert", ctx, mock.MatchedBy(func(rows []domain.CachedQuote) bool {
		return len(rows) == 1 && rows[0].Symbol == "AAPL"
	})).Return(nil)

	result := svc.GetPrices(ctx, keys)

	assert.Len(t, result, 1)
	assert.Contains(t, result, overseasKey("AAPL"))
	cache.AssertExpectations(t)
	client.AssertExpectations(t)
}

func TestGetPrices_CacheReadFailure_FailsOpenToFullFetch(t *testing.T) {
	ctx := context.Background()
	cache := new(MockQuoteCacheRepository)
	client := new(MockQuoteClient)
	svc := newTestService(cache, client)

	keys := []domain.QuoteKey{domesticKey("005930")}
	cache.On("ReadFresh", ctx, keys, testNow).Return(nil, errors.New("db down"))
	client.On("FetchDomesticBatch", ctx, []string{"005930"}).
		Return([]domain.PriceRow{row("005930", 71000)}, nil)
	cache.On("Upsert", ctx, mock.Anything).Return(nil)

	result := svc.GetPrices(ctx, keys)

	assert.Len(t, result, 1)
	assert.True(t, result[domesticKey("005930")].Price.Equal(decimal.NewFromInt(71000)))
	client.AssertExpectations(t)
}

func TestGetPrices_CacheWriteFailure_PricesStillReturned(t *testing.T) {
	ctx := context.Background()
	cache := new(MockQuoteCacheRepository)
	client := new(MockQuoteClient)
	svc := newTestService(cache, client)

	keys := []domain.QuoteKey{domesticKey("005930")}
	cache.On("ReadFresh", ctx, keys, testNow).
		Return(map[domain.QuoteKey]domain.CachedQuote{}, nil)
	client.On("FetchDomesticBatch", ctx, []string{"005930"}).
		Return([]domain.PriceRow{row("005930", 71000)}, nil)
	cache.On("Upsert", ctx, mock.Anything).Return(errors.New("write conflict"))

	result := svc.GetPrices(ctx, keys)

	assert.Len(t, result, 1)
	cache.AssertExpectations(t)
}

func TestGetPrices_DuplicateRequestKeysCollapsed(t *testing.T) {
	ctx := context.Background()
	cache := new(MockQuoteCacheRepository)
	client := new(MockQuoteClient)
	svc := newTestService(cache, client)

	keys := []domain.QuoteKey{domesticKey("005930"), domesticKey("005930")}
	deduped := []domain.QuoteKey{domesticKey("005930")}
	cache.On("ReadFresh", ctx, deduped, testNow).
		Return(map[domain.QuoteKey]domain.CachedQuote{}, nil)
	client.On("FetchDomesticBatch", ctx, []string{"005930"}).
		Return([]domain.PriceRow{row("005930", 71000)}, nil).Once()
	cache.On("Upsert", ctx, mock.Anything).Return(nil)

	result := svc.GetPrices(ctx, keys)

	assert.Len(t, result, 1)
	client.AssertExpectations(t)
}

func TestGetPrices_DuplicateProviderRowsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	cache := new(MockQuoteCacheRepository)
	client := new(MockQuoteClient)
	svc := newTestService(cache, client)

	keys := []domain.QuoteKey{domesticKey("005930")}
	cache.On("ReadFresh", ctx, keys, testNow).
		Return(map[domain.QuoteKey]domain.CachedQuote{}, nil)
	// Provider echoes the symbol twice; the write batch must carry one row.
	client.On("FetchDomesticBatch", ctx, []string{"005930"}).
		Return([]domain.PriceRow{row("005930", 70000), row("005930", 71000)}, nil)
	cache.On("Upsert", ctx, mock.MatchedBy(func(rows []domain.CachedQuote) bool {
		return len(rows) == 1 && rows[0].Price.Equal(decimal.NewFromInt(71000))
	})).Return(nil)

	result := svc.GetPrices(ctx, keys)

	assert.True(t, result[domesticKey("005930")].Price.Equal(decimal.NewFromInt(71000)))
	cache.AssertExpectations(t)
}

func TestGetPrices_MixedHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	cache := new(MockQuoteCacheRepository)
	client := new(MockQuoteClient)
	svc := newTestService(cache, client)

	keys := []domain.QuoteKey{domesticKey("005930"), domesticKey("000660"), overseasKey("AAPL")}
	hits := map[domain.QuoteKey]domain.CachedQuote{
		keys[0]: cached(keys[0], 71000),
	}
	cache.On("ReadFresh", ctx, keys, testNow).Return(hits, nil)
	client.On("FetchDomesticBatch", ctx, []string{"000660"}).
		Return([]domain.PriceRow{row("000660", 180000)}, nil)
	aapl := row("AAPL", 189)
	client.On("FetchOverseasOne", ctx, "AAPL").Return(&aapl, nil)
	cache.On("Upsert", ctx, mock.MatchedBy(func(rows []domain.CachedQuote) bool {
		return len(rows) == 2
	})).Return(nil)

	result := svc.GetPrices(ctx, keys)

	assert.Len(t, result, 3)
	// Cached hit must not be re-written.
	cache.AssertExpectations(t)
	client.AssertExpectations(t)
}

func TestChunkSymbols(t *testing.T) {
	assert.Nil(t, chunkSymbols(nil, 30))

	batches := chunkSymbols([]string{"A", "B", "C", "D", "E"}, 2)
	assert.Equal(t, [][]string{{"A", "B"}, {"C", "D"}, {"E"}}, batches)
}
