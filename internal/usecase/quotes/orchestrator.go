package quotes

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dayoungkim/stockfolio-backend/internal/domain"
)

// MaxDomesticBatchSize is the provider-imposed ceiling on how many domestic
// symbols one batch call may carry.
const MaxDomesticBatchSize = 30

// Service orchestrates quote retrieval: it answers price lookups from the
// hour-bucket cache when possible, fans out re-fetches for the rest across
// the two upstream APIs, and writes new prices back to the cache.
//
// Quote failures never fail a lookup. A symbol whose price could not be
// fetched and had no fresh cache entry is simply absent from the result map;
// callers must treat a missing price as a first-class outcome.
type Service struct {
	CacheRepo domain.QuoteCacheRepository
	Client    domain.QuoteClient

	// BatchSize overrides MaxDomesticBatchSize, for tests. Zero means the default.
	BatchSize int
	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// NewService creates a new quote orchestrator backed by the given cache store
// and provider client
func NewService(cacheRepo domain.QuoteCacheRepository, client domain.QuoteClient) *Service {
	return &Service{CacheRepo: cacheRepo, Client: client}
}

// GetPrices returns the current price for every requested (market, symbol)
// pair it can resolve, preferring fresh cache entries over provider calls.
// An empty request returns an empty map with no I/O at all; an all-hit
// request returns without a single provider call.
func (s *Service) GetPrices(ctx context.Context, keys []domain.QuoteKey) map[domain.QuoteKey]domain.CachedQuote {
	result := make(map[domain.QuoteKey]domain.CachedQuote, len(keys))

	uniq := dedupeKeys(keys)
	if len(uniq) == 0 {
		return result
	}

	now := s.now()

	hits, err := s.CacheRepo.ReadFresh(ctx, uniq, now)
	if err != nil {
		// Fail open: a broken cache read degrades to a full re-fetch.
		log.Printf("quote cache read failed, re-fetching all symbols: %v", err)
		hits = nil
	}
	for key, quote := range hits {
		result[key] = quote
	}

	var domestic, overseas []string
	for _, key := range uniq {
		if _, ok := hits[key]; ok {
			continue
		}
		if key.Market == domain.MarketOverseas {
			overseas = append(overseas, key.Symbol)
		} else {
			domestic = append(domestic, key.Symbol)
		}
	}
	if len(domestic) == 0 && len(overseas) == 0 {
		return result
	}

	fetched := s.fetchMissing(ctx, domestic, overseas, now)
	if len(fetched) > 0 {
		// fetched is keyed by (market, symbol), so the write batch is already
		// de-duplicated with last-write-wins, as the store requires.
		rows := make([]domain.CachedQuote, 0, len(fetched))
		for _, quote := range fetched {
			rows = append(rows, quote)
		}
		if err := s.CacheRepo.Upsert(ctx, rows); err != nil {
			// The fetched prices still serve this request; the next cycle re-fetches.
			log.Printf("quote cache write failed for %d rows: %v", len(rows), err)
		}
	}

	for key, quote := range fetched {
		result[key] = quote
	}
	return result
}

// fetchMissing issues all domestic batches and all overseas single-symbol
// requests concurrently and merges whatever succeeded. A failing batch or
// symbol contributes nothing; its siblings are unaffected.
func (s *Service) fetchMissing(ctx context.Context, domestic, overseas []string, now time.Time) map[domain.QuoteKey]domain.CachedQuote {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = MaxDomesticBatchSize
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		fetched = make(map[domain.QuoteKey]domain.CachedQuote, len(domestic)+len(overseas))
	)

	add := func(market domain.Market, rows []domain.PriceRow) {
		mu.Lock()
		defer mu.Unlock()
		for _, row := range rows {
			key := domain.QuoteKey{Market: market, Symbol: row.Symbol}
			fetched[key] = domain.CachedQuote{
				Market:     market,
				Symbol:     row.Symbol,
				Price:      row.Price,
				ChangeRate: row.ChangeRate,
				FetchedAt:  now,
			}
		}
	}

	for _, batch := range chunkSymbols(domestic, batchSize) {
		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			rows, err := s.Client.FetchDomesticBatch(ctx, batch)
			if err != nil {
				log.Printf("domestic quote batch failed (%d symbols): %v", len(batch), err)
				return
			}
			add(domain.MarketDomestic, rows)
		}(batch)
	}

	for _, symbol := range overseas {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			row, err := s.Client.FetchOverseasOne(ctx, symbol)
			if err != nil {
				log.Printf("overseas quote failed for %s: %v", symbol, err)
				return
			}
			if row == nil {
				return
			}
			add(domain.MarketOverseas, []domain.PriceRow{*row})
		}(symbol)
	}

	wg.Wait()
	return fetched
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// dedupeKeys drops duplicate request keys preserving first-seen order
func dedupeKeys(keys []domain.QuoteKey) []domain.QuoteKey {
	seen := make(map[domain.QuoteKey]struct{}, len(keys))
	out := make([]domain.QuoteKey, 0, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// chunkSymbols splits symbols into consecutive batches of at most size
func chunkSymbols(symbols []string, size int) [][]string {
	if len(symbols) == 0 {
		return nil
	}
	batches := make([][]string, 0, (len(symbols)+size-1)/size)
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[start:end])
	}
	return batches
}
