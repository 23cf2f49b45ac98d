package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/dayoungkim/stockfolio-backend/internal/domain"
)

// quoteCacheRepository implements domain.QuoteCacheRepository
type quoteCacheRepository struct {
	db *DB
}

// NewQuoteCacheRepository creates a new quote cache repository
func NewQuoteCacheRepository(db *DB) domain.QuoteCacheRepository {
	return &quoteCacheRepository{db: db}
}

// ReadFresh retrieves cached quotes for the given keys whose fetch timestamp
// falls in the same hour bucket as now. The query lower-bounds on the bucket
// start; the exact same-bucket check is re-applied in Go so a row fetched
// "in the future" relative to now can never count as fresh.
func (r *quoteCacheRepository) ReadFresh(ctx context.Context, keys []domain.QuoteKey, now time.Time) (map[domain.QuoteKey]domain.CachedQuote, error) {
	fresh := make(map[domain.QuoteKey]domain.CachedQuote, len(keys))
	if len(keys) == 0 {
		return fresh, nil
	}

	wanted := make(map[domain.QuoteKey]struct{}, len(keys))
	symbols := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, dup := wanted[key]; dup {
			continue
		}
		wanted[key] = struct{}{}
		symbols = append(symbols, key.Symbol)
	}

	query := `
		SELECT market, symbol, price, change_rate, fetched_at
		FROM quote_cache
		WHERE symbol = ANY($1) AND fetched_at >= $2
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(symbols), domain.HourBucketStart(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query quote cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			market        string
			symbol        string
			priceStr      string
			changeRateStr sql.NullString
			fetchedAt     time.Time
		)
		if err := rows.Scan(&market, &symbol, &priceStr, &changeRateStr, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quote cache row: %w", err)
		}

		key := domain.QuoteKey{Market: domain.Market(market), Symbol: symbol}
		if _, ok := wanted[key]; !ok {
			// Same symbol cached under a market we did not ask for.
			continue
		}
		if !domain.SameHourBucket(fetchedAt, now) {
			continue
		}

		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cached price for %s: %w", symbol, err)
		}

		quote := domain.CachedQuote{
			Market:    key.Market,
			Symbol:    symbol,
			Price:     price,
			FetchedAt: fetchedAt,
		}
		if changeRateStr.Valid {
			cr, err := decimal.NewFromString(changeRateStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse cached change rate for %s: %w", symbol, err)
			}
			quote.ChangeRate = &cr
		}
		fresh[key] = quote
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quote cache rows: %w", err)
	}

	return fresh, nil
}

// Upsert writes quotes keyed by (market, symbol) with last-write-wins
// semantics. The caller guarantees the batch holds at most one row per key;
// ON CONFLICT cannot apply two updates to the same key in one statement run.
func (r *quoteCacheRepository) Upsert(ctx context.Context, quotes []domain.CachedQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO quote_cache (market, symbol, price, change_rate, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market, symbol) DO UPDATE SET
			price = EXCLUDED.price,
			change_rate = EXCLUDED.change_rate,
			fetched_at = EXCLUDED.fetched_at
	`

	for _, q := range quotes {
		var changeRate sql.NullString
		if q.ChangeRate != nil {
			changeRate = sql.NullString{String: q.ChangeRate.String(), Valid: true}
		}
		_, err = dbTx.ExecContext(ctx, query,
			string(q.Market),
			q.Symbol,
			q.Price.String(),
			changeRate,
			q.FetchedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert quote for %s: %w", q.Symbol, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
