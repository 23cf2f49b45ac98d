package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteKey is the natural key of a quote: one live cached price exists per
// (market, symbol) pair at any time.
type QuoteKey struct {
	Market Market
	Symbol string
}

// CachedQuote is the last price fetched from the quote provider for one
// (market, symbol) pair. There is no TTL column: freshness is decided
// structurally from FetchedAt (see SameHourBucket). Writes are upserts with
// last-write-wins semantics.
type CachedQuote struct {
	Market     Market
	Symbol     string
	Price      decimal.Decimal
	ChangeRate *decimal.Decimal // day-over-day percent change; nil when the provider omitted it
	FetchedAt  time.Time
}

// Key returns the cache key of the quote
func (q CachedQuote) Key() QuoteKey {
	return QuoteKey{Market: q.Market, Symbol: q.Symbol}
}

// FreshAt reports whether the quote is still fresh at the given time
func (q CachedQuote) FreshAt(now time.Time) bool {
	return SameHourBucket(q.FetchedAt, now)
}

// SameHourBucket reports whether a and b fall in the same epoch-aligned
// 1-hour bucket. A quote fetched at 09:59 stops being fresh at 10:00, so
// freshness can end well before 60 real minutes have passed. This is a
// calendar-hour rule, not a rolling window, and callers must not treat the
// two as interchangeable.
func SameHourBucket(a, b time.Time) bool {
	return a.Unix()/3600 == b.Unix()/3600
}

// HourBucketStart returns the start of the hour bucket containing t, in UTC.
// Cache reads use it as the lower bound for fresh rows.
func HourBucketStart(t time.Time) time.Time {
	return time.Unix(t.Unix()/3600*3600, 0).UTC()
}

// PriceRow is one validated price returned by the quote provider
type PriceRow struct {
	Symbol     string
	Price      decimal.Decimal
	ChangeRate *decimal.Decimal
}

// ParsePriceRow validates a raw provider row. A row with an empty symbol or a
// missing, unparsable, or non-positive price carries no usable price and is
// reported invalid; it must be dropped, never turned into a zero price.
// An unparsable change rate only clears the change rate, the row stays valid.
func ParsePriceRow(symbol, price, changeRate string) (PriceRow, bool) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return PriceRow{}, false
	}

	p, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil || !p.IsPositive() {
		return PriceRow{}, false
	}

	row := PriceRow{Symbol: symbol, Price: p}
	if cr, err := decimal.NewFromString(strings.TrimSpace(changeRate)); err == nil {
		row.ChangeRate = &cr
	}
	return row, true
}
