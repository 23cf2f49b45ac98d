package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dayoungkim/stockfolio-backend/internal/domain"
)

// exchangeRateRepository implements domain.ExchangeRateRepository
type exchangeRateRepository struct {
	db *DB
}

// NewExchangeRateRepository creates a new exchange rate repository
func NewExchangeRateRepository(db *DB) domain.ExchangeRateRepository {
	return &exchangeRateRepository{db: db}
}

// GetLatest retrieves the most recently stored rate for a currency pair
func (r *exchangeRateRepository) GetLatest(ctx context.Context, from, to domain.Currency) (*domain.ExchangeRate, error) {
	query := `
		SELECT rate, updated_at
		FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var (
		rateStr   string
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, query, string(from), string(to)).Scan(&rateStr, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no exchange rate found for %s/%s: %w", from, to, err)
		}
		return nil, fmt.Errorf("failed to get latest exchange rate: %w", err)
	}

	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exchange rate: %w", err)
	}

	return &domain.ExchangeRate{
		From:      from,
		To:        to,
		Rate:      rate,
		UpdatedAt: &updatedAt,
	}, nil
}
