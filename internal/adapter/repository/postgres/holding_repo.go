package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dayoungkim/stockfolio-backend/internal/domain"
)

// holdingRepository implements domain.HoldingRepository
type holdingRepository struct {
	db *DB
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *DB) domain.HoldingRepository {
	return &holdingRepository{db: db}
}

// ListByHousehold returns every holding of the household in one read.
// The holdings view is maintained by transaction recording; this repository
// only snapshots it. No LIMIT on purpose: aggregation must see the whole
// household, never a UI page.
func (r *holdingRepository) ListByHousehold(ctx context.Context, householdID uuid.UUID) ([]domain.Holding, error) {
	query := `
		SELECT ticker, name, quantity, avg_price, total_invested,
		       market, currency, asset_type, COALESCE(risk_level, ''), owner_id, account_id
		FROM holdings
		WHERE household_id = $1 AND quantity > 0
		ORDER BY ticker
	`

	rows, err := r.db.QueryContext(ctx, query, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	holdings := make([]domain.Holding, 0)
	for rows.Next() {
		var (
			h                domain.Holding
			quantityStr      string
			avgPriceStr      string
			totalInvestedStr string
			market           string
			currency         string
			assetType        string
			riskLevel        string
		)
		if err := rows.Scan(
			&h.Ticker,
			&h.Name,
			&quantityStr,
			&avgPriceStr,
			&totalInvestedStr,
			&market,
			&currency,
			&assetType,
			&riskLevel,
			&h.OwnerID,
			&h.AccountID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan holding row: %w", err)
		}

		if h.Quantity, err = decimal.NewFromString(quantityStr); err != nil {
			return nil, fmt.Errorf("failed to parse quantity for %s: %w", h.Ticker, err)
		}
		if h.AvgPrice, err = decimal.NewFromString(avgPriceStr); err != nil {
			return nil, fmt.Errorf("failed to parse avg_price for %s: %w", h.Ticker, err)
		}
		if h.TotalInvested, err = decimal.NewFromString(totalInvestedStr); err != nil {
			return nil, fmt.Errorf("failed to parse total_invested for %s: %w", h.Ticker, err)
		}
		h.Market = domain.Market(market)
		h.Currency = domain.Currency(currency)
		h.AssetType = domain.AssetType(assetType)
		h.RiskLevel = domain.RiskLevel(riskLevel)

		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holding rows: %w", err)
	}

	return holdings, nil
}
