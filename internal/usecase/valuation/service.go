package valuation

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dayoungkim/stockfolio-backend/internal/domain"
)

// defaultTopN is how many gainers and losers the performer lists carry
const defaultTopN = 5

var hundred = decimal.NewFromInt(100)

// PriceProvider supplies current prices for a set of quote keys.
// Symbols it could not price are absent from the map; that is not an error.
type PriceProvider interface {
	GetPrices(ctx context.Context, keys []domain.QuoteKey) map[domain.QuoteKey]domain.CachedQuote
}

// RateResolver supplies a conversion rate between two currencies and never fails
type RateResolver interface {
	GetRateOrDefault(ctx context.Context, from, to domain.Currency) domain.ExchangeRate
}

// ValuedHolding is a holding enriched with the computed valuation figures for
// one request. CurrentPrice is nil when no market price was available; the
// holding is then valued at cost and CurrentValue carries no unrealized gain.
// All monetary figures are in the reporting currency (KRW).
type ValuedHolding struct {
	Ticker            string           `json:"ticker"`
	Name              string           `json:"name"`
	Quantity          decimal.Decimal  `json:"quantity"`
	AvgPrice          decimal.Decimal  `json:"avgPrice"`
	Market            domain.Market    `json:"market"`
	Currency          domain.Currency  `json:"currency"`
	AssetType         domain.AssetType `json:"assetType"`
	RiskLevel         domain.RiskLevel `json:"riskLevel"`
	OwnerID           uuid.UUID        `json:"ownerId"`
	AccountID         uuid.UUID        `json:"accountId"`
	CurrentPrice      *decimal.Decimal `json:"currentPrice"`
	ChangeRate        *decimal.Decimal `json:"changeRate"`
	CurrentValue      decimal.Decimal  `json:"currentValue"`
	InvestedAmount    decimal.Decimal  `json:"investedAmount"`
	ReturnAmount      decimal.Decimal  `json:"returnAmount"`
	ReturnRate        decimal.Decimal  `json:"returnRate"`
	AllocationPercent decimal.Decimal  `json:"allocationPercent"`
}

// Summary is the household-wide headline row of the dashboard
type Summary struct {
	TotalValue        decimal.Decimal `json:"totalValue"`
	TotalInvested     decimal.Decimal `json:"totalInvested"`
	TotalReturn       decimal.Decimal `json:"totalReturn"`
	ReturnRate        decimal.Decimal `json:"returnRate"`
	HoldingCount      int             `json:"holdingCount"`
	MissingPriceCount int             `json:"missingPriceCount"`
}

// MarketBreakdown is the household's value split by market
type MarketBreakdown struct {
	Market       domain.Market   `json:"market"`
	CurrentValue decimal.Decimal `json:"currentValue"`
	Percent      decimal.Decimal `json:"percent"`
}

// CurrencyBreakdown is the household's value split by native currency
type CurrencyBreakdown struct {
	Currency     domain.Currency `json:"currency"`
	CurrentValue decimal.Decimal `json:"currentValue"`
	Percent      decimal.Decimal `json:"percent"`
}

// AccountSummary aggregates value and return per account
type AccountSummary struct {
	AccountID      uuid.UUID       `json:"accountId"`
	CurrentValue   decimal.Decimal `json:"currentValue"`
	InvestedAmount decimal.Decimal `json:"investedAmount"`
	ReturnAmount   decimal.Decimal `json:"returnAmount"`
	ReturnRate     decimal.Decimal `json:"returnRate"`
}

// OwnerSummary aggregates value and return per household member
type OwnerSummary struct {
	OwnerID        uuid.UUID       `json:"ownerId"`
	CurrentValue   decimal.Decimal `json:"currentValue"`
	InvestedAmount decimal.Decimal `json:"investedAmount"`
	ReturnAmount   decimal.Decimal `json:"returnAmount"`
	ReturnRate     decimal.Decimal `json:"returnRate"`
	Percent        decimal.Decimal `json:"percent"`
}

// OwnerHoldings lists one owner's holdings, ordered by descending value.
// The outer slice follows the ByOwner summary order exactly.
type OwnerHoldings struct {
	OwnerID  uuid.UUID       `json:"ownerId"`
	Holdings []ValuedHolding `json:"holdings"`
}

// RiskLevelBreakdown is the household's value split by risk level
type RiskLevelBreakdown struct {
	RiskLevel    domain.RiskLevel `json:"riskLevel"`
	CurrentValue decimal.Decimal  `json:"currentValue"`
	Percent      decimal.Decimal  `json:"percent"`
}

// TopPerformers lists the best and worst holdings by return rate
type TopPerformers struct {
	Gainers []ValuedHolding `json:"gainers"`
	Losers  []ValuedHolding `json:"losers"`
}

// Result is the complete aggregation consumed by the dashboard views
type Result struct {
	Summary         Summary              `json:"summary"`
	Holdings        []ValuedHolding      `json:"holdings"`
	ByMarket        []MarketBreakdown    `json:"byMarket"`
	ByCurrency      []CurrencyBreakdown  `json:"byCurrency"`
	ByAccount       []AccountSummary     `json:"byAccount"`
	ByOwner         []OwnerSummary       `json:"byOwner"`
	HoldingsByOwner []OwnerHoldings      `json:"holdingsByOwner"`
	ByRiskLevel     []RiskLevelBreakdown `json:"byRiskLevel"`
	TopPerformers   TopPerformers        `json:"topPerformers"`
	ExchangeRate    domain.ExchangeRate  `json:"exchangeRate"`
}

// Service turns a household's holdings, current prices, and the USD/KRW rate
// into every number the dashboards need
type Service struct {
	HoldingRepo domain.HoldingRepository
	Quotes      PriceProvider
	FX          RateResolver

	// TopN overrides defaultTopN, for tests. Zero means the default.
	TopN int
}

// NewService creates a new valuation service
func NewService(holdingRepo domain.HoldingRepository, quotes PriceProvider, fx RateResolver) *Service {
	return &Service{HoldingRepo: holdingRepo, Quotes: quotes, FX: fx}
}

// Valuate computes the full dashboard aggregation for one household.
// Price degradation never fails the request: holdings without a market price
// are valued at cost and counted in MissingPriceCount. Only a failing
// holdings read fails the whole call.
func (s *Service) Valuate(ctx context.Context, householdID uuid.UUID) (*Result, error) {
	holdings, err := s.HoldingRepo.ListByHousehold(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}

	fx := s.FX.GetRateOrDefault(ctx, domain.CurrencyUSD, domain.CurrencyKRW)

	keys := make([]domain.QuoteKey, 0, len(holdings))
	for _, h := range holdings {
		keys = append(keys, domain.QuoteKey{Market: h.Market, Symbol: h.Ticker})
	}
	prices := s.Quotes.GetPrices(ctx, keys)

	// First pass: per-holding values, returns, and household totals.
	valued := make([]ValuedHolding, 0, len(holdings))
	totalValue := decimal.Zero
	totalInvested := decimal.Zero
	missingPrices := 0
	for _, h := range holdings {
		v := valueHolding(h, prices, fx.Rate)
		if v.CurrentPrice == nil {
			missingPrices++
		}
		totalValue = totalValue.Add(v.CurrentValue)
		totalInvested = totalInvested.Add(v.InvestedAmount)
		valued = append(valued, v)
	}

	// Second pass: allocation needs the household total, so it cannot be
	// folded into the loop above.
	for i := range valued {
		valued[i].AllocationPercent = percentOf(valued[i].CurrentValue, totalValue)
	}

	totalReturn := totalValue.Sub(totalInvested)
	byOwner, holdingsByOwner := groupByOwner(valued, totalValue)

	return &Result{
		Summary: Summary{
			TotalValue:        totalValue,
			TotalInvested:     totalInvested,
			TotalReturn:       totalReturn,
			ReturnRate:        returnRate(totalReturn, totalInvested),
			HoldingCount:      len(holdings),
			MissingPriceCount: missingPrices,
		},
		Holdings:        valued,
		ByMarket:        groupByMarket(valued, totalValue),
		ByCurrency:      groupByCurrency(valued, totalValue),
		ByAccount:       groupByAccount(valued),
		ByOwner:         byOwner,
		HoldingsByOwner: holdingsByOwner,
		ByRiskLevel:     groupByRiskLevel(valued, totalValue),
		TopPerformers:   topPerformers(valued, s.topN()),
		ExchangeRate:    fx,
	}, nil
}

func (s *Service) topN() int {
	if s.TopN > 0 {
		return s.TopN
	}
	return defaultTopN
}

// valueHolding runs the fixed per-holding pipeline: effective price, raw
// value, FX conversion to KRW, then return figures. Allocation is filled in
// later by the caller's second pass.
func valueHolding(h domain.Holding, prices map[domain.QuoteKey]domain.CachedQuote, usdkrw decimal.Decimal) ValuedHolding {
	v := ValuedHolding{
		Ticker:    h.Ticker,
		Name:      h.Name,
		Quantity:  h.Quantity,
		AvgPrice:  h.AvgPrice,
		Market:    h.Market,
		Currency:  h.Currency,
		AssetType: h.AssetType,
		RiskLevel: h.RiskLevel,
		OwnerID:   h.OwnerID,
		AccountID: h.AccountID,
	}

	effectivePrice := h.AvgPrice
	if q, ok := prices[domain.QuoteKey{Market: h.Market, Symbol: h.Ticker}]; ok {
		price := q.Price
		v.CurrentPrice = &price
		v.ChangeRate = q.ChangeRate
		effectivePrice = q.Price
	}

	value := h.Quantity.Mul(effectivePrice)
	invested := h.TotalInvested
	if h.Currency != domain.CurrencyKRW {
		value = value.Mul(usdkrw)
		invested = invested.Mul(usdkrw)
	}

	v.CurrentValue = value
	v.InvestedAmount = invested
	v.ReturnAmount = value.Sub(invested)
	v.ReturnRate = returnRate(v.ReturnAmount, invested)
	return v
}

// returnRate is ret/invested*100, or zero when nothing was invested
func returnRate(ret, invested decimal.Decimal) decimal.Decimal {
	if !invested.IsPositive() {
		return decimal.Zero
	}
	return ret.Div(invested).Mul(hundred)
}

// percentOf is part/total*100, or zero when the scope total is zero
func percentOf(part, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return part.Div(total).Mul(hundred)
}

func groupByMarket(valued []ValuedHolding, total decimal.Decimal) []MarketBreakdown {
	sums := make(map[domain.Market]decimal.Decimal)
	var order []domain.Market
	for _, v := range valued {
		if _, ok := sums[v.Market]; !ok {
			order = append(order, v.Market)
		}
		sums[v.Market] = sums[v.Market].Add(v.CurrentValue)
	}

	// Domestic first, overseas second, anything else after in first-seen order.
	sort.SliceStable(order, func(i, j int) bool {
		return marketRank(order[i]) < marketRank(order[j])
	})

	out := make([]MarketBreakdown, 0, len(order))
	for _, m := range order {
		out = append(out, MarketBreakdown{
			Market:       m,
			CurrentValue: sums[m],
			Percent:      percentOf(sums[m], total),
		})
	}
	return out
}

func marketRank(m domain.Market) int {
	switch m {
	case domain.MarketDomestic:
		return 0
	case domain.MarketOverseas:
		return 1
	default:
		return 2
	}
}

func groupByCurrency(valued []ValuedHolding, total decimal.Decimal) []CurrencyBreakdown {
	sums := make(map[domain.Currency]decimal.Decimal)
	for _, v := range valued {
		sums[v.Currency] = sums[v.Currency].Add(v.CurrentValue)
	}

	out := make([]CurrencyBreakdown, 0, len(sums))
	for c, sum := range sums {
		out = append(out, CurrencyBreakdown{
			Currency:     c,
			CurrentValue: sum,
			Percent:      percentOf(sum, total),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CurrentValue.Equal(out[j].CurrentValue) {
			return out[i].CurrentValue.GreaterThan(out[j].CurrentValue)
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}

func groupByAccount(valued []ValuedHolding) []AccountSummary {
	sums := make(map[uuid.UUID]*AccountSummary)
	var order []uuid.UUID
	for _, v := range valued {
		acc, ok := sums[v.AccountID]
		if !ok {
			acc = &AccountSummary{
				AccountID:      v.AccountID,
				CurrentValue:   decimal.Zero,
				InvestedAmount: decimal.Zero,
			}
			sums[v.AccountID] = acc
			order = append(order, v.AccountID)
		}
		acc.CurrentValue = acc.CurrentValue.Add(v.CurrentValue)
		acc.InvestedAmount = acc.InvestedAmount.Add(v.InvestedAmount)
	}

	out := make([]AccountSummary, 0, len(order))
	for _, id := range order {
		acc := sums[id]
		acc.ReturnAmount = acc.CurrentValue.Sub(acc.InvestedAmount)
		acc.ReturnRate = returnRate(acc.ReturnAmount, acc.InvestedAmount)
		out = append(out, *acc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CurrentValue.GreaterThan(out[j].CurrentValue)
	})
	return out
}

// groupByOwner builds the per-owner summaries and the parallel per-owner
// holding lists. The holding lists follow the summary order by ID lookup
// rather than being sorted independently, so the two structures can never
// disagree on owner order.
func groupByOwner(valued []ValuedHolding, total decimal.Decimal) ([]OwnerSummary, []OwnerHoldings) {
	sums := make(map[uuid.UUID]*OwnerSummary)
	grouped := make(map[uuid.UUID][]ValuedHolding)
	var order []uuid.UUID
	for _, v := range valued {
		own, ok := sums[v.OwnerID]
		if !ok {
			own = &OwnerSummary{
				OwnerID:        v.OwnerID,
				CurrentValue:   decimal.Zero,
				InvestedAmount: decimal.Zero,
			}
			sums[v.OwnerID] = own
			order = append(order, v.OwnerID)
		}
		own.CurrentValue = own.CurrentValue.Add(v.CurrentValue)
		own.InvestedAmount = own.InvestedAmount.Add(v.InvestedAmount)
		grouped[v.OwnerID] = append(grouped[v.OwnerID], v)
	}

	summaries := make([]OwnerSummary, 0, len(order))
	for _, id := range order {
		own := sums[id]
		own.ReturnAmount = own.CurrentValue.Sub(own.InvestedAmount)
		own.ReturnRate = returnRate(own.ReturnAmount, own.InvestedAmount)
		own.Percent = percentOf(own.CurrentValue, total)
		summaries = append(summaries, *own)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CurrentValue.GreaterThan(summaries[j].CurrentValue)
	})

	holdingsByOwner := make([]OwnerHoldings, 0, len(summaries))
	for _, own := range summaries {
		hs := grouped[own.OwnerID]
		sort.SliceStable(hs, func(i, j int) bool {
			return hs[i].CurrentValue.GreaterThan(hs[j].CurrentValue)
		})
		holdingsByOwner = append(holdingsByOwner, OwnerHoldings{OwnerID: own.OwnerID, Holdings: hs})
	}
	return summaries, holdingsByOwner
}

func groupByRiskLevel(valued []ValuedHolding, total decimal.Decimal) []RiskLevelBreakdown {
	sums := make(map[domain.RiskLevel]decimal.Decimal)
	for _, v := range valued {
		sums[v.RiskLevel] = sums[v.RiskLevel].Add(v.CurrentValue)
	}

	out := make([]RiskLevelBreakdown, 0, len(sums))
	for r, sum := range sums {
		out = append(out, RiskLevelBreakdown{
			RiskLevel:    r,
			CurrentValue: sum,
			Percent:      percentOf(sum, total),
		})
	}
	// Fixed display order regardless of values; unset is always last.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RiskLevel.SortRank() < out[j].RiskLevel.SortRank()
	})
	return out
}

// topPerformers filters a single return-rate-descending sort from both ends:
// gainers are taken from the top while positive, losers from the bottom while
// negative (most negative first). One sort means ties break identically in
// both directions.
func topPerformers(valued []ValuedHolding, n int) TopPerformers {
	sorted := make([]ValuedHolding, len(valued))
	copy(sorted, valued)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReturnRate.GreaterThan(sorted[j].ReturnRate)
	})

	perf := TopPerformers{Gainers: []ValuedHolding{}, Losers: []ValuedHolding{}}
	for _, v := range sorted {
		if len(perf.Gainers) == n || !v.ReturnRate.IsPositive() {
			break
		}
		perf.Gainers = append(perf.Gainers, v)
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if len(perf.Losers) == n || !sorted[i].ReturnRate.IsNegative() {
			break
		}
		perf.Losers = append(perf.Losers, sorted[i])
	}
	return perf
}
