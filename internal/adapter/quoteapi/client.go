package quoteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dayoungkim/stockfolio-backend/internal/domain"
)

// MaxBatchSymbols is the ceiling the provider imposes on one domestic batch call
const MaxBatchSymbols = 30

// Config holds the quote provider connection settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements domain.QuoteClient against the provider's HTTP gateway.
// The domestic endpoint prices a batch of symbols per call; the overseas
// endpoint prices exactly one symbol per call.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a new quote provider client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
}

// rawRow is one loosely-typed provider row before validation. The provider
// serializes every numeric field as a string.
type rawRow struct {
	Symbol     string `json:"symbol"`
	Price      string `json:"price"`
	ChangeRate string `json:"changeRate"`
}

type batchResponse struct {
	Data []rawRow `json:"data"`
}

// FetchDomesticBatch requests prices for up to MaxBatchSymbols domestic
// symbols in one call. Rows missing a symbol or a usable price are dropped
// here so partially-populated rows never reach aggregation.
func (c *Client) FetchDomesticBatch(ctx context.Context, symbols []string) ([]domain.PriceRow, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	if len(symbols) > MaxBatchSymbols {
		return nil, fmt.Errorf("batch of %d symbols exceeds provider limit of %d", len(symbols), MaxBatchSymbols)
	}

	payload, _ := json.Marshal(map[string]any{"symbols": symbols})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/domestic/prices", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build domestic batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp batchResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	rows := make([]domain.PriceRow, 0, len(resp.Data))
	for _, raw := range resp.Data {
		if row, ok := domain.ParsePriceRow(raw.Symbol, raw.Price, raw.ChangeRate); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// FetchOverseasOne requests the price of one overseas symbol.
// A 404 or an invalid row means the provider has no usable price; that is
// reported as (nil, nil), not as an error.
func (c *Client) FetchOverseasOne(ctx context.Context, symbol string) (*domain.PriceRow, error) {
	endpoint := fmt.Sprintf("%s/v1/overseas/price?symbol=%s", c.cfg.BaseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build overseas request: %w", err)
	}

	var raw rawRow
	if err := c.do(req, &raw); err != nil {
		if se, ok := err.(*statusError); ok && se.code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	row, ok := domain.ParsePriceRow(raw.Symbol, raw.Price, raw.ChangeRate)
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// statusError carries a non-2xx provider status
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.code, e.body)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}
