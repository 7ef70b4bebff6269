// Package stocks shapes quote data from an upstream market-data service into
// the compact record rendered by the stock-summary widget.
package stocks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/natfields/skybridge/internal/resilience"
	"github.com/natfields/skybridge/internal/shaper"
)

// defaultTimeout bounds a single upstream quote request.
const defaultTimeout = 10 * time.Second

// Client fetches quotes from an upstream market-data HTTP service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the market-data service at baseURL
// (e.g. "https://quotes.example.com").
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("stocks: baseURL must not be empty")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    resilience.GuardedClient("stocks", defaultTimeout),
	}, nil
}

// Args are the get-stock-summary tool arguments.
type Args struct {
	// Ticker is the stock symbol, e.g. "AAPL". Case-insensitive.
	Ticker string `json:"ticker"`
}

// quote is the upstream response shape.
type quote struct {
	Name          string  `json:"name"`
	Sector        string  `json:"sector"`
	Industry      string  `json:"industry"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
	DayHigh       float64 `json:"day_high"`
	DayLow        float64 `json:"day_low"`
	Week52High    float64 `json:"week52_high"`
	Week52Low     float64 `json:"week52_low"`
	MarketCap     float64 `json:"market_cap"`
	TrailingPE    float64 `json:"trailing_pe"`
	DividendYield float64 `json:"dividend_yield"`
	Beta          float64 `json:"beta"`
	About         string  `json:"about"`
}

// Shape fetches and shapes a quote. It is a [shaper.Func]; upstream failures
// become domain results carrying the ticker so the widget can render a
// per-symbol fallback.
func (c *Client) Shape(ctx context.Context, raw json.RawMessage) shaper.Result {
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return shaper.Fail("invalid stock arguments: "+err.Error(), nil)
	}
	ticker := strings.ToUpper(strings.TrimSpace(args.Ticker))
	if ticker == "" {
		return shaper.Fail("ticker must not be empty", nil)
	}

	q, err := c.fetch(ctx, ticker)
	if err != nil {
		return shaper.Fail(
			fmt.Sprintf("failed to fetch data for %s: %v", ticker, err),
			map[string]any{"ticker": ticker},
		)
	}

	return shaper.Ok(map[string]any{
		"ticker":   ticker,
		"name":     q.Name,
		"sector":   q.Sector,
		"industry": q.Industry,
		"price": map[string]any{
			"current":        q.Price,
			"previous_close": q.PreviousClose,
			"day_high":       q.DayHigh,
			"day_low":        q.DayLow,
			"week52_high":    q.Week52High,
			"week52_low":     q.Week52Low,
		},
		"key_metrics": map[string]any{
			"market_cap":     FormatLargeNumber(q.MarketCap),
			"pe_ratio":       q.TrailingRatio(),
			"dividend_yield": q.DividendYield,
			"beta":           q.Beta,
		},
		"about": q.About,
	})
}

// TrailingRatio returns the trailing P/E formatted to two decimals, or "N/A"
// for unpriced symbols.
func (q quote) TrailingRatio() string {
	if q.TrailingPE <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", q.TrailingPE)
}

// fetch performs the upstream GET /quote/{ticker} request.
func (c *Client) fetch(ctx context.Context, ticker string) (*quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote/"+ticker, nil)
	if err != nil {
		return nil, fmt.Errorf("stocks: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stocks: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stocks: upstream returned %s", resp.Status)
	}
	var q quote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return nil, fmt.Errorf("stocks: decode response: %w", err)
	}
	return &q, nil
}

// FormatLargeNumber renders large dollar amounts compactly: 1.50T, 250.00B,
// 50.00M; smaller values keep full precision.
func FormatLargeNumber(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}
