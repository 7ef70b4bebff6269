package stocks_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/natfields/skybridge/internal/shaper/stocks"
)

// TestShapeProducesSummary verifies a successful quote is shaped into the
// nested summary record and the ticker is uppercased.
func TestShapeProducesSummary(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote/AAPL" {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name":           "Apple Inc.",
			"sector":         "Technology",
			"industry":       "Consumer Electronics",
			"price":          189.5,
			"previous_close": 188.0,
			"day_high":       190.1,
			"day_low":        187.2,
			"week52_high":    199.6,
			"week52_low":     164.1,
			"market_cap":     2.95e12,
			"trailing_pe":    31.42,
			"dividend_yield": 0.55,
			"beta":           1.28,
			"about":          "Designs and sells consumer electronics.",
		})
	}))
	defer srv.Close()

	c, err := stocks.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	res := c.Shape(context.Background(), json.RawMessage(`{"ticker":" aapl "}`))
	if !res.OK() {
		t.Fatalf("Shape failed: %+v", res.Err())
	}

	out := roundTrip(t, res.Value())
	if out["ticker"] != "AAPL" {
		t.Errorf("ticker = %v, want AAPL", out["ticker"])
	}
	price, ok := out["price"].(map[string]any)
	if !ok {
		t.Fatalf("price is %T, want object", out["price"])
	}
	if price["current"] != 189.5 {
		t.Errorf("price.current = %v, want 189.5", price["current"])
	}
	metrics, ok := out["key_metrics"].(map[string]any)
	if !ok {
		t.Fatalf("key_metrics is %T, want object", out["key_metrics"])
	}
	if metrics["market_cap"] != "$2.95T" {
		t.Errorf("market_cap = %v, want $2.95T", metrics["market_cap"])
	}
	if metrics["pe_ratio"] != "31.42" {
		t.Errorf("pe_ratio = %v, want 31.42", metrics["pe_ratio"])
	}
}

// TestShapeUpstreamFailure verifies an upstream error becomes a domain
// failure that still carries the requested ticker.
func TestShapeUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := stocks.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	res := c.Shape(context.Background(), json.RawMessage(`{"ticker":"MSFT"}`))
	if res.OK() {
		t.Fatal("Shape succeeded, want domain failure")
	}
	de := res.Err()
	if de.Context["ticker"] != "MSFT" {
		t.Errorf("failure context ticker = %v, want MSFT", de.Context["ticker"])
	}
}

// TestShapeEmptyTicker verifies validation happens before any request.
func TestShapeEmptyTicker(t *testing.T) {
	t.Parallel()

	c, err := stocks.NewClient("http://127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	res := c.Shape(context.Background(), json.RawMessage(`{"ticker":"  "}`))
	if res.OK() {
		t.Fatal("Shape succeeded with empty ticker")
	}
}

func TestFormatLargeNumber(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   float64
		want string
	}{
		{1.5e12, "$1.50T"},
		{2.5e11, "$250.00B"},
		{5e7, "$50.00M"},
		{1234.5, "$1234.50"},
	}
	for _, tc := range cases {
		if got := stocks.FormatLargeNumber(tc.in); got != tc.want {
			t.Errorf("FormatLargeNumber(%g) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// roundTrip re-encodes a shaped value the way the protocol edge does.
func roundTrip(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal shaped value: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal shaped value: %v", err)
	}
	return out
}
