package resilience

import (
	"fmt"
	"net/http"
	"time"
)

// Transport is an [http.RoundTripper] that routes requests through a
// [Breaker]. Network errors and 5xx responses count as failures; any
// response below 500 counts as success, since upstream shaper endpoints
// legitimately return 404 for unknown tickers or products.
type Transport struct {
	breaker *Breaker
	inner   http.RoundTripper
}

// NewTransport wraps inner (or [http.DefaultTransport] when nil) with
// the given breaker.
func NewTransport(breaker *Breaker, inner http.RoundTripper) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{breaker: breaker, inner: inner}
}

// RoundTrip implements [http.RoundTripper]. While the breaker is open it
// fails immediately with an error wrapping [ErrUpstreamDown].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := t.breaker.Do(func() error {
		var err error
		resp, err = t.inner.RoundTrip(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("upstream returned %s", resp.Status)
		}
		return nil
	})
	if resp != nil {
		// A 5xx response still reaches the caller; the failure only
		// feeds the breaker's accounting.
		return resp, nil
	}
	return nil, err
}

// GuardedClient returns an [http.Client] whose requests run through a
// breaker named endpoint, with the given per-request timeout.
func GuardedClient(endpoint string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(NewBreaker(endpoint), nil),
	}
}
