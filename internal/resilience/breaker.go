// Package resilience guards calls to upstream shaper endpoints (the
// storefront, market-data and sports-stats services) with a circuit
// breaker, so that an unresponsive upstream fails fast instead of having
// every tool invocation wait out a full request timeout.
//
// The central type is [Breaker], a three-state breaker
// (closed → open → half-open). [Transport] wraps it around an
// [net/http.RoundTripper] so HTTP clients pick up the behavior without
// the shapers knowing about it.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrUpstreamDown is returned when the breaker is open and the cooldown
// has not yet elapsed. Callers surface it to the model as a domain
// failure rather than an error.
var ErrUpstreamDown = errors.New("upstream endpoint unavailable")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed is the normal state: calls pass through.
	Closed State = iota
	// Open means the breaker tripped; calls are rejected with
	// [ErrUpstreamDown] until the cooldown elapses.
	Open
	// HalfOpen is the probe state after the cooldown: one call is let
	// through, and its outcome decides whether the breaker closes or
	// re-opens.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker trips after a run of consecutive upstream failures and rejects
// further calls until a cooldown passes, then probes with a single call.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration

	mu       sync.Mutex
	state    State
	fails    int
	openedAt time.Time
	probing  bool
}

// BreakerOption customizes a [Breaker].
type BreakerOption func(*Breaker)

// WithTripThreshold sets how many consecutive failures open the breaker.
func WithTripThreshold(n int) BreakerOption {
	return func(b *Breaker) { b.trip = n }
}

// WithCooldown sets how long the breaker stays open before probing.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.cooldown = d }
}

// NewBreaker creates a closed [Breaker] named for log messages. The
// defaults (5 failures, 30s cooldown) suit the upstream shaper endpoints.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:     name,
		trip:     5,
		cooldown: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do runs fn if the breaker allows it. In the open state it returns
// [ErrUpstreamDown] without calling fn; in the half-open state only the
// single probe call is let through.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrUpstreamDown
		}
		b.state = HalfOpen
		b.probing = false
		slog.Info("upstream breaker probing", "endpoint", b.name)
		fallthrough
	case HalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrUpstreamDown
		}
		b.probing = true
	}
	probe := b.state == HalfOpen
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probe)
	} else {
		b.onSuccess(probe)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probe bool) {
	if probe {
		b.state = Open
		b.openedAt = time.Now()
		b.probing = false
		slog.Warn("upstream breaker re-opened after failed probe",
			"endpoint", b.name)
		return
	}
	b.fails++
	if b.fails >= b.trip {
		b.state = Open
		b.openedAt = time.Now()
		slog.Warn("upstream breaker opened",
			"endpoint", b.name,
			"consecutive_failures", b.fails)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probe bool) {
	if probe {
		slog.Info("upstream breaker closed after successful probe",
			"endpoint", b.name)
	}
	b.state = Closed
	b.fails = 0
	b.probing = false
}

// State reports the breaker's current state. An open breaker whose
// cooldown has elapsed reports [HalfOpen]; the actual transition happens
// on the next [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [Closed], clearing failure counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.fails = 0
	b.probing = false
}
