// Package mock provides an in-memory test double for the [appsync.Host]
// interface.
//
// [Host] records every verb invocation for assertion in tests and exposes
// exported fields that control what the mock returns. It is safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	h := &mock.Host{}
//	h.RequestDisplayModeResult = appsync.ModeInline // always downgrade
//
//	b := bridge.New(h)
//	// exercise the bridge …
//
//	if got := h.CallCount("SetWidgetState"); got != 1 {
//	    t.Errorf("expected 1 SetWidgetState call, got %d", got)
//	}
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/natfields/skybridge/pkg/appsync"
)

// Call records the name and arguments of a single verb invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Host is a configurable test double for [appsync.Host].
// All exported *Err fields default to nil (success).
type Host struct {
	mu sync.Mutex

	// calls records every verb invocation in order.
	calls []Call

	// CallToolResult is returned by [Host.CallTool] when CallToolErr is nil.
	CallToolResult json.RawMessage

	// CallToolErr is returned by [Host.CallTool] when non-nil.
	CallToolErr error

	// SendFollowUpMessageErr is returned by [Host.SendFollowUpMessage] when
	// non-nil.
	SendFollowUpMessageErr error

	// OpenExternalErr is returned by [Host.OpenExternal] when non-nil.
	OpenExternalErr error

	// RequestDisplayModeResult is returned by [Host.RequestDisplayMode] when
	// RequestDisplayModeErr is nil. When empty, the requested mode is echoed
	// back (a host that always grants).
	RequestDisplayModeResult appsync.DisplayMode

	// RequestDisplayModeErr is returned by [Host.RequestDisplayMode] when
	// non-nil.
	RequestDisplayModeErr error

	// SetWidgetStateErr is returned by [Host.SetWidgetState] when non-nil.
	SetWidgetStateErr error

	// OnSetWidgetState, when non-nil, runs inside [Host.SetWidgetState]
	// before it returns. Tests use it to simulate the host echoing the write
	// back through a notification.
	OnSetWidgetState func(state json.RawMessage)
}

var _ appsync.Host = (*Host)(nil)

// Calls returns a copy of all recorded verb invocations.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Call, len(h.calls))
	copy(out, h.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (h *Host) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// record appends one invocation to the call log.
func (h *Host) record(method string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: method, Args: args})
}

// CallTool implements [appsync.Host].
func (h *Host) CallTool(_ context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	h.record("CallTool", name, args)
	if h.CallToolErr != nil {
		return nil, h.CallToolErr
	}
	return h.CallToolResult, nil
}

// SendFollowUpMessage implements [appsync.Host].
func (h *Host) SendFollowUpMessage(_ context.Context, text string) error {
	h.record("SendFollowUpMessage", text)
	return h.SendFollowUpMessageErr
}

// OpenExternal implements [appsync.Host].
func (h *Host) OpenExternal(_ context.Context, href string) error {
	h.record("OpenExternal", href)
	return h.OpenExternalErr
}

// RequestDisplayMode implements [appsync.Host].
func (h *Host) RequestDisplayMode(_ context.Context, mode appsync.DisplayMode) (appsync.DisplayMode, error) {
	h.record("RequestDisplayMode", mode)
	if h.RequestDisplayModeErr != nil {
		return "", h.RequestDisplayModeErr
	}
	if h.RequestDisplayModeResult != "" {
		return h.RequestDisplayModeResult, nil
	}
	return mode, nil
}

// SetWidgetState implements [appsync.Host].
func (h *Host) SetWidgetState(_ context.Context, state json.RawMessage) error {
	h.record("SetWidgetState", state)
	if h.OnSetWidgetState != nil {
		h.OnSetWidgetState(state)
	}
	return h.SetWidgetStateErr
}
