package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/natfields/skybridge/pkg/appsync"
)

// SetWidgetState asks the host to persist state as the widget's new full
// state and records it as the local optimistic value.
//
// The write path and the read path are deliberately decoupled: this call does
// NOT update the widgetState global. The global changes only when the host
// echoes the accepted write back through a notification, which may coincide
// with or lag the return of this call. Widget authors should render from the
// optimistic value immediately and reconcile when the echo arrives; the two
// are exposed together by [Bridge.WidgetState].
//
// Each write is a full replace on the host side, so retrying an identical
// write is safe.
func (b *Bridge) SetWidgetState(ctx context.Context, state json.RawMessage) error {
	b.mu.Lock()
	b.optimistic = state
	b.mu.Unlock()

	if err := b.host.SetWidgetState(ctx, state); err != nil {
		return fmt.Errorf("bridge: set widget state: %w", err)
	}
	return nil
}

// WidgetState returns the two-phase view of persisted state: optimistic is
// the most recent state this instance asked the host to persist (nil if it
// never wrote), confirmed is the host-echoed widgetState global (nil until
// the first echo).
//
// During the reconciliation window after a write the two values differ;
// rendering from optimistic and treating confirmed as the durable baseline is
// the intended usage.
func (b *Bridge) WidgetState() (optimistic, confirmed json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.optimistic, b.values[appsync.KeyWidgetState]
}

// RequestDisplayMode proposes a presentation mode to the host and returns the
// host's resolution, which may be a downgrade or the unchanged current mode.
//
// The resolution reply and the displayMode notification are independent
// signals with no ordering guarantee between them. Correct rendering logic
// keys off [Bridge.DisplayMode]; the return value only confirms the request
// was handled.
func (b *Bridge) RequestDisplayMode(ctx context.Context, mode appsync.DisplayMode) (appsync.DisplayMode, error) {
	if !mode.IsValid() {
		return "", fmt.Errorf("bridge: unknown display mode %q", mode)
	}
	resolved, err := b.host.RequestDisplayMode(ctx, mode)
	if err != nil {
		return "", fmt.Errorf("bridge: request display mode: %w", err)
	}
	return resolved, nil
}
