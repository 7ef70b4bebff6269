// Package bridge implements the embedded-document side of the appsync
// contract: a per-widget-instance cache of host globals with fine-grained
// subscriptions, fed by the host's coarse [appsync.GlobalsUpdate]
// notifications.
//
// Lifecycle of a widget instance:
//
//  1. The host mounts the embedded document and constructs a [Bridge] around
//     its [appsync.Host] channel.
//  2. The document reads initial values with [Bridge.Value] and registers
//     listeners with [Bridge.Subscribe].
//  3. Every host notification is fed through [Bridge.Apply], which caches the
//     announced values and invokes exactly the listeners whose key appears in
//     the notification.
//  4. When the host tears the document down it simply stops delivering
//     notifications; there is no teardown call into the bridge, and pending
//     subscriptions are dropped silently with it.
//
// The bridge runs on the embedded document's single logical thread: Apply is
// called from the channel's delivery goroutine, and listeners execute inside
// that call. A listener must not synchronously provoke another notification
// of its own key — the bridge does not guard against unbounded reentrancy;
// that is a caller responsibility.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/natfields/skybridge/pkg/appsync"
)

// Phase describes where a widget instance is in its render lifecycle.
type Phase string

const (
	// PhaseAwaitingFirstOutput means no toolOutput notification has arrived
	// yet. The widget renders a loading affordance — "not yet available" and
	// "host too slow" are indistinguishable at this layer.
	PhaseAwaitingFirstOutput Phase = "awaiting_first_output"

	// PhaseRendered means at least one toolOutput notification has been
	// processed. The instance stays in this phase, re-rendering on every
	// subsequent notification, until the host disposes of it.
	PhaseRendered Phase = "rendered"
)

// listener is one subscription entry. Entries keep their registration id so
// cancellation can remove exactly one registration.
type listener struct {
	id int
	fn func(json.RawMessage)
}

// Bridge caches host globals for one widget instance and turns the host's
// coarse per-tick notification into per-key listener dispatch.
type Bridge struct {
	host appsync.Host
	log  *slog.Logger

	// onListenerPanic, when set, observes recovered listener panics. Used by
	// the server wiring to count them; the default is log-only.
	onListenerPanic func(key appsync.GlobalKey, recovered any)

	mu      sync.Mutex
	values  map[appsync.GlobalKey]json.RawMessage
	subs    map[appsync.GlobalKey][]listener
	nextSub int
	phase   Phase

	// optimistic is the most recent state this instance asked the host to
	// persist. It may run ahead of the host-confirmed widgetState global for
	// a brief window; see [Bridge.SetWidgetState].
	optimistic json.RawMessage
}

// Option is a functional option for [New].
type Option func(*Bridge)

// WithLogger sets the logger used for listener panic diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithListenerPanicHook installs a hook invoked after a listener panic has
// been recovered and logged.
func WithListenerPanicHook(fn func(key appsync.GlobalKey, recovered any)) Option {
	return func(b *Bridge) { b.onListenerPanic = fn }
}

// New creates a bridge bound to the given host channel. The bridge starts
// with every global unknown and in [PhaseAwaitingFirstOutput].
func New(host appsync.Host, opts ...Option) *Bridge {
	b := &Bridge{
		host:   host,
		log:    slog.Default(),
		values: make(map[appsync.GlobalKey]json.RawMessage),
		subs:   make(map[appsync.GlobalKey][]listener),
		phase:  PhaseAwaitingFirstOutput,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Value returns the cached value of key, or nil if the host has not announced
// the key yet. A host that explicitly announced JSON null yields the raw
// bytes "null"; callers must render both the same way (as absent), so most
// readers should treat nil and "null" identically.
func (b *Bridge) Value(key appsync.GlobalKey) json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.values[key]
}

// Known reports whether the host has announced key at least once.
func (b *Bridge) Known(key appsync.GlobalKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.values[key]
	return ok
}

// Subscribe registers fn to run whenever a notification announces key. The
// returned cancel function removes the registration; calling it more than
// once is harmless.
//
// fn runs inside [Bridge.Apply] on the delivery goroutine. It receives the
// announced value, which equals what [Bridge.Value] returns for key until the
// next announcement.
func (b *Bridge) Subscribe(key appsync.GlobalKey, fn func(json.RawMessage)) (cancel func()) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[key] = append(b.subs[key], listener{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			entries := b.subs[key]
			for i, l := range entries {
				if l.id == id {
					b.subs[key] = append(entries[:i:i], entries[i+1:]...)
					break
				}
			}
		})
	}
}

// Apply processes one host notification: it caches every announced value,
// then invokes the listeners of exactly the announced keys.
//
// Dispatch is presence-based, not equality-based — a key present in the
// update fires its listeners even when the value is unchanged, and a key
// absent from the update never fires them regardless of how stale its cached
// value is. Values are cached before any listener runs, so a listener (or any
// concurrent reader) that calls [Bridge.Value] observes the new value.
//
// A panicking listener is recovered, logged, and reported to the panic hook;
// it never prevents delivery to the remaining listeners.
func (b *Bridge) Apply(update appsync.GlobalsUpdate) {
	if len(update.Globals) == 0 {
		return
	}

	b.mu.Lock()
	type dispatch struct {
		key   appsync.GlobalKey
		value json.RawMessage
		fns   []func(json.RawMessage)
	}
	pending := make([]dispatch, 0, len(update.Globals))
	for key, value := range update.Globals {
		b.values[key] = value
		if key == appsync.KeyToolOutput {
			b.phase = PhaseRendered
		}
		entries := b.subs[key]
		if len(entries) == 0 {
			continue
		}
		fns := make([]func(json.RawMessage), len(entries))
		for i, l := range entries {
			fns[i] = l.fn
		}
		pending = append(pending, dispatch{key: key, value: value, fns: fns})
	}
	b.mu.Unlock()

	for _, d := range pending {
		for _, fn := range d.fns {
			b.invoke(d.key, d.value, fn)
		}
	}
}

// invoke runs one listener, isolating its panic from the rest of the tick.
func (b *Bridge) invoke(key appsync.GlobalKey, value json.RawMessage, fn func(json.RawMessage)) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("bridge listener panicked", "key", string(key), "panic", r)
			if b.onListenerPanic != nil {
				b.onListenerPanic(key, r)
			}
		}
	}()
	fn(value)
}

// Phase returns the instance's current lifecycle phase.
func (b *Bridge) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// DisplayMode returns the host-resolved display mode, or [appsync.ModeInline]
// if the host has not announced one yet.
func (b *Bridge) DisplayMode() appsync.DisplayMode {
	raw := b.Value(appsync.KeyDisplayMode)
	if raw == nil {
		return appsync.ModeInline
	}
	var mode appsync.DisplayMode
	if err := json.Unmarshal(raw, &mode); err != nil || !mode.IsValid() {
		return appsync.ModeInline
	}
	return mode
}

// CallTool forwards a tool invocation to the host. The result lands both in
// the return value and, via the host's follow-up notifications, in the
// toolInput/toolOutput globals.
func (b *Bridge) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	return b.host.CallTool(ctx, name, args)
}

// SendFollowUpMessage forwards a conversational follow-up to the host.
func (b *Bridge) SendFollowUpMessage(ctx context.Context, text string) error {
	return b.host.SendFollowUpMessage(ctx, text)
}

// OpenExternal asks the host to open href outside the widget.
func (b *Bridge) OpenExternal(ctx context.Context, href string) error {
	return b.host.OpenExternal(ctx, href)
}
