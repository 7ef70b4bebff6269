package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/natfields/skybridge/internal/observe"
	"github.com/natfields/skybridge/internal/statestore"
	"github.com/natfields/skybridge/pkg/appsync"
)

// Instance is the host side of one embedded widget: the ground truth for its
// globals and the authority its verbs are raised against. It implements
// [appsync.Host], so an in-process bridge can attach to it directly; remote
// documents attach through the sync channel instead.
//
// All methods are safe for concurrent use. Announcements to one instance are
// serialized, so every sink observes the same global order.
type Instance struct {
	subject  string
	widgetID string
	hub      *Hub

	writeMu sync.Mutex // serializes announcements

	mu      sync.Mutex
	globals map[appsync.GlobalKey]json.RawMessage
	sinks   map[int]func(appsync.GlobalsUpdate)
	nextID  int
	mode    appsync.DisplayMode
}

var _ appsync.Host = (*Instance)(nil)

// Subject returns the conversation subject this instance is scoped to.
func (in *Instance) Subject() string { return in.subject }

// WidgetID returns the owning widget's tool ID.
func (in *Instance) WidgetID() string { return in.widgetID }

// Announce merges the update into the ground truth and fans it out to every
// attached sink. Notification follows the update's key presence: a key maps
// to its new value even when that value equals the old one.
func (in *Instance) Announce(update appsync.GlobalsUpdate) {
	if len(update.Globals) == 0 {
		return
	}
	in.writeMu.Lock()
	defer in.writeMu.Unlock()

	in.mu.Lock()
	for k, v := range update.Globals {
		in.globals[k] = v
		if k == appsync.KeyDisplayMode {
			var m appsync.DisplayMode
			if err := json.Unmarshal(v, &m); err == nil && m.IsValid() {
				in.mode = m
			}
		}
	}
	sinks := make([]func(appsync.GlobalsUpdate), 0, len(in.sinks))
	for _, s := range in.sinks {
		sinks = append(sinks, s)
	}
	in.mu.Unlock()

	for _, s := range sinks {
		s(update)
	}
	for k := range update.Globals {
		in.hub.metrics.NotificationsDispatched.Add(context.Background(), 1,
			metric.WithAttributes(observe.Attr("key", string(k))))
	}
}

// Snapshot returns every announced global, for bringing a newly attached
// sink up to date.
func (in *Instance) Snapshot() appsync.GlobalsUpdate {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make(map[appsync.GlobalKey]json.RawMessage, len(in.globals))
	for k, v := range in.globals {
		out[k] = v
	}
	return appsync.GlobalsUpdate{Globals: out}
}

// Attach registers a sink for future announcements and returns its current
// snapshot plus a detach func. The snapshot is taken under the same lock as
// registration, so the sink never misses nor double-sees an update.
func (in *Instance) Attach(sink func(appsync.GlobalsUpdate)) (appsync.GlobalsUpdate, func()) {
	in.mu.Lock()
	id := in.nextID
	in.nextID++
	in.sinks[id] = sink
	snap := make(map[appsync.GlobalKey]json.RawMessage, len(in.globals))
	for k, v := range in.globals {
		snap[k] = v
	}
	in.mu.Unlock()

	var once sync.Once
	detach := func() {
		once.Do(func() {
			in.mu.Lock()
			delete(in.sinks, id)
			in.mu.Unlock()
		})
	}
	return appsync.GlobalsUpdate{Globals: snap}, detach
}

// CallTool implements [appsync.Host]. The outcome is announced as the
// toolInput, toolOutput and toolResponseMetadata globals before the call
// returns, so a widget reading after its own call sees the new output.
func (in *Instance) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	outcome, err := in.hub.invoker.InvokeTool(ctx, in.subject, name, args)
	if err != nil {
		return nil, fmt.Errorf("host: call tool %s: %w", name, err)
	}

	update := map[appsync.GlobalKey]json.RawMessage{
		appsync.KeyToolInput:  cloneRaw(args),
		appsync.KeyToolOutput: cloneRaw(outcome.Structured),
	}
	if outcome.Meta != nil {
		update[appsync.KeyToolResponseMetadata] = cloneRaw(outcome.Meta)
	}
	in.Announce(appsync.GlobalsUpdate{Globals: update})
	in.hub.log.DebugContext(ctx, "widget tool call completed",
		"subject", in.subject, "widget", in.widgetID, "tool", name)
	return outcome.Structured, nil
}

// SendFollowUpMessage implements [appsync.Host].
func (in *Instance) SendFollowUpMessage(ctx context.Context, text string) error {
	if in.hub.followUp == nil {
		return fmt.Errorf("host: follow-up messages are not supported")
	}
	in.hub.followUp(ctx, in.subject, text)
	return nil
}

// OpenExternal implements [appsync.Host].
func (in *Instance) OpenExternal(ctx context.Context, href string) error {
	if in.hub.openExternal == nil {
		return fmt.Errorf("host: external navigation is not supported")
	}
	in.hub.openExternal(ctx, in.subject, href)
	return nil
}

// RequestDisplayMode implements [appsync.Host]. The granted mode is
// announced as the displayMode global; callers that want to react to the
// decision should watch that global rather than the returned value, which
// only reports what was granted to this request.
func (in *Instance) RequestDisplayMode(ctx context.Context, mode appsync.DisplayMode) (appsync.DisplayMode, error) {
	if !mode.IsValid() {
		return "", fmt.Errorf("host: invalid display mode %q", mode)
	}
	granted := in.hub.policy(mode)
	in.hub.metrics.RecordDisplayModeRequest(ctx, string(mode), string(granted))
	raw, err := json.Marshal(granted)
	if err != nil {
		return "", fmt.Errorf("host: encode display mode: %w", err)
	}
	in.Announce(appsync.GlobalsUpdate{Globals: map[appsync.GlobalKey]json.RawMessage{
		appsync.KeyDisplayMode: raw,
	}})
	in.hub.log.DebugContext(ctx, "display mode request",
		"subject", in.subject, "widget", in.widgetID, "requested", mode, "granted", granted)
	return granted, nil
}

// SetWidgetState implements [appsync.Host]. State is persisted first; only a
// successful write is echoed back as the widgetState global, which is what
// confirms the write to the document.
func (in *Instance) SetWidgetState(ctx context.Context, state json.RawMessage) error {
	key := statestore.Key{Subject: in.subject, WidgetID: in.widgetID}
	if err := in.hub.store.Write(ctx, key, state); err != nil {
		in.hub.metrics.RecordWidgetStateWrite(ctx, in.widgetID, "error")
		return fmt.Errorf("host: persist widget state: %w", err)
	}
	in.hub.metrics.RecordWidgetStateWrite(ctx, in.widgetID, "ok")
	in.Announce(appsync.GlobalsUpdate{Globals: map[appsync.GlobalKey]json.RawMessage{
		appsync.KeyWidgetState: cloneRaw(state),
	}})
	return nil
}

// DisplayMode returns the instance's current mode, ModeInline before any
// request.
func (in *Instance) DisplayMode() appsync.DisplayMode {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mode
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
