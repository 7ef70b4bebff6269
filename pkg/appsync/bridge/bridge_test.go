package bridge_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/natfields/skybridge/pkg/appsync"
	"github.com/natfields/skybridge/pkg/appsync/bridge"
	"github.com/natfields/skybridge/pkg/appsync/mock"
)

// update builds a GlobalsUpdate from key/raw-JSON pairs.
func update(pairs ...string) appsync.GlobalsUpdate {
	g := make(map[appsync.GlobalKey]json.RawMessage, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		g[appsync.GlobalKey(pairs[i])] = json.RawMessage(pairs[i+1])
	}
	return appsync.GlobalsUpdate{Globals: g}
}

// TestValue_UnknownBeforeFirstNotification verifies that every global reads
// as nil until the host announces it.
func TestValue_UnknownBeforeFirstNotification(t *testing.T) {
	t.Parallel()
	b := bridge.New(&mock.Host{})

	for _, key := range appsync.Keys {
		if got := b.Value(key); got != nil {
			t.Errorf("Value(%q) = %s before any notification, want nil", key, got)
		}
		if b.Known(key) {
			t.Errorf("Known(%q) = true before any notification", key)
		}
	}
}

// TestApply_PresenceBasedDispatch verifies that a notification containing
// only one key invokes that key's subscribers and nobody else's, even when
// the other key's cached value is stale.
func TestApply_PresenceBasedDispatch(t *testing.T) {
	t.Parallel()
	b := bridge.New(&mock.Host{})

	var themeCalls, localeCalls int
	b.Subscribe(appsync.KeyTheme, func(json.RawMessage) { themeCalls++ })
	b.Subscribe(appsync.KeyLocale, func(json.RawMessage) { localeCalls++ })

	// Seed both keys, then announce only theme.
	b.Apply(update("theme", `"light"`, "locale", `"en-GB"`))
	b.Apply(update("theme", `"dark"`))

	if themeCalls != 2 {
		t.Errorf("theme subscriber called %d times, want 2", themeCalls)
	}
	if localeCalls != 1 {
		t.Errorf("locale subscriber called %d times, want 1", localeCalls)
	}
}

// TestApply_ReAnnouncementFiresAgain verifies there is no equality-based
// suppression: the same value announced twice fires subscribers twice.
func TestApply_ReAnnouncementFiresAgain(t *testing.T) {
	t.Parallel()
	b := bridge.New(&mock.Host{})

	var calls int
	b.Subscribe(appsync.KeyTheme, func(json.RawMessage) { calls++ })

	b.Apply(update("theme", `"dark"`))
	b.Apply(update("theme", `"dark"`))

	if calls != 2 {
		t.Errorf("subscriber called %d times for repeated identical value, want 2", calls)
	}
}

// TestApply_ReadAfterNotify verifies that once Apply returns, Value yields
// exactly the announced value — including from inside a listener.
func TestApply_ReadAfterNotify(t *testing.T) {
	t.Parallel()
	b := bridge.New(&mock.Host{})

	var seenInListener string
	b.Subscribe(appsync.KeyToolOutput, func(json.RawMessage) {
		seenInListener = string(b.Value(appsync.KeyToolOutput))
	})

	b.Apply(update("toolOutput", `{"price":19.99}`))

	if seenInListener != `{"price":19.99}` {
		t.Errorf("listener observed %q, want the announced value", seenInListener)
	}
	if got := string(b.Value(appsync.KeyToolOutput)); got != `{"price":19.99}` {
		t.Errorf("Value after Apply = %q, want announced value", got)
	}
}

// TestApply_ExplicitNullIsAnnounced verifies that a host announcing JSON null
// still fires subscribers and leaves the key known.
func TestApply_ExplicitNullIsAnnounced(t *testing.T) {
	t.Parallel()
	b := bridge.New(&mock.Host{})

	var calls int
	b.Subscribe(appsync.KeySafeArea, func(json.RawMessage) { calls++ })

	b.Apply(update("safeArea", `null`))

	if calls != 1 {
		t.Errorf("subscriber called %d times for null announcement, want 1", calls)
	}
	if !b.Known(appsync.KeySafeArea) {
		t.Error("key not marked known after null announcement")
	}
	if got := string(b.Value(appsync.KeySafeArea)); got != "null" {
		t.Errorf("Value = %q, want raw null", got)
	}
}

// TestApply_ListenerPanicIsolation verifies that a panicking listener does
// not prevent delivery to the remaining listeners, and that the panic is
// surfaced through the diagnostic hook.
func TestApply_ListenerPanicIsolation(t *testing.T) {
	t.Parallel()

	var panics int
	b := bridge.New(&mock.Host{}, bridge.WithListenerPanicHook(func(appsync.GlobalKey, any) {
		panics++
	}))

	var survivors int
	b.Subscribe(appsync.KeyTheme, func(json.RawMessage) { panic("listener bug") })
	b.Subscribe(appsync.KeyTheme, func(json.RawMessage) { survivors++ })
	b.Subscribe(appsync.KeyLocale, func(json.RawMessage) { survivors++ })

	b.Apply(update("theme", `"dark"`, "locale", `"de"`))

	if survivors != 2 {
		t.Errorf("%d surviving listeners ran, want 2", survivors)
	}
	if panics != 1 {
		t.Errorf("panic hook observed %d panics, want 1", panics)
	}
}

// TestSubscribe_CancelStopsDelivery verifies that a cancelled subscription no
// longer receives notifications and that double-cancel is harmless.
func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	t.Parallel()
	b := bridge.New(&mock.Host{})

	var calls int
	cancel := b.Subscribe(appsync.KeyTheme, func(json.RawMessage) { calls++ })

	b.Apply(update("theme", `"dark"`))
	cancel()
	cancel()
	b.Apply(update("theme", `"light"`))

	if calls != 1 {
		t.Errorf("subscriber called %d times, want 1 (cancelled before second)", calls)
	}
}

// TestPhase_RenderedOnFirstToolOutput verifies the lifecycle transition from
// awaiting-first-output to rendered.
func TestPhase_RenderedOnFirstToolOutput(t *testing.T) {
	t.Parallel()
	b := bridge.New(&mock.Host{})

	if got := b.Phase(); got != bridge.PhaseAwaitingFirstOutput {
		t.Fatalf("initial phase = %q, want %q", got, bridge.PhaseAwaitingFirstOutput)
	}

	// Unrelated notifications do not advance the phase.
	b.Apply(update("theme", `"dark"`))
	if got := b.Phase(); got != bridge.PhaseAwaitingFirstOutput {
		t.Errorf("phase after theme notification = %q, want %q", got, bridge.PhaseAwaitingFirstOutput)
	}

	b.Apply(update("toolOutput", `{}`))
	if got := b.Phase(); got != bridge.PhaseRendered {
		t.Errorf("phase after toolOutput = %q, want %q", got, bridge.PhaseRendered)
	}
}

// TestSetWidgetState_DecoupledFromGlobal verifies the two-phase state
// contract: a write updates the optimistic value immediately but the
// widgetState global only moves when the host echoes the write.
func TestSetWidgetState_DecoupledFromGlobal(t *testing.T) {
	t.Parallel()
	host := &mock.Host{}
	b := bridge.New(host)

	state := json.RawMessage(`{"favorite":"A1"}`)
	if err := b.SetWidgetState(context.Background(), state); err != nil {
		t.Fatalf("SetWidgetState returned unexpected error: %v", err)
	}

	optimistic, confirmed := b.WidgetState()
	if string(optimistic) != string(state) {
		t.Errorf("optimistic = %s, want %s", optimistic, state)
	}
	if confirmed != nil {
		t.Errorf("confirmed = %s before host echo, want nil", confirmed)
	}
	if got := b.Value(appsync.KeyWidgetState); got != nil {
		t.Errorf("widgetState global = %s before host echo, want nil", got)
	}

	// Host echoes the accepted write.
	b.Apply(update("widgetState", `{"favorite":"A1"}`))

	_, confirmed = b.WidgetState()
	if string(confirmed) != string(state) {
		t.Errorf("confirmed after echo = %s, want %s", confirmed, state)
	}
}

// TestSetWidgetState_HostError verifies the optimistic value is still
// recorded when the host rejects the write; reconciliation via the confirmed
// value is what exposes the divergence.
func TestSetWidgetState_HostError(t *testing.T) {
	t.Parallel()
	host := &mock.Host{SetWidgetStateErr: context.DeadlineExceeded}
	b := bridge.New(host)

	err := b.SetWidgetState(context.Background(), json.RawMessage(`{"n":1}`))
	if err == nil {
		t.Fatal("SetWidgetState returned nil error, want host error")
	}

	optimistic, confirmed := b.WidgetState()
	if string(optimistic) != `{"n":1}` {
		t.Errorf("optimistic = %s, want the attempted write", optimistic)
	}
	if confirmed != nil {
		t.Errorf("confirmed = %s, want nil", confirmed)
	}
}

// TestRequestDisplayMode_DowngradeKeysOffGlobal verifies the negotiation
// contract: the host's resolution is returned, but the rendering-relevant
// displayMode global changes only when the corresponding notification is
// delivered — in either order relative to the reply.
func TestRequestDisplayMode_DowngradeKeysOffGlobal(t *testing.T) {
	t.Parallel()
	host := &mock.Host{RequestDisplayModeResult: appsync.ModeInline}
	b := bridge.New(host)

	resolved, err := b.RequestDisplayMode(context.Background(), appsync.ModeFullscreen)
	if err != nil {
		t.Fatalf("RequestDisplayMode returned unexpected error: %v", err)
	}
	if resolved != appsync.ModeInline {
		t.Errorf("resolved mode = %q, want downgrade to %q", resolved, appsync.ModeInline)
	}

	// The reply has settled but no notification has arrived: rendering still
	// sees the default.
	if got := b.DisplayMode(); got != appsync.ModeInline {
		t.Errorf("DisplayMode before notification = %q, want %q", got, appsync.ModeInline)
	}

	b.Apply(update("displayMode", `"inline"`))
	if got := b.DisplayMode(); got != appsync.ModeInline {
		t.Errorf("DisplayMode after notification = %q, want %q", got, appsync.ModeInline)
	}
}

// TestRequestDisplayMode_RejectsUnknownMode verifies the closed mode set is
// enforced before the host is consulted.
func TestRequestDisplayMode_RejectsUnknownMode(t *testing.T) {
	t.Parallel()
	host := &mock.Host{}
	b := bridge.New(host)

	if _, err := b.RequestDisplayMode(context.Background(), appsync.DisplayMode("cinema")); err == nil {
		t.Fatal("RequestDisplayMode accepted unknown mode")
	}
	if got := host.CallCount("RequestDisplayMode"); got != 0 {
		t.Errorf("host consulted %d times for invalid mode, want 0", got)
	}
}

// TestCallTool_ForwardsToHost verifies the passthrough verb reaches the host
// with its arguments intact.
func TestCallTool_ForwardsToHost(t *testing.T) {
	t.Parallel()
	host := &mock.Host{CallToolResult: json.RawMessage(`{"ok":true}`)}
	b := bridge.New(host)

	got, err := b.CallTool(context.Background(), "get-item-summary", json.RawMessage(`{"id":"A1"}`))
	if err != nil {
		t.Fatalf("CallTool returned unexpected error: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("CallTool result = %s, want host result", got)
	}

	calls := host.Calls()
	if len(calls) != 1 || calls[0].Method != "CallTool" {
		t.Fatalf("host calls = %+v, want one CallTool", calls)
	}
	if name := calls[0].Args[0].(string); name != "get-item-summary" {
		t.Errorf("tool name = %q, want get-item-summary", name)
	}
}
