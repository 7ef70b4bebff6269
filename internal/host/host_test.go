package host_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/natfields/skybridge/internal/host"
	"github.com/natfields/skybridge/internal/statestore"
	"github.com/natfields/skybridge/pkg/appsync"
	"github.com/natfields/skybridge/pkg/appsync/bridge"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// httptest keeps idle keep-alive conns briefly after Close.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// fakeInvoker serves canned tool outcomes and records calls.
type fakeInvoker struct {
	mu       sync.Mutex
	calls    []string
	subjects []string
	outcome  host.ToolOutcome
	err      error
}

func (f *fakeInvoker) InvokeTool(_ context.Context, subject, tool string, _ json.RawMessage) (host.ToolOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tool)
	f.subjects = append(f.subjects, subject)
	if f.err != nil {
		return host.ToolOutcome{}, f.err
	}
	return f.outcome, nil
}

func (f *fakeInvoker) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newHub(inv *fakeInvoker, opts ...host.Option) (*host.Hub, *statestore.MemoryStore) {
	store := statestore.NewMemoryStore()
	return host.NewHub(inv, store, opts...), store
}

// collector gathers announced updates for assertions.
type collector struct {
	mu      sync.Mutex
	updates []appsync.GlobalsUpdate
}

func (c *collector) sink(u appsync.GlobalsUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, u)
}

func (c *collector) all() []appsync.GlobalsUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]appsync.GlobalsUpdate(nil), c.updates...)
}

// TestCallToolAnnouncesOutput verifies a tool call announces toolInput,
// toolOutput and toolResponseMetadata before returning, so a read after the
// call sees the new output.
func TestCallToolAnnouncesOutput(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{outcome: host.ToolOutcome{
		Structured: json.RawMessage(`{"title":"Widget A","price":19.99}`),
		Meta:       json.RawMessage(`{"itemCount":1}`),
	}}
	hub, _ := newHub(inv)
	in := hub.Instance("conv-1", "show-product-detail")

	var c collector
	_, detach := in.Attach(c.sink)
	defer detach()

	out, err := in.CallTool(context.Background(), "show-product-detail", json.RawMessage(`{"product":"Widget A"}`))
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if string(out) != `{"title":"Widget A","price":19.99}` {
		t.Errorf("CallTool result = %s", out)
	}

	snap := in.Snapshot()
	if string(snap.Globals[appsync.KeyToolOutput]) != `{"title":"Widget A","price":19.99}` {
		t.Errorf("toolOutput global = %s", snap.Globals[appsync.KeyToolOutput])
	}
	if string(snap.Globals[appsync.KeyToolInput]) != `{"product":"Widget A"}` {
		t.Errorf("toolInput global = %s", snap.Globals[appsync.KeyToolInput])
	}
	if string(snap.Globals[appsync.KeyToolResponseMetadata]) != `{"itemCount":1}` {
		t.Errorf("toolResponseMetadata global = %s", snap.Globals[appsync.KeyToolResponseMetadata])
	}
	if len(c.all()) == 0 {
		t.Error("no updates reached the attached sink")
	}
}

// TestSetWidgetStatePersistsThenEchoes verifies state lands in the store and
// the confirmation is the widgetState global, not the verb's return.
func TestSetWidgetStatePersistsThenEchoes(t *testing.T) {
	t.Parallel()

	hub, store := newHub(&fakeInvoker{})
	in := hub.Instance("conv-1", "shopping-cart")

	var c collector
	_, detach := in.Attach(c.sink)
	defer detach()

	if err := in.SetWidgetState(context.Background(), json.RawMessage(`{"lastItemCount":3}`)); err != nil {
		t.Fatalf("SetWidgetState: %v", err)
	}

	saved, err := store.Read(context.Background(), statestore.Key{Subject: "conv-1", WidgetID: "shopping-cart"})
	if err != nil {
		t.Fatalf("store.Read: %v", err)
	}
	if string(saved) != `{"lastItemCount":3}` {
		t.Errorf("persisted state = %s", saved)
	}

	updates := c.all()
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1 echo", len(updates))
	}
	if string(updates[0].Globals[appsync.KeyWidgetState]) != `{"lastItemCount":3}` {
		t.Errorf("echoed widgetState = %s", updates[0].Globals[appsync.KeyWidgetState])
	}
}

// TestSetWidgetStateLastWriteWins documents the assumption that concurrent
// writes race last-write-wins: arrival order at the instance decides which
// state persists and is echoed, with no queueing or coalescing.
func TestSetWidgetStateLastWriteWins(t *testing.T) {
	t.Parallel()

	hub, store := newHub(&fakeInvoker{})
	in := hub.Instance("conv-1", "shopping-cart")

	var c collector
	_, detach := in.Attach(c.sink)
	defer detach()

	first := json.RawMessage(`{"lastItemCount":1}`)
	second := json.RawMessage(`{"lastItemCount":2}`)
	if err := in.SetWidgetState(context.Background(), first); err != nil {
		t.Fatalf("SetWidgetState: %v", err)
	}
	if err := in.SetWidgetState(context.Background(), second); err != nil {
		t.Fatalf("SetWidgetState: %v", err)
	}

	saved, err := store.Read(context.Background(), statestore.Key{Subject: "conv-1", WidgetID: "shopping-cart"})
	if err != nil {
		t.Fatalf("store.Read: %v", err)
	}
	if string(saved) != string(second) {
		t.Errorf("persisted state = %s, want the later write", saved)
	}

	updates := c.all()
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want one echo per write", len(updates))
	}
	if got := updates[1].Globals[appsync.KeyWidgetState]; string(got) != string(second) {
		t.Errorf("final echoed widgetState = %s, want the later write", got)
	}
}

// TestInstanceRestoresPersistedState verifies a fresh instance for a subject
// with stored state announces that state as its initial widgetState global.
func TestInstanceRestoresPersistedState(t *testing.T) {
	t.Parallel()

	hub, store := newHub(&fakeInvoker{})
	key := statestore.Key{Subject: "conv-1", WidgetID: "shopping-cart"}
	if err := store.Write(context.Background(), key, json.RawMessage(`{"lastItemCount":5}`)); err != nil {
		t.Fatalf("store.Write: %v", err)
	}

	in := hub.Instance("conv-1", "shopping-cart")
	snap := in.Snapshot()
	if string(snap.Globals[appsync.KeyWidgetState]) != `{"lastItemCount":5}` {
		t.Errorf("restored widgetState = %s", snap.Globals[appsync.KeyWidgetState])
	}
}

// TestDisplayModePolicyDowngrade verifies the policy decides the granted
// mode and that the decision lands in the displayMode global.
func TestDisplayModePolicyDowngrade(t *testing.T) {
	t.Parallel()

	hub, _ := newHub(&fakeInvoker{}, host.WithDisplayModePolicy(host.PipOnly))
	in := hub.Instance("conv-1", "show-product-detail")

	granted, err := in.RequestDisplayMode(context.Background(), appsync.ModeFullscreen)
	if err != nil {
		t.Fatalf("RequestDisplayMode: %v", err)
	}
	if granted != appsync.ModePIP {
		t.Errorf("granted = %v, want pip", granted)
	}
	if in.DisplayMode() != appsync.ModePIP {
		t.Errorf("DisplayMode() = %v, want pip", in.DisplayMode())
	}
	snap := in.Snapshot()
	if string(snap.Globals[appsync.KeyDisplayMode]) != `"pip"` {
		t.Errorf("displayMode global = %s", snap.Globals[appsync.KeyDisplayMode])
	}
}

// TestFollowUpRoutedWithSubject verifies follow-up messages reach the
// installed handler tagged with the instance's subject.
func TestFollowUpRoutedWithSubject(t *testing.T) {
	t.Parallel()

	var gotSubject, gotText string
	hub, _ := newHub(&fakeInvoker{}, host.WithFollowUp(func(_ context.Context, subject, text string) {
		gotSubject, gotText = subject, text
	}))
	in := hub.Instance("conv-9", "shopping-cart")

	if err := in.SendFollowUpMessage(context.Background(), "Added to cart."); err != nil {
		t.Fatalf("SendFollowUpMessage: %v", err)
	}
	if gotSubject != "conv-9" || gotText != "Added to cart." {
		t.Errorf("follow-up = (%q, %q)", gotSubject, gotText)
	}
}

// TestChannelRoundTrip runs a full remote session: dial the sync endpoint,
// receive the snapshot, call a tool through the channel and observe the
// update arrive as a globals frame.
func TestChannelRoundTrip(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{outcome: host.ToolOutcome{
		Structured: json.RawMessage(`{"count":2}`),
	}}
	hub, _ := newHub(inv)

	// Pre-announce a theme so the snapshot is non-empty.
	hub.Instance("conv-1", "show-products-carousel").Announce(appsync.GlobalsUpdate{
		Globals: map[appsync.GlobalKey]json.RawMessage{
			appsync.KeyTheme: json.RawMessage(`"dark"`),
		},
	})

	srv := httptest.NewServer(host.NewChannelServer(hub, nil))
	defer srv.Close()

	updates := make(chan appsync.GlobalsUpdate, 16)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := host.Dial(context.Background(), wsURL, "conv-1", "show-products-carousel", func(u appsync.GlobalsUpdate) {
		updates <- u
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() {
		client.Close()
		<-client.Done()
	}()

	snap := waitUpdate(t, updates)
	if string(snap.Globals[appsync.KeyTheme]) != `"dark"` {
		t.Errorf("snapshot theme = %s", snap.Globals[appsync.KeyTheme])
	}

	out, err := client.CallTool(context.Background(), "show-products-carousel", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("CallTool over channel: %v", err)
	}
	if string(out) != `{"count":2}` {
		t.Errorf("CallTool result = %s", out)
	}

	// The announcement triggered by the call arrives as a globals frame.
	for {
		u := waitUpdate(t, updates)
		if raw, ok := u.Globals[appsync.KeyToolOutput]; ok {
			if string(raw) != `{"count":2}` {
				t.Errorf("toolOutput frame = %s", raw)
			}
			break
		}
	}

	if got := inv.called(); len(got) != 1 || got[0] != "show-products-carousel" {
		t.Errorf("invoker calls = %v", got)
	}
}

// TestChannelDrivesBridge verifies a bridge attached to a dialed client sees
// announcements with presence-based dispatch intact.
func TestChannelDrivesBridge(t *testing.T) {
	t.Parallel()

	hub, _ := newHub(&fakeInvoker{})
	srv := httptest.NewServer(host.NewChannelServer(hub, nil))
	defer srv.Close()

	updates := make(chan appsync.GlobalsUpdate, 16)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := host.Dial(context.Background(), wsURL, "conv-1", "stock-summary", func(u appsync.GlobalsUpdate) {
		updates <- u
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	br := bridge.New(client)
	out := make(chan string, 4)
	br.Subscribe(appsync.KeyTheme, func(raw json.RawMessage) {
		out <- string(raw)
	})
	applyDone := make(chan struct{})
	go func() {
		defer close(applyDone)
		for u := range updates {
			br.Apply(u)
		}
	}()
	defer func() {
		client.Close()
		<-client.Done()
		close(updates)
		<-applyDone
	}()

	hub.Instance("conv-1", "stock-summary").Announce(appsync.GlobalsUpdate{
		Globals: map[appsync.GlobalKey]json.RawMessage{
			appsync.KeyTheme: json.RawMessage(`"light"`),
		},
	})

	select {
	case got := <-out:
		if got != `"light"` {
			t.Errorf("theme listener got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for theme announcement")
	}
}

// TestChannelVerbFailureIsReply verifies a failing verb comes back as a
// reply error, leaving the channel itself healthy.
func TestChannelVerbFailureIsReply(t *testing.T) {
	t.Parallel()

	inv := &fakeInvoker{err: fmt.Errorf("tool exploded")}
	hub, _ := newHub(inv)
	srv := httptest.NewServer(host.NewChannelServer(hub, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := host.Dial(context.Background(), wsURL, "conv-1", "w", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() {
		client.Close()
		<-client.Done()
	}()

	if _, err := client.CallTool(context.Background(), "w", json.RawMessage(`{}`)); err == nil {
		t.Fatal("CallTool succeeded, want error reply")
	} else if !strings.Contains(err.Error(), "tool exploded") {
		t.Errorf("error = %v", err)
	}

	// The channel still serves verbs after a failed one.
	if _, err := client.RequestDisplayMode(context.Background(), appsync.ModeInline); err != nil {
		t.Errorf("RequestDisplayMode after failure: %v", err)
	}
}

func waitUpdate(t *testing.T, ch <-chan appsync.GlobalsUpdate) appsync.GlobalsUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for globals frame")
		return appsync.GlobalsUpdate{}
	}
}
