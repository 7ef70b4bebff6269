package host

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/natfields/skybridge/internal/observe"
	"github.com/natfields/skybridge/internal/statestore"
	"github.com/natfields/skybridge/pkg/appsync"
)

// Hub creates and tracks widget instances. One hub serves all conversations;
// instances are keyed by subject and widget so a re-rendered widget reattaches
// to its earlier globals.
type Hub struct {
	invoker      ToolInvoker
	store        statestore.Store
	policy       DisplayModePolicy
	followUp     FollowUpFunc
	openExternal OpenExternalFunc
	log          *slog.Logger
	metrics      *observe.Metrics

	mu        sync.Mutex
	instances map[instanceKey]*Instance
}

type instanceKey struct {
	subject  string
	widgetID string
}

// Option configures a [Hub].
type Option func(*Hub)

// WithDisplayModePolicy overrides the default [GrantAll] policy.
func WithDisplayModePolicy(p DisplayModePolicy) Option {
	return func(h *Hub) { h.policy = p }
}

// WithFollowUp installs the follow-up message handler. Without one,
// SendFollowUpMessage fails.
func WithFollowUp(f FollowUpFunc) Option {
	return func(h *Hub) { h.followUp = f }
}

// WithOpenExternal installs the external navigation handler. Without one,
// OpenExternal fails.
func WithOpenExternal(f OpenExternalFunc) Option {
	return func(h *Hub) { h.openExternal = f }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates a hub over a tool invoker and widget state store.
func NewHub(invoker ToolInvoker, store statestore.Store, opts ...Option) *Hub {
	h := &Hub{
		invoker:   invoker,
		store:     store,
		policy:    GrantAll,
		log:       slog.Default(),
		metrics:   observe.DefaultMetrics(),
		instances: make(map[instanceKey]*Instance),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Instance returns the instance for subject and widgetID, creating it on
// first use. A fresh instance carries any persisted widget state as its
// initial widgetState global, so reattaching documents resume where they
// left off.
func (h *Hub) Instance(subject, widgetID string) *Instance {
	key := instanceKey{subject: subject, widgetID: widgetID}

	h.mu.Lock()
	in, ok := h.instances[key]
	if !ok {
		in = &Instance{
			subject:  subject,
			widgetID: widgetID,
			hub:      h,
			globals:  make(map[appsync.GlobalKey]json.RawMessage),
			sinks:    make(map[int]func(appsync.GlobalsUpdate)),
			mode:     appsync.ModeInline,
		}
		h.instances[key] = in
	}
	h.mu.Unlock()
	if ok {
		return in
	}

	h.restoreState(in)
	return in
}

// restoreState seeds a new instance's widgetState global from the store.
// Absence is normal for first-render widgets.
func (h *Hub) restoreState(in *Instance) {
	key := statestore.Key{Subject: in.subject, WidgetID: in.widgetID}
	state, err := h.store.Read(context.Background(), key)
	if err != nil {
		return
	}
	in.Announce(appsync.GlobalsUpdate{Globals: map[appsync.GlobalKey]json.RawMessage{
		appsync.KeyWidgetState: state,
	}})
}

// Drop forgets the instance for subject and widgetID. Persisted widget state
// survives; only the in-memory globals are discarded.
func (h *Hub) Drop(subject, widgetID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.instances, instanceKey{subject: subject, widgetID: widgetID})
}
