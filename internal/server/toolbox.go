package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/natfields/skybridge/internal/host"
	"github.com/natfields/skybridge/internal/observe"
	"github.com/natfields/skybridge/internal/shaper"
	"github.com/natfields/skybridge/internal/widget"
)

// Protocol-tier failures. Both stay typed up to the protocol boundary, where
// they become IsError results instead of transport faults.
var (
	// ErrUnknownTool is wrapped by invocations naming a tool nothing bound.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is wrapped when arguments fail the tool's schema.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Toolbox binds widget descriptors to their shapers and argument schemas.
// It is the single invocation pipeline: the MCP surface and the sync channel
// both call [Toolbox.InvokeTool], so a widget-initiated call produces exactly
// the result a model-initiated call would.
type Toolbox struct {
	registry *widget.Registry
	entries  map[string]*toolEntry
	metrics  *observe.Metrics
}

type toolEntry struct {
	desc     widget.Descriptor
	plain    bool
	fn       shaper.Func
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// NewToolbox creates an empty toolbox over the widget registry.
func NewToolbox(registry *widget.Registry) *Toolbox {
	return &Toolbox{
		registry: registry,
		entries:  make(map[string]*toolEntry),
		metrics:  observe.DefaultMetrics(),
	}
}

// Bind attaches fn as the shaper for toolID, deriving and resolving the
// argument schema from T. The tool must exist in the registry, and a tool
// can be bound only once.
func Bind[T any](tb *Toolbox, toolID string, fn shaper.Func) error {
	desc, ok := tb.registry.ByTool(toolID)
	if !ok {
		return fmt.Errorf("server: bind %s: no such widget tool", toolID)
	}
	if _, dup := tb.entries[toolID]; dup {
		return fmt.Errorf("server: bind %s: already bound", toolID)
	}

	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return fmt.Errorf("server: bind %s: derive schema: %w", toolID, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("server: bind %s: resolve schema: %w", toolID, err)
	}

	tb.entries[toolID] = &toolEntry{
		desc:     desc,
		fn:       fn,
		schema:   schema,
		resolved: resolved,
	}
	return nil
}

// BindPlain attaches fn as a tool without a widget: its results carry
// structured content and display text only, no embedded resource. The toolID
// must not collide with a widget tool.
func BindPlain[T any](tb *Toolbox, toolID, title, description, responseText string, fn shaper.Func) error {
	if _, ok := tb.registry.ByTool(toolID); ok {
		return fmt.Errorf("server: bind %s: widget tools use Bind", toolID)
	}
	if _, dup := tb.entries[toolID]; dup {
		return fmt.Errorf("server: bind %s: already bound", toolID)
	}

	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return fmt.Errorf("server: bind %s: derive schema: %w", toolID, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("server: bind %s: resolve schema: %w", toolID, err)
	}

	tb.entries[toolID] = &toolEntry{
		desc: widget.Descriptor{
			ToolID:       toolID,
			Title:        title,
			Description:  description,
			ResponseText: responseText,
		},
		plain:    true,
		fn:       fn,
		schema:   schema,
		resolved: resolved,
	}
	return nil
}

// plainEntries returns the plain-tool bindings in deterministic order.
func (tb *Toolbox) plainEntries() []*toolEntry {
	var ids []string
	for id, e := range tb.entries {
		if e.plain {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	entries := make([]*toolEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, tb.entries[id])
	}
	return entries
}

// entry returns the binding for toolID.
func (tb *Toolbox) entry(toolID string) (*toolEntry, bool) {
	e, ok := tb.entries[toolID]
	return e, ok
}

// validate checks raw arguments against the tool's resolved schema. Empty
// arguments validate as an empty object.
func (e *toolEntry) validate(raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := e.resolved.Validate(value); err != nil {
		return fmt.Errorf("arguments do not match the tool schema: %w", err)
	}
	return nil
}

// invoke runs the shaper for one validated call. Domain failures stay inside
// the returned Result; only binding and validation problems surface as
// errors.
func (tb *Toolbox) invoke(ctx context.Context, subject, toolID string, args json.RawMessage) (*toolEntry, shaper.Result, error) {
	e, ok := tb.entry(toolID)
	if !ok {
		return nil, shaper.Result{}, fmt.Errorf("server: %w %q", ErrUnknownTool, toolID)
	}
	if err := e.validate(args); err != nil {
		return nil, shaper.Result{}, fmt.Errorf("server: %w for %s: %w", ErrInvalidArguments, toolID, err)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	res := e.fn(shaper.WithSubject(ctx, subject), args)
	return e, res, nil
}

var _ host.ToolInvoker = (*Toolbox)(nil)

// InvokeTool implements [host.ToolInvoker] for widget-initiated calls over
// the sync channel. The outcome mirrors what the MCP surface would return:
// the flattened structured content and the result metadata the host turns
// into globals.
func (tb *Toolbox) InvokeTool(ctx context.Context, subject, toolID string, args json.RawMessage) (host.ToolOutcome, error) {
	e, ok := tb.entry(toolID)
	if !ok {
		return host.ToolOutcome{}, fmt.Errorf("server: %w %q", ErrUnknownTool, toolID)
	}
	if !e.desc.Accessible {
		return host.ToolOutcome{}, fmt.Errorf("server: tool %q is not widget-accessible", toolID)
	}

	start := time.Now()
	_, res, err := tb.invoke(ctx, subject, toolID, args)
	if err != nil {
		tb.metrics.RecordToolInvocation(ctx, toolID, "invalid", time.Since(start).Seconds())
		return host.ToolOutcome{}, err
	}
	status := "ok"
	if !res.OK() {
		status = "domain_error"
	}
	tb.metrics.RecordToolInvocation(ctx, toolID, status, time.Since(start).Seconds())

	structured, err := json.Marshal(res.Flatten())
	if err != nil {
		return host.ToolOutcome{}, fmt.Errorf("server: encode structured content: %w", err)
	}
	meta, err := json.Marshal(resultMeta(e.desc))
	if err != nil {
		return host.ToolOutcome{}, fmt.Errorf("server: encode result metadata: %w", err)
	}
	return host.ToolOutcome{
		Structured:    structured,
		Meta:          meta,
		PreferredMode: e.desc.PreferredMode,
	}, nil
}

// resultMeta is the per-result metadata block shared by both invocation
// paths.
func resultMeta(desc widget.Descriptor) map[string]any {
	meta := map[string]any{
		metaOutputTemplate:         desc.URI,
		metaResultCanProduceWidget: true,
	}
	if desc.Invoked != "" {
		meta[metaInvoked] = desc.Invoked
	}
	if desc.PreferredMode != "" {
		meta[metaPreferredDisplayMode] = string(desc.PreferredMode)
	}
	return meta
}
