// Package server exposes the widget catalog over the Model Context Protocol:
// one tool and one embedded UI resource per widget, plus the HTTP surface
// that carries the protocol, the sync channel and operational endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/natfields/skybridge/internal/observe"
	"github.com/natfields/skybridge/internal/shaper"
	"github.com/natfields/skybridge/internal/widget"
)

// WidgetTemplateURI matches every widget markup resource, so hosts can probe
// arbitrary widget names without a listing round-trip.
const WidgetTemplateURI = "ui://widget/{name}.html"

// Server is the MCP protocol surface over a bound toolbox.
type Server struct {
	mcp      *mcp.Server
	toolbox  *Toolbox
	registry *widget.Registry
	log      *slog.Logger
	metrics  *observe.Metrics
}

// New builds the protocol server. Every widget in the registry must already
// be bound in the toolbox; an unbound widget is a wiring bug surfaced here
// rather than at call time.
func New(registry *widget.Registry, toolbox *Toolbox, version string, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "skybridge",
			Title:   "Skybridge widget server",
			Version: version,
		}, nil),
		toolbox:  toolbox,
		registry: registry,
		log:      log,
		metrics:  observe.DefaultMetrics(),
	}

	for _, desc := range registry.List() {
		entry, ok := toolbox.entry(desc.ToolID)
		if !ok {
			return nil, fmt.Errorf("server: widget %s has no bound shaper", desc.ToolID)
		}
		s.mcp.AddTool(&mcp.Tool{
			Name:        desc.ToolID,
			Title:       desc.Title,
			Description: desc.Description,
			InputSchema: entry.schema,
			Meta:        toolMeta(desc),
		}, s.toolHandler(entry))

		s.mcp.AddResource(&mcp.Resource{
			URI:         desc.URI,
			Name:        desc.ToolID,
			Title:       desc.Title,
			Description: desc.Description,
			MIMEType:    widget.MIMEType,
			Meta:        resourceMeta(desc),
		}, s.readWidget)
	}

	for _, entry := range toolbox.plainEntries() {
		s.mcp.AddTool(&mcp.Tool{
			Name:        entry.desc.ToolID,
			Title:       entry.desc.Title,
			Description: entry.desc.Description,
			InputSchema: entry.schema,
		}, s.toolHandler(entry))
	}

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: WidgetTemplateURI,
		Name:        "widget-markup",
		Description: "Markup for any widget by name.",
		MIMEType:    widget.MIMEType,
	}, s.readWidget)

	return s, nil
}

// MCP returns the underlying protocol server, for transports and tests.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// toolHandler adapts one bound tool to the protocol. Domain failures travel
// inside structuredContent with the widget still attached; only malformed
// arguments produce an IsError result.
func (s *Server) toolHandler(entry *toolEntry) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		args := req.Params.Arguments
		if err := entry.validate(args); err != nil {
			s.metrics.RecordToolInvocation(ctx, entry.desc.ToolID, "invalid", time.Since(start).Seconds())
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil
		}
		if len(args) == 0 {
			args = []byte(`{}`)
		}

		subject := subjectFromMeta(req.Params.Meta)
		res := entry.fn(shaper.WithSubject(ctx, subject), args)

		status := "ok"
		if !res.OK() {
			status = "domain_error"
		}
		s.metrics.RecordToolInvocation(ctx, entry.desc.ToolID, status, time.Since(start).Seconds())

		text := entry.desc.ResponseText
		if !res.OK() {
			text = res.Err().Message
		}

		var meta map[string]any
		if !entry.plain {
			meta = resultMeta(entry.desc)
			meta[metaWidget] = embeddedWidget(entry.desc)
		}

		s.log.DebugContext(ctx, "tool invoked",
			"tool", entry.desc.ToolID, "subject", subject, "ok", res.OK())

		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: text}},
			StructuredContent: res.Flatten(),
			Meta:              meta,
		}, nil
	}
}

// readWidget serves widget markup for both the concrete resources and the
// template. An unknown name is answered in-band: an empty document whose
// metadata carries the error, never a transport fault.
func (s *Server) readWidget(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	desc, err := s.registry.ByURI(uri)
	if err != nil {
		s.metrics.RecordResourceRead(ctx, uri, "unknown")
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      uri,
				MIMEType: widget.MIMEType,
				Text:     "",
			}},
			Meta: mcp.Meta{
				"error": map[string]any{
					"message": fmt.Sprintf("unknown widget resource %s", uri),
				},
			},
		}, nil
	}

	s.metrics.RecordResourceRead(ctx, uri, "ok")
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      desc.URI,
			MIMEType: widget.MIMEType,
			Text:     desc.Markup,
			Meta:     resourceMeta(desc),
		}},
	}, nil
}

// toolMeta is the listing-time metadata for one widget tool.
func toolMeta(desc widget.Descriptor) mcp.Meta {
	meta := mcp.Meta{
		metaOutputTemplate:         desc.URI,
		metaWidgetAccessible:       desc.Accessible,
		metaResultCanProduceWidget: true,
	}
	if desc.Invoking != "" {
		meta[metaInvoking] = desc.Invoking
	}
	if desc.Invoked != "" {
		meta[metaInvoked] = desc.Invoked
	}
	return meta
}

// resourceMeta is the metadata on a widget markup resource.
func resourceMeta(desc widget.Descriptor) mcp.Meta {
	meta := mcp.Meta{
		metaWidgetDescription: desc.Description,
	}
	if desc.PreferredMode != "" {
		meta[metaPreferredDisplayMode] = string(desc.PreferredMode)
	}
	return meta
}

// embeddedWidget is the widget resource attached to every tool result.
func embeddedWidget(desc widget.Descriptor) *mcp.EmbeddedResource {
	return &mcp.EmbeddedResource{
		Resource: &mcp.ResourceContents{
			URI:      desc.URI,
			MIMEType: widget.MIMEType,
			Text:     desc.Markup,
		},
	}
}

// subjectFromMeta extracts the conversation subject a host sent on the call.
func subjectFromMeta(meta mcp.Meta) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[metaSubject].(string); ok {
		return s
	}
	return ""
}
