// Package host is the embedding-host side of the widget bridge. It owns the
// ground-truth copy of every global, serializes announcements per widget
// instance, and answers the verbs embedded documents raise: tool calls,
// follow-up messages, external navigation, display-mode requests and widget
// state writes.
package host

import (
	"context"
	"encoding/json"

	"github.com/natfields/skybridge/pkg/appsync"
)

// ToolOutcome is what a tool invocation produces, as the host needs it:
// the structured content becomes the toolOutput global, the response
// metadata becomes the toolResponseMetadata global, and the preferred mode
// feeds display-mode resolution.
type ToolOutcome struct {
	Structured    json.RawMessage
	Meta          json.RawMessage
	PreferredMode appsync.DisplayMode
}

// ToolInvoker executes a tool on behalf of an embedded document. Implemented
// by the protocol server; faked in tests.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, subject, tool string, args json.RawMessage) (ToolOutcome, error)
}

// DisplayModePolicy resolves a widget's requested display mode to the mode
// the host actually grants. Implementations must return a valid mode; they
// may downgrade (a mobile host granting pip for a fullscreen request) but
// never upgrade.
type DisplayModePolicy func(requested appsync.DisplayMode) appsync.DisplayMode

// GrantAll is the default policy: every valid request is granted as asked.
func GrantAll(requested appsync.DisplayMode) appsync.DisplayMode { return requested }

// PipOnly is the policy of hosts without a fullscreen surface: fullscreen
// requests are granted as picture-in-picture.
func PipOnly(requested appsync.DisplayMode) appsync.DisplayMode {
	if requested == appsync.ModeFullscreen {
		return appsync.ModePIP
	}
	return requested
}

// FollowUpFunc receives follow-up messages a widget inserts into the
// conversation.
type FollowUpFunc func(ctx context.Context, subject, text string)

// OpenExternalFunc receives external navigation requests.
type OpenExternalFunc func(ctx context.Context, subject, href string)
