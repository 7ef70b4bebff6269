// Package appsync defines the synchronization contract between a host
// document and the embedded widget documents it renders.
//
// The host owns ground truth for a fixed set of named globals (theme, tool
// output, display mode, …). It pushes changes to embedded documents through a
// single coarse notification, [GlobalsUpdate], carrying only the keys that
// changed. Embedded documents call back into the host through the five verbs
// of the [Host] interface.
//
// The embedded-side subscription machinery lives in the bridge subpackage;
// the host-side implementation lives in the server's internal/host package.
package appsync

import (
	"context"
	"encoding/json"
)

// GlobalKey names one host-owned global visible to an embedded document.
type GlobalKey string

const (
	// KeyTheme is the host colour scheme ("light" or "dark").
	KeyTheme GlobalKey = "theme"

	// KeyToolInput holds the arguments of the tool call that produced the
	// widget's current data.
	KeyToolInput GlobalKey = "toolInput"

	// KeyToolOutput holds the structured result of the most recent tool call
	// for this widget instance. A widget renders a loading affordance until
	// the first toolOutput notification arrives.
	KeyToolOutput GlobalKey = "toolOutput"

	// KeyToolResponseMetadata holds the negotiation metadata attached to the
	// most recent tool result.
	KeyToolResponseMetadata GlobalKey = "toolResponseMetadata"

	// KeyWidgetState holds the host-confirmed persisted widget state. It is
	// updated only when the host echoes an accepted [Host.SetWidgetState]
	// write back through a notification.
	KeyWidgetState GlobalKey = "widgetState"

	// KeyDisplayMode holds the host-resolved presentation mode.
	KeyDisplayMode GlobalKey = "displayMode"

	// KeyLocale is the host's BCP 47 locale tag (e.g. "en-GB").
	KeyLocale GlobalKey = "locale"

	// KeyMaxHeight is the maximum render height in pixels granted by the host.
	KeyMaxHeight GlobalKey = "maxHeight"

	// KeySafeArea describes insets the widget must not paint into.
	KeySafeArea GlobalKey = "safeArea"

	// KeyUserAgent describes host capabilities (e.g. whether fullscreen is
	// supported on this device).
	KeyUserAgent GlobalKey = "userAgent"
)

// Keys lists every recognised global key.
var Keys = []GlobalKey{
	KeyTheme, KeyToolInput, KeyToolOutput, KeyToolResponseMetadata,
	KeyWidgetState, KeyDisplayMode, KeyLocale, KeyMaxHeight, KeySafeArea,
	KeyUserAgent,
}

// IsValid reports whether k is a recognised global key.
func (k GlobalKey) IsValid() bool {
	for _, known := range Keys {
		if k == known {
			return true
		}
	}
	return false
}

// DisplayMode is a widget presentation mode. The set is closed; the host is
// the sole authority on which mode is actually in effect.
type DisplayMode string

const (
	ModeInline     DisplayMode = "inline"
	ModeFullscreen DisplayMode = "fullscreen"
	ModePIP        DisplayMode = "pip"
)

// IsValid reports whether m is a recognised display mode.
func (m DisplayMode) IsValid() bool {
	switch m {
	case ModeInline, ModeFullscreen, ModePIP:
		return true
	}
	return false
}

// GlobalsUpdate is the single host→embedded notification. Globals contains an
// entry for every key that changed in this tick and nothing else.
//
// Presence in the map is the dispatch signal: a key that maps to JSON null is
// an announced value and must be delivered to subscribers, while a key absent
// from the map must not be. Hosts may re-announce an unchanged value to force
// subscribers to re-read it.
type GlobalsUpdate struct {
	Globals map[GlobalKey]json.RawMessage `json:"globals"`
}

// Host is the embedded document's view of its host: the fixed set of callback
// verbs available inside a widget. Implementations are provided by the host
// process (in-process) or by a channel client that relays the verbs over a
// transport.
//
// CallTool and RequestDisplayMode are single-shot request/response; the
// remaining verbs are fire-and-forget beyond host acceptance. None of the
// verbs carries a protocol-level timeout — a host that never answers leaves
// the call blocked until ctx is done, so callers that need bounded waits must
// bring their own deadline.
type Host interface {
	// CallTool invokes the named tool on the host's tool server and returns
	// the structured result payload.
	CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)

	// SendFollowUpMessage asks the host to insert a user-visible follow-up
	// message into the surrounding conversation.
	SendFollowUpMessage(ctx context.Context, text string) error

	// OpenExternal asks the host to open href outside the embedded document.
	OpenExternal(ctx context.Context, href string) error

	// RequestDisplayMode proposes a presentation mode. The host may downgrade
	// or refuse; the returned mode is the host's resolution. The resolution
	// and the corresponding displayMode notification arrive independently and
	// in either order — rendering logic must key off the displayMode global
	// and treat the return value only as "request handled".
	RequestDisplayMode(ctx context.Context, mode DisplayMode) (DisplayMode, error)

	// SetWidgetState persists state as the widget's new full state. The call
	// returns once the host has accepted the write; the widgetState global is
	// updated only by the host's subsequent echo notification. Each write is
	// a full replace, so retries are idempotent.
	SetWidgetState(ctx context.Context, state json.RawMessage) error
}
