// Package widget holds the static catalog of renderable widgets: the pairing
// of a tool identifier with a resource URI and the self-contained markup the
// host injects into an embedded document.
//
// The catalog is built once at process start from the bundled assets and is
// immutable afterwards, so lookups need no synchronisation.
package widget

import (
	"fmt"
	"strings"

	"github.com/natfields/skybridge/pkg/appsync"
)

// MIMEType is the sentinel content type for interactive widget markup. Hosts
// use it to distinguish executable widget documents from plain text or HTML.
const MIMEType = "text/html+skybridge"

// URIScheme is the logical (non-network) scheme widget resource URIs use.
const URIScheme = "ui://"

// Descriptor identifies one renderable unit: a tool paired with the markup
// resource that renders its results.
type Descriptor struct {
	// ToolID is the tool identifier this widget renders results for. Unique
	// within a registry and stable across restarts.
	ToolID string

	// URI is the logical resource locator (e.g.
	// "ui://widget/product-carousel.html"). Unique within a registry; it is
	// the join key between tool results and the resource server.
	URI string

	// Title is the human-readable widget name shown in discovery lists.
	Title string

	// Description describes the widget for discovery lists.
	Description string

	// Invoking and Invoked are the status strings a host shows while the
	// paired tool runs and once it completes.
	Invoking string
	Invoked  string

	// ResponseText is the short display-text fallback returned with every
	// result of the paired tool.
	ResponseText string

	// Markup is the self-contained structure+payload blob served for URI.
	Markup string

	// Accessible reports whether the paired tool may be invoked from inside
	// other widgets. Detail-style widgets leave this false to force a fresh
	// render instead of mutating the invoking widget in place.
	Accessible bool

	// PreferredMode, when non-empty, is attached to tool results as an
	// advisory display-mode hint. The host may ignore it.
	PreferredMode appsync.DisplayMode
}

// Validate checks the descriptor's structural requirements.
func (d *Descriptor) Validate() error {
	if d.ToolID == "" {
		return fmt.Errorf("widget: descriptor without tool id")
	}
	if !strings.HasPrefix(d.URI, URIScheme) {
		return fmt.Errorf("widget: descriptor %q has uri %q without %q scheme", d.ToolID, d.URI, URIScheme)
	}
	if d.Title == "" {
		return fmt.Errorf("widget: descriptor %q without title", d.ToolID)
	}
	if d.Markup == "" {
		return fmt.Errorf("widget: descriptor %q without markup", d.ToolID)
	}
	if d.PreferredMode != "" && !d.PreferredMode.IsValid() {
		return fmt.Errorf("widget: descriptor %q has unknown preferred mode %q", d.ToolID, d.PreferredMode)
	}
	return nil
}
