package server

// Host-interpreted metadata keys. Tool listings and tool results carry these
// so the embedding host knows which template to render, what status text to
// show while a call is in flight, and how the widget wants to be displayed.
const (
	metaOutputTemplate         = "openai/outputTemplate"
	metaInvoking               = "openai/toolInvocation/invoking"
	metaInvoked                = "openai/toolInvocation/invoked"
	metaWidgetAccessible       = "openai/widgetAccessible"
	metaResultCanProduceWidget = "openai/resultCanProduceWidget"
	metaWidget                 = "openai.com/widget"
	metaPreferredDisplayMode   = "openai/preferredDisplayMode"
	metaWidgetDescription      = "openai/widgetDescription"

	// metaSubject scopes a request to a conversation; the host sends it on
	// tool calls so widget state and carts stay per-conversation.
	metaSubject = "openai/subject"
)
