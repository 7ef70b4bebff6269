package appsync

import (
	"encoding/json"
	"fmt"
)

// Frame types exchanged on a sync channel. The host→embedded direction
// carries only FrameGlobals; every other type is an embedded→host verb
// request or its reply.
const (
	FrameGlobals            = "globals"
	FrameCallTool           = "call_tool"
	FrameSendFollowUp       = "send_follow_up"
	FrameOpenExternal       = "open_external"
	FrameRequestDisplayMode = "request_display_mode"
	FrameSetWidgetState     = "set_widget_state"
	FrameReply              = "reply"
)

// Frame is the wire envelope for the WebSocket sync channel. A single struct
// covers all frame types; which payload fields are meaningful depends on Type.
//
// Verb requests carry a caller-chosen ID that the host copies onto the reply,
// so a single connection can have several verbs in flight. Notifications
// (FrameGlobals) carry no ID — they are one-way.
type Frame struct {
	Type string `json:"type"`
	ID   int64  `json:"id,omitempty"`

	// FrameGlobals payload.
	Globals map[GlobalKey]json.RawMessage `json:"globals,omitempty"`

	// Verb request payloads.
	Tool  string          `json:"tool,omitempty"`
	Args  json.RawMessage `json:"args,omitempty"`
	Text  string          `json:"text,omitempty"`
	Href  string          `json:"href,omitempty"`
	Mode  DisplayMode     `json:"mode,omitempty"`
	State json.RawMessage `json:"state,omitempty"`

	// FrameReply payload. Error is set for failed verbs; Result carries the
	// tool payload for call_tool and the resolved mode for
	// request_display_mode.
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Validate checks structural requirements per frame type.
func (f *Frame) Validate() error {
	switch f.Type {
	case FrameGlobals:
		if len(f.Globals) == 0 {
			return fmt.Errorf("appsync: globals frame without globals")
		}
		for k := range f.Globals {
			if !k.IsValid() {
				return fmt.Errorf("appsync: globals frame with unknown key %q", k)
			}
		}
	case FrameCallTool:
		if f.Tool == "" {
			return fmt.Errorf("appsync: call_tool frame without tool name")
		}
	case FrameRequestDisplayMode:
		if !f.Mode.IsValid() {
			return fmt.Errorf("appsync: request_display_mode frame with unknown mode %q", f.Mode)
		}
	case FrameSendFollowUp, FrameOpenExternal, FrameSetWidgetState, FrameReply:
		// No structural requirements beyond Type.
	default:
		return fmt.Errorf("appsync: unknown frame type %q", f.Type)
	}
	return nil
}
