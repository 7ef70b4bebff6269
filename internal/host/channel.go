package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/natfields/skybridge/pkg/appsync"
)

// ChannelServer serves the WebSocket sync endpoint that remote embedded
// documents attach to. One connection carries one widget instance's globals
// downstream and its verb requests upstream.
type ChannelServer struct {
	hub            *Hub
	originPatterns []string
}

// NewChannelServer creates the sync endpoint handler. originPatterns are the
// Origin hosts allowed to connect, in coder/websocket pattern syntax; empty
// means same-origin only.
func NewChannelServer(hub *Hub, originPatterns []string) *ChannelServer {
	return &ChannelServer{hub: hub, originPatterns: originPatterns}
}

// ServeHTTP upgrades the connection and runs it until either side closes.
// The client identifies its widget instance with the subject and widget
// query parameters.
func (cs *ChannelServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	widgetID := r.URL.Query().Get("widget")
	if subject == "" || widgetID == "" {
		http.Error(w, "subject and widget query parameters are required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: cs.originPatterns,
	})
	if err != nil {
		cs.hub.log.Warn("sync channel accept failed", "error", err)
		return
	}

	in := cs.hub.Instance(subject, widgetID)
	cs.serve(r.Context(), conn, in)
}

func (cs *ChannelServer) serve(ctx context.Context, conn *websocket.Conn, in *Instance) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cs.hub.metrics.ActiveSyncSessions.Add(ctx, 1)
	defer cs.hub.metrics.ActiveSyncSessions.Add(context.Background(), -1)

	// Outbound frames funnel through one channel so snapshot, announcements
	// and replies never interleave mid-write.
	out := make(chan appsync.Frame, 32)

	snapshot, detach := in.Attach(func(update appsync.GlobalsUpdate) {
		select {
		case out <- appsync.Frame{Type: appsync.FrameGlobals, Globals: update.Globals}:
		case <-ctx.Done():
		}
	})
	defer detach()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case frame := <-out:
				if err := writeFrame(ctx, conn, frame); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if len(snapshot.Globals) > 0 {
		select {
		case out <- appsync.Frame{Type: appsync.FrameGlobals, Globals: snapshot.Globals}:
		case <-ctx.Done():
		}
	}

	cs.readLoop(ctx, conn, in, out)
	cancel()
	<-writeDone
	conn.Close(websocket.StatusNormalClosure, "session closed")
}

// readLoop reads verb requests until the connection drops. Each verb is
// served on its own goroutine so a slow tool call does not block later
// frames; replies are matched by ID on the client side.
func (cs *ChannelServer) readLoop(ctx context.Context, conn *websocket.Conn, in *Instance, out chan<- appsync.Frame) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame appsync.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if err := frame.Validate(); err != nil {
			cs.reply(ctx, out, frame.ID, nil, err)
			continue
		}

		go func(frame appsync.Frame) {
			result, err := cs.dispatch(ctx, in, &frame)
			cs.reply(ctx, out, frame.ID, result, err)
		}(frame)
	}
}

func (cs *ChannelServer) dispatch(ctx context.Context, in *Instance, frame *appsync.Frame) (json.RawMessage, error) {
	switch frame.Type {
	case appsync.FrameCallTool:
		return in.CallTool(ctx, frame.Tool, frame.Args)
	case appsync.FrameSendFollowUp:
		return nil, in.SendFollowUpMessage(ctx, frame.Text)
	case appsync.FrameOpenExternal:
		return nil, in.OpenExternal(ctx, frame.Href)
	case appsync.FrameRequestDisplayMode:
		granted, err := in.RequestDisplayMode(ctx, frame.Mode)
		if err != nil {
			return nil, err
		}
		return json.Marshal(granted)
	case appsync.FrameSetWidgetState:
		return nil, in.SetWidgetState(ctx, frame.State)
	default:
		return nil, fmt.Errorf("host: unexpected frame type %q", frame.Type)
	}
}

func (cs *ChannelServer) reply(ctx context.Context, out chan<- appsync.Frame, id int64, result json.RawMessage, err error) {
	frame := appsync.Frame{Type: appsync.FrameReply, ID: id, Result: result}
	if err != nil {
		frame.Error = err.Error()
	}
	select {
	case out <- frame:
	case <-ctx.Done():
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame appsync.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("host: marshal frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// IsClosedError reports whether err is a normal connection teardown rather
// than a fault worth logging.
func IsClosedError(err error) bool {
	if err == nil {
		return false
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.StatusNormalClosure || ce.Code == websocket.StatusGoingAway
	}
	return errors.Is(err, context.Canceled)
}
