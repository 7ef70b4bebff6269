package host

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/natfields/skybridge/pkg/appsync"
)

// Client is the embedded-document side of a sync channel: an [appsync.Host]
// implementation that forwards every verb over the WebSocket and feeds
// incoming global announcements to the handler given at dial time. It is
// what a Go-rendered widget (or a test) attaches its bridge to.
type Client struct {
	conn     *websocket.Conn
	onUpdate func(appsync.GlobalsUpdate)

	mu      sync.Mutex
	pending map[int64]chan appsync.Frame
	nextID  int64
	readErr error

	done      chan struct{}
	closeOnce sync.Once
}

var _ appsync.Host = (*Client)(nil)

// Dial connects to a sync endpoint at base (e.g. "ws://host:8080/sync") for
// the given subject and widget. onUpdate receives every globals frame in
// arrival order, starting with the host's snapshot; it runs on the client's
// receive goroutine, so handlers must not block on verbs issued through this
// same client. Wiring a bridge's Apply there is the intended use.
func Dial(ctx context.Context, base, subject, widgetID string, onUpdate func(appsync.GlobalsUpdate)) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("host client: parse url: %w", err)
	}
	q := u.Query()
	q.Set("subject", subject)
	q.Set("widget", widgetID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("host client: dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		onUpdate: onUpdate,
		pending:  make(map[int64]chan appsync.Frame),
		done:     make(chan struct{}),
	}
	go c.receiveLoop()
	return c, nil
}

// receiveLoop reads frames until the connection drops, dispatching globals
// to onUpdate and replies to their waiting verb.
func (c *Client) receiveLoop() {
	defer c.failPending()

	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		var frame appsync.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case appsync.FrameGlobals:
			if c.onUpdate != nil {
				c.onUpdate(appsync.GlobalsUpdate{Globals: frame.Globals})
			}
		case appsync.FrameReply:
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			if ok {
				delete(c.pending, frame.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- frame
			}
		}
	}
}

// failPending wakes every in-flight verb after the connection drops.
func (c *Client) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan appsync.Frame)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	c.closeOnce.Do(func() { close(c.done) })
}

// roundTrip sends a verb frame and blocks for its reply.
func (c *Client) roundTrip(ctx context.Context, frame appsync.Frame) (appsync.Frame, error) {
	ch := make(chan appsync.Frame, 1)

	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return appsync.Frame{}, fmt.Errorf("host client: connection closed: %w", err)
	}
	c.nextID++
	frame.ID = c.nextID
	c.pending[frame.ID] = ch
	c.mu.Unlock()

	data, err := json.Marshal(frame)
	if err != nil {
		c.abandon(frame.ID)
		return appsync.Frame{}, fmt.Errorf("host client: marshal frame: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.abandon(frame.ID)
		return appsync.Frame{}, fmt.Errorf("host client: write frame: %w", err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return appsync.Frame{}, fmt.Errorf("host client: connection closed")
		}
		if reply.Error != "" {
			return appsync.Frame{}, fmt.Errorf("host client: verb failed: %s", reply.Error)
		}
		return reply, nil
	case <-ctx.Done():
		c.abandon(frame.ID)
		return appsync.Frame{}, ctx.Err()
	}
}

func (c *Client) abandon(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// CallTool implements [appsync.Host].
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	reply, err := c.roundTrip(ctx, appsync.Frame{Type: appsync.FrameCallTool, Tool: name, Args: args})
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

// SendFollowUpMessage implements [appsync.Host].
func (c *Client) SendFollowUpMessage(ctx context.Context, text string) error {
	_, err := c.roundTrip(ctx, appsync.Frame{Type: appsync.FrameSendFollowUp, Text: text})
	return err
}

// OpenExternal implements [appsync.Host].
func (c *Client) OpenExternal(ctx context.Context, href string) error {
	_, err := c.roundTrip(ctx, appsync.Frame{Type: appsync.FrameOpenExternal, Href: href})
	return err
}

// RequestDisplayMode implements [appsync.Host].
func (c *Client) RequestDisplayMode(ctx context.Context, mode appsync.DisplayMode) (appsync.DisplayMode, error) {
	reply, err := c.roundTrip(ctx, appsync.Frame{Type: appsync.FrameRequestDisplayMode, Mode: mode})
	if err != nil {
		return "", err
	}
	var granted appsync.DisplayMode
	if err := json.Unmarshal(reply.Result, &granted); err != nil {
		return "", fmt.Errorf("host client: decode granted mode: %w", err)
	}
	return granted, nil
}

// SetWidgetState implements [appsync.Host].
func (c *Client) SetWidgetState(ctx context.Context, state json.RawMessage) error {
	_, err := c.roundTrip(ctx, appsync.Frame{Type: appsync.FrameSetWidgetState, State: state})
	return err
}

// Close tears the connection down. In-flight verbs fail.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client closed")
}

// Done is closed once the receive loop has exited and no more updates will
// be delivered.
func (c *Client) Done() <-chan struct{} { return c.done }
