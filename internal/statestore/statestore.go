// Package statestore persists widget state keyed by conversation subject and
// widget identity. State is an opaque JSON document written by the embedded
// widget; writes replace the whole document.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Read when no state has been written for a key.
var ErrNotFound = errors.New("statestore: no state for key")

// Key identifies one widget's state within one conversation.
type Key struct {
	// Subject scopes state to a conversation, from the request metadata.
	Subject string
	// WidgetID is the owning widget's tool ID.
	WidgetID string
}

// Store persists widget state. Implementations must treat Write as a full
// replacement and must return the last written bytes verbatim from Read.
// Concurrent writes to the same key are last-write-wins.
type Store interface {
	Write(ctx context.Context, key Key, state json.RawMessage) error
	Read(ctx context.Context, key Key) (json.RawMessage, error)
	Delete(ctx context.Context, key Key) error
}
