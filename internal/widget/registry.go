package widget

import (
	"errors"
	"fmt"
)

// ErrUnknownResource is wrapped by lookup errors for URIs no widget owns.
// Callers at the protocol boundary convert it into an error payload rather
// than letting it escape as a transport fault.
var ErrUnknownResource = errors.New("unknown resource")

// UnknownResourceError carries the offending URI for diagnosability.
type UnknownResourceError struct {
	URI string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("widget: unknown resource %q", e.URI)
}

// Unwrap makes the error match [ErrUnknownResource] via errors.Is.
func (e *UnknownResourceError) Unwrap() error { return ErrUnknownResource }

// Registry is the process-wide widget catalog. It is a bijection on each key
// independently: every tool id maps to exactly one descriptor and every URI
// maps to exactly one descriptor. Built once by [NewRegistry]; read-only
// afterwards.
type Registry struct {
	ordered []Descriptor
	byTool  map[string]Descriptor
	byURI   map[string]Descriptor
}

// NewRegistry validates and indexes the given descriptors. Registration
// order is preserved — [Registry.List] returns descriptors in exactly this
// order, since some hosts render discovery lists in registration order.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		ordered: make([]Descriptor, 0, len(descriptors)),
		byTool:  make(map[string]Descriptor, len(descriptors)),
		byURI:   make(map[string]Descriptor, len(descriptors)),
	}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byTool[d.ToolID]; dup {
			return nil, fmt.Errorf("widget: duplicate tool id %q", d.ToolID)
		}
		if _, dup := r.byURI[d.URI]; dup {
			return nil, fmt.Errorf("widget: duplicate resource uri %q", d.URI)
		}
		r.ordered = append(r.ordered, d)
		r.byTool[d.ToolID] = d
		r.byURI[d.URI] = d
	}
	return r, nil
}

// List returns every registered descriptor in registration order. The
// returned slice is a copy.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByTool returns the descriptor paired with toolID, or false when the tool
// has no visual component (plain tools are allowed).
func (r *Registry) ByTool(toolID string) (Descriptor, bool) {
	d, ok := r.byTool[toolID]
	return d, ok
}

// ByURI returns the descriptor owning uri. Unknown URIs yield an
// [UnknownResourceError].
func (r *Registry) ByURI(uri string) (Descriptor, error) {
	d, ok := r.byURI[uri]
	if !ok {
		return Descriptor{}, &UnknownResourceError{URI: uri}
	}
	return d, nil
}

// Len returns the number of registered widgets.
func (r *Registry) Len() int { return len(r.ordered) }
