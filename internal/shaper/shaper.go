// Package shaper defines the contract between the tool invocation pipeline
// and the domain data shapers (stocks, catalog, sports, mortgage).
//
// A shaper turns a domain response into a compact, display-ready record. Its
// outcome is a tagged [Result]: either Ok with the shaped value, or a
// [DomainError] describing an upstream failure. The distinction stays visible
// throughout the server internals; it is flattened into the errors-as-data
// payload only at the protocol edge ([Result.Flatten]), because embedded
// documents render a fallback UI from that payload instead of failing the
// whole exchange.
package shaper

import (
	"context"
	"encoding/json"
)

// Func executes one tool's shaping for already-validated arguments. args is
// the raw JSON argument object; implementations decode it into their own
// typed struct.
//
// A Func must be deterministic in shape: for fixed arguments and fixed
// upstream data, the field names and nesting of the returned value are
// identical between calls — embedded documents compile their rendering
// against that shape once.
//
// Funcs return domain-tier failures inside the Result. A non-Result Go error
// escaping a Func would be a programming bug, so the signature does not
// allow one.
type Func func(ctx context.Context, args json.RawMessage) Result

// Result is the tagged outcome of shaping: Ok(value) or DomainError.
type Result struct {
	value any
	err   *DomainError
}

// Ok wraps a shaped, JSON-serializable record.
func Ok(value any) Result {
	return Result{value: value}
}

// Fail wraps an upstream failure with optional context for the fallback UI.
func Fail(message string, context map[string]any) Result {
	return Result{err: &DomainError{Message: message, Context: context}}
}

// FromError wraps err as a domain failure. Convenience for the common
// "upstream call failed" tail of a shaper.
func FromError(err error, context map[string]any) Result {
	return Fail(err.Error(), context)
}

// OK reports whether the result carries a shaped value.
func (r Result) OK() bool { return r.err == nil }

// Value returns the shaped record; nil for failed results.
func (r Result) Value() any { return r.value }

// Err returns the domain error; nil for successful results.
func (r Result) Err() *DomainError { return r.err }

// Flatten erases the tag for the protocol edge: a successful result yields
// its value unchanged, a failed one yields an error-flagged record the
// embedded document can render as a fallback. Only the code assembling the
// outgoing tool result should call this.
func (r Result) Flatten() any {
	if r.err == nil {
		return r.value
	}
	out := map[string]any{
		"error":   true,
		"message": r.err.Message,
	}
	for k, v := range r.err.Context {
		if k == "error" || k == "message" {
			continue
		}
		out[k] = v
	}
	return out
}

// DomainError describes an upstream data-source failure. It deliberately
// does not implement the error interface used at the protocol tier — domain
// failures are data, not faults.
type DomainError struct {
	// Message is the human-readable failure description.
	Message string

	// Context carries extra fields for the fallback UI (e.g. the ticker that
	// failed). Keys "error" and "message" are reserved.
	Context map[string]any
}
