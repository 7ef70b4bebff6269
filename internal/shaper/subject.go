package shaper

import "context"

type subjectKey struct{}

// WithSubject attaches the conversation subject to ctx. Shapers that keep
// per-conversation state (the shopping cart) read it back with
// [SubjectFrom].
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFrom returns the subject attached by [WithSubject], or "unknown"
// when the request carried none.
func SubjectFrom(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}
