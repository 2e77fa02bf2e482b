// Package runtimectx carries per-request identifiers (thread, user, session)
// through the executor and into every node and tool invocation, grounded on
// the teacher's session.RunContext.
package runtimectx

import "context"

// RunContext is immutable metadata for one request, attached to ctx at the
// HTTP/SSE Gateway boundary and read by any component that needs request
// identity (tool handlers scoping data by user, telemetry correlation).
type RunContext struct {
	// ThreadID identifies the conversation (spec.md §3).
	ThreadID string
	// UserID identifies the end user; defaults to "default_user" per spec.md
	// §6.1 when the client omits it.
	UserID string
	// SessionID groups related requests for observability; may be empty.
	SessionID string
}

// DefaultUserID is substituted for an empty UserID (spec.md §6.1).
const DefaultUserID = "default_user"

// WithUserIDDefault returns rc with UserID set to DefaultUserID if empty.
func (rc RunContext) WithUserIDDefault() RunContext {
	if rc.UserID == "" {
		rc.UserID = DefaultUserID
	}
	return rc
}

type contextKey struct{}

// NewContext returns a context carrying rc, retrievable via FromContext.
func NewContext(ctx context.Context, rc RunContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext retrieves the RunContext attached by NewContext, or the zero
// value and false if none is present.
func FromContext(ctx context.Context) (RunContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(RunContext)
	return rc, ok
}
