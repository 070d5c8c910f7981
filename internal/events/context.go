package events

import "context"

type sessionIDKey struct{}

// ContextWithSessionID tags ctx with a broker Session's id, so a Bus
// publish deep in a connector or tool call can be attributed without
// threading the id through every call signature.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext recovers the session id ContextWithSessionID set, or
// "" if absent.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}
