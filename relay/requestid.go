package relay

import "context"

type requestIDKey struct{}

// WithRequestID attaches a request id for log correlation and the history
// store. The HTTP layer sets one per request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the attached request id, or the empty string.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
