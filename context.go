package perimeter

import (
	"context"

	"github.com/google/uuid"
)

type correlationIDKey struct{}

// WithCorrelationID returns a context carrying the given correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext returns the correlation id from the context, or
// empty when none was set.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// ensureCorrelationID resolves the id for the current operation: explicit
// value first, then the context, then a fresh UUID. Every audit event
// carries a non-empty correlation id because of this.
func ensureCorrelationID(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
