package domain

import "context"

type contextKey string

const operatorIDKey contextKey = "operator_id"

// WithOperatorID stores the authenticated operator id on the context.
func WithOperatorID(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorIDKey, operatorID)
}

// OperatorIDFromContext returns the authenticated operator id, or "" when
// the request carried no bearer identity.
func OperatorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(operatorIDKey).(string); ok {
		return v
	}
	return ""
}
