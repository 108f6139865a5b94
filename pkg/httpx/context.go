package httpx

import "context"

type ctxKey string

// CtxKeyUserID carries the authenticated user's ID once the request has
// passed the auth gate. Rate limiting keys off it for per-user limits.
const CtxKeyUserID ctxKey = "user_id"

// WithUserID attaches an authenticated user ID to the request context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxKeyUserID, id)
}

// UserIDFromContext returns the authenticated user ID, empty when the
// request never passed the auth gate.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}
