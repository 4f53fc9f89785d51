package httpx

import "context"

type ctxKey string

const (
	// CtxKeyUserID carries the authenticated user's ID once session
	// authentication middleware has run.
	CtxKeyUserID ctxKey = "user_id"
)

// UserIDFromCtx returns the authenticated user ID, or "" when the request is
// anonymous.
func UserIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// WithUserID attaches the authenticated user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxKeyUserID, userID)
}
