package auth

import "context"

type userIDContextKey struct{}

// ContextWithUserID stores the authenticated user id in the context.
func ContextWithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, id)
}

// UserIDFromContext returns the authenticated user id, or zero when the
// request is anonymous.
func UserIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDContextKey{}).(int64)
	return id
}
