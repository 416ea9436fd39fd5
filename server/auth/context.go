package auth

import "context"

type contextKey int

// UserIDContextKey is the context key of the authenticated user id.
const UserIDContextKey contextKey = iota

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID int32) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// GetUserID returns the authenticated user id, or 0 for anonymous requests.
func GetUserID(ctx context.Context) int32 {
	userID, _ := ctx.Value(UserIDContextKey).(int32)
	return userID
}
