package auth

import (
	"context"

	"spendtrack.org/internal/authz"
)

type userContextKey struct{}

// ContextWithUser attaches the resolved current user to the context.
func ContextWithUser(ctx context.Context, user authz.CurrentUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, &user)
}

// UserFromContext extracts the current user from the context.
func UserFromContext(ctx context.Context) (authz.CurrentUser, bool) {
	if ctx == nil {
		return authz.CurrentUser{}, false
	}
	v, ok := ctx.Value(userContextKey{}).(*authz.CurrentUser)
	if !ok || v == nil {
		return authz.CurrentUser{}, false
	}
	return *v, true
}
