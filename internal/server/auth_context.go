package server

import (
	"context"

	"inkboard/internal/models"
)

type authContextKey struct{}

// authPrincipal is the caller resolved from the session cookie.
type authPrincipal struct {
	User  *models.User
	Token string
}

func contextWithAuthPrincipal(ctx context.Context, principal authPrincipal) context.Context {
	return context.WithValue(ctx, authContextKey{}, principal)
}

func authPrincipalFromContext(ctx context.Context) (authPrincipal, bool) {
	if ctx == nil {
		return authPrincipal{}, false
	}
	principal, ok := ctx.Value(authContextKey{}).(authPrincipal)
	return principal, ok && principal.User != nil
}

func userFromContext(ctx context.Context) *models.User {
	principal, ok := authPrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	return principal.User
}
