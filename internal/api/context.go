package api

import (
	"context"

	"github.com/fleetwatch/controlplane/internal/auth"
)

type contextKey string

const principalContextKey contextKey = "principal"

// withPrincipal adds the authenticated principal to the context.
func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// principalFromContext retrieves the authenticated principal, if any.
func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(auth.Principal)
	return p, ok
}
