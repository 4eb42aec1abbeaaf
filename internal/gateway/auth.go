package gateway

import (
	"context"
	"net/http"

	"github.com/fleetwatch/controlplane/internal/auth"
)

// Principal is the authenticated identity attached to a connection after
// upgrade (§4.2, GLOSSARY).
type Principal = auth.Principal

// authenticate extracts the API key from the request, hashes it, and
// looks up the owning principal. It never logs the raw key.
func (g *Gateway) authenticate(ctx context.Context, r *http.Request) (Principal, error) {
	return auth.Authenticate(ctx, g.store, r)
}
