package session

import (
	"context"

	"github.com/caremarket/session/backend"
	"github.com/caremarket/session/resolver"
	"github.com/caremarket/session/sessioninfo"
)

var _ Resolver = (*resolver.RoleResolver)(nil)

// Resolver derives the resolved session for an authenticated identity.
type Resolver interface {
	// Resolve produces the identity's resolved session. It never fails
	// outward; internal failures degrade to the default role.
	Resolve(ctx context.Context, identity *backend.Identity) *sessioninfo.ResolvedSession
}
