// Package sessioninfo carries the resolved session through request contexts.
package sessioninfo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/caremarket/session/backend"
	"github.com/caremarket/session/roles"
)

// ResolvedSession is the in-memory composite of identity, role list, and
// loading flag produced by role resolution.
type ResolvedSession struct {
	Identity *backend.Identity
	Roles    []roles.Role
	Loading  bool
}

// Primary returns the primary role for the session.
func (s *ResolvedSession) Primary() roles.Role {
	return roles.Primary(s.Roles)
}

// ctxKey is a type for storing values in the request context
type ctxKey string

// CtxResolvedSession is the key used to store the ResolvedSession in the context.
const CtxResolvedSession ctxKey = "resolvedSession"

// NewCtx returns a context carrying the resolved session.
func NewCtx(ctx context.Context, session *ResolvedSession) context.Context {
	return context.WithValue(ctx, CtxResolvedSession, session)
}

// FromRequest returns the resolved session from the request context.
func FromRequest(r *http.Request) *ResolvedSession {
	return FromCtx(r.Context())
}

// FromCtx returns the resolved session from the context.
func FromCtx(ctx context.Context) *ResolvedSession {
	session, ok := ctx.Value(CtxResolvedSession).(*ResolvedSession)
	if !ok {
		panic(fmt.Sprintf("failed to find %s in request context", CtxResolvedSession))
	}

	return session
}
