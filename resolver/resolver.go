// Package resolver derives a user's role list from an authenticated identity,
// provisioning the default role when none exists.
package resolver

import (
	"context"

	"github.com/caremarket/session/backend"
	"github.com/caremarket/session/roles"
	"github.com/caremarket/session/sessioninfo"
	"github.com/cccteam/logger"
	"github.com/go-playground/errors/v5"
	"github.com/gofrs/uuid"
	"go.opentelemetry.io/otel"
)

const name = "github.com/caremarket/session/resolver"

// RoleResolver produces a resolved session for an authenticated identity.
type RoleResolver struct {
	profiles ProfileStore
	roles    RoleStore
}

// New creates a RoleResolver over the given stores.
func New(profiles ProfileStore, roleStore RoleStore) *RoleResolver {
	return &RoleResolver{
		profiles: profiles,
		roles:    roleStore,
	}
}

// Resolve synchronizes the profile record, fetches the identity's role
// assignments, and provisions the default role when none exist.
//
// Resolve never fails outward: every internal failure degrades to the default
// role so a transient storage error cannot block a user from reaching a
// dashboard. Failures are logged, not surfaced.
func (r *RoleResolver) Resolve(ctx context.Context, identity *backend.Identity) *sessioninfo.ResolvedSession {
	ctx, span := otel.Tracer(name).Start(ctx, "RoleResolver.Resolve()")
	defer span.End()

	profile := &backend.Profile{
		ID:       identity.ID,
		Email:    identity.Email,
		FullName: identity.DisplayName(),
	}
	if err := r.profiles.UpsertProfile(ctx, profile); err != nil {
		// Profile sync is best effort. The identity from the auth service
		// remains authoritative for this session.
		logger.FromCtx(ctx).Error(errors.Wrap(err, "resolver.ProfileStore.UpsertProfile()"))
	}

	return &sessioninfo.ResolvedSession{
		Identity: identity,
		Roles:    r.resolveRoles(ctx, identity.ID),
		Loading:  false,
	}
}

func (r *RoleResolver) resolveRoles(ctx context.Context, userID uuid.UUID) []roles.Role {
	list, err := r.roles.UserRoles(ctx, userID)
	if err != nil {
		logger.FromCtx(ctx).Error(errors.Wrap(err, "resolver.RoleStore.UserRoles()"))

		return []roles.Role{roles.Default}
	}

	if len(list) == 0 {
		if err := r.roles.AssignRole(ctx, userID, roles.Default); err != nil {
			// The user still gets default access for this session even when
			// provisioning the assignment failed.
			logger.FromCtx(ctx).Error(errors.Wrap(err, "resolver.RoleStore.AssignRole()"))
		}

		return []roles.Role{roles.Default}
	}

	return list
}
