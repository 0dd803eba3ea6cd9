package resolver

import (
	"context"

	"github.com/caremarket/session/backend"
	"github.com/caremarket/session/roles"
	"github.com/gofrs/uuid"
)

// ProfileStore synchronizes user-profile records.
type ProfileStore interface {
	// UpsertProfile inserts or updates the user-profile record.
	UpsertProfile(ctx context.Context, profile *backend.Profile) error
}

// RoleStore reads and provisions role assignments.
type RoleStore interface {
	// UserRoles returns the role assignments for the user in backend order.
	UserRoles(ctx context.Context, userID uuid.UUID) ([]roles.Role, error)

	// AssignRole inserts a new role assignment for the user.
	AssignRole(ctx context.Context, userID uuid.UUID, role roles.Role) error
}
