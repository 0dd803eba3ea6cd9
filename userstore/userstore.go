// Package userstore implements the profile and role-assignment storage driver
// for deployments backed directly by PostgreSQL instead of the hosted record
// API.
package userstore

import (
	"context"
	"time"

	"github.com/caremarket/session/backend"
	"github.com/caremarket/session/resolver"
	"github.com/caremarket/session/roles"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/go-playground/errors/v5"
	"github.com/gofrs/uuid"
	"go.opentelemetry.io/otel"
)

const name = "github.com/caremarket/session/userstore"

var (
	_ resolver.ProfileStore = (*Driver)(nil)
	_ resolver.RoleStore    = (*Driver)(nil)
)

// Driver is the PostgreSQL storage driver for profiles and role assignments.
type Driver struct {
	conn Queryer
}

// NewDriver creates a new Driver over the given connection.
func NewDriver(conn Queryer) *Driver {
	return &Driver{
		conn: conn,
	}
}

// UpsertProfile inserts or updates the user-profile record.
func (d *Driver) UpsertProfile(ctx context.Context, profile *backend.Profile) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Driver.UpsertProfile()")
	defer span.End()

	query := `
		INSERT INTO "Profiles"
			("Id", "Email", "FullName", "UpdatedAt")
		VALUES
			($1, $2, $3, $4)
		ON CONFLICT ("Id") DO UPDATE SET
			"Email" = EXCLUDED."Email",
			"FullName" = EXCLUDED."FullName",
			"UpdatedAt" = EXCLUDED."UpdatedAt"`

	if _, err := d.conn.Exec(ctx, query, profile.ID, profile.Email, profile.FullName, time.Now()); err != nil {
		return backend.NewStorageError("UpsertProfile", errors.Wrapf(err, "failed to upsert Profiles row for %s", profile.ID))
	}

	return nil
}

// UserRoles returns the role assignments for the user, oldest first.
func (d *Driver) UserRoles(ctx context.Context, userID uuid.UUID) ([]roles.Role, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Driver.UserRoles()")
	defer span.End()

	query := `
		SELECT "Role"
		FROM "UserRoles"
		WHERE "UserId" = $1
		ORDER BY "CreatedAt" ASC`

	var list []roles.Role
	if err := pgxscan.Select(ctx, d.conn, &list, query, userID); err != nil {
		return nil, backend.NewStorageError("UserRoles", errors.Wrapf(err, "failed to scan UserRoles rows for %s", userID))
	}

	return list, nil
}

// AssignRole inserts a new role assignment for the user.
func (d *Driver) AssignRole(ctx context.Context, userID uuid.UUID, role roles.Role) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Driver.AssignRole()")
	defer span.End()

	id, err := uuid.NewV4()
	if err != nil {
		return backend.NewStorageError("AssignRole", errors.Wrap(err, "uuid.NewV4()"))
	}

	query := `
		INSERT INTO "UserRoles"
			("Id", "UserId", "Role", "CreatedAt")
		VALUES
			($1, $2, $3, $4)`

	if _, err := d.conn.Exec(ctx, query, id, userID, role.String(), time.Now()); err != nil {
		return backend.NewStorageError("AssignRole", errors.Wrapf(err, "failed to insert UserRoles row for %s", userID))
	}

	return nil
}
