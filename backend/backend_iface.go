package backend

import (
	"context"

	"github.com/caremarket/session/roles"
	"github.com/gofrs/uuid"
	"golang.org/x/oauth2"
)

var (
	_ SessionClient = (*Client)(nil)
	_ SessionClient = (*Memory)(nil)
	_ RecordStore   = (*Client)(nil)
	_ RecordStore   = (*Memory)(nil)
)

// SessionClient is the auth surface of the hosted backend.
type SessionClient interface {
	// Session returns the current session, or nil when signed out.
	Session(ctx context.Context) (*Session, error)

	// OnSessionChange registers fn for session-change notifications. fn fires
	// on sign-in, sign-out, and token refresh, in subscription order. The
	// returned function unsubscribes.
	OnSessionChange(fn func(*Session)) (unsubscribe func())

	// SignInWithPassword authenticates credentials. It fails with an AuthError
	// on bad credentials.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignUp registers a new account with the given profile metadata. It fails
	// with an AuthError on duplicate or invalid input.
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*Session, error)

	// SignOut terminates the current session. It fails with an AuthError on
	// network failure.
	SignOut(ctx context.Context) error

	// RestoreSession re-establishes a session from a previously issued token
	// pair, refreshing the access token when expired.
	RestoreSession(ctx context.Context, token *oauth2.Token) (*Session, error)
}

// RecordStore is the record surface of the hosted backend used by role
// resolution. All methods fail with a StorageError.
type RecordStore interface {
	// UpsertProfile inserts or updates the user-profile record.
	UpsertProfile(ctx context.Context, profile *Profile) error

	// UserRoles returns the role assignments for the user in backend order.
	UserRoles(ctx context.Context, userID uuid.UUID) ([]roles.Role, error)

	// AssignRole inserts a new role assignment for the user.
	AssignRole(ctx context.Context, userID uuid.UUID, role roles.Role) error
}
