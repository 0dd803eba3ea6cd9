package backend

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/caremarket/session/roles"
	"github.com/go-playground/errors/v5"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const memoryTokenLife = time.Hour

// Memory is an in-memory implementation of the backend contract, used for
// tests and local development. It mints HS256-signed access tokens and
// mirrors the hosted backend's notification semantics.
type Memory struct {
	secret []byte
	notifier

	mu       sync.Mutex
	users    map[string]*memoryUser
	profiles map[uuid.UUID]*Profile
	roleRows []memoryRoleRow
	refresh  map[string]string // refresh token -> email
	current  *Session
}

type memoryUser struct {
	id       uuid.UUID
	email    string
	password string
	metadata map[string]string
}

type memoryRoleRow struct {
	userID uuid.UUID
	role   roles.Role
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}

	return &Memory{
		secret:   secret,
		users:    make(map[string]*memoryUser),
		profiles: make(map[uuid.UUID]*Profile),
		refresh:  make(map[string]string),
	}
}

// Register seeds a user account without signing it in.
func (m *Memory) Register(email, password string, metadata map[string]string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := &memoryUser{
		id:       uuid.Must(uuid.NewV4()),
		email:    email,
		password: password,
		metadata: metadata,
	}
	m.users[email] = user

	return user.id
}

// OnSessionChange registers fn for session-change notifications.
func (m *Memory) OnSessionChange(fn func(*Session)) (unsubscribe func()) {
	return m.subscribe(fn)
}

// Session returns the current session, or nil when signed out.
func (m *Memory) Session(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current, nil
}

// SignInWithPassword authenticates credentials against the registered users.
func (m *Memory) SignInWithPassword(_ context.Context, email, password string) (*Session, error) {
	m.mu.Lock()
	user, ok := m.users[email]
	if !ok || user.password != password {
		m.mu.Unlock()

		return nil, NewAuthError(400, "Invalid login credentials")
	}

	sess, err := m.newSessionLocked(user)
	if err != nil {
		m.mu.Unlock()

		return nil, errors.Wrap(err, "Memory.newSessionLocked()")
	}
	m.current = sess
	m.mu.Unlock()

	m.notify(sess)

	return sess, nil
}

// SignUp registers a new account and signs it in.
func (m *Memory) SignUp(_ context.Context, email, password string, metadata map[string]string) (*Session, error) {
	m.mu.Lock()
	if _, exists := m.users[email]; exists {
		m.mu.Unlock()

		return nil, NewAuthError(422, "User already registered")
	}

	user := &memoryUser{
		id:       uuid.Must(uuid.NewV4()),
		email:    email,
		password: password,
		metadata: metadata,
	}
	m.users[email] = user

	sess, err := m.newSessionLocked(user)
	if err != nil {
		m.mu.Unlock()

		return nil, errors.Wrap(err, "Memory.newSessionLocked()")
	}
	m.current = sess
	m.mu.Unlock()

	m.notify(sess)

	return sess, nil
}

// SignOut clears the current session.
func (m *Memory) SignOut(_ context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	m.notify(nil)

	return nil
}

// RestoreSession re-establishes a session from a token pair.
func (m *Memory) RestoreSession(_ context.Context, token *oauth2.Token) (*Session, error) {
	m.mu.Lock()

	email, ok := m.refresh[token.RefreshToken]
	if !ok {
		m.mu.Unlock()

		return nil, NewAuthError(401, "invalid refresh token")
	}
	user, ok := m.users[email]
	if !ok {
		m.mu.Unlock()

		return nil, NewAuthError(401, "user no longer exists")
	}

	sess, err := m.newSessionLocked(user)
	if err != nil {
		m.mu.Unlock()

		return nil, errors.Wrap(err, "Memory.newSessionLocked()")
	}
	m.current = sess
	m.mu.Unlock()

	m.notify(sess)

	return sess, nil
}

// UpsertProfile inserts or updates the user-profile record.
func (m *Memory) UpsertProfile(_ context.Context, profile *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := *profile
	m.profiles[profile.ID] = &p

	return nil
}

// Profile returns the stored profile record, or nil when absent.
func (m *Memory) Profile(userID uuid.UUID) *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.profiles[userID]
}

// UserRoles returns the role assignments for the user in insertion order.
func (m *Memory) UserRoles(_ context.Context, userID uuid.UUID) ([]roles.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list []roles.Role
	for _, row := range m.roleRows {
		if row.userID == userID {
			list = append(list, row.role)
		}
	}

	return list, nil
}

// AssignRole inserts a new role assignment for the user.
func (m *Memory) AssignRole(_ context.Context, userID uuid.UUID, role roles.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.roleRows = append(m.roleRows, memoryRoleRow{userID: userID, role: role})

	return nil
}

func (m *Memory) newSessionLocked(user *memoryUser) (*Session, error) {
	expiry := time.Now().Add(memoryTokenLife)

	meta := make(map[string]any, len(user.metadata))
	for k, v := range user.metadata {
		meta[k] = v
	}
	claims := jwt.MapClaims{
		"sub":           user.id.String(),
		"email":         user.email,
		"user_metadata": meta,
		"exp":           expiry.Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, errors.Wrap(err, "jwt.Token.SignedString()")
	}

	refreshToken := uuid.Must(uuid.NewV4()).String()
	m.refresh[refreshToken] = user.email

	return &Session{
		Token: &oauth2.Token{
			AccessToken:  access,
			RefreshToken: refreshToken,
			TokenType:    "bearer",
			Expiry:       expiry,
		},
		Identity: &Identity{ID: user.id, Email: user.email, Metadata: user.metadata},
	}, nil
}
