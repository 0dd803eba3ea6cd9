package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/caremarket/session/backend"
	"github.com/caremarket/session/roles"
	"github.com/caremarket/session/sessioninfo"
	"github.com/gofrs/uuid"
	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeAuth is a scriptable backend.SessionClient for driving the state machine.
type fakeAuth struct {
	mu          sync.Mutex
	current     *backend.Session
	fns         []func(*backend.Session)
	sessionErr  error
	signInErr   error
	signUpErr   error
	signOutErr  error
	sessionHook func()
}

func (f *fakeAuth) Session(_ context.Context) (*backend.Session, error) {
	f.mu.Lock()
	sess := f.current
	err := f.sessionErr
	hook := f.sessionHook
	f.mu.Unlock()

	// simulates a change notification arriving while the query is in flight
	if hook != nil {
		hook()
	}

	if err != nil {
		return nil, err
	}

	return sess, nil
}

func (f *fakeAuth) OnSessionChange(fn func(*backend.Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fns = append(f.fns, fn)

	return func() {}
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, _, _ string) (*backend.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}

	f.mu.Lock()
	sess := f.current
	f.mu.Unlock()
	f.emit(sess)

	return sess, nil
}

func (f *fakeAuth) SignUp(_ context.Context, _, _ string, _ map[string]string) (*backend.Session, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}

	f.mu.Lock()
	sess := f.current
	f.mu.Unlock()
	f.emit(sess)

	return sess, nil
}

func (f *fakeAuth) SignOut(_ context.Context) error {
	if f.signOutErr != nil {
		return f.signOutErr
	}

	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()
	f.emit(nil)

	return nil
}

func (f *fakeAuth) RestoreSession(_ context.Context, _ *oauth2.Token) (*backend.Session, error) {
	f.mu.Lock()
	sess := f.current
	f.mu.Unlock()
	f.emit(sess)

	return sess, nil
}

func (f *fakeAuth) emit(sess *backend.Session) {
	f.mu.Lock()
	fns := make([]func(*backend.Session), len(f.fns))
	copy(fns, f.fns)
	f.mu.Unlock()

	for _, fn := range fns {
		fn(sess)
	}
}

// fakeResolver returns fixed roles, optionally blocking until released so
// tests can interleave sign-out with an in-flight resolution.
type fakeResolver struct {
	roles []roles.Role
	block chan struct{}
}

func (f *fakeResolver) Resolve(_ context.Context, identity *backend.Identity) *sessioninfo.ResolvedSession {
	if f.block != nil {
		<-f.block
	}

	return &sessioninfo.ResolvedSession{Identity: identity, Roles: f.roles, Loading: false}
}

func testSession(t *testing.T, auth backend.SessionClient, res Resolver) *Session {
	t.Helper()

	sc := securecookie.New(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32))
	s := New(auth, res, sc)
	t.Cleanup(s.Close)

	return s
}

func activeSession(t *testing.T) *backend.Session {
	t.Helper()

	return &backend.Session{
		Token: &oauth2.Token{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(time.Hour),
		},
		Identity: &backend.Identity{
			ID:    uuid.Must(uuid.NewV4()),
			Email: "sam@example.com",
		},
	}
}

func TestSession_Run_ExistingSession(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{current: activeSession(t)}
	s := testSession(t, auth, &fakeResolver{roles: []roles.Role{roles.Doctor}})

	require.NoError(t, s.Run(context.Background()))

	snap, err := s.await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Equal(t, []roles.Role{roles.Doctor}, snap.Roles)
	assert.False(t, snap.Loading)
	assert.Equal(t, "sam@example.com", snap.Identity.Email)
}

func TestSession_Run_NoSession(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	s := testSession(t, auth, &fakeResolver{roles: []roles.Role{roles.Patient}})

	require.NoError(t, s.Run(context.Background()))

	snap := s.State()
	assert.Equal(t, StateAnonymous, snap.State)
	assert.Empty(t, snap.Roles)
	assert.False(t, snap.Loading)
}

func TestSession_Run_SessionQueryFailure(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{sessionErr: backend.NewAuthError(0, "backend unreachable")}
	s := testSession(t, auth, &fakeResolver{roles: []roles.Role{roles.Patient}})

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, StateAnonymous, s.State().State)
}

func TestSession_Run_NotificationDuringInitialQuery(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{current: activeSession(t)}
	s := testSession(t, auth, &fakeResolver{roles: []roles.Role{roles.Doctor}})

	// a sign-out notification lands while the one-shot query is in flight;
	// its stale result must not resurrect the session
	auth.sessionHook = func() { auth.emit(nil) }

	require.NoError(t, s.Run(context.Background()))

	assert.Never(t, func() bool {
		return s.State().State == StateAuthenticated
	}, 200*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, StateAnonymous, s.State().State)
}

func TestSession_Run_Twice(t *testing.T) {
	t.Parallel()

	s := testSession(t, &fakeAuth{}, &fakeResolver{})

	require.NoError(t, s.Run(context.Background()))
	require.Error(t, s.Run(context.Background()))
}

func TestSession_SignIn_Success(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	s := testSession(t, auth, &fakeResolver{roles: []roles.Role{roles.Clinic}})
	require.NoError(t, s.Run(context.Background()))

	auth.mu.Lock()
	auth.current = activeSession(t)
	auth.mu.Unlock()

	require.NoError(t, s.SignIn(context.Background(), "sam@example.com", "password"))

	snap, err := s.await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Equal(t, []roles.Role{roles.Clinic}, snap.Roles)
}

func TestSession_SignIn_BadCredentials(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{signInErr: backend.NewAuthError(400, "Invalid login credentials")}
	s := testSession(t, auth, &fakeResolver{roles: []roles.Role{roles.Patient}})
	require.NoError(t, s.Run(context.Background()))

	err := s.SignIn(context.Background(), "sam@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, backend.IsAuthError(err))

	// state unchanged: still anonymous, never authenticated
	assert.Equal(t, StateAnonymous, s.State().State)
}

func TestSession_SignOut_Failure(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{current: activeSession(t)}
	s := testSession(t, auth, &fakeResolver{roles: []roles.Role{roles.Doctor}})
	require.NoError(t, s.Run(context.Background()))

	if _, err := s.await(context.Background()); err != nil {
		t.Fatal(err)
	}

	auth.signOutErr = backend.NewAuthError(0, "network failure")
	require.Error(t, s.SignOut(context.Background()))

	// failure leaves state unchanged
	assert.Equal(t, StateAuthenticated, s.State().State)
}

func TestSession_SignOut_SupersedesInflightResolution(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	auth := &fakeAuth{}
	s := testSession(t, auth, &fakeResolver{roles: []roles.Role{roles.Doctor}, block: release})
	require.NoError(t, s.Run(context.Background()))

	auth.mu.Lock()
	auth.current = activeSession(t)
	auth.mu.Unlock()

	// sign-in starts a resolution that blocks on release
	require.NoError(t, s.SignIn(context.Background(), "sam@example.com", "password"))
	require.True(t, s.State().Loading)

	require.NoError(t, s.SignOut(context.Background()))
	assert.Equal(t, StateAnonymous, s.State().State)

	// the stale resolution completes but must not resurrect Authenticated
	close(release)
	assert.Never(t, func() bool {
		return s.State().State == StateAuthenticated
	}, 200*time.Millisecond, 20*time.Millisecond)

	snap := s.State()
	assert.Equal(t, StateAnonymous, snap.State)
	assert.Empty(t, snap.Roles)
}

func TestSession_Subscribe(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	s := testSession(t, auth, &fakeResolver{roles: []roles.Role{roles.Driver}})
	require.NoError(t, s.Run(context.Background()))

	first, unsubFirst := s.Subscribe()
	second, unsubSecond := s.Subscribe()
	defer unsubSecond()

	// both channels are primed with the current snapshot
	assert.Equal(t, StateAnonymous, (<-first).State)
	assert.Equal(t, StateAnonymous, (<-second).State)

	auth.mu.Lock()
	auth.current = activeSession(t)
	auth.mu.Unlock()
	require.NoError(t, s.SignIn(context.Background(), "sam@example.com", "password"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-second:
			if snap.State == StateAuthenticated {
				assert.Equal(t, []roles.Role{roles.Driver}, snap.Roles)
			} else {
				continue
			}
		case <-deadline:
			t.Fatal("timed out waiting for authenticated snapshot")
		}

		break
	}

	unsubFirst()
	require.NoError(t, s.SignOut(context.Background()))

	assert.Equal(t, StateAnonymous, (<-second).State)

	// unsubscribed channel no longer receives; latest value it holds is stale
	select {
	case snap, ok := <-first:
		if ok && snap.State == StateAnonymous && len(snap.Roles) == 0 {
			t.Error("unsubscribed channel received post-unsubscribe snapshot")
		}
	default:
	}
}
