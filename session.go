// Package session implements the session bootstrap and role-resolution flow
// for the marketplace: given an authenticated backend session it determines
// the user's access roles and default landing area, with fallback and
// self-healing behavior when role data is missing.
package session

import (
	"context"
	"sync"

	"github.com/caremarket/session/backend"
	"github.com/caremarket/session/internal/cookie"
	"github.com/caremarket/session/roles"
	"github.com/cccteam/logger"
	"github.com/go-playground/errors/v5"
	"github.com/gorilla/securecookie"
	"go.opentelemetry.io/otel"
)

const name = "github.com/caremarket/session"

// State is the lifecycle state of the session context.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Snapshot is the state exposed to consumers: identity, role list, and
// loading flag.
type Snapshot struct {
	State    State
	Identity *backend.Identity
	Roles    []roles.Role
	Loading  bool
}

// Session is the explicitly constructed state owner for the current resolved
// session. It is created at app start, driven by the backend's session-change
// notifications, and torn down with Close. Exactly one exists per running
// client process.
type Session struct {
	auth     backend.SessionClient
	resolver Resolver
	cookies  cookie.Handler

	mu          sync.Mutex
	state       State
	identity    *backend.Identity
	roleList    []roles.Role
	loading     bool
	generation  uint64
	subs        []*stateSubscriber
	nextSubID   int
	baseCtx     context.Context
	unsubscribe func()
}

type stateSubscriber struct {
	id int
	ch chan Snapshot
}

// New creates a Session over the given backend client and resolver. Run must
// be called before the Session reflects backend state.
func New(auth backend.SessionClient, res Resolver, secureCookie *securecookie.SecureCookie, options ...Option) *Session {
	cookieClient := cookie.NewClient(secureCookie)

	s := &Session{
		auth:     auth,
		resolver: res,
		cookies:  cookieClient,
		state:    StateUninitialized,
		loading:  true,
	}

	for _, opt := range options {
		switch o := any(opt).(type) {
		case CookieOption:
			o(cookieClient)
		case sessionOption:
			o(s)
		}
	}

	return s
}

// Run subscribes for session-change notifications and performs the one-shot
// query for an existing session. It may only be called once.
func (s *Session) Run(ctx context.Context) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Session.Run()")
	defer span.End()

	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()

		return errors.New("session.Session: Run may only be called once")
	}
	s.state = StateLoading
	s.loading = true
	s.baseCtx = ctx
	gen := s.generation
	s.mu.Unlock()

	s.unsubscribe = s.auth.OnSessionChange(func(sess *backend.Session) {
		s.apply(s.baseCtx, sess)
	})

	sess, err := s.auth.Session(ctx)
	if err != nil {
		// Treated as signed out; a later backend notification can recover.
		logger.FromCtx(ctx).Error(errors.Wrap(err, "backend.SessionClient.Session()"))
		sess = nil
	}
	s.applyInitial(ctx, gen, sess)

	return nil
}

// Close detaches from the backend notification stream and discards any
// in-flight resolution.
func (s *Session) Close() {
	s.mu.Lock()
	s.generation++
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// SignIn authenticates credentials against the backend. On success the
// backend's own change notification drives the Authenticated transition; no
// state is mutated here. On failure the backend's error is returned and state
// is unchanged.
func (s *Session) SignIn(ctx context.Context, email, password string) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Session.SignIn()")
	defer span.End()

	if _, err := s.auth.SignInWithPassword(ctx, email, password); err != nil {
		return errors.Wrap(err, "backend.SessionClient.SignInWithPassword()")
	}

	return nil
}

// SignUp registers a new account, attaching fullName as profile metadata.
// State propagation follows the same rule as SignIn.
func (s *Session) SignUp(ctx context.Context, email, password, fullName string) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Session.SignUp()")
	defer span.End()

	metadata := map[string]string{}
	if fullName != "" {
		metadata[backend.MetadataFullName] = fullName
	}

	if _, err := s.auth.SignUp(ctx, email, password, metadata); err != nil {
		return errors.Wrap(err, "backend.SessionClient.SignUp()")
	}

	return nil
}

// SignOut signs out of the backend. On success local state clears to
// Anonymous immediately, without waiting for the backend's own notification.
// On failure the error propagates and state is unchanged.
func (s *Session) SignOut(ctx context.Context) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Session.SignOut()")
	defer span.End()

	if err := s.auth.SignOut(ctx); err != nil {
		return errors.Wrap(err, "backend.SessionClient.SignOut()")
	}

	s.mu.Lock()
	s.generation++ // supersedes any in-flight resolution
	s.toAnonymousLocked()
	s.notifyLocked()
	s.mu.Unlock()

	return nil
}

// State returns a snapshot of the current session state.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

// Subscribe registers for state notifications. The channel is primed with the
// current snapshot; every transition then delivers the latest snapshot, with
// subscribers notified in subscription order. A slow consumer observes the
// most recent state rather than the full history. The returned function
// unsubscribes.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs = append(s.subs, &stateSubscriber{id: id, ch: ch})
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)

				return
			}
		}
	}

	return ch, unsubscribe
}

// apply consumes a backend session-change event. A nil session transitions to
// Anonymous; a non-nil session starts an asynchronous role resolution tagged
// with a generation so superseded results are discarded.
func (s *Session) apply(ctx context.Context, sess *backend.Session) {
	s.mu.Lock()
	s.applyLocked(ctx, sess)
}

// applyInitial consumes the one-shot session query from Run. The result is
// discarded when a change notification already advanced the generation.
func (s *Session) applyInitial(ctx context.Context, gen uint64, sess *backend.Session) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		logger.FromCtx(ctx).Infof("discarding initial session query superseded by a change notification")

		return
	}
	s.applyLocked(ctx, sess)
}

// applyLocked is called with s.mu held and releases it.
func (s *Session) applyLocked(ctx context.Context, sess *backend.Session) {
	s.generation++
	gen := s.generation

	if sess == nil || sess.Identity == nil {
		s.toAnonymousLocked()
		s.notifyLocked()
		s.mu.Unlock()

		return
	}

	s.loading = true
	if s.state != StateAuthenticated {
		s.state = StateLoading
	}
	s.notifyLocked()
	s.mu.Unlock()

	go s.resolve(ctx, gen, sess.Identity)
}

func (s *Session) resolve(ctx context.Context, gen uint64, identity *backend.Identity) {
	ctx, span := otel.Tracer(name).Start(ctx, "Session.resolve()")
	defer span.End()

	resolved := s.resolver.Resolve(ctx, identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		// A sign-out or newer session event superseded this resolution; a
		// stale result must not resurrect the Authenticated state.
		logger.FromCtx(ctx).Infof("discarding superseded role resolution for %s", identity.Email)

		return
	}

	s.identity = resolved.Identity
	s.roleList = resolved.Roles
	s.loading = false
	s.state = StateAuthenticated
	s.notifyLocked()
}

func (s *Session) toAnonymousLocked() {
	s.state = StateAnonymous
	s.identity = nil
	s.roleList = nil
	s.loading = false
}

func (s *Session) snapshotLocked() Snapshot {
	list := make([]roles.Role, len(s.roleList))
	copy(list, s.roleList)

	return Snapshot{
		State:    s.state,
		Identity: s.identity,
		Roles:    list,
		Loading:  s.loading,
	}
}

func (s *Session) notifyLocked() {
	snap := s.snapshotLocked()
	for _, sub := range s.subs {
		select {
		case sub.ch <- snap:
		default:
			// Replace the undelivered snapshot with the latest.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
	}
}

// await blocks until the session settles out of a loading state or ctx
// expires, returning the settled snapshot.
func (s *Session) await(ctx context.Context) (Snapshot, error) {
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return s.State(), errors.Wrap(ctx.Err(), "context.Context.Err()")
		case snap := <-ch:
			if !snap.Loading && snap.State != StateLoading && snap.State != StateUninitialized {
				return snap, nil
			}
		}
	}
}
