package session

import (
	"net/http"

	"github.com/caremarket/session/backend"
	"github.com/caremarket/session/redirect"
	"github.com/caremarket/session/roles"
	"github.com/caremarket/session/sessioninfo"
	"github.com/cccteam/httpio"
	"github.com/cccteam/logger"
	"github.com/go-playground/errors/v5"
	"go.opentelemetry.io/otel"
)

// stateResponse is the session state exposed to UI consumers.
type stateResponse struct {
	Authenticated bool              `json:"authenticated"`
	User          *backend.Identity `json:"user,omitempty"`
	UserRoles     []roles.Role      `json:"userRoles,omitempty"`
	Loading       bool              `json:"loading"`
	RedirectTo    string            `json:"redirectTo,omitempty"`
}

// Login authenticates email/password credentials and reports the resolved
// session, including the redirect target for the client's current location.
func (s *Session) Login() http.HandlerFunc {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
		Location string `json:"location"`
	}

	return s.handle(func(w http.ResponseWriter, r *http.Request) error {
		ctx, span := otel.Tracer(name).Start(r.Context(), "Session.Login()")
		defer span.End()

		req := &request{}
		if err := decodeValid(r, req); err != nil {
			return httpio.NewEncoder(w).ClientMessage(ctx, err)
		}

		if err := s.SignIn(ctx, req.Email, req.Password); err != nil {
			if backend.IsAuthError(err) {
				return httpio.NewEncoder(w).ClientMessage(ctx, httpio.NewUnauthorizedMessageWithError(err, "Invalid Credentials"))
			}

			return httpio.NewEncoder(w).ClientMessage(ctx, err)
		}

		snap, err := s.await(ctx)
		if err != nil {
			return httpio.NewEncoder(w).ClientMessage(ctx, err)
		}

		if err := s.writeTokenCookie(w, r); err != nil {
			return httpio.NewEncoder(w).ClientMessage(ctx, err)
		}

		return httpio.NewEncoder(w).Ok(s.stateResponse(snap, req.Location))
	})
}

// Signup registers a new account and reports the resolved session. When the
// backend requires confirmation before issuing a session, the response is
// unauthenticated and the user stays on the form.
func (s *Session) Signup() http.HandlerFunc {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		FullName string `json:"fullName"`
		Location string `json:"location"`
	}

	return s.handle(func(w http.ResponseWriter, r *http.Request) error {
		ctx, span := otel.Tracer(name).Start(r.Context(), "Session.Signup()")
		defer span.End()

		req := &request{}
		if err := decodeValid(r, req); err != nil {
			return httpio.NewEncoder(w).ClientMessage(ctx, err)
		}

		if err := s.SignUp(ctx, req.Email, req.Password, req.FullName); err != nil {
			if backend.IsAuthError(err) {
				return httpio.NewEncoder(w).ClientMessage(ctx, httpio.NewBadRequestMessageWithError(err, "Registration failed"))
			}

			return httpio.NewEncoder(w).ClientMessage(ctx, err)
		}

		snap, err := s.await(ctx)
		if err != nil {
			return httpio.NewEncoder(w).ClientMessage(ctx, err)
		}

		if snap.State == StateAuthenticated {
			if err := s.writeTokenCookie(w, r); err != nil {
				return httpio.NewEncoder(w).ClientMessage(ctx, err)
			}
		}

		return httpio.NewEncoder(w).Ok(s.stateResponse(snap, req.Location))
	})
}

// Logout signs out of the backend and clears the token cookie.
func (s *Session) Logout() http.HandlerFunc {
	return s.handle(func(w http.ResponseWriter, r *http.Request) error {
		ctx, span := otel.Tracer(name).Start(r.Context(), "Session.Logout()")
		defer span.End()

		if err := s.SignOut(ctx); err != nil {
			return httpio.NewEncoder(w).ClientMessage(ctx, err)
		}

		s.cookies.ClearTokenCookie(w)

		return httpio.NewEncoder(w).Ok(nil)
	})
}

// Authenticated reports the current session state.
func (s *Session) Authenticated() http.HandlerFunc {
	return s.handle(func(w http.ResponseWriter, r *http.Request) error {
		_, span := otel.Tracer(name).Start(r.Context(), "Session.Authenticated()")
		defer span.End()

		return httpio.NewEncoder(w).Ok(s.stateResponse(s.State(), ""))
	})
}

// StartSession restores a backend session from the token cookie when no
// session is active. The backend's change notification then drives role
// resolution, so restoration does not block the request.
func (s *Session) StartSession(next http.Handler) http.Handler {
	return s.handle(func(w http.ResponseWriter, r *http.Request) error {
		ctx, span := otel.Tracer(name).Start(r.Context(), "Session.StartSession()")
		defer span.End()

		if snap := s.State(); snap.State == StateAnonymous || snap.State == StateUninitialized {
			if token, ok := s.cookies.ReadTokenCookie(r); ok {
				if _, err := s.auth.RestoreSession(ctx, token); err != nil {
					logger.Req(r).Error(errors.Wrap(err, "backend.SessionClient.RestoreSession()"))
					s.cookies.ClearTokenCookie(w)
				}
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))

		return nil
	})
}

// WithSession stores the current resolved session in the request context for
// downstream handlers.
func (s *Session) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := s.State()
		resolved := &sessioninfo.ResolvedSession{
			Identity: snap.Identity,
			Roles:    snap.Roles,
			Loading:  snap.Loading,
		}

		next.ServeHTTP(w, r.WithContext(sessioninfo.NewCtx(r.Context(), resolved)))
	})
}

// RequireRole guards a route, rejecting sessions that do not carry the role.
func (s *Session) RequireRole(role roles.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return s.handle(func(w http.ResponseWriter, r *http.Request) error {
			snap := s.State()
			if snap.State != StateAuthenticated {
				return httpio.NewEncoder(w).UnauthorizedMessage(r.Context(), "authentication required")
			}

			for _, have := range snap.Roles {
				if have == role {
					next.ServeHTTP(w, r)

					return nil
				}
			}

			return httpio.NewEncoder(w).ClientMessage(r.Context(), httpio.NewForbiddenMessage("insufficient role"))
		})
	}
}

func (s *Session) stateResponse(snap Snapshot, location string) stateResponse {
	res := stateResponse{
		Authenticated: snap.State == StateAuthenticated,
		User:          snap.Identity,
		UserRoles:     snap.Roles,
		Loading:       snap.Loading,
	}

	// A redirect hint only makes sense when the client reported where it is.
	if res.Authenticated && location != "" {
		if target, ok := redirect.NextLocation(roles.Primary(snap.Roles), location); ok {
			res.RedirectTo = target
		}
	}

	return res
}

func (s *Session) writeTokenCookie(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.auth.Session(r.Context())
	if err != nil {
		return errors.Wrap(err, "backend.SessionClient.Session()")
	}
	if sess == nil || sess.Token == nil {
		return nil
	}

	if err := s.cookies.WriteTokenCookie(w, sess.Token); err != nil {
		return errors.Wrap(err, "cookie.Handler.WriteTokenCookie()")
	}

	return nil
}
