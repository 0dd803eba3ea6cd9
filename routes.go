package session

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the session endpoints on the given router.
func (s *Session) Routes(r chi.Router) {
	r.Post("/auth/login", s.Login())
	r.Post("/auth/signup", s.Signup())
	r.Post("/auth/logout", s.Logout())
	r.Get("/auth/session", s.Authenticated())
}
