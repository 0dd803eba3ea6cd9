package session

import (
	"github.com/caremarket/session/internal/cookie"
)

// Option defines the interface for functional options used when creating a
// new Session.
type Option interface {
	isOption()
}

// CookieOption defines a function signature for setting cookie client options.
type CookieOption func(*cookie.Client)

func (CookieOption) isOption() {}

// WithCookieName sets the cookie name for the token cookie.
func WithCookieName(name string) CookieOption {
	return CookieOption(func(c *cookie.Client) {
		c.CookieName = name
	})
}

// WithCookieDomain sets the domain for the token cookie.
func WithCookieDomain(domain string) CookieOption {
	return CookieOption(func(c *cookie.Client) {
		c.Domain = domain
	})
}

// sessionOption defines a function signature for setting Session options.
type sessionOption func(*Session)

func (sessionOption) isOption() {}

// WithCookieHandler replaces the token cookie handler.
func WithCookieHandler(h cookie.Handler) Option {
	return sessionOption(func(s *Session) {
		s.cookies = h
	})
}
