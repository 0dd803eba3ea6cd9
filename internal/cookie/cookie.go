// Package cookie stores the backend token pair in a secure cookie so a
// session can be restored across page loads.
package cookie

import (
	"net/http"
	"time"

	"github.com/cccteam/logger"
	"github.com/go-playground/errors/v5"
	"github.com/gorilla/securecookie"
	"golang.org/x/oauth2"
)

// TCKey is a type for storing values in the token cookie
type TCKey string

const (
	// TCCookieName is the default name of the token cookie
	TCCookieName = "cm-session"

	// TCAccessToken is the key for storing the access token in the token cookie
	TCAccessToken TCKey = "accessToken"

	// TCRefreshToken is the key for storing the refresh token in the token cookie
	TCRefreshToken TCKey = "refreshToken"

	// TCExpiry is the key for storing the access token expiry in the token cookie
	TCExpiry TCKey = "expiry"
)

var _ Handler = (*Client)(nil)

// Client reads and writes the token cookie.
type Client struct {
	secureCookie *securecookie.SecureCookie

	// CookieName is the name of the token cookie.
	CookieName string

	// Domain is the cookie domain, empty for the request host.
	Domain string
}

// NewClient creates a cookie Client using the given codec.
func NewClient(secureCookie *securecookie.SecureCookie) *Client {
	return &Client{
		secureCookie: secureCookie,
		CookieName:   TCCookieName,
	}
}

// WriteTokenCookie encodes the token pair into the token cookie.
func (c *Client) WriteTokenCookie(w http.ResponseWriter, token *oauth2.Token) error {
	cval := map[TCKey]string{
		TCAccessToken:  token.AccessToken,
		TCRefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		cval[TCExpiry] = token.Expiry.Format(time.RFC3339)
	}

	encoded, err := c.secureCookie.Encode(c.CookieName, cval)
	if err != nil {
		return errors.Wrap(err, "securecookie.SecureCookie.Encode()")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.CookieName,
		Value:    encoded,
		Path:     "/",
		Domain:   c.Domain,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	return nil
}

// ReadTokenCookie decodes the token pair from the token cookie.
func (c *Client) ReadTokenCookie(r *http.Request) (*oauth2.Token, bool) {
	cookie, err := r.Cookie(c.CookieName)
	if err != nil {
		return nil, false
	}

	cval := make(map[TCKey]string)
	if err := c.secureCookie.Decode(c.CookieName, cookie.Value, &cval); err != nil {
		logger.Req(r).Error(errors.Wrap(err, "securecookie.SecureCookie.Decode()"))

		return nil, false
	}

	token := &oauth2.Token{
		AccessToken:  cval[TCAccessToken],
		RefreshToken: cval[TCRefreshToken],
		TokenType:    "bearer",
	}
	if raw := cval[TCExpiry]; raw != "" {
		expiry, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			logger.Req(r).Error(errors.Wrap(err, "time.Parse()"))

			return nil, false
		}
		token.Expiry = expiry
	}

	return token, true
}

// ClearTokenCookie expires the token cookie.
func (c *Client) ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
