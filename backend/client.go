// Package backend adapts the hosted auth and record service that owns user
// identities, profiles, and role assignments. The flow consumes it only
// through its public contract: sign-in, sign-up, sign-out, session-change
// notification, and record read/write on the profile and role relations.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/caremarket/session/roles"
	"github.com/go-playground/errors/v5"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"
)

const name = "github.com/caremarket/session/backend"

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for backend calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.hc = hc
	}
}

// Client is the HTTP adapter for the hosted backend. It tracks the current
// session and emits change notifications on sign-in, sign-out, and token
// refresh.
type Client struct {
	cfg *Config
	hc  *http.Client
	notifier

	mu      sync.Mutex
	current *Session
}

// NewClient creates a Client for the given backend configuration.
func NewClient(cfg *Config, options ...ClientOption) *Client {
	c := &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range options {
		opt(c)
	}

	return c
}

// OnSessionChange registers fn for session-change notifications.
func (c *Client) OnSessionChange(fn func(*Session)) (unsubscribe func()) {
	return c.subscribe(fn)
}

// Session returns the current session, refreshing the access token when it
// has expired. It returns nil without error when signed out.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.Session()")
	defer span.End()

	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if current.Token.Valid() {
		return current, nil
	}

	sess, err := c.refresh(ctx, current.Token.RefreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "Client.refresh()")
	}
	c.setCurrent(sess)

	return sess, nil
}

// SignInWithPassword authenticates email/password credentials.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.SignInWithPassword()")
	defer span.End()

	body := map[string]string{"email": email, "password": password}
	tr := &tokenResponse{}
	if err := c.authCall(ctx, "/auth/v1/token?grant_type=password", body, tr); err != nil {
		return nil, errors.Wrap(err, "Client.authCall()")
	}

	sess, err := tr.session()
	if err != nil {
		return nil, errors.Wrap(err, "tokenResponse.session()")
	}
	c.setCurrent(sess)

	return sess, nil
}

// SignUp registers a new account, attaching metadata as the profile metadata.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*Session, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.SignUp()")
	defer span.End()

	body := map[string]any{"email": email, "password": password, "data": metadata}
	tr := &tokenResponse{}
	if err := c.authCall(ctx, "/auth/v1/signup", body, tr); err != nil {
		return nil, errors.Wrap(err, "Client.authCall()")
	}

	if tr.AccessToken == "" {
		// Registration succeeded but requires confirmation before a session
		// is issued.
		return nil, nil
	}

	sess, err := tr.session()
	if err != nil {
		return nil, errors.Wrap(err, "tokenResponse.session()")
	}
	c.setCurrent(sess)

	return sess, nil
}

// SignOut terminates the current session.
func (c *Client) SignOut(ctx context.Context) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.SignOut()")
	defer span.End()

	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current != nil {
		if err := c.authCall(ctx, "/auth/v1/logout", struct{}{}, nil); err != nil {
			return errors.Wrap(err, "Client.authCall()")
		}
	}
	c.setCurrent(nil)

	return nil
}

// RestoreSession re-establishes a session from a previously issued token
// pair. A still-valid access token is adopted directly; otherwise the
// refresh token is redeemed.
func (c *Client) RestoreSession(ctx context.Context, token *oauth2.Token) (*Session, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.RestoreSession()")
	defer span.End()

	if token.Valid() {
		identity, err := identityFromAccessToken(token.AccessToken)
		if err != nil {
			return nil, errors.Wrap(err, "identityFromAccessToken()")
		}
		sess := &Session{Token: token, Identity: identity}
		c.setCurrent(sess)

		return sess, nil
	}

	sess, err := c.refresh(ctx, token.RefreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "Client.refresh()")
	}
	c.setCurrent(sess)

	return sess, nil
}

// UpsertProfile inserts or updates the user-profile record.
func (c *Client) UpsertProfile(ctx context.Context, profile *Profile) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.UpsertProfile()")
	defer span.End()

	endpoint := fmt.Sprintf("/rest/v1/%s?on_conflict=id", c.cfg.ProfileRelation)
	if err := c.recordCall(ctx, http.MethodPost, endpoint, []*Profile{profile}, nil, "resolution=merge-duplicates,return=minimal"); err != nil {
		return NewStorageError("UpsertProfile", err)
	}

	return nil
}

// UserRoles returns the role assignments for the user in backend order.
func (c *Client) UserRoles(ctx context.Context, userID uuid.UUID) ([]roles.Role, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.UserRoles()")
	defer span.End()

	endpoint := fmt.Sprintf("/rest/v1/%s?select=role&user_id=eq.%s&order=created_at.asc", c.cfg.RoleRelation, url.QueryEscape(userID.String()))
	var rows []struct {
		Role roles.Role `json:"role"`
	}
	if err := c.recordCall(ctx, http.MethodGet, endpoint, nil, &rows, ""); err != nil {
		return nil, NewStorageError("UserRoles", err)
	}

	list := make([]roles.Role, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.Role)
	}

	return list, nil
}

// AssignRole inserts a new role assignment for the user.
func (c *Client) AssignRole(ctx context.Context, userID uuid.UUID, role roles.Role) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.AssignRole()")
	defer span.End()

	endpoint := "/rest/v1/" + c.cfg.RoleRelation
	body := []map[string]string{{"user_id": userID.String(), "role": role.String()}}
	if err := c.recordCall(ctx, http.MethodPost, endpoint, body, nil, "return=minimal"); err != nil {
		return NewStorageError("AssignRole", err)
	}

	return nil
}

func (c *Client) setCurrent(sess *Session) {
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()

	c.notify(sess)
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, NewAuthError(0, "no refresh token")
	}

	body := map[string]string{"refresh_token": refreshToken}
	tr := &tokenResponse{}
	if err := c.authCall(ctx, "/auth/v1/token?grant_type=refresh_token", body, tr); err != nil {
		return nil, errors.Wrap(err, "Client.authCall()")
	}

	sess, err := tr.session()
	if err != nil {
		return nil, errors.Wrap(err, "tokenResponse.session()")
	}

	return sess, nil
}

// authCall performs a call against the auth API, mapping failures to AuthError.
func (c *Client) authCall(ctx context.Context, endpoint string, body, out any) error {
	resp, err := c.do(ctx, http.MethodPost, endpoint, body, "")
	if err != nil {
		return NewAuthErrorWithError(err, "backend unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return authErrorFromResponse(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewAuthErrorWithError(err, "malformed backend response")
		}
	}

	return nil
}

// recordCall performs a call against the record API. Failures are returned
// raw for the callers to wrap as StorageError.
func (c *Client) recordCall(ctx context.Context, method, endpoint string, body, out any, prefer string) error {
	resp, err := c.do(ctx, method, endpoint, body, prefer)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return errors.Newf("backend responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "json.Decoder.Decode()")
		}
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, prefer string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "json.Marshal()")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, "http.NewRequestWithContext()")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http.Client.Do()")
	}

	return resp, nil
}

// bearer returns the access token of the current session, or the API key for
// anonymous calls.
func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.Token != nil {
		return c.current.Token.AccessToken
	}

	return c.cfg.APIKey
}

func authErrorFromResponse(resp *http.Response) error {
	payload := struct {
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}{}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	msg := payload.ErrorDescription
	if msg == "" {
		msg = payload.Msg
	}
	if msg == "" {
		msg = payload.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return NewAuthError(resp.StatusCode, msg)
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         *userRecord `json:"user"`
}

type userRecord struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"user_metadata"`
}

func (t *tokenResponse) session() (*Session, error) {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "bearer",
	}
	if t.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}

	if t.User != nil {
		id, err := uuid.FromString(t.User.ID)
		if err != nil {
			return nil, errors.Wrap(err, "uuid.FromString()")
		}

		return &Session{Token: token, Identity: &Identity{ID: id, Email: t.User.Email, Metadata: t.User.Metadata}}, nil
	}

	identity, err := identityFromAccessToken(t.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "identityFromAccessToken()")
	}

	return &Session{Token: token, Identity: identity}, nil
}

// identityFromAccessToken decodes the identity claims from the access token.
// The signature is the backend's to verify; this client only needs the claims.
func identityFromAccessToken(raw string) (*Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, errors.Wrap(err, "jwt.Parser.ParseUnverified()")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, errors.Wrap(err, "jwt.MapClaims.GetSubject()")
	}
	id, err := uuid.FromString(sub)
	if err != nil {
		return nil, errors.Wrap(err, "uuid.FromString()")
	}

	identity := &Identity{ID: id}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		identity.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			if s, ok := v.(string); ok {
				identity.Metadata[k] = s
			}
		}
	}

	return identity, nil
}
