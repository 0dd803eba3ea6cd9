package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/oauth2"
)

func testClient() *Client {
	return NewClient(securecookie.New(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32)))
}

func requestWithCookies(t *testing.T, w *httptest.ResponseRecorder) *http.Request {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}

	return r
}

func TestClient_TokenCookieRoundTrip(t *testing.T) {
	t.Parallel()

	c := testClient()
	token := &oauth2.Token{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		TokenType:    "bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}

	w := httptest.NewRecorder()
	if err := c.WriteTokenCookie(w, token); err != nil {
		t.Fatal(err)
	}

	got, ok := c.ReadTokenCookie(requestWithCookies(t, w))
	if !ok {
		t.Fatal("ReadTokenCookie() ok = false")
	}
	if got.AccessToken != token.AccessToken {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, token.AccessToken)
	}
	if got.RefreshToken != token.RefreshToken {
		t.Errorf("RefreshToken = %q, want %q", got.RefreshToken, token.RefreshToken)
	}
	if !got.Expiry.Equal(token.Expiry) {
		t.Errorf("Expiry = %v, want %v", got.Expiry, token.Expiry)
	}
}

func TestClient_ReadTokenCookie_Missing(t *testing.T) {
	t.Parallel()

	c := testClient()
	if _, ok := c.ReadTokenCookie(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Error("ReadTokenCookie() ok = true without a cookie")
	}
}

func TestClient_ReadTokenCookie_WrongKeys(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	if err := testClient().WriteTokenCookie(w, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatal(err)
	}

	// a client with different keys must reject the cookie
	if _, ok := testClient().ReadTokenCookie(requestWithCookies(t, w)); ok {
		t.Error("ReadTokenCookie() ok = true for a foreign cookie")
	}
}

func TestClient_ClearTokenCookie(t *testing.T) {
	t.Parallel()

	c := testClient()
	w := httptest.NewRecorder()
	c.ClearTokenCookie(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	if cookies[0].MaxAge >= 0 {
		t.Errorf("MaxAge = %d, want negative", cookies[0].MaxAge)
	}
	if cookies[0].Name != TCCookieName {
		t.Errorf("Name = %q, want %q", cookies[0].Name, TCCookieName)
	}
}
