package cookie

import (
	"net/http"

	"golang.org/x/oauth2"
)

// Handler is the token cookie interface consumed by the session handlers.
type Handler interface {
	WriteTokenCookie(w http.ResponseWriter, token *oauth2.Token) error
	ReadTokenCookie(r *http.Request) (*oauth2.Token, bool)
	ClearTokenCookie(w http.ResponseWriter)
}
