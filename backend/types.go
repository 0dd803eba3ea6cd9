package backend

import (
	"strings"

	"github.com/gofrs/uuid"
	"golang.org/x/oauth2"
)

// MetadataFullName is the metadata key carrying the user's display name.
const MetadataFullName = "full_name"

// Identity is the authenticated user record owned by the backend auth
// service. It is read-only from this package's consumers except for the
// profile-sync upsert performed during role resolution.
type Identity struct {
	ID       uuid.UUID         `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DisplayName returns the full name from the profile metadata, falling back
// to the local part of the email when absent.
func (i *Identity) DisplayName() string {
	if name := i.Metadata[MetadataFullName]; name != "" {
		return name
	}
	if at := strings.Index(i.Email, "@"); at > 0 {
		return i.Email[:at]
	}

	return i.Email
}

// Session is an authenticated backend session: the token pair plus the
// identity the backend associates with it.
type Session struct {
	Token    *oauth2.Token
	Identity *Identity
}

// Profile is the user-profile record synchronized during role resolution.
type Profile struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
}
