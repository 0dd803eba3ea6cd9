package backend

import (
	"testing"

	"github.com/go-playground/errors/v5"
)

func TestIdentity_DisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		identity Identity
		want     string
	}{
		{
			name:     "full name from metadata",
			identity: Identity{Email: "sam@example.com", Metadata: map[string]string{MetadataFullName: "Sam Carter"}},
			want:     "Sam Carter",
		},
		{
			name:     "falls back to local part of email",
			identity: Identity{Email: "sam.carter@example.com"},
			want:     "sam.carter",
		},
		{
			name:     "empty metadata value falls back",
			identity: Identity{Email: "sam@example.com", Metadata: map[string]string{MetadataFullName: ""}},
			want:     "sam",
		},
		{
			name:     "malformed email returned as-is",
			identity: Identity{Email: "not-an-email"},
			want:     "not-an-email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.identity.DisplayName(); got != tt.want {
				t.Errorf("Identity.DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	authErr := errors.Wrap(NewAuthError(400, "Invalid login credentials"), "Client.authCall()")
	if !IsAuthError(authErr) {
		t.Error("IsAuthError() = false for wrapped AuthError")
	}
	if IsStorageError(authErr) {
		t.Error("IsStorageError() = true for AuthError")
	}

	storageErr := errors.Wrap(NewStorageError("UserRoles", errors.New("connection reset")), "Client.recordCall()")
	if !IsStorageError(storageErr) {
		t.Error("IsStorageError() = false for wrapped StorageError")
	}
	if IsAuthError(storageErr) {
		t.Error("IsAuthError() = true for StorageError")
	}

	if IsAuthError(errors.New("plain")) || IsStorageError(errors.New("plain")) {
		t.Error("plain error misclassified")
	}
}
