// Package auth verifies opaque client credentials and turns them into
// identities. The production verifier validates Google ID tokens.
package auth

import (
	"context"
	"errors"
)

var (
	// ErrTokenMissing indicates an identity is required but the client
	// supplied no credential.
	ErrTokenMissing = errors.New("missing Google ID token")
	// ErrTokenInvalid indicates the supplied credential failed
	// verification.
	ErrTokenInvalid = errors.New("invalid Google ID token")
)

// Identity is a verified user identity.
type Identity struct {
	Subject string `json:"sub,omitempty"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// Anonymous is the identity attached when no verification is configured.
func Anonymous() *Identity {
	return &Identity{Email: "none", Name: "Unknown"}
}

// Verifier checks an opaque credential and returns the identity it proves.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
