package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testClientID = "client-id.apps.googleusercontent.com"

type tokenOverrides struct {
	audience string
	issuer   string
	expires  time.Time
	email    string
	kid      string
}

func newCertsFixture(t *testing.T) (*rsa.PrivateKey, *httptest.Server) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"test-kid": string(pubPEM)})
	}))
	t.Cleanup(srv.Close)
	return key, srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, o tokenOverrides) string {
	t.Helper()
	if o.audience == "" {
		o.audience = testClientID
	}
	if o.issuer == "" {
		o.issuer = "https://accounts.google.com"
	}
	if o.expires.IsZero() {
		o.expires = time.Now().Add(time.Hour)
	}
	if o.kid == "" {
		o.kid = "test-kid"
	}

	claims := googleClaims{
		Email: o.email,
		Name:  "Test User",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1234567890",
			Audience:  jwt.ClaimStrings{o.audience},
			Issuer:    o.issuer,
			ExpiresAt: jwt.NewNumericDate(o.expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = o.kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestGoogleVerifierAcceptsValidToken(t *testing.T) {
	key, certs := newCertsFixture(t)
	v := NewGoogleVerifier(testClientID)
	v.CertsURL = certs.URL

	token := signToken(t, key, tokenOverrides{email: "user@example.com"})
	identity, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Email != "user@example.com" || identity.Name != "Test User" || identity.Subject != "1234567890" {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestGoogleVerifierRejectsWrongAudience(t *testing.T) {
	key, certs := newCertsFixture(t)
	v := NewGoogleVerifier(testClientID)
	v.CertsURL = certs.URL

	token := signToken(t, key, tokenOverrides{audience: "other-client", email: "user@example.com"})
	if _, err := v.Verify(context.Background(), token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestGoogleVerifierRejectsExpiredToken(t *testing.T) {
	key, certs := newCertsFixture(t)
	v := NewGoogleVerifier(testClientID)
	v.CertsURL = certs.URL

	token := signToken(t, key, tokenOverrides{expires: time.Now().Add(-time.Minute), email: "user@example.com"})
	if _, err := v.Verify(context.Background(), token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestGoogleVerifierRejectsWrongIssuer(t *testing.T) {
	key, certs := newCertsFixture(t)
	v := NewGoogleVerifier(testClientID)
	v.CertsURL = certs.URL

	token := signToken(t, key, tokenOverrides{issuer: "https://issuer.example.com", email: "user@example.com"})
	if _, err := v.Verify(context.Background(), token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestGoogleVerifierRejectsUnknownKid(t *testing.T) {
	key, certs := newCertsFixture(t)
	v := NewGoogleVerifier(testClientID)
	v.CertsURL = certs.URL

	token := signToken(t, key, tokenOverrides{kid: "rotated-away", email: "user@example.com"})
	if _, err := v.Verify(context.Background(), token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestGoogleVerifierMissingToken(t *testing.T) {
	v := NewGoogleVerifier(testClientID)
	if _, err := v.Verify(context.Background(), "  "); err != ErrTokenMissing {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
	if _, err := v.Verify(context.Background(), "not-a-jwt"); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}
