package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const googleCertsURL = "https://www.googleapis.com/oauth2/v1/certs"

// certCacheTTL bounds how long fetched signing certificates are reused.
// Google rotates keys with overlap well beyond an hour.
const certCacheTTL = time.Hour

// GoogleVerifier validates Google ID tokens against the configured OAuth
// client id. Signing certificates are fetched from Google and cached.
type GoogleVerifier struct {
	ClientID   string
	HTTPClient *http.Client
	CertsURL   string

	mu        sync.Mutex
	certs     map[string]*rsa.PublicKey
	fetchedAt time.Time
}

type googleClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{ClientID: clientID}
}

// Verify parses and validates an ID token and returns the identity it
// carries. Any failure maps to ErrTokenInvalid; the caller decides whether
// that closes the connection.
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenMissing
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.ClientID),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(token, &googleClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.signingKey(ctx, kid)
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*googleClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if iss := claims.Issuer; iss != "https://accounts.google.com" && iss != "accounts.google.com" {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Email) == "" {
		return nil, ErrTokenInvalid
	}
	return &Identity{
		Subject: claims.Subject,
		Email:   strings.TrimSpace(claims.Email),
		Name:    strings.TrimSpace(claims.Name),
	}, nil
}

func (v *GoogleVerifier) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, fmt.Errorf("token header missing kid")
	}

	v.mu.Lock()
	if key, ok := v.certs[kid]; ok && time.Since(v.fetchedAt) < certCacheTTL {
		v.mu.Unlock()
		return key, nil
	}
	v.mu.Unlock()

	certs, err := v.fetchCerts(ctx)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.certs = certs
	v.fetchedAt = time.Now()
	key, ok := v.certs[kid]
	v.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no signing certificate for kid %q", kid)
	}
	return key, nil
}

func (v *GoogleVerifier) fetchCerts(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	url := v.CertsURL
	if url == "" {
		url = googleCertsURL
	}
	client := v.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build certs request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch google certs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch google certs: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read google certs: %w", err)
	}

	var pems map[string]string
	if err := json.Unmarshal(body, &pems); err != nil {
		return nil, fmt.Errorf("decode google certs: %w", err)
	}

	out := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pemData := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
		if err != nil {
			continue
		}
		out[kid] = key
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable google signing certificates")
	}
	return out, nil
}
