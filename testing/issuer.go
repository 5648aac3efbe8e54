// Package testing provides a mock token issuer for testing applications
// that use billingkit's authenticated endpoints. It runs an HTTP server
// that serves JWKS and signs tokens that validate against it, so handler
// tests need no real auth service.
//
// Example usage:
//
//	issuer := testing.NewTestIssuer()
//	defer issuer.Close()
//
//	keySet, _ := jwtkit.FetchKeySet(ctx, issuer.JWKSURL())
//	verifier := jwtkit.NewVerifier(issuer.URL(), issuer.Audience(), keySet)
//
//	token := issuer.CreateToken("user-123")
package testing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	jwtkit "github.com/fundeddesk/billingkit/jwt"
	jwt "github.com/golang-jwt/jwt/v5"
)

// TestIssuer is a complete mock auth setup: a JWKS endpoint at
// /.well-known/jwks.json plus RS256 signing with the matching key.
type TestIssuer struct {
	server   *httptest.Server
	signer   *jwtkit.RSASigner
	audience string
}

// NewTestIssuer creates a test issuer with a fresh RSA key pair.
// Call Close when done.
func NewTestIssuer() *TestIssuer {
	return NewTestIssuerWithAudience("billingkit-test")
}

// NewTestIssuerWithAudience creates a test issuer with a specific audience
// claim.
func NewTestIssuerWithAudience(audience string) *TestIssuer {
	signer, err := jwtkit.NewRSASigner(2048, "test-key-1")
	if err != nil {
		panic("failed to create RSA signer: " + err.Error())
	}

	ti := &TestIssuer{signer: signer, audience: audience}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", ti.handleJWKS)
	ti.server = httptest.NewServer(mux)
	return ti
}

// URL returns the issuer base URL (the iss claim of signed tokens).
func (ti *TestIssuer) URL() string {
	return ti.server.URL
}

// JWKSURL returns the JWKS document URL.
func (ti *TestIssuer) JWKSURL() string {
	return ti.server.URL + "/.well-known/jwks.json"
}

// Audience returns the audience configured for this test issuer.
func (ti *TestIssuer) Audience() string {
	return ti.audience
}

// Close shuts down the test server.
func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

func (ti *TestIssuer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	jwk := jwtkit.RSAPublicToJWK(ti.signer.PublicKey(), ti.signer.KID(), ti.signer.Algorithm())
	jwtkit.ServeJWKS(w, r, jwtkit.JWKS{Keys: []jwtkit.JWK{jwk}})
}

// CreateToken signs a bearer token for the given user id.
func (ti *TestIssuer) CreateToken(userID string) string {
	return ti.CreateTokenWithExpiry(userID, time.Now().Add(time.Hour))
}

// CreateTokenWithExpiry signs a token with a custom expiry.
func (ti *TestIssuer) CreateTokenWithExpiry(userID string, expiry time.Time) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": ti.URL(),
		"aud": ti.audience,
		"exp": expiry.Unix(),
		"iat": now.Unix(),
	}
	token, err := ti.signer.Sign(context.Background(), claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

// CreateExpiredToken signs a token that has already expired, for testing
// rejection paths.
func (ti *TestIssuer) CreateExpiredToken(userID string) string {
	return ti.CreateTokenWithExpiry(userID, time.Now().Add(-time.Hour))
}
