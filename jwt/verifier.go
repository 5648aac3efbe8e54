package jwtkit

import (
	"context"
	"errors"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Verifier validates bearer access tokens against issuer, audience, and a
// JWKS key set, and extracts the internal user id (subject). Session
// issuance lives in the auth service; billingkit only checks that a caller
// is who the token says.
type Verifier struct {
	issuer   string
	audience string
	keySet   jwk.Set
}

func NewVerifier(issuer, audience string, keySet jwk.Set) *Verifier {
	return &Verifier{issuer: issuer, audience: audience, keySet: keySet}
}

// FetchKeySet retrieves the JWKS document from the auth service.
func FetchKeySet(ctx context.Context, jwksURL string) (jwk.Set, error) {
	return jwk.Fetch(ctx, jwksURL)
}

// Verify parses and validates the raw token, returning the subject claim.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (string, error) {
	if v == nil || v.keySet == nil {
		return "", errors.New("jwtkit: missing key set")
	}
	token, err := jwt.ParseString(
		rawToken,
		jwt.WithKeySet(v.keySet),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithContext(ctx),
	)
	if err != nil {
		return "", err
	}
	sub := token.Subject()
	if sub == "" {
		return "", errors.New("jwtkit: token missing subject")
	}
	return sub, nil
}
