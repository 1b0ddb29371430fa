// Package jwt validates HMAC-signed bearer tokens and resolves the caller's
// identity from them.
package jwt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/coregx/chatrelay"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload. The identity is the email claim, or the
// subject when no email is present.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Validator implements chatrelay.CredentialValidator for HS256/384/512 tokens.
type Validator struct {
	key    []byte
	issuer string
	leeway time.Duration
}

// NewValidator creates a validator from a base64-encoded shared secret.
// An empty issuer accepts any issuer.
func NewValidator(base64Secret, issuer string) (*Validator, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, chatrelay.NewErrorWithCause(chatrelay.ErrCodeConfiguration, "jwt secret is not valid base64", err)
	}
	if len(key) < 32 {
		return nil, chatrelay.NewError(chatrelay.ErrCodeConfiguration, "jwt secret must be at least 256 bits")
	}
	return &Validator{key: key, issuer: issuer, leeway: 30 * time.Second}, nil
}

// Validate checks the signature and time claims of token and returns the identity.
func (v *Validator) Validate(_ context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", jwt.ErrSignatureInvalid
	}

	if claims.Email != "" {
		return claims.Email, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", errors.New("token carries no identity")
}

// Issue signs a token for identity valid for ttl. Used by tooling and tests;
// the relay itself never mints tokens.
func (v *Validator) Issue(identity string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
