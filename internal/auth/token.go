// ABOUTME: JWT handling for backend bearer tokens (HS256, sub/role/exp claims)
// ABOUTME: Issuer signs and verifies; Inspect peeks at claims without the secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenClaims is the subset of claims the backend puts in its tokens.
type TokenClaims struct {
	Subject   string    // username
	Role      string    // "user" | "admin"
	ExpiresAt time.Time // zero if the token carries no exp
}

// Expired returns true if the token has an expiry in the past.
func (c *TokenClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// Inspect decodes a token's claims WITHOUT verifying the signature. The
// front-end never holds the backend's signing secret; it only needs to know
// whether a stored token is worth presenting again. Never use this for
// authentication decisions on the serving side.
func Inspect(tokenString string) (*TokenClaims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	out := &TokenClaims{}
	if sub, ok := claims["sub"].(string); ok {
		out.Subject = sub
	}
	if role, ok := claims["role"].(string); ok {
		out.Role = role
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if out.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return out, nil
}

// Issuer signs and verifies HS256 tokens. The real backend owns the secret in
// production; the local stub backend uses this to mint compatible tokens.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an Issuer with the given secret.
func NewIssuer(secret []byte) *Issuer {
	return &Issuer{secret: secret}
}

// Generate creates a token for the given username and role with expiration.
func (i *Issuer) Generate(username, role string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  username,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates the token and returns its claims.
func (i *Issuer) Verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	out := &TokenClaims{Subject: sub}
	if role, ok := claims["role"].(string); ok {
		out.Role = role
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
