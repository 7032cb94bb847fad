// ABOUTME: JWT verification for the Auth middleware's Authenticator hook.
// ABOUTME: Uses HS256 signing with a configurable secret; verifies only, never issues long-lived state.
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

// Authenticator is the pluggable hook the Auth middleware (§4.4) calls.
// Transports extract a raw credential (bearer token, signed challenge, ...)
// from their own carrier and hand it here unchanged.
type Authenticator interface {
	Authenticate(credential string) (*AuthContext, error)
}

// TokenVerifier is the narrower "verify and extract a principal ID"
// primitive JWTAuthenticator is built from; kept as its own interface so
// alternative token formats can be swapped in without touching the
// Authenticator-facing API.
type TokenVerifier interface {
	Verify(tokenString string) (principalID string, err error)
}

// JWTAuthenticator implements Authenticator using HS256-signed JWTs.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator creates an Authenticator backed by HS256 JWTs signed
// with secret.
func NewJWTAuthenticator(secret []byte) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret}
}

// Verify validates the token and extracts the principal ID from the "sub"
// claim, satisfying TokenVerifier.
func (a *JWTAuthenticator) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}

// Authenticate validates the bearer token and returns the AuthContext for
// the principal it names, including any "cap" claim as capabilities.
func (a *JWTAuthenticator) Authenticate(tokenString string) (*AuthContext, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
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

	var caps []string
	if raw, ok := claims["cap"].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				caps = append(caps, s)
			}
		}
	}

	return &AuthContext{PrincipalID: sub, Method: "jwt", Capabilities: caps}, nil
}

// Generate creates a new JWT for principalID, valid for expiresIn, carrying
// caps as the "cap" claim. Used by tests and operator tooling to mint
// caller-facing tokens; the core itself never stores the result.
func (a *JWTAuthenticator) Generate(principalID string, caps []string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": principalID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	if len(caps) > 0 {
		claims["cap"] = caps
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
