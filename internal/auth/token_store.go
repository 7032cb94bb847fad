// ABOUTME: Opaque-token Authenticator for URL/path-carried credentials.
// ABOUTME: Tokens are minted in-process and checked by lookup, not signature.
package auth

import (
	"sync"

	"github.com/google/uuid"
)

// TokenStore issues and verifies opaque bearer tokens, each bound to a fixed
// capability set at creation time. Unlike JWTAuthenticator, a TokenStore
// token carries no encoded claims — the server is the only place that knows
// what it grants — which fits credentials handed out as URL query
// parameters or SSE path segments rather than an Authorization header (the
// SSE session's bound POST credential, e.g.).
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string][]string // token -> capabilities
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string][]string)}
}

// Issue mints a new token for the given capabilities and returns it.
func (s *TokenStore) Issue(capabilities []string) string {
	token := uuid.New().String()

	caps := make([]string, len(capabilities))
	copy(caps, capabilities)

	s.mu.Lock()
	s.tokens[token] = caps
	s.mu.Unlock()

	return token
}

// Revoke removes a token, e.g. when the connection it was scoped to closes.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// Count returns the number of live tokens, for metrics.
func (s *TokenStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Authenticate implements Authenticator: credential is the raw token
// string. The principal ID is the token itself, since opaque tokens carry
// no separate identity claim.
func (s *TokenStore) Authenticate(credential string) (*AuthContext, error) {
	s.mu.RLock()
	caps, ok := s.tokens[credential]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidToken
	}

	result := make([]string, len(caps))
	copy(result, caps)

	return &AuthContext{PrincipalID: credential, Method: "token", Capabilities: result}, nil
}
