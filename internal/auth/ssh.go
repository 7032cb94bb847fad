// ABOUTME: SSH public key authentication for callers that sign challenges
// ABOUTME: instead of holding a bearer token. Verifies signatures over
// ABOUTME: timestamp|nonce, with a nonce-replay cache.

package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/2389/mcp-gateway/internal/dedupe"
)

const (
	// SSHAuthMaxAge is the maximum age of a signature timestamp (5 minutes).
	SSHAuthMaxAge = 5 * time.Minute

	// SSHNonceCacheSize is the maximum number of nonces to track.
	SSHNonceCacheSize = 10000

	// SSH auth metadata keys.
	SSHPubkeyHeader    = "x-ssh-pubkey"
	SSHSignatureHeader = "x-ssh-signature"
	SSHTimestampHeader = "x-ssh-timestamp"
	SSHNonceHeader     = "x-ssh-nonce"
)

// SSHAuthRequest contains the data sent by an agent for SSH authentication.
type SSHAuthRequest struct {
	Pubkey    string // Full public key (e.g., "ssh-ed25519 AAAA...")
	Signature string // Base64-encoded signature over "timestamp|nonce"
	Timestamp int64  // Unix timestamp
	Nonce     string // Random string to prevent replay
}

// SSHAuthenticator verifies SSH signatures for callers and satisfies
// Authenticator. The credential string it accepts is the pipe-joined
// "pubkey|signature|timestamp|nonce", which the transports pass through
// unchanged from the Authorization header by default (see
// ExtractSSHAuthFromMetadata for a metadata-map form of the same fields).
type SSHAuthenticator struct {
	maxAge     time.Duration
	nonceCache *dedupe.Cache // Tracks used nonces to prevent replay attacks
}

// NewSSHAuthenticator creates a new SSH signature verifier with nonce replay protection.
func NewSSHAuthenticator() *SSHAuthenticator {
	return &SSHAuthenticator{
		maxAge:     SSHAuthMaxAge,
		nonceCache: dedupe.New(SSHAuthMaxAge, SSHNonceCacheSize),
	}
}

// Close releases resources used by the verifier.
func (v *SSHAuthenticator) Close() {
	if v.nonceCache != nil {
		v.nonceCache.Close()
	}
}

// Verify checks the SSH signature and returns the pubkey fingerprint if valid.
// The signature must be over the string "timestamp|nonce".
// Nonces are tracked to prevent replay attacks within the timestamp window.
func (v *SSHAuthenticator) Verify(req *SSHAuthRequest) (fingerprint string, err error) {
	// Parse the public key
	pubkey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(req.Pubkey))
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}

	// Check timestamp is recent
	signedAt := time.Unix(req.Timestamp, 0)
	age := time.Since(signedAt)
	if age < 0 {
		// Timestamp is in the future - allow small clock skew
		if age < -time.Minute {
			return "", errors.New("timestamp is in the future")
		}
	} else if age > v.maxAge {
		return "", fmt.Errorf("signature expired (age: %v, max: %v)", age, v.maxAge)
	}

	// Build the message that was signed: "timestamp|nonce"
	message := fmt.Sprintf("%d|%s", req.Timestamp, req.Nonce)

	// Decode the signature
	sigBytes, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return "", fmt.Errorf("invalid signature encoding: %w", err)
	}

	// Parse the SSH signature
	sig := new(ssh.Signature)
	if err := ssh.Unmarshal(sigBytes, sig); err != nil {
		return "", fmt.Errorf("invalid signature format: %w", err)
	}

	// Verify the signature
	if err := pubkey.Verify([]byte(message), sig); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	// Atomically check and mark nonce to prevent replay attacks.
	// The nonce key includes the fingerprint to prevent cross-key replay.
	// Using CheckAndMark avoids TOCTOU race where two concurrent requests
	// could both pass a Check before either reaches Mark.
	fp := ComputeFingerprint(pubkey)
	nonceKey := fmt.Sprintf("%s:%d:%s", fp, req.Timestamp, req.Nonce)
	if v.nonceCache.CheckAndMark(nonceKey) {
		return "", errors.New("nonce already used (possible replay attack)")
	}

	return fp, nil
}

// Authenticate parses credential as "pubkey|signature|timestamp|nonce" and
// verifies it, returning an AuthContext keyed by the pubkey fingerprint.
// Capabilities are left empty here; a deployment that wants SSH principals
// to carry capabilities assigns them in a layer above by fingerprint.
func (v *SSHAuthenticator) Authenticate(credential string) (*AuthContext, error) {
	req, err := ParseSSHCredential(credential)
	if err != nil {
		return nil, err
	}
	fp, err := v.Verify(req)
	if err != nil {
		return nil, err
	}
	return &AuthContext{PrincipalID: fp, Method: "ssh"}, nil
}

// ParseSSHCredential splits a packed "pubkey|signature|timestamp|nonce"
// credential string into its fields. The pubkey itself may contain spaces
// (e.g. "ssh-ed25519 AAAA... comment") but never a pipe.
func ParseSSHCredential(credential string) (*SSHAuthRequest, error) {
	parts := strings.SplitN(credential, "|", 4)
	if len(parts) != 4 {
		return nil, errors.New("malformed ssh credential: expected pubkey|signature|timestamp|nonce")
	}
	timestamp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed ssh credential timestamp: %w", err)
	}
	return &SSHAuthRequest{
		Pubkey:    parts[0],
		Signature: parts[1],
		Timestamp: timestamp,
		Nonce:     parts[3],
	}, nil
}

// ComputeFingerprint computes the SHA256 fingerprint of a public key.
// Returns lowercase hex encoding without colons.
func ComputeFingerprint(pubkey ssh.PublicKey) string {
	hash := sha256.Sum256(pubkey.Marshal())
	return hex.EncodeToString(hash[:])
}

// ParseFingerprintFromKey parses a public key string and returns its fingerprint.
// Useful for registering agents.
func ParseFingerprintFromKey(pubkeyStr string) (string, error) {
	pubkey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubkeyStr))
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}
	return ComputeFingerprint(pubkey), nil
}

// ExtractSSHAuthFromMetadata extracts SSH auth fields from a metadata map
// keyed by the lowercase x-ssh-* names (SSHPubkeyHeader and friends). Keys
// are matched exactly, so a net/http Header, whose keys are canonicalized
// (X-Ssh-Pubkey), does not match.
// Returns nil if no SSH auth headers are present.
func ExtractSSHAuthFromMetadata(md map[string][]string) *SSHAuthRequest {
	getPrimary := func(key string) string {
		if vals, ok := md[key]; ok && len(vals) > 0 {
			return vals[0]
		}
		return ""
	}

	pubkey := getPrimary(SSHPubkeyHeader)
	signature := getPrimary(SSHSignatureHeader)
	timestampStr := getPrimary(SSHTimestampHeader)
	nonce := getPrimary(SSHNonceHeader)

	// If any SSH header is present, treat it as SSH auth attempt
	if pubkey == "" && signature == "" && timestampStr == "" && nonce == "" {
		return nil
	}

	timestamp, _ := strconv.ParseInt(timestampStr, 10, 64)

	return &SSHAuthRequest{
		Pubkey:    strings.TrimSpace(pubkey),
		Signature: strings.TrimSpace(signature),
		Timestamp: timestamp,
		Nonce:     strings.TrimSpace(nonce),
	}
}
