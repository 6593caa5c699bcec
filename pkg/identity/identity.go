// Package identity derives stable pseudonymous tokens for visitors and
// generates session IDs. Raw connection identifiers (IPs) never appear in
// logs, rate-limit keys, or ban records: only the salted hash does.
package identity

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// TokenLength is the hex length of an identity token.
const TokenLength = 16

// Hasher maps raw visitor identifiers to salted tokens. The salt keeps
// tokens from being reversible by hashing candidate IPs offline, and changing
// it intentionally invalidates all stored bans and rate-limit history.
type Hasher struct {
	salt string
}

// NewHasher creates a hasher with the given salt.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// Token derives the pseudonymous token for a raw identifier. The same input
// and salt always produce the same token.
func (h *Hasher) Token(raw string) string {
	sum := sha256.Sum256([]byte(h.salt + raw))
	return hex.EncodeToString(sum[:])[:TokenLength]
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return "vs-" + uuid.NewString()
}
