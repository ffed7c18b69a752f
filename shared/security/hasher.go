// Package security derives the stored password digest and the access/secret
// key pairs handed out for service-to-service calls.
package security

import (
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// Default argon2id cost.
const (
	DefaultArgonTime    = 1
	DefaultArgonMemory  = 64 * 1024
	DefaultArgonThreads = 4
	argonKeyLen         = 32
)

// ArgonParams tunes the digest cost. Changing them invalidates every stored digest.
type ArgonParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

func DefaultArgonParams() ArgonParams {
	return ArgonParams{Time: DefaultArgonTime, Memory: DefaultArgonMemory, Threads: DefaultArgonThreads}
}

// PasswordHasher produces a deterministic one-way digest of salt + password.
// Login looks a user up by (account, digest), so the same input must always
// yield the same digest.
type PasswordHasher struct {
	salt   []byte
	params ArgonParams
}

func NewPasswordHasher(salt string, params ArgonParams) *PasswordHasher {
	return &PasswordHasher{salt: []byte(salt), params: params}
}

// Digest returns the hex-encoded argon2id key of password under the application salt.
func (h *PasswordHasher) Digest(password string) string {
	key := argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, argonKeyLen)
	return hex.EncodeToString(key)
}
