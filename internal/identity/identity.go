// Package identity resolves the caller of a quota request to a stable
// identity: a verified user id for authenticated callers, or a
// privacy-preserving hash of (IP, fingerprint) for anonymous ones.
//
// The fingerprint is always treated as an untrusted client hint. It is
// sanitized and hashed, never stored raw beyond the audit columns, and
// never used as a credential.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SanitizedFingerprintLength is the maximum length a fingerprint keeps
// after sanitization.
const SanitizedFingerprintLength = 64

// ErrFingerprintMissing is returned when the request carries no fingerprint.
var ErrFingerprintMissing = errors.New("fingerprint is required")

// Identity is the resolved caller of a quota request. Exactly one of
// UserID or AnonymousID is set.
type Identity struct {
	UserID      string // set for verified authenticated callers
	AnonymousID string // salted hash of IP + fingerprint
	IP          string
	Fingerprint string // sanitized
}

// IsAuthenticated reports whether the caller carries a verified user id.
func (id Identity) IsAuthenticated() bool {
	return id.UserID != ""
}

// Key returns the storage key for this identity's daily usage row.
func (id Identity) Key() string {
	if id.UserID != "" {
		return id.UserID
	}
	return id.AnonymousID
}

// SanitizeFingerprint validates and normalizes a client-supplied fingerprint.
// It rejects missing or oversized values, strips everything outside
// [A-Za-z0-9], and truncates the result to SanitizedFingerprintLength.
func SanitizeFingerprint(raw string, maxLen int) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrFingerprintMissing
	}
	if len(raw) > maxLen {
		return "", fmt.Errorf("fingerprint exceeds %d characters", maxLen)
	}

	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	s := b.String()
	if s == "" {
		return "", errors.New("fingerprint contains no usable characters")
	}
	if len(s) > SanitizedFingerprintLength {
		s = s[:SanitizedFingerprintLength]
	}
	return s, nil
}

// AnonymousID derives the one-way anonymous identity hash for an (IP,
// sanitized fingerprint) pair. Deterministic for fixed inputs, not
// reversible, and not guessable without both inputs and the salt.
func AnonymousID(salt, ip, fingerprint string) string {
	sum := sha256.Sum256([]byte(salt + ip + ":" + fingerprint))
	return hex.EncodeToString(sum[:])
}
