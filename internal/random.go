package internal

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const sessionTokenSize = 32

// NewID returns a random UUIDv4 read from r.
func NewID(r io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

// NewSessionToken returns an opaque base64url token of 32 random bytes.
func NewSessionToken(r io.Reader) (string, error) {
	var raw [sessionTokenSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashIdentifier returns the first 8 bytes of SHA-256(s), hex encoded, for logs and audit metadata.
func HashIdentifier(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
