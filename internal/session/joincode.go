package session

import (
	"crypto/rand"
	"fmt"
)

// JoinCodeLength is the number of characters players type to enter a session.
const JoinCodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewJoinCode returns a random 6-character alphanumeric code. Uniqueness is
// enforced by the store, not here; callers retry on collision.
func NewJoinCode() (string, error) {
	buf := make([]byte, JoinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}

	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
