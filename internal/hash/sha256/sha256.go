// Package sha256 fingerprints decoded page text before it is persisted.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements postgres.TextHasher.
type Hasher struct{}

// New returns a Hasher.
func New() Hasher { return Hasher{} }

// HashText returns the lowercase hex SHA-256 of text. Rows without text get "".
func (Hasher) HashText(text string) string {
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
