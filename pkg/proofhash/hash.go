package proofhash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a proof hash in hex characters.
const Size = sha256.Size * 2

// HashStructured canonicalizes v and returns the lowercase hex SHA-256 of the
// canonical bytes.
func HashStructured(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBinary(canonical), nil
}

// HashBinary returns the lowercase hex SHA-256 of data.
func HashBinary(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsProofHash reports whether s is a well-formed proof hash.
func IsProofHash(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
