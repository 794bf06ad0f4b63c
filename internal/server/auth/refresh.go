package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

// refreshTokenBytes is the entropy of a refresh-token plaintext.
const refreshTokenBytes = 32

// CreateRefreshToken returns a fresh high-entropy plaintext, base64url
// encoded. It is handed to the client once and never stored.
func CreateRefreshToken() (string, error) {
	return common.MakeRandURLString(refreshTokenBytes)
}

// HashRefreshToken is the one-way hash stored in place of the plaintext.
func HashRefreshToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
