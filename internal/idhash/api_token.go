package idhash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// APITokenPrefix marks bearer tokens issued by NewAPIToken.
const APITokenPrefix = "ta_"

// NewAPIToken returns a random bearer token and the hash to store for it.
func NewAPIToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate api token: %w", err)
	}
	token = APITokenPrefix + base58.Encode(buf)
	return token, HashAPIToken(token), nil
}

// HashAPIToken computes the stored form of a bearer token.
// Returns hex-encoded SHA256 (64 characters).
func HashAPIToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
