package utils

import (
	"crypto/sha256"
	"encoding/base64"
)

// CodeChallengeS256 derives the URL-safe base64 SHA-256 challenge for a
// PKCE code verifier.
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
