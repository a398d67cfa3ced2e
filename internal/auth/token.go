package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Guest tokens are 32 bytes of CSPRNG output, hex-encoded. The token is the
// sole credential: it is stored in guest_sessions and borne as a Bearer value.
const tokenByteLength = 32

var tokenPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

func GenerateToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// IsValidToken reports whether s has the exact shape of a guest token:
// 64 lowercase hex characters. Anything else is rejected before a DB lookup.
func IsValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}
