package share

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/liwaywai/lending-api/internal/pkg/password"
)

const secretBytes = 32

// DefaultHashCost is the bcrypt cost for stored token hashes
const DefaultHashCost = password.SecretCost

// newSecret returns a random bearer secret as 64 hex chars
func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate share secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashSecret(secret string, cost int) (string, error) {
	h, err := password.HashWithCost(secret, cost)
	if err != nil {
		return "", fmt.Errorf("hash share secret: %w", err)
	}
	return h, nil
}

func matchSecret(hash, secret string) bool {
	return password.Verify(secret, hash)
}
