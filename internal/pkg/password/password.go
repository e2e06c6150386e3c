package password

import (
	"golang.org/x/crypto/bcrypt"
)

const (
	// Cost for account passwords.
	Cost = 12
	// SecretCost for high-entropy bearer secrets that are compared on every presentation.
	SecretCost = 10
)

// Hash hashes an account password using bcrypt
func Hash(password string) (string, error) {
	return HashWithCost(password, Cost)
}

// HashWithCost hashes s with an explicit bcrypt cost
func HashWithCost(s string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(s), cost)
	return string(bytes), err
}

// Verify compares a plaintext value with its bcrypt hash
func Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
