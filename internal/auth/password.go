package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordChecker verifies the admin password against a bcrypt hash, so the
// plaintext is not kept around after startup.
type PasswordChecker struct {
	hash []byte
}

// NewPasswordChecker hashes password with the given bcrypt cost (bcrypt.DefaultCost when 0)
func NewPasswordChecker(password string, cost int) (*PasswordChecker, error) {
	if password == "" {
		return nil, fmt.Errorf("admin password must not be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &PasswordChecker{hash: hash}, nil
}

// Check reports whether candidate matches the admin password
func (p *PasswordChecker) Check(candidate string) bool {
	return bcrypt.CompareHashAndPassword(p.hash, []byte(candidate)) == nil
}
