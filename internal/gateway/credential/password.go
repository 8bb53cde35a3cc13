package credential

import (
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password HashPassword accepts.
const MinPasswordLength = 8

// CheckPasswordStrength returns a *WeakPasswordError describing the first
// rule the password breaks, or nil.
func CheckPasswordStrength(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &WeakPasswordError{Reason: "must be at least 8 characters"}
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	switch {
	case !upper:
		return &WeakPasswordError{Reason: "must contain an uppercase letter"}
	case !lower:
		return &WeakPasswordError{Reason: "must contain a lowercase letter"}
	case !digit:
		return &WeakPasswordError{Reason: "must contain a digit"}
	}
	return nil
}

// HashPassword enforces the complexity policy and returns an argon2id hash.
func (m *Manager) HashPassword(password string) (string, error) {
	if err := CheckPasswordStrength(password); err != nil {
		return "", err
	}
	return m.hasher.Hash(password)
}

// VerifyPassword reports whether password matches hash. Malformed hashes
// verify as false.
func (m *Manager) VerifyPassword(password, hash string) bool {
	return m.hasher.Verify(password, hash) == nil
}
