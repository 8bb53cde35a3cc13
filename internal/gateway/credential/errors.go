package credential

import (
	"errors"
	"fmt"
)

var (
	ErrTokenInvalid      = errors.New("token_invalid")
	ErrTokenExpired      = errors.New("token_expired")
	ErrTokenRevoked      = errors.New("token_revoked")
	ErrTokenKindMismatch = errors.New("token_kind_mismatch")
	ErrLoginLockedOut    = errors.New("login_locked_out")
)

// WeakPasswordError is returned when a password fails the complexity policy.
type WeakPasswordError struct {
	Reason string
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("weak password: %s", e.Reason)
}
