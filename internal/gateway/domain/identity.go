package domain

import "time"

// TokenKind separates access from refresh credentials.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// Identity is what a verified credential resolves to.
type Identity struct {
	Subject   string    `json:"subject"`
	Role      Role      `json:"role"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Credential is an issued, signed token along with its decoded claims.
type Credential struct {
	Token     string
	Subject   string
	Role      Role
	Kind      TokenKind
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	Access  Credential
	Refresh Credential
}
