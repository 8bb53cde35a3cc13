package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind separates short-lived access tokens from refresh tokens so one can
// never be replayed as the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Claims carried by every gateway token.
type Claims struct {
	jwt.RegisteredClaims

	// Role is the RBAC role of the subject. Empty on refresh tokens, the
	// role is re-read from the identity store on refresh.
	Role string `json:"role,omitempty"`

	Kind Kind `json:"kind"`
}

// NewClaims builds claims valid from now until now+ttl. NumericDates carry
// whole seconds, so exp is rounded up: the token never expires before
// now+ttl and always expires after iat.
func NewClaims(issuer, subject, role string, kind Kind, jti string, now time.Time, ttl time.Duration) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(now.Add(ttl))),
			ID:        jti,
		},
		Role: role,
		Kind: kind,
	}
}

// Expiry returns exp or the zero time when the claim is missing.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued returns iat or the zero time when the claim is missing.
func (c *Claims) Issued() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

func ceilSecond(t time.Time) time.Time {
	down := t.Truncate(time.Second)
	if down.Before(t) {
		return down.Add(time.Second)
	}
	return down
}
