package domain

import "time"

// SigningKey is a token signing key held in the store, sealed at rest.
// Retired keys stop signing but keep verifying until ExpiresAt.
type SigningKey struct {
	ID                  string
	Kid                 string
	Algorithm           string // EdDSA or ES256
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           time.Time
}

func (k *SigningKey) IsActive(now time.Time) bool {
	return k.RetiredAt == nil && now.Before(k.ExpiresAt)
}

func (k *SigningKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}
