package domain

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string // argon2id PHC string
	Role         Role
	MFASecret    *string // base32 TOTP secret, nil when MFA is off
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) MFAEnabled() bool {
	return u.MFASecret != nil && *u.MFASecret != ""
}
