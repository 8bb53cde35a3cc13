package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/tabgate/internal/gateway/credential"
	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/store"
	"github.com/aussiebroadwan/tabgate/pkg/idx"
	"github.com/aussiebroadwan/tabgate/pkg/slogx"
)

var (
	ErrUsernameTaken    = errors.New("username_taken")
	ErrInvalidUsername  = errors.New("invalid_username")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrAlreadyBootstrap = errors.New("already_bootstrapped")
)

type UsersService struct {
	Store       store.Store
	Credentials *credential.Manager

	// TOTPIssuer labels provisioning URIs in authenticator apps.
	TOTPIssuer string
	Now        func() time.Time
}

func (s *UsersService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

type CreateUserInput struct {
	Username  string
	Password  string
	Role      domain.Role
	EnableMFA bool
}

// CreatedUser carries the TOTP provisioning URI when MFA was enabled.
type CreatedUser struct {
	User            domain.User
	ProvisioningURI string
}

func normalizeUsername(u string) (string, error) {
	u = strings.ToLower(strings.TrimSpace(u))
	if len(u) < 3 || len(u) > 64 || strings.ContainsAny(u, " \t\r\n:") {
		return "", ErrInvalidUsername
	}
	return u, nil
}

func (s *UsersService) newUser(in CreateUserInput) (domain.User, string, error) {
	username, err := normalizeUsername(in.Username)
	if err != nil {
		return domain.User{}, "", err
	}
	if !in.Role.Valid() {
		return domain.User{}, "", ErrInvalidRole
	}

	hash, err := s.Credentials.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, "", err
	}

	now := s.now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var uri string
	if in.EnableMFA {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.TOTPIssuer,
			AccountName: username,
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return domain.User{}, "", fmt.Errorf("generate totp key: %w", err)
		}
		secret := key.Secret()
		u.MFASecret = &secret
		uri = key.URL()
	}
	return u, uri, nil
}

// CreateUser validates and stores a new user. Weak passwords come back as
// *credential.WeakPasswordError and nothing is written.
func (s *UsersService) CreateUser(ctx context.Context, in CreateUserInput) (CreatedUser, error) {
	u, uri, err := s.newUser(in)
	if err != nil {
		return CreatedUser{}, err
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return CreatedUser{}, ErrUsernameTaken
		}
		return CreatedUser{}, err
	}
	slogx.FromContext(ctx).Info("user created", "user_id", u.ID, "username", u.Username, "role", string(u.Role), "mfa", in.EnableMFA)
	return CreatedUser{User: u, ProvisioningURI: uri}, nil
}

func (s *UsersService) ChangePassword(ctx context.Context, userID, newPassword string) error {
	hash, err := s.Credentials.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.Store.Users().UpdatePasswordHash(ctx, userID, hash)
}

func (s *UsersService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.Store.Users().ListUsers(ctx)
}

func (s *UsersService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Users().IsEmpty(ctx)
	return !empty, err
}

// Bootstrap creates the first admin. It fails with ErrAlreadyBootstrap once
// any user exists.
func (s *UsersService) Bootstrap(ctx context.Context, username, password string) (domain.User, error) {
	u, _, err := s.newUser(CreateUserInput{Username: username, Password: password, Role: domain.RoleAdmin})
	if err != nil {
		return domain.User{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		empty, err := tx.Users().IsEmpty(ctx)
		if err != nil {
			return err
		}
		if !empty {
			return ErrAlreadyBootstrap
		}
		return tx.Users().CreateUser(ctx, u)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyBootstrap) {
			slogx.FromContext(ctx).Warn("bootstrap attempted on initialised gateway")
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("bootstrap admin created", "user_id", u.ID, "username", u.Username)
	return u, nil
}
