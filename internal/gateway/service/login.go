package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/tabgate/internal/gateway/credential"
	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/store"
	"github.com/aussiebroadwan/tabgate/pkg/slogx"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrMFARequired        = errors.New("mfa_required")
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// LoginService authenticates users against the identity store and issues
// token pairs.
type LoginService struct {
	Store       store.Store
	Credentials *credential.Manager
	Now         func() time.Time
}

func (s *LoginService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Login checks the lockout, the password and, for MFA users, the TOTP code.
// Unknown usernames count as failures like wrong passwords do.
func (s *LoginService) Login(ctx context.Context, username, password, otpCode string) (domain.TokenPair, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	l := slogx.FromContext(ctx).With(slog.String("username", username))

	allowed, err := s.Credentials.CheckLoginAllowed(ctx, username)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if !allowed {
		l.Warn("login refused, account locked")
		return domain.TokenPair{}, credential.ErrLoginLockedOut
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.TokenPair{}, s.fail(ctx, l, username, "unknown user")
	case err != nil:
		return domain.TokenPair{}, err
	}

	if !s.Credentials.VerifyPassword(password, user.PasswordHash) {
		return domain.TokenPair{}, s.fail(ctx, l, username, "bad password")
	}

	if user.MFAEnabled() {
		if otpCode == "" {
			return domain.TokenPair{}, ErrMFARequired
		}
		ok, err := totp.ValidateCustom(otpCode, *user.MFASecret, s.now(), totpOpts)
		if err != nil || !ok {
			return domain.TokenPair{}, s.fail(ctx, l, username, "bad otp")
		}
	}

	if err := s.Credentials.ClearLoginAttempts(ctx, username); err != nil {
		return domain.TokenPair{}, err
	}

	pair, err := s.issue(ctx, user)
	if err != nil {
		return domain.TokenPair{}, err
	}
	l.Info("login succeeded", slog.String("sub", user.ID), slog.String("role", string(user.Role)))
	return pair, nil
}

func (s *LoginService) fail(ctx context.Context, l *slog.Logger, username, reason string) error {
	locked, err := s.Credentials.RecordFailedLogin(ctx, username)
	if err != nil {
		return err
	}
	if locked {
		l.Warn("login failed, account locked", slog.String("reason", reason))
	} else {
		l.Info("login failed", slog.String("reason", reason))
	}
	return ErrInvalidCredentials
}

func (s *LoginService) issue(ctx context.Context, user domain.User) (domain.TokenPair, error) {
	access, err := s.Credentials.IssueAccessToken(user.ID, user.Role, 0)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.Credentials.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return domain.TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh rotates a refresh token. The presented token is revoked and a new
// pair carrying the user's current role is issued.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	id, err := s.Credentials.VerifyToken(ctx, refreshToken, domain.TokenRefresh)
	if err != nil {
		return domain.TokenPair{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, id.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return domain.TokenPair{}, credential.ErrTokenInvalid
	}
	if err != nil {
		return domain.TokenPair{}, err
	}

	if err := s.Credentials.RevokeToken(ctx, refreshToken); err != nil {
		return domain.TokenPair{}, err
	}
	return s.issue(ctx, user)
}

// Logout revokes the access token and, when given, the refresh token.
func (s *LoginService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.Credentials.RevokeToken(ctx, accessToken); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	return s.Credentials.RevokeToken(ctx, refreshToken)
}
