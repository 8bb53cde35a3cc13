// Package credential issues, verifies and revokes gateway tokens and guards
// the login path against password guessing.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/kv"
	"github.com/aussiebroadwan/tabgate/pkg/cryptox"
	"github.com/aussiebroadwan/tabgate/pkg/idx"
	"github.com/aussiebroadwan/tabgate/pkg/jwtx"
)

const (
	DefaultAccessTTL        = 15 * time.Minute
	DefaultRefreshTTL       = 7 * 24 * time.Hour
	DefaultMaxLoginFailures = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// KV key prefixes.
const (
	revokedPrefix  = "revoked:"
	refreshPrefix  = "refresh:"
	attemptsPrefix = "attempts:"
	lockPrefix     = "lock:"
)

// Config wires a Manager. Zero TTLs and lockout settings take defaults.
type Config struct {
	Keys   *jwtx.KeyManager
	Hasher *cryptox.Hasher
	KV     kv.Store
	Issuer string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	MaxLoginFailures int
	LockoutDuration  time.Duration

	// Now must agree with the clock given to the KeyManager's verifier.
	Now func() time.Time
}

// Manager issues, verifies and revokes tokens and tracks failed logins.
type Manager struct {
	keys   *jwtx.KeyManager
	hasher *cryptox.Hasher
	kv     kv.Store
	issuer string
	ids    *idx.Source
	now    func() time.Time

	accessTTL   time.Duration
	refreshTTL  time.Duration
	maxFailures int64
	lockout     time.Duration
}

// NewManager validates cfg and fills in defaults.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Keys == nil {
		return nil, errors.New("credential: Keys is required")
	}
	if cfg.Hasher == nil {
		return nil, errors.New("credential: Hasher is required")
	}
	if cfg.KV == nil {
		return nil, errors.New("credential: KV is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("credential: Issuer is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.MaxLoginFailures <= 0 {
		cfg.MaxLoginFailures = DefaultMaxLoginFailures
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = DefaultLockoutDuration
	}

	return &Manager{
		keys:        cfg.Keys,
		hasher:      cfg.Hasher,
		kv:          cfg.KV,
		issuer:      cfg.Issuer,
		ids:         idx.NewSource(cfg.Now),
		now:         cfg.Now,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		maxFailures: int64(cfg.MaxLoginFailures),
		lockout:     cfg.LockoutDuration,
	}, nil
}

// AccessTTL and RefreshTTL are the lifetimes applied when none is given.
func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *Manager) issue(subject string, role domain.Role, kind jwtx.Kind, ttl time.Duration) (domain.Credential, error) {
	if ttl <= 0 {
		return domain.Credential{}, fmt.Errorf("credential: ttl must be positive, got %s", ttl)
	}
	now := m.now()
	claims := jwtx.NewClaims(m.issuer, subject, string(role), kind, m.ids.Next().String(), now, ttl)

	token, err := m.keys.Sign(claims)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("credential: sign: %w", err)
	}

	return domain.Credential{
		Token:     token,
		Subject:   subject,
		Role:      role,
		Kind:      domain.TokenKind(kind),
		TokenID:   claims.ID,
		IssuedAt:  claims.Issued(),
		ExpiresAt: claims.Expiry(),
	}, nil
}

// IssueAccessToken signs a new access token. A zero ttl uses the
// configured access lifetime.
func (m *Manager) IssueAccessToken(subject string, role domain.Role, ttl time.Duration) (domain.Credential, error) {
	if !role.Valid() {
		return domain.Credential{}, fmt.Errorf("credential: invalid role %q", role)
	}
	if ttl == 0 {
		ttl = m.accessTTL
	}
	return m.issue(subject, role, jwtx.KindAccess, ttl)
}

// IssueRefreshToken signs a refresh token and records it as the subject's
// only live one, superseding any earlier refresh token.
func (m *Manager) IssueRefreshToken(ctx context.Context, subject string) (domain.Credential, error) {
	cred, err := m.issue(subject, "", jwtx.KindRefresh, m.refreshTTL)
	if err != nil {
		return domain.Credential{}, err
	}
	if err := m.kv.SetWithTTL(ctx, refreshPrefix+subject, cred.TokenID, m.refreshTTL); err != nil {
		return domain.Credential{}, fmt.Errorf("credential: track refresh token: %w", err)
	}
	return cred, nil
}

// VerifyToken checks signature, expiry, revocation and kind, in that order.
// A refresh token that is no longer the subject's tracked one reports
// ErrTokenRevoked.
func (m *Manager) VerifyToken(ctx context.Context, token string, kind domain.TokenKind) (domain.Identity, error) {
	claims, err := m.keys.Verifier.Verify(token)
	if err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			return domain.Identity{}, ErrTokenExpired
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ID == "" || claims.Subject == "" || !claims.Kind.Valid() {
		return domain.Identity{}, fmt.Errorf("%w: missing claims", ErrTokenInvalid)
	}

	revoked, err := m.kv.Exists(ctx, revokedPrefix+claims.ID)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("credential: revocation lookup: %w", err)
	}
	if revoked {
		return domain.Identity{}, ErrTokenRevoked
	}

	if domain.TokenKind(claims.Kind) != kind {
		return domain.Identity{}, ErrTokenKindMismatch
	}

	role := domain.Role(claims.Role)
	switch kind {
	case domain.TokenAccess:
		if !role.Valid() {
			return domain.Identity{}, fmt.Errorf("%w: role %q", ErrTokenInvalid, claims.Role)
		}
	case domain.TokenRefresh:
		current, err := m.kv.Get(ctx, refreshPrefix+claims.Subject)
		if errors.Is(err, kv.ErrNotFound) || (err == nil && current != claims.ID) {
			return domain.Identity{}, ErrTokenRevoked
		}
		if err != nil {
			return domain.Identity{}, fmt.Errorf("credential: refresh lookup: %w", err)
		}
	}

	return domain.Identity{
		Subject:   claims.Subject,
		Role:      role,
		TokenID:   claims.ID,
		ExpiresAt: claims.Expiry(),
	}, nil
}

// RevokeToken adds the token's id to the revocation set for the rest of its
// lifetime. Revoking an expired or already revoked token is a no-op. The
// token must carry a valid signature from one of our keys.
func (m *Manager) RevokeToken(ctx context.Context, token string) error {
	claims, err := m.keys.Verifier.VerifySignature(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ID == "" {
		return fmt.Errorf("%w: missing jti", ErrTokenInvalid)
	}
	return m.revoke(ctx, claims)
}

func (m *Manager) revoke(ctx context.Context, claims *jwtx.Claims) error {
	exp := claims.Expiry()
	remaining := exp.Sub(m.now())
	if remaining <= 0 {
		return nil
	}

	key := revokedPrefix + claims.ID
	exists, err := m.kv.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("credential: revocation lookup: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.kv.SetWithTTL(ctx, key, strconv.FormatInt(exp.Unix(), 10), remaining); err != nil {
		return fmt.Errorf("credential: revoke: %w", err)
	}

	if claims.Kind == jwtx.KindRefresh {
		current, err := m.kv.Get(ctx, refreshPrefix+claims.Subject)
		if err == nil && current == claims.ID {
			if err := m.kv.Delete(ctx, refreshPrefix+claims.Subject); err != nil {
				return fmt.Errorf("credential: untrack refresh token: %w", err)
			}
		}
	}
	return nil
}

// IsRevoked reports whether the token id is in the revocation set.
func (m *Manager) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return m.kv.Exists(ctx, revokedPrefix+tokenID)
}

func loginKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// CheckLoginAllowed is false while a lockout is active for username.
func (m *Manager) CheckLoginAllowed(ctx context.Context, username string) (bool, error) {
	locked, err := m.kv.Exists(ctx, lockPrefix+loginKey(username))
	if err != nil {
		return false, fmt.Errorf("credential: lockout lookup: %w", err)
	}
	return !locked, nil
}

// RecordFailedLogin counts a failure. Reaching the configured maximum opens
// a lockout window and resets the counter; the return value reports whether
// this call did so.
func (m *Manager) RecordFailedLogin(ctx context.Context, username string) (bool, error) {
	u := loginKey(username)
	n, err := m.kv.IncrWithTTL(ctx, attemptsPrefix+u, m.lockout)
	if err != nil {
		return false, fmt.Errorf("credential: count failed login: %w", err)
	}
	if n < m.maxFailures {
		return false, nil
	}

	if err := m.kv.SetWithTTL(ctx, lockPrefix+u, strconv.FormatInt(m.now().Add(m.lockout).Unix(), 10), m.lockout); err != nil {
		return false, fmt.Errorf("credential: open lockout: %w", err)
	}
	if err := m.kv.Delete(ctx, attemptsPrefix+u); err != nil {
		return true, fmt.Errorf("credential: reset failed logins: %w", err)
	}
	return true, nil
}

// ClearLoginAttempts drops the failure counter and any lockout for username.
func (m *Manager) ClearLoginAttempts(ctx context.Context, username string) error {
	u := loginKey(username)
	return m.kv.Delete(ctx, attemptsPrefix+u, lockPrefix+u)
}

// FailedLogins returns the current failure count for username.
func (m *Manager) FailedLogins(ctx context.Context, username string) (int64, error) {
	v, err := m.kv.Get(ctx, attemptsPrefix+loginKey(username))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}
