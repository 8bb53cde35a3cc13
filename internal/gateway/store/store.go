package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root of the durable data access layer. Drivers expose
// sub-repositories so transactional and non-transactional code read the same.
type Store interface {
	Users() Users
	Rules() Rules
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller must Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users is the identity store the login flow authenticates against.
type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)

	// CreateUser returns ErrAlreadyExists when the username is taken.
	CreateUser(ctx context.Context, u domain.User) error

	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	UpdateRole(ctx context.Context, userID string, role domain.Role) error

	// UpdateMFASecret sets or, with nil, clears the TOTP secret.
	UpdateMFASecret(ctx context.Context, userID string, secret *string) error

	DeleteUser(ctx context.Context, userID string) error
	IsEmpty(ctx context.Context) (bool, error)
}

// Rules persists the permission rule table so policy changes survive restarts.
type Rules interface {
	ListRules(ctx context.Context) ([]domain.PermissionRule, error)
	UpsertRule(ctx context.Context, rule domain.PermissionRule) error
	DeleteRule(ctx context.Context, messageType string) error
	DeleteAllRules(ctx context.Context) error
	IsEmpty(ctx context.Context) (bool, error)
}

type SigningKeys interface {
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error
	GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error)

	// ListActiveSigningKeys returns unretired, unexpired keys, newest first.
	ListActiveSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error)

	// ListAllSigningKeys returns every unexpired key, newest first.
	ListAllSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error)

	RetireSigningKey(ctx context.Context, kid string, at time.Time) error

	// DeleteExpiredSigningKeys removes keys past expires_at and reports how many.
	DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error)
}
