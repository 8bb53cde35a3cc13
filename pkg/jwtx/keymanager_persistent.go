package jwtx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabgate/pkg/cryptox"
	"github.com/aussiebroadwan/tabgate/pkg/idx"
)

// SigningKeyRecord is a stored signing key. The private key is sealed.
type SigningKeyRecord struct {
	ID                  string
	Kid                 string
	Algorithm           string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           time.Time
}

// KeyStore is the persistence a KeyManager needs. Declared here so jwtx does
// not depend on the gateway store package.
type KeyStore interface {
	// ListAllSigningKeys returns every unexpired key, retired or not.
	ListAllSigningKeys(ctx context.Context) ([]SigningKeyRecord, error)

	// ListActiveSigningKeys returns keys that may still sign.
	ListActiveSigningKeys(ctx context.Context) ([]SigningKeyRecord, error)

	CreateSigningKey(ctx context.Context, key SigningKeyRecord) error
}

// PersistentKeyManagerOptions configures a KeyManager backed by a KeyStore.
type PersistentKeyManagerOptions struct {
	Store  KeyStore
	Sealer *cryptox.KeySealer

	// Algorithm applies to newly generated keys. Loaded keys keep theirs.
	Algorithm string
	Issuer    string
	NumKeys   int

	// GracePeriod is how long a key verifies after it is created. Defaults
	// to 30 days.
	GracePeriod time.Duration

	Leeway time.Duration
	Now    func() time.Time
}

// NewPersistentKeyManager loads stored keys and tops up the active set to
// NumKeys, persisting any key it has to generate.
func NewPersistentKeyManager(ctx context.Context, opts PersistentKeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil {
		return nil, errors.New("jwtx: Store is required for persistent key manager")
	}
	if opts.Sealer == nil {
		return nil, errors.New("jwtx: Sealer is required for persistent key manager")
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 30 * 24 * time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	km, err := newKeyManager(opts.Algorithm, opts.Issuer, opts.Leeway, opts.Now)
	if err != nil {
		return nil, err
	}

	all, err := opts.Store.ListAllSigningKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("jwtx: load signing keys: %w", err)
	}
	active, err := opts.Store.ListActiveSigningKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("jwtx: load active signing keys: %w", err)
	}

	isActive := make(map[string]bool, len(active))
	for _, rec := range active {
		isActive[rec.Kid] = true
	}

	for _, rec := range all {
		pemData, err := opts.Sealer.Open(rec.PrivateKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("jwtx: unseal key %s: %w", rec.Kid, err)
		}
		signer, err := NewSigner(rec.Algorithm, rec.Kid, pemData)
		if err != nil {
			return nil, fmt.Errorf("jwtx: load key %s: %w", rec.Kid, err)
		}

		if isActive[rec.Kid] {
			if err := km.AddSigner(signer); err != nil {
				return nil, err
			}
			continue
		}
		if err := km.KeySet.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: publish key %s: %w", rec.Kid, err)
		}
	}

	for km.NumSigners() < clampKeys(opts.NumKeys) {
		kid := NewKeyID()
		pemData, signer, err := GenerateSigner(opts.Algorithm, kid)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key: %w", err)
		}
		sealed, err := opts.Sealer.Seal(pemData)
		if err != nil {
			return nil, fmt.Errorf("jwtx: seal key: %w", err)
		}

		created := now().UTC()
		rec := SigningKeyRecord{
			ID:                  idx.New().String(),
			Kid:                 kid,
			Algorithm:           opts.Algorithm,
			PrivateKeyEncrypted: sealed,
			CreatedAt:           created,
			ExpiresAt:           created.Add(opts.GracePeriod),
		}
		if err := opts.Store.CreateSigningKey(ctx, rec); err != nil {
			return nil, fmt.Errorf("jwtx: store key: %w", err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}

	return km, nil
}
