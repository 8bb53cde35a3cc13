package jwtx_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabgate/pkg/cryptox"
	"github.com/aussiebroadwan/tabgate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewEphemeralKeyManager(t *testing.T) {
	tests := []struct {
		name    string
		numKeys int
		want    int
	}{
		{"default", 0, 3},
		{"single", 1, 1},
		{"clamped", 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
				Algorithm: jwtx.AlgorithmEdDSA,
				Issuer:    "iss",
				NumKeys:   tt.numKeys,
			})
			require.NoError(t, err)
			require.Equal(t, tt.want, km.NumSigners())
			require.Len(t, km.KeySet.PublicJWKS().Keys, tt.want)
			require.True(t, km.IsReady())
		})
	}
}

func TestNewEphemeralKeyManager_Invalid(t *testing.T) {
	_, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA})
	require.Error(t, err)

	_, err = jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: "RS256", Issuer: "iss"})
	require.Error(t, err)
}

func TestKeyManager_RetireSigner(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmES256,
		Issuer:    "iss",
		NumKeys:   2,
	})
	require.NoError(t, err)

	first := km.Signers()[0]
	token, err := first.Sign(jwtx.NewClaims("iss", "u", "student", jwtx.KindAccess, "j", time.Now(), time.Minute))
	require.NoError(t, err)

	require.NoError(t, km.RetireSigner(first.KID()))
	require.Equal(t, 1, km.NumSigners())
	for range 20 {
		require.NotEqual(t, first.KID(), km.GetSigner().KID())
	}

	// Retired keys still verify.
	_, err = km.Verifier.Verify(token)
	require.NoError(t, err)

	require.Error(t, km.RetireSigner(km.Signers()[0].KID()), "last key must stay")
	require.Error(t, km.RetireSigner("missing"))
}

type memKeyStore struct {
	mu   sync.Mutex
	keys []jwtx.SigningKeyRecord
}

func (m *memKeyStore) ListAllSigningKeys(context.Context) ([]jwtx.SigningKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]jwtx.SigningKeyRecord(nil), m.keys...), nil
}

func (m *memKeyStore) ListActiveSigningKeys(context.Context) ([]jwtx.SigningKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []jwtx.SigningKeyRecord
	for _, k := range m.keys {
		if k.RetiredAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memKeyStore) CreateSigningKey(_ context.Context, k jwtx.SigningKeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, k)
	return nil
}

func TestPersistentKeyManager_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := &memKeyStore{}
	sealer, err := cryptox.NewKeySealer([]byte("master"))
	require.NoError(t, err)

	opts := jwtx.PersistentKeyManagerOptions{
		Store:     store,
		Sealer:    sealer,
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "iss",
		NumKeys:   2,
	}

	km1, err := jwtx.NewPersistentKeyManager(ctx, opts)
	require.NoError(t, err)
	require.Len(t, store.keys, 2)

	token, err := km1.Sign(jwtx.NewClaims("iss", "u", "admin", jwtx.KindAccess, "j", time.Now(), time.Minute))
	require.NoError(t, err)

	// A second manager over the same store generates nothing new and
	// verifies tokens from the first.
	km2, err := jwtx.NewPersistentKeyManager(ctx, opts)
	require.NoError(t, err)
	require.Len(t, store.keys, 2)
	require.Equal(t, 2, km2.NumSigners())

	claims, err := km2.Verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Role)
}

func TestPersistentKeyManager_RetiredKeysVerifyOnly(t *testing.T) {
	ctx := context.Background()
	sealer, err := cryptox.NewKeySealer([]byte("master"))
	require.NoError(t, err)

	pemData, signer, err := jwtx.GenerateSigner(jwtx.AlgorithmEdDSA, "old")
	require.NoError(t, err)
	sealed, err := sealer.Seal(pemData)
	require.NoError(t, err)

	retired := time.Now().Add(-time.Hour)
	store := &memKeyStore{keys: []jwtx.SigningKeyRecord{{
		ID:                  "1",
		Kid:                 "old",
		Algorithm:           jwtx.AlgorithmEdDSA,
		PrivateKeyEncrypted: sealed,
		RetiredAt:           &retired,
		ExpiresAt:           time.Now().Add(time.Hour),
	}}}

	km, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
		Store:     store,
		Sealer:    sealer,
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "iss",
		NumKeys:   1,
	})
	require.NoError(t, err)
	require.NotEqual(t, "old", km.GetSigner().KID())

	token, err := signer.Sign(jwtx.NewClaims("iss", "u", "student", jwtx.KindAccess, "j", time.Now(), time.Minute))
	require.NoError(t, err)
	_, err = km.Verifier.Verify(token)
	require.NoError(t, err)
}

func TestPersistentKeyManager_WrongMasterKey(t *testing.T) {
	ctx := context.Background()
	store := &memKeyStore{}
	a, _ := cryptox.NewKeySealer([]byte("a"))
	b, _ := cryptox.NewKeySealer([]byte("b"))

	_, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
		Store: store, Sealer: a, Algorithm: jwtx.AlgorithmEdDSA, Issuer: "iss", NumKeys: 1,
	})
	require.NoError(t, err)

	_, err = jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
		Store: store, Sealer: b, Algorithm: jwtx.AlgorithmEdDSA, Issuer: "iss", NumKeys: 1,
	})
	require.Error(t, err)
}
