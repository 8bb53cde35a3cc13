// Package gatewaytest holds fixtures shared by the gateway package tests.
package gatewaytest

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabgate/internal/gateway/credential"
	"github.com/aussiebroadwan/tabgate/internal/gateway/kv"
	"github.com/aussiebroadwan/tabgate/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/tabgate/pkg/cryptox"
	"github.com/aussiebroadwan/tabgate/pkg/jwtx"
)

const Issuer = "https://gateway.test"

// FastParams keeps argon2 cheap in tests.
var FastParams = cryptox.Params{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

// Clock is a manually advanced clock, safe for concurrent use.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts at a fixed whole second so JWT timestamps round cleanly.
func NewClock() *Clock {
	return &Clock{t: time.Unix(1_760_000_000, 0)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Credentials bundles a Manager with the stores behind it.
type Credentials struct {
	*credential.Manager
	Keys *jwtx.KeyManager
	KV   *kv.Memory
}

// NewCredentials builds a Manager over an ephemeral EdDSA key set and a
// memory KV store, both driven by clock.
func NewCredentials(t testing.TB, clock *Clock) *Credentials {
	t.Helper()

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    Issuer,
		NumKeys:   2,
		Now:       clock.Now,
	})
	require.NoError(t, err)

	store := kv.NewMemory(clock.Now)
	m, err := credential.NewManager(credential.Config{
		Keys:   keys,
		Hasher: cryptox.NewHasher("test-pepper", FastParams),
		KV:     store,
		Issuer: Issuer,
		Now:    clock.Now,
	})
	require.NoError(t, err)

	return &Credentials{Manager: m, Keys: keys, KV: store}
}

// NewStore opens a migrated in-memory sqlite store.
func NewStore(t testing.TB) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
