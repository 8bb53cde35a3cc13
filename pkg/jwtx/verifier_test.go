package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabgate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newManager(t *testing.T, alg string, c *clock) *jwtx.KeyManager {
	t.Helper()
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: alg,
		Issuer:    "tabgate-test",
		NumKeys:   1,
		Now:       c.Now,
	})
	require.NoError(t, err)
	return km
}

func TestVerifier_RoundTrip(t *testing.T) {
	for _, alg := range []string{jwtx.AlgorithmEdDSA, jwtx.AlgorithmES256} {
		t.Run(alg, func(t *testing.T) {
			c := &clock{now: time.Unix(1_700_000_000, 0).UTC()}
			km := newManager(t, alg, c)

			claims := jwtx.NewClaims("tabgate-test", "user-1", "teacher", jwtx.KindAccess, "jti-1", c.now, time.Minute)
			token, err := km.Sign(claims)
			require.NoError(t, err)

			got, err := km.Verifier.Verify(token)
			require.NoError(t, err)
			require.Equal(t, "user-1", got.Subject)
			require.Equal(t, "teacher", got.Role)
			require.Equal(t, jwtx.KindAccess, got.Kind)
			require.Equal(t, "jti-1", got.ID)
			require.Equal(t, c.now.Add(time.Minute), got.Expiry())
			require.Equal(t, c.now, got.Issued())
		})
	}
}

func TestVerifier_Expiry(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0).UTC()}
	km := newManager(t, jwtx.AlgorithmEdDSA, c)

	token, err := km.Sign(jwtx.NewClaims("tabgate-test", "u", "student", jwtx.KindAccess, "j", c.now, time.Second))
	require.NoError(t, err)

	_, err = km.Verifier.Verify(token)
	require.NoError(t, err)

	// exp is exclusive: at exactly exp the token is dead.
	c.now = c.now.Add(time.Second)
	_, err = km.Verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)

	// Signature-only verification still works for an expired token.
	claims, err := km.Verifier.VerifySignature(token)
	require.NoError(t, err)
	require.Equal(t, "j", claims.ID)
}

func TestVerifier_NotYetValid(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0).UTC()}
	km := newManager(t, jwtx.AlgorithmEdDSA, c)

	token, err := km.Sign(jwtx.NewClaims("tabgate-test", "u", "student", jwtx.KindAccess, "j", c.now.Add(time.Hour), 2*time.Hour))
	require.NoError(t, err)

	_, err = km.Verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrNotYetValid)
}

func TestVerifier_Rejections(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0).UTC()}
	km := newManager(t, jwtx.AlgorithmEdDSA, c)
	other := newManager(t, jwtx.AlgorithmEdDSA, c)

	good, err := km.Sign(jwtx.NewClaims("tabgate-test", "u", "student", jwtx.KindAccess, "j", c.now, time.Minute))
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := km.Verifier.Verify("not.a.jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("foreign key", func(t *testing.T) {
		_, err := other.Verifier.Verify(good)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(good, ".")
		require.Len(t, parts, 3)
		forged, err := other.Sign(jwtx.NewClaims("tabgate-test", "u", "admin", jwtx.KindAccess, "j", c.now, time.Minute))
		require.NoError(t, err)
		fparts := strings.Split(forged, ".")
		_, err = km.Verifier.Verify(parts[0] + "." + fparts[1] + "." + parts[2])
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		tok, err := km.Sign(jwtx.NewClaims("someone-else", "u", "student", jwtx.KindAccess, "j", c.now, time.Minute))
		require.NoError(t, err)
		_, err = km.Verifier.Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("missing exp", func(t *testing.T) {
		claims := jwtx.NewClaims("tabgate-test", "u", "student", jwtx.KindAccess, "j", c.now, time.Minute)
		claims.ExpiresAt = nil
		tok, err := km.Sign(claims)
		require.NoError(t, err)
		_, err = km.Verifier.Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})
}
