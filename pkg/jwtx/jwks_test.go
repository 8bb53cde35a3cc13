package jwtx_test

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/aussiebroadwan/tabgate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestJWK_RoundTrip(t *testing.T) {
	t.Run("ed25519", func(t *testing.T) {
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		j := jwtx.NewEd25519JWK("k1", jwtx.AlgorithmEdDSA, pub)
		require.Equal(t, "OKP", j.Kty)
		require.Equal(t, "sig", j.Use)

		got, err := j.PublicKey()
		require.NoError(t, err)
		require.Equal(t, pub, got)
	})

	t.Run("es256", func(t *testing.T) {
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		j := jwtx.NewES256JWK("k2", jwtx.AlgorithmES256, &priv.PublicKey)
		require.Equal(t, "EC", j.Kty)
		require.Len(t, j.X, 43, "32 bytes base64url without padding")
		require.Len(t, j.Y, 43)

		got, err := j.PublicKey()
		require.NoError(t, err)
		require.True(t, priv.PublicKey.Equal(got))
	})
}

func TestJWK_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		jwk  jwtx.JWK
	}{
		{"rsa", jwtx.JWK{Kty: "RSA"}},
		{"x25519", jwtx.JWK{Kty: "OKP", Crv: "X25519"}},
		{"p384", jwtx.JWK{Kty: "EC", Crv: "P-384"}},
		{"short ed25519", jwtx.JWK{Kty: "OKP", Crv: "Ed25519", X: "AAAA"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.jwk.PublicKey()
			require.Error(t, err)
		})
	}
}

func TestKeySet_JWKSOrderAndRemove(t *testing.T) {
	ks := jwtx.NewKeySet()
	require.False(t, ks.IsReady())

	for _, kid := range []string{"a", "b", "c"} {
		_, s, err := jwtx.GenerateSigner(jwtx.AlgorithmEdDSA, kid)
		require.NoError(t, err)
		require.NoError(t, ks.AddSigner(s))
	}
	require.True(t, ks.IsReady())

	kids := func() []string {
		var out []string
		for _, k := range ks.PublicJWKS().Keys {
			out = append(out, k.Kid)
		}
		return out
	}
	require.Equal(t, []string{"a", "b", "c"}, kids())

	ks.Remove("b")
	require.Equal(t, []string{"a", "c"}, kids())
	_, err := ks.Get("b")
	require.ErrorIs(t, err, jwtx.ErrNoKey)

	raw, err := json.Marshal(ks.PublicJWKS())
	require.NoError(t, err)
	require.Contains(t, string(raw), `"keys":[`)
}
