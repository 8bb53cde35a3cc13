package cryptox_test

import (
	"strings"
	"testing"
	"unicode"

	"github.com/aussiebroadwan/tabgate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

// Cheap parameters so the suite stays fast; the encoding is identical.
var testParams = cryptox.Params{
	Memory:      64,
	Iterations:  1,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

func TestHashPassword(t *testing.T) {
	h := cryptox.NewHasher("pepper", testParams)

	tests := []struct {
		name     string
		password string
	}{
		{"simple", "Password123"},
		{"symbols", "P@ssw0rd!#$%^&*()"},
		{"long", strings.Repeat("aB3", 40)},
		{"unicode", "пароль🔒Secret1"},
		{"whitespace", "  Spaced0ut  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

			parts := strings.Split(hash, "$")
			require.Len(t, parts, 6)
			require.Equal(t, "m=64,t=1,p=1", parts[3])

			require.NoError(t, h.Verify(tt.password, hash))
		})
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	h := cryptox.NewHasher("pepper", testParams)

	a, err := h.Hash("SamePassword1")
	require.NoError(t, err)
	b, err := h.Hash("SamePassword1")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.NoError(t, h.Verify("SamePassword1", a))
	require.NoError(t, h.Verify("SamePassword1", b))
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	h := cryptox.NewHasher("pepper", testParams)
	hash, err := h.Hash("Correct-Password1")
	require.NoError(t, err)

	for _, wrong := range []string{"Wrong-Password1", "correct-password1", "Correct-Password1 ", "", strings.Repeat("x", 10000)} {
		t.Run(wrong, func(t *testing.T) {
			require.ErrorIs(t, h.Verify(wrong, hash), cryptox.ErrPasswordMismatch)
		})
	}
}

func TestVerifyPassword_PepperMatters(t *testing.T) {
	hash, err := cryptox.NewHasher("pepper-a", testParams).Hash("Password123")
	require.NoError(t, err)

	err = cryptox.NewHasher("pepper-b", testParams).Verify("Password123", hash)
	require.ErrorIs(t, err, cryptox.ErrPasswordMismatch)
}

func TestVerifyPassword_RecordedParamsWin(t *testing.T) {
	hash, err := cryptox.NewHasher("p", testParams).Hash("Password123")
	require.NoError(t, err)

	// A hasher configured with different costs still verifies old hashes.
	stronger := testParams
	stronger.Iterations = 3
	require.NoError(t, cryptox.NewHasher("p", stronger).Verify("Password123", hash))
}

func TestVerifyPassword_InvalidHashFormat(t *testing.T) {
	h := cryptox.NewHasher("pepper", testParams)

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"wrong algorithm", "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing parts", "$argon2id$v=19$m=19456"},
		{"malformed parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"invalid base64 salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA"},
		{"invalid base64 hash", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, h.Verify("whatever", tt.hash), cryptox.ErrMalformedHash)
		})
	}
}

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]struct{})
	for range 50 {
		pw, err := cryptox.GeneratePassword()
		require.NoError(t, err)
		require.Len(t, pw, 16)

		var lower, upper, digit bool
		for _, r := range pw {
			switch {
			case unicode.IsLower(r):
				lower = true
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsDigit(r):
				digit = true
			default:
				t.Fatalf("unexpected rune %q in %q", r, pw)
			}
		}
		require.True(t, lower && upper && digit, "password %q misses a class", pw)

		require.NotContains(t, seen, pw)
		seen[pw] = struct{}{}
	}
}
