package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
)

func TestParseFile(t *testing.T) {
	rs, replace, err := ParseFile([]byte(`
replace: true
rules:
  ping: [student, Teacher, ADMIN]
  quiz.answer: [student]
  echo: []
`))
	require.NoError(t, err)
	require.True(t, replace)
	require.Equal(t, domain.RuleSet{
		"ping":        {domain.RoleStudent, domain.RoleTeacher, domain.RoleAdmin},
		"quiz.answer": {domain.RoleStudent},
		"echo":        {},
	}, rs)
}

func TestParseFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no rules", "replace: false\n"},
		{"unknown role", "rules:\n  ping: [janitor]\n"},
		{"empty type", "rules:\n  \"\": [admin]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseFile([]byte(tt.doc))
			require.ErrorIs(t, err, domain.ErrInvalidRules)
		})
	}

	_, _, err := ParseFile([]byte("rules: [not, a, map]"))
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrInvalidRules)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  broadcast: [admin]\n"), 0o600))

	rs, replace, err := LoadFile(path)
	require.NoError(t, err)
	require.False(t, replace)
	require.Equal(t, []domain.Role{domain.RoleAdmin}, rs["broadcast"])

	_, _, err = LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}
