package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/gatewaytest"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"GATEWAY_KV_DRIVER", "GATEWAY_ACCESS_TTL", "GATEWAY_MAX_MESSAGES", "GATEWAY_ALLOWED_ORIGINS", "PORT"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	require.Equal(t, "memory", cfg.KVDriver)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 30, cfg.MaxMessages)
	require.Equal(t, 60*time.Second, cfg.RateWindow)
	require.Equal(t, 8080, cfg.Port)
	require.Nil(t, cfg.AllowedOrigins)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("GATEWAY_KV_DRIVER", "redis")
	t.Setenv("GATEWAY_ACCESS_TTL", "5")
	t.Setenv("GATEWAY_RATE_WINDOW", "10s")
	t.Setenv("GATEWAY_MAX_MESSAGES", "not-a-number")
	t.Setenv("GATEWAY_ALLOWED_ORIGINS", "example.com, *.school.test ,")

	cfg := LoadConfig()
	require.Equal(t, "redis", cfg.KVDriver)
	require.Equal(t, 5*time.Minute, cfg.AccessTTL)
	require.Equal(t, 10*time.Second, cfg.RateWindow)
	require.Equal(t, 30, cfg.MaxMessages)
	require.Equal(t, []string{"example.com", "*.school.test"}, cfg.AllowedOrigins)
}

type recordingApplier struct {
	mu    sync.Mutex
	calls []domain.RuleSet
}

func (r *recordingApplier) Apply(_ context.Context, partial domain.RuleSet, _ bool) (domain.RuleSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, partial)
	return partial, nil
}

func (r *recordingApplier) last() (domain.RuleSet, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil, 0
	}
	return r.calls[len(r.calls)-1], len(r.calls)
}

func TestRulesWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  ping: [student]\n"), 0o600))

	applier := &recordingApplier{}
	w, err := NewRulesWatcher(path, applier, gatewaytest.Logger(), 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Load(ctx))
	w.Start(ctx)
	defer func() { require.NoError(t, w.Stop()) }()

	rs, n := applier.last()
	require.Equal(t, 1, n)
	require.Equal(t, []domain.Role{domain.RoleStudent}, rs["ping"])

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  ping: [admin]\n"), 0o600))
	require.Eventually(t, func() bool {
		rs, _ := applier.last()
		return len(rs["ping"]) == 1 && rs["ping"][0] == domain.RoleAdmin
	}, 5*time.Second, 20*time.Millisecond)

	// A broken file is reported and the previous rules stay.
	_, before := applier.last()
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  ping: [janitor]\n"), 0o600))
	time.Sleep(200 * time.Millisecond)
	_, after := applier.last()
	require.Equal(t, before, after)
}

func TestRulesWatcher_StopWithoutStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yml")
	w, err := NewRulesWatcher(path, &recordingApplier{}, gatewaytest.Logger(), 0)
	require.NoError(t, err)
	require.NoError(t, w.Stop())
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Issuer:               "tabgate-test",
		Algorithm:            "EdDSA",
		NumKeys:              2,
		KeyStorageMode:       "ephemeral",
		DatabaseFile:         filepath.Join(dir, "gateway.db"),
		PepperFile:           filepath.Join(dir, "pepper"),
		KVDriver:             "memory",
		BootstrapAdmin:       "root",
		BootstrapPassword:    "Sup3rSecret",
		LogLevel:             "error",
		LogFormat:            "text",
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
		ReapInterval:         time.Minute,
		IdleTimeout:          time.Hour,
	}
}

func TestNew_ServesAndBootstraps(t *testing.T) {
	cfg := testConfig(t)
	rulesPath := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(rulesPath, []byte("rules:\n  quiz.answer: [student]\n"), 0o600))
	cfg.RulesFile = rulesPath

	a, err := New(cfg)
	require.NoError(t, err)
	a.Start()
	defer func() { require.NoError(t, a.Shutdown()) }()

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/livez")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, BuildVersion, body.Version)

	bootstrapped, err := a.usersService.IsBootstrapped(context.Background())
	require.NoError(t, err)
	require.True(t, bootstrapped)

	require.Equal(t, []domain.Role{domain.RoleStudent}, a.engine.Rules()["quiz.answer"])
	require.Contains(t, a.engine.Rules(), "ping")
}

func TestNew_RejectsUnknownDrivers(t *testing.T) {
	cfg := testConfig(t)
	cfg.KVDriver = "memcached"
	_, err := New(cfg)
	require.ErrorContains(t, err, "unknown kv driver")

	cfg = testConfig(t)
	cfg.KeyStorageMode = "vault"
	_, err = New(cfg)
	require.Error(t, err)
}

func TestNew_PersistentKeysSurviveRestart(t *testing.T) {
	t.Setenv(masterKeyEnv, "correct horse battery staple")
	cfg := testConfig(t)
	cfg.KeyStorageMode = "persistent"
	cfg.KeyGracePeriod = 24 * time.Hour

	kids := func(a *Application) []string {
		var out []string
		for _, k := range a.keyManager.KeySet.PublicJWKS().Keys {
			out = append(out, k.Kid)
		}
		return out
	}

	first, err := New(cfg)
	require.NoError(t, err)
	before := kids(first)
	require.Len(t, before, 2)
	cred, err := first.credentials.IssueAccessToken("u1", domain.RoleTeacher, 0)
	require.NoError(t, err)
	require.NoError(t, first.Shutdown())

	second, err := New(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, second.Shutdown()) }()

	require.ElementsMatch(t, before, kids(second))
	id, err := second.credentials.VerifyToken(context.Background(), cred.Token, domain.TokenAccess)
	require.NoError(t, err)
	require.Equal(t, "u1", id.Subject)
}
