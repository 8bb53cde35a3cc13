package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabgate/internal/gateway/credential"
	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/gatewaytest"
	"github.com/aussiebroadwan/tabgate/internal/gateway/policy"
	"github.com/aussiebroadwan/tabgate/internal/gateway/service"
	"github.com/aussiebroadwan/tabgate/internal/gateway/store/drivers/sqlite"
)

type env struct {
	clock *gatewaytest.Clock
	creds *gatewaytest.Credentials
	store *sqlite.Store
	login *service.LoginService
	users *service.UsersService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := gatewaytest.NewClock()
	creds := gatewaytest.NewCredentials(t, clock)
	st := gatewaytest.NewStore(t)
	return &env{
		clock: clock,
		creds: creds,
		store: st,
		login: &service.LoginService{Store: st, Credentials: creds.Manager, Now: clock.Now},
		users: &service.UsersService{Store: st, Credentials: creds.Manager, TOTPIssuer: "tabgate", Now: clock.Now},
	}
}

const goodPassword = "Sup3rSecret"

func (e *env) createUser(t *testing.T, name string, role domain.Role, mfa bool) service.CreatedUser {
	t.Helper()
	cu, err := e.users.CreateUser(context.Background(), service.CreateUserInput{
		Username: name, Password: goodPassword, Role: role, EnableMFA: mfa,
	})
	require.NoError(t, err)
	return cu
}

func TestCreateUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cu := e.createUser(t, "Alice", domain.RoleStudent, false)
	require.Equal(t, "alice", cu.User.Username)
	require.Empty(t, cu.ProvisioningURI)

	_, err := e.users.CreateUser(ctx, service.CreateUserInput{Username: "alice", Password: goodPassword, Role: domain.RoleStudent})
	require.ErrorIs(t, err, service.ErrUsernameTaken)

	_, err = e.users.CreateUser(ctx, service.CreateUserInput{Username: "bob", Password: goodPassword, Role: "root"})
	require.ErrorIs(t, err, service.ErrInvalidRole)

	_, err = e.users.CreateUser(ctx, service.CreateUserInput{Username: "x", Password: goodPassword, Role: domain.RoleStudent})
	require.ErrorIs(t, err, service.ErrInvalidUsername)
}

func TestCreateUser_WeakPasswordNeverPersisted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.users.CreateUser(ctx, service.CreateUserInput{Username: "carol", Password: "password", Role: domain.RoleStudent})
	var weak *credential.WeakPasswordError
	require.ErrorAs(t, err, &weak)

	users, err := e.users.ListUsers(ctx)
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cu := e.createUser(t, "dave", domain.RoleTeacher, false)

	var weak *credential.WeakPasswordError
	require.ErrorAs(t, e.users.ChangePassword(ctx, cu.User.ID, "short"), &weak)

	require.NoError(t, e.users.ChangePassword(ctx, cu.User.ID, "N3wPassword"))
	_, err := e.login.Login(ctx, "dave", goodPassword, "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, err = e.login.Login(ctx, "dave", "N3wPassword", "")
	require.NoError(t, err)
}

func TestBootstrap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ok, err := e.users.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	admin, err := e.users.Bootstrap(ctx, "root", goodPassword)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, admin.Role)

	_, err = e.users.Bootstrap(ctx, "root2", goodPassword)
	require.ErrorIs(t, err, service.ErrAlreadyBootstrap)

	ok, err = e.users.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cu := e.createUser(t, "erin", domain.RoleTeacher, false)

	pair, err := e.login.Login(ctx, "Erin ", goodPassword, "")
	require.NoError(t, err)

	id, err := e.creds.VerifyToken(ctx, pair.Access.Token, domain.TokenAccess)
	require.NoError(t, err)
	require.Equal(t, cu.User.ID, id.Subject)
	require.Equal(t, domain.RoleTeacher, id.Role)

	_, err = e.creds.VerifyToken(ctx, pair.Refresh.Token, domain.TokenRefresh)
	require.NoError(t, err)

	_, err = e.login.Login(ctx, "nobody", goodPassword, "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

// Scenario: five failures lock the account even for the right password
// until the lockout elapses.
func TestLogin_Lockout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createUser(t, "alice", domain.RoleStudent, false)

	for range credential.DefaultMaxLoginFailures {
		_, err := e.login.Login(ctx, "alice", "Wrong1234", "")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	}

	_, err := e.login.Login(ctx, "alice", goodPassword, "")
	require.ErrorIs(t, err, credential.ErrLoginLockedOut)

	e.clock.Advance(credential.DefaultLockoutDuration)
	_, err = e.login.Login(ctx, "alice", goodPassword, "")
	require.NoError(t, err)

	n, err := e.creds.FailedLogins(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createUser(t, "frank", domain.RoleStudent, false)

	for range credential.DefaultMaxLoginFailures - 1 {
		_, err := e.login.Login(ctx, "frank", "Wrong1234", "")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	}
	_, err := e.login.Login(ctx, "frank", goodPassword, "")
	require.NoError(t, err)

	// Four more failures still do not lock.
	for range credential.DefaultMaxLoginFailures - 1 {
		_, err := e.login.Login(ctx, "frank", "Wrong1234", "")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	}
	_, err = e.login.Login(ctx, "frank", goodPassword, "")
	require.NoError(t, err)
}

func TestLogin_MFA(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cu := e.createUser(t, "grace", domain.RoleAdmin, true)
	require.NotEmpty(t, cu.ProvisioningURI)
	require.True(t, cu.User.MFAEnabled())

	_, err := e.login.Login(ctx, "grace", goodPassword, "")
	require.ErrorIs(t, err, service.ErrMFARequired)

	_, err = e.login.Login(ctx, "grace", goodPassword, "000000")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	code, err := totp.GenerateCode(*cu.User.MFASecret, e.clock.Now())
	require.NoError(t, err)
	_, err = e.login.Login(ctx, "grace", goodPassword, code)
	require.NoError(t, err)
}

func TestRefresh_Rotates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cu := e.createUser(t, "heidi", domain.RoleStudent, false)

	pair, err := e.login.Login(ctx, "heidi", goodPassword, "")
	require.NoError(t, err)

	e.clock.Advance(time.Second)
	next, err := e.login.Refresh(ctx, pair.Refresh.Token)
	require.NoError(t, err)
	require.NotEqual(t, pair.Refresh.TokenID, next.Refresh.TokenID)

	// The old refresh token cannot be replayed.
	_, err = e.login.Refresh(ctx, pair.Refresh.Token)
	require.ErrorIs(t, err, credential.ErrTokenRevoked)

	// Access tokens are not refresh tokens.
	_, err = e.login.Refresh(ctx, next.Access.Token)
	require.ErrorIs(t, err, credential.ErrTokenKindMismatch)

	// A role change shows up on the next refresh.
	require.NoError(t, e.store.Users().UpdateRole(ctx, cu.User.ID, domain.RoleTeacher))
	last, err := e.login.Refresh(ctx, next.Refresh.Token)
	require.NoError(t, err)
	require.Equal(t, domain.RoleTeacher, last.Access.Role)
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createUser(t, "ivan", domain.RoleStudent, false)

	pair, err := e.login.Login(ctx, "ivan", goodPassword, "")
	require.NoError(t, err)
	require.NoError(t, e.login.Logout(ctx, pair.Access.Token, pair.Refresh.Token))

	_, err = e.creds.VerifyToken(ctx, pair.Access.Token, domain.TokenAccess)
	require.ErrorIs(t, err, credential.ErrTokenRevoked)
	_, err = e.login.Refresh(ctx, pair.Refresh.Token)
	require.ErrorIs(t, err, credential.ErrTokenRevoked)

	require.NoError(t, e.login.Logout(ctx, pair.Access.Token, ""))
	require.ErrorIs(t, e.login.Logout(ctx, "garbage", ""), credential.ErrTokenInvalid)
}

func TestRulesService(t *testing.T) {
	ctx := context.Background()
	st := gatewaytest.NewStore(t)
	engine := policy.NewEngine(nil)
	svc := &service.RulesService{Store: st, Engine: engine}

	require.NoError(t, svc.Load(ctx))
	require.Equal(t, domain.DefaultRules(), svc.Rules())

	admin := domain.Identity{Subject: "a", Role: domain.RoleAdmin}
	student := domain.Identity{Subject: "s", Role: domain.RoleStudent}

	_, err := svc.Update(ctx, student, domain.RuleSet{"broadcast": {domain.RoleStudent}}, false)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Update(ctx, admin, domain.RuleSet{"broadcast": {"root"}}, false)
	require.ErrorIs(t, err, domain.ErrInvalidRules)

	rules, err := svc.Update(ctx, admin, domain.RuleSet{
		"broadcast": {domain.RoleStudent, domain.RoleTeacher, domain.RoleAdmin},
		"echo":      nil,
	}, false)
	require.NoError(t, err)
	require.True(t, engine.IsAllowed("broadcast", domain.RoleStudent))
	require.NotContains(t, rules, "echo")

	// A fresh engine loading the same store sees the update.
	fresh := policy.NewEngine(nil)
	require.NoError(t, (&service.RulesService{Store: st, Engine: fresh}).Load(ctx))
	require.Equal(t, engine.Rules(), fresh.Rules())

	_, err = svc.Update(ctx, admin, domain.RuleSet{"chat": {domain.RoleStudent}}, true)
	require.NoError(t, err)
	stored, err := st.Rules().ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "chat", stored[0].MessageType)
}

type countingReaper struct{ calls []time.Duration }

func (r *countingReaper) Reap(d time.Duration) int {
	r.calls = append(r.calls, d)
	return 0
}

func TestHousekeeping(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.creds.KV.SetWithTTL(ctx, "k", "v", time.Second))
	e.clock.Advance(2 * time.Second)

	reaper := &countingReaper{}
	hk := service.NewHousekeepingService(e.store, e.creds.KV, reaper, gatewaytest.Logger(), 0, 0, 5*time.Minute)
	hk.Now = e.clock.Now

	hk.Cleanup()
	require.Zero(t, e.creds.KV.Len())

	hk.Reap()
	require.Equal(t, []time.Duration{5 * time.Minute}, reaper.calls)

	hk.IdleTimeout = 0
	hk.Reap()
	require.Len(t, reaper.calls, 1)

	hk.Start()
	hk.Stop()
}
