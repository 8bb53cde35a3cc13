package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/gatewaytest"
	"github.com/aussiebroadwan/tabgate/internal/gateway/handlers"
	httpapi "github.com/aussiebroadwan/tabgate/internal/gateway/http"
	"github.com/aussiebroadwan/tabgate/internal/gateway/hub"
	"github.com/aussiebroadwan/tabgate/internal/gateway/policy"
	"github.com/aussiebroadwan/tabgate/internal/gateway/ratelimit"
	"github.com/aussiebroadwan/tabgate/internal/gateway/service"
	"github.com/aussiebroadwan/tabgate/pkg/gatewaysdk"
)

const (
	password       = "Sup3rSecret"
	bootstrapToken = "let-me-in"
)

type testServer struct {
	srv    *httptest.Server
	client *gatewaysdk.Client
	clock  *gatewaytest.Clock
	creds  *gatewaytest.Credentials
	gw     *hub.Gateway
	users  *service.UsersService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	clock := gatewaytest.NewClock()
	creds := gatewaytest.NewCredentials(t, clock)
	st := gatewaytest.NewStore(t)
	logger := gatewaytest.Logger()

	engine := policy.NewEngine(nil)
	rules := &service.RulesService{Store: st, Engine: engine, Now: clock.Now}
	require.NoError(t, rules.Load(ctx))

	reg := handlers.NewRegistry()
	gw, err := hub.New(hub.Config{
		Credentials: creds.Manager,
		Policy:      engine,
		Limiter:     ratelimit.New(clock.Now),
		Handlers:    reg,
		Now:         clock.Now,
		Logger:      logger,
	})
	require.NoError(t, err)
	handlers.Register(reg, handlers.Deps{Broadcaster: gw, Rules: rules, Now: clock.Now})

	users := &service.UsersService{Store: st, Credentials: creds.Manager, TOTPIssuer: "tabgate", Now: clock.Now}

	r := httpapi.NewRouter(creds.Keys.KeySet, "test", st, creds.KV, logger)
	r.Credentials = creds.Manager
	r.Gateway = gw
	r.LoginService = &service.LoginService{Store: st, Credentials: creds.Manager, Now: clock.Now}
	r.UsersService = users
	r.RulesService = rules
	r.BootstrapToken = bootstrapToken
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		_ = gw.Shutdown(context.Background())
		srv.Close()
	})

	return &testServer{
		srv:    srv,
		client: gatewaysdk.NewClient(srv.URL),
		clock:  clock,
		creds:  creds,
		gw:     gw,
		users:  users,
	}
}

func (s *testServer) createUser(t *testing.T, name string, role domain.Role) {
	t.Helper()
	_, err := s.users.CreateUser(context.Background(), service.CreateUserInput{
		Username: name, Password: password, Role: role,
	})
	require.NoError(t, err)
}

func (s *testServer) login(t *testing.T, name string, role domain.Role) *gatewaysdk.Session {
	t.Helper()
	s.createUser(t, name, role)
	sess, err := s.client.Login(context.Background(), name, password, "")
	require.NoError(t, err)
	require.Equal(t, string(role), sess.Role())
	return sess
}

func (s *testServer) dial(t *testing.T, sess *gatewaysdk.Session) *gatewaysdk.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := sess.Dial(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	m, err := conn.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "auth_success", m.Type)
	return conn
}

func receive(t *testing.T, conn *gatewaysdk.Conn, typ string) gatewaysdk.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m, err := conn.ReceiveType(ctx, typ)
	require.NoError(t, err)
	return m
}

func send(t *testing.T, conn *gatewaysdk.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Send(ctx, v))
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *gatewaysdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
}

// closedWith dials with token and returns the close code the gateway sends
// after the upgrade.
func closedWith(t *testing.T, c *gatewaysdk.Client, token string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := c.Dial(ctx, token)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Receive(ctx)
	var ce *gatewaysdk.CloseError
	require.ErrorAs(t, err, &ce)
	return ce.Code
}

func TestHealthAndJWKS(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	live, err := s.client.Liveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := s.client.Readiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.KV)

	jwks, err := s.client.JWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 2)
}

func TestBootstrap(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	req := gatewaysdk.BootstrapRequest{Username: "root", Password: password}

	_, err := s.client.Bootstrap(ctx, "wrong", req)
	requireAPIError(t, err, http.StatusUnauthorized, "unauthorized")

	u, err := s.client.Bootstrap(ctx, bootstrapToken, req)
	require.NoError(t, err)
	require.Equal(t, "admin", u.Role)

	_, err = s.client.Bootstrap(ctx, bootstrapToken, gatewaysdk.BootstrapRequest{Username: "other", Password: password})
	requireAPIError(t, err, http.StatusConflict, gatewaysdk.ErrorCodeConflict)

	sess, err := s.client.Login(ctx, "root", password, "")
	require.NoError(t, err)
	require.Equal(t, u.ID, sess.Subject())
}

func TestLogin_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	s.createUser(t, "alice", domain.RoleStudent)

	_, err := s.client.Login(ctx, "alice", "WrongPass1", "")
	requireAPIError(t, err, http.StatusUnauthorized, gatewaysdk.ErrorCodeInvalidCredentials)

	_, err = s.client.Login(ctx, "nobody", password, "")
	requireAPIError(t, err, http.StatusUnauthorized, gatewaysdk.ErrorCodeInvalidCredentials)

	_, err = s.users.CreateUser(ctx, service.CreateUserInput{
		Username: "carol", Password: password, Role: domain.RoleTeacher, EnableMFA: true,
	})
	require.NoError(t, err)
	_, err = s.client.Login(ctx, "carol", password, "")
	requireAPIError(t, err, http.StatusUnauthorized, gatewaysdk.ErrorCodeMFARequired)
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	sess := s.login(t, "alice", domain.RoleStudent)

	_, oldRefresh := sess.Tokens()
	require.NoError(t, sess.Refresh(ctx))
	access, newRefresh := sess.Tokens()
	require.NotEqual(t, oldRefresh, newRefresh)

	_, err := s.client.Refresh(ctx, oldRefresh)
	requireAPIError(t, err, http.StatusUnauthorized, gatewaysdk.ErrorCodeInvalidToken)

	require.NoError(t, sess.Logout(ctx))

	_, err = s.client.Refresh(ctx, newRefresh)
	requireAPIError(t, err, http.StatusUnauthorized, gatewaysdk.ErrorCodeInvalidToken)
	require.Equal(t, gatewaysdk.CloseTokenRevoked, closedWith(t, s.client, access))
}

func TestWebsocket_Pipeline(t *testing.T) {
	s := newTestServer(t)

	student := s.dial(t, s.login(t, "alice", domain.RoleStudent))
	teacher := s.dial(t, s.login(t, "bob", domain.RoleTeacher))

	send(t, student, map[string]any{"type": "ping"})
	receive(t, student, "pong")

	send(t, student, map[string]any{"type": "broadcast", "payload": map[string]string{"msg": "hi"}})
	var denied gatewaysdk.ErrorFrame
	require.NoError(t, receive(t, student, "error").Decode(&denied))
	require.Equal(t, "permission_denied", denied.Error)

	send(t, teacher, map[string]any{"type": "broadcast", "payload": map[string]string{"msg": "quiz time"}})

	var got handlers.BroadcastMessage
	require.NoError(t, receive(t, student, "broadcast").Decode(&got))
	require.Equal(t, domain.RoleTeacher, got.Role)
	require.JSONEq(t, `{"msg":"quiz time"}`, string(got.Payload))

	var ack struct {
		Delivered int `json:"delivered"`
	}
	require.NoError(t, receive(t, teacher, "ack").Decode(&ack))
	require.Equal(t, 1, ack.Delivered)

	send(t, student, json.RawMessage(`{"no_type":true}`))
	var invalid gatewaysdk.ErrorFrame
	require.NoError(t, receive(t, student, "error").Decode(&invalid))
	require.Equal(t, "invalid_message", invalid.Error)
}

func TestWebsocket_RejectedCredentials(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	s.createUser(t, "alice", domain.RoleStudent)

	t.Run("missing token", func(t *testing.T) {
		_, err := s.client.Dial(ctx, "")
		require.Error(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		require.Equal(t, gatewaysdk.CloseTokenInvalid, closedWith(t, s.client, "not-a-token"))
	})

	t.Run("refresh token", func(t *testing.T) {
		cred, err := s.creds.IssueRefreshToken(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, gatewaysdk.CloseTokenInvalid, closedWith(t, s.client, cred.Token))
	})

	t.Run("revoked", func(t *testing.T) {
		cred, err := s.creds.IssueAccessToken("alice", domain.RoleStudent, 0)
		require.NoError(t, err)
		require.NoError(t, s.creds.RevokeToken(ctx, cred.Token))
		require.Equal(t, gatewaysdk.CloseTokenRevoked, closedWith(t, s.client, cred.Token))
	})

	t.Run("expired", func(t *testing.T) {
		cred, err := s.creds.IssueAccessToken("alice", domain.RoleStudent, time.Minute)
		require.NoError(t, err)
		s.clock.Advance(2 * time.Minute)
		require.Equal(t, gatewaysdk.CloseTokenExpired, closedWith(t, s.client, cred.Token))
	})

	require.Equal(t, int64(4), s.gw.Metrics().AuthFailures)
}

func TestWebsocket_SessionExpires(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cred, err := s.creds.IssueAccessToken("alice", domain.RoleStudent, time.Minute)
	require.NoError(t, err)
	conn, err := s.client.Dial(ctx, cred.Token)
	require.NoError(t, err)
	defer conn.Close()
	receive(t, conn, "auth_success")

	s.clock.Advance(time.Minute)
	send(t, conn, map[string]any{"type": "ping"})

	var frame gatewaysdk.ErrorFrame
	require.NoError(t, receive(t, conn, "error").Decode(&frame))
	require.Equal(t, "token_expired", frame.Error)

	_, err = conn.Receive(ctx)
	var ce *gatewaysdk.CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, gatewaysdk.CloseSessionExpired, ce.Code)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	student := s.login(t, "alice", domain.RoleStudent)

	_, err := student.GetRules(ctx)
	requireAPIError(t, err, http.StatusForbidden, gatewaysdk.ErrorCodePermissionDenied)

	_, err = student.Metrics(ctx)
	requireAPIError(t, err, http.StatusForbidden, gatewaysdk.ErrorCodePermissionDenied)

	anon := s.client.NewSession(gatewaysdk.TokenResponse{AccessToken: "garbage", ExpiresIn: 900})
	_, err = anon.GetRules(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, gatewaysdk.ErrorCodeInvalidToken)
}

func TestAdmin_RulesApplyToLiveConnections(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin := s.login(t, "root", domain.RoleAdmin)
	student := s.dial(t, s.login(t, "alice", domain.RoleStudent))

	rules, err := admin.GetRules(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"student", "teacher", "admin"}, rules["echo"])

	send(t, student, map[string]any{"type": "echo", "payload": 1})
	receive(t, student, "ack")

	rules, err = admin.UpdateRules(ctx, gatewaysdk.Rules{"echo": {"admin"}}, false)
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, rules["echo"])
	require.Contains(t, rules, "ping")

	send(t, student, map[string]any{"type": "echo", "payload": 2})
	var frame gatewaysdk.ErrorFrame
	require.NoError(t, receive(t, student, "error").Decode(&frame))
	require.Equal(t, "permission_denied", frame.Error)

	_, err = admin.UpdateRules(ctx, gatewaysdk.Rules{"echo": {"janitor"}}, false)
	requireAPIError(t, err, http.StatusBadRequest, gatewaysdk.ErrorCodeInvalidRequest)
}

func TestAdmin_Operations(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin := s.login(t, "root", domain.RoleAdmin)
	studentSess := s.login(t, "alice", domain.RoleStudent)
	student := s.dial(t, studentSess)

	conns, err := admin.Connections(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	require.Equal(t, "student", conns[0].Role)

	n, err := admin.Broadcast(ctx, gatewaysdk.BroadcastRequest{Payload: json.RawMessage(`{"notice":"fire drill"}`)})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	receive(t, student, "broadcast")

	n, err = admin.Broadcast(ctx, gatewaysdk.BroadcastRequest{Payload: json.RawMessage(`{}`), Role: "teacher"})
	require.NoError(t, err)
	require.Zero(t, n)

	m, err := admin.Metrics(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), m.ActiveConnections)

	u, err := admin.CreateUser(ctx, gatewaysdk.CreateUserRequest{Username: "dave", Password: password, Role: "teacher", EnableMFA: true})
	require.NoError(t, err)
	require.True(t, u.MFAEnabled)
	require.Contains(t, u.ProvisioningURI, "otpauth://")

	_, err = admin.CreateUser(ctx, gatewaysdk.CreateUserRequest{Username: "erin", Password: "short", Role: "student"})
	requireAPIError(t, err, http.StatusBadRequest, gatewaysdk.ErrorCodeWeakPassword)

	_, err = admin.CreateUser(ctx, gatewaysdk.CreateUserRequest{Username: "dave", Password: password, Role: "student"})
	requireAPIError(t, err, http.StatusConflict, gatewaysdk.ErrorCodeConflict)

	_, refresh := studentSess.Tokens()
	require.NoError(t, admin.Revoke(ctx, refresh))
	err = studentSess.Refresh(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, gatewaysdk.ErrorCodeInvalidToken)

	err = admin.Revoke(ctx, "not-a-token")
	requireAPIError(t, err, http.StatusBadRequest, gatewaysdk.ErrorCodeInvalidRequest)
}

func TestShutdownClosesConnections(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, s.login(t, "alice", domain.RoleStudent))

	require.NoError(t, s.gw.Shutdown(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := conn.Receive(ctx)
	var ce *gatewaysdk.CloseError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, int(hub.CloseGoingAway), ce.Code)
	require.Zero(t, s.gw.Len())
}
