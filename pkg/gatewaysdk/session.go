package gatewaysdk

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// refreshSkew is how long before expiry a Session refreshes its access
// token.
const refreshSkew = 30 * time.Second

// Session is an authenticated user of the gateway. It is safe for
// concurrent use.
type Session struct {
	client *Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	subject      string
	role         string
}

func newSession(c *Client, tr TokenResponse) *Session {
	s := &Session{client: c}
	s.apply(tr)
	return s
}

func (s *Session) apply(tr TokenResponse) {
	s.accessToken = tr.AccessToken
	s.refreshToken = tr.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - refreshSkew)
	s.subject = tr.Subject
	s.role = tr.Role
}

func (s *Session) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

func (s *Session) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// ExpiresAt is when the current access token expires.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt.Add(refreshSkew)
}

// Tokens returns the current access and refresh tokens.
func (s *Session) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

// AccessToken returns a valid access token, refreshing first when the
// current one is about to expire.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Now().Before(s.expiresAt) || s.refreshToken == "" {
		return s.accessToken, nil
	}
	tr, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", err
	}
	s.apply(*tr)
	return s.accessToken, nil
}

// Refresh forces a token rotation.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return err
	}
	s.apply(*tr)
	return nil
}

func (s *Session) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.do(ctx, method, path, token, body)
}

// Logout revokes both tokens of the session.
func (s *Session) Logout(ctx context.Context) error {
	access, refresh := s.Tokens()
	resp, err := s.client.do(ctx, http.MethodPost, "/v1/logout", access, LogoutRequest{RefreshToken: refresh})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// Revoke revokes an arbitrary token. Admin only.
func (s *Session) Revoke(ctx context.Context, token string) error {
	resp, err := s.do(ctx, http.MethodPost, "/v1/admin/revoke", RevokeRequest{Token: token})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (s *Session) GetRules(ctx context.Context) (Rules, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/admin/rules", nil)
	if err != nil {
		return nil, err
	}
	var out RulesResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Rules, nil
}

func (s *Session) UpdateRules(ctx context.Context, rules Rules, replace bool) (Rules, error) {
	resp, err := s.do(ctx, http.MethodPut, "/v1/admin/rules", UpdateRulesRequest{Rules: rules, Replace: replace})
	if err != nil {
		return nil, err
	}
	var out RulesResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Rules, nil
}

func (s *Session) Metrics(ctx context.Context) (*MetricsResponse, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/admin/metrics", nil)
	if err != nil {
		return nil, err
	}
	var out MetricsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) Connections(ctx context.Context) ([]Connection, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/admin/connections", nil)
	if err != nil {
		return nil, err
	}
	var out ConnectionsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Connections, nil
}

func (s *Session) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	resp, err := s.do(ctx, http.MethodPost, "/v1/admin/users", req)
	if err != nil {
		return nil, err
	}
	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Broadcast fans payload out to every live connection, optionally only
// those holding role.
func (s *Session) Broadcast(ctx context.Context, req BroadcastRequest) (int, error) {
	resp, err := s.do(ctx, http.MethodPost, "/v1/admin/broadcast", req)
	if err != nil {
		return 0, err
	}
	var out BroadcastResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Delivered, nil
}
