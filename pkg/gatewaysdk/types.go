package gatewaysdk

import (
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/tabgate/pkg/jwtx"
)

// ============================================================================
// Auth Types
// ============================================================================

type LoginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"Sup3rSecret"`
	OTP      string `json:"otp,omitempty" example:"123456"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type" example:"Bearer"`
	ExpiresIn        int    `json:"expires_in" example:"900"`
	RefreshExpiresIn int    `json:"refresh_expires_in" example:"604800"`
	Subject          string `json:"subject"`
	Role             string `json:"role" example:"student"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ============================================================================
// Admin Types
// ============================================================================

type RevokeRequest struct {
	Token string `json:"token"`
}

// Rules maps a message type to the roles allowed to send it.
type Rules map[string][]string

type RulesResponse struct {
	Rules Rules `json:"rules"`
}

// UpdateRulesRequest merges Rules into the table, or replaces the table
// when Replace is set. A type mapped to an empty list is removed.
type UpdateRulesRequest struct {
	Rules   Rules `json:"rules"`
	Replace bool  `json:"replace,omitempty"`
}

type MetricsResponse struct {
	TotalConnections        int64 `json:"total_connections"`
	ActiveConnections       int64 `json:"active_connections"`
	MessagesProcessed       int64 `json:"messages_processed"`
	AuthFailures            int64 `json:"auth_failures"`
	RateLimitHits           int64 `json:"rate_limit_hits"`
	PermissionDenials       int64 `json:"permission_denials"`
	InvalidMessages         int64 `json:"invalid_messages"`
	TokenExpiredDisconnects int64 `json:"token_expired_disconnects"`
	IdleDisconnects         int64 `json:"idle_disconnects"`
	SendFailures            int64 `json:"send_failures"`
}

type Connection struct {
	ID             string    `json:"id"`
	Subject        string    `json:"subject"`
	Role           string    `json:"role"`
	ConnectedAt    time.Time `json:"connected_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

type ConnectionsResponse struct {
	Connections []Connection `json:"connections"`
}

type CreateUserRequest struct {
	Username  string `json:"username" example:"bob"`
	Password  string `json:"password" example:"Sup3rSecret"`
	Role      string `json:"role" example:"teacher"`
	EnableMFA bool   `json:"enable_mfa,omitempty"`
}

type UserResponse struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Role            string    `json:"role"`
	MFAEnabled      bool      `json:"mfa_enabled"`
	ProvisioningURI string    `json:"provisioning_uri,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type BroadcastRequest struct {
	Payload json.RawMessage `json:"payload" swaggertype:"object"`
	Role    string          `json:"role,omitempty"`
}

type BroadcastResponse struct {
	Delivered int `json:"delivered"`
}

type BootstrapRequest struct {
	Username string `json:"username" example:"admin"`
	Password string `json:"password" example:"Sup3rSecret"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz. Checks is only set by
// /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
	KV       string `json:"kv"`
}

// JWKSResponse is the public key set from /.well-known/jwks.json.
type JWKSResponse jwtx.JWKS

// ============================================================================
// Websocket Types
// ============================================================================

// Message is one frame received from the gateway.
type Message struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// Decode unmarshals the whole frame into v.
func (m Message) Decode(v any) error { return json.Unmarshal(m.Raw, v) }

// ErrorFrame is the body of a "type":"error" frame.
type ErrorFrame struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
