package hub

import "sync/atomic"

type metrics struct {
	totalConnections        atomic.Int64
	activeConnections       atomic.Int64
	messagesProcessed       atomic.Int64
	authFailures            atomic.Int64
	rateLimitHits           atomic.Int64
	permissionDenials       atomic.Int64
	invalidMessages         atomic.Int64
	tokenExpiredDisconnects atomic.Int64
	idleDisconnects         atomic.Int64
	sendFailures            atomic.Int64
}

// Metrics is a point-in-time copy of the gateway counters.
type Metrics struct {
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

func (m *metrics) snapshot() Metrics {
	return Metrics{
		TotalConnections:        m.totalConnections.Load(),
		ActiveConnections:       m.activeConnections.Load(),
		MessagesProcessed:       m.messagesProcessed.Load(),
		AuthFailures:            m.authFailures.Load(),
		RateLimitHits:           m.rateLimitHits.Load(),
		PermissionDenials:       m.permissionDenials.Load(),
		InvalidMessages:         m.invalidMessages.Load(),
		TokenExpiredDisconnects: m.tokenExpiredDisconnects.Load(),
		IdleDisconnects:         m.idleDisconnects.Load(),
		SendFailures:            m.sendFailures.Load(),
	}
}
