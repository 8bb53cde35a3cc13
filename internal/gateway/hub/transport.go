package hub

import (
	"context"

	"github.com/coder/websocket"
)

// CloseCode is the status a connection is closed with.
type CloseCode int

const (
	CloseNormal         CloseCode = 1000
	CloseGoingAway      CloseCode = 1001
	CloseInternal       CloseCode = 1011
	CloseTokenInvalid   CloseCode = 4001
	CloseTokenExpired   CloseCode = 4002
	CloseTokenRevoked   CloseCode = 4003
	CloseSessionExpired CloseCode = 4004
	CloseIdle           CloseCode = 4005
)

// Transport is one duplex, ordered, message-framed connection.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code CloseCode, reason string) error
}

// WebSocket adapts a coder/websocket connection to Transport.
type WebSocket struct {
	conn *websocket.Conn
}

func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

func (w *WebSocket) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

func (w *WebSocket) Write(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *WebSocket) Close(code CloseCode, reason string) error {
	return w.conn.Close(websocket.StatusCode(code), reason)
}

// IsNormalClosure reports whether err is a read error caused by the peer
// closing cleanly.
func IsNormalClosure(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
