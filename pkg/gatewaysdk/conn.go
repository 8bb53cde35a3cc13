package gatewaysdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Gateway close codes.
const (
	CloseTokenInvalid   = 4001
	CloseTokenExpired   = 4002
	CloseTokenRevoked   = 4003
	CloseSessionExpired = 4004
	CloseIdle           = 4005
)

// CloseError reports the code the gateway closed the connection with.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("gateway closed connection: %d %s", e.Code, e.Reason)
}

// Conn is a live gateway websocket.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens a websocket to the gateway, authenticating with the session's
// access token.
func (s *Session) Dial(ctx context.Context) (*Conn, error) {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Dial(ctx, token)
}

// Dial opens a websocket with an explicit access token.
func (c *Client) Dial(ctx context.Context, accessToken string) (*Conn, error) {
	u, err := url.Parse(c.url("/v1/ws"))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	ws, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: c.HTTPClient,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + accessToken}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	return &Conn{ws: ws}, nil
}

// Send writes v as one JSON frame.
func (c *Conn) Send(ctx context.Context, v any) error {
	return closeErr(wsjson.Write(ctx, c.ws, v))
}

// Receive reads the next frame.
func (c *Conn) Receive(ctx context.Context) (Message, error) {
	var raw json.RawMessage
	if err := wsjson.Read(ctx, c.ws, &raw); err != nil {
		return Message{}, closeErr(err)
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	m.Raw = raw
	return m, nil
}

// ReceiveType reads frames until one of type typ arrives.
func (c *Conn) ReceiveType(ctx context.Context, typ string) (Message, error) {
	for {
		m, err := c.Receive(ctx)
		if err != nil {
			return Message{}, err
		}
		if m.Type == typ {
			return m, nil
		}
	}
}

func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

func closeErr(err error) error {
	if err == nil {
		return nil
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: int(ce.Code), Reason: ce.Reason}
	}
	if strings.Contains(err.Error(), "use of closed") {
		return &CloseError{Code: int(websocket.StatusNormalClosure)}
	}
	return err
}
