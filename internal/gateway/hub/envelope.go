package hub

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
)

// Error codes sent in the "error" field of an error envelope.
const (
	CodeRateLimit        = "rate_limit"
	CodePermissionDenied = "permission_denied"
	CodeTokenExpired     = "token_expired"
	CodeInvalidMessage   = "invalid_message"
	CodeInternalError    = "internal_error"
)

// Outbound message types.
const (
	TypeAuthSuccess = "auth_success"
	TypeAck         = "ack"
	TypeError       = "error"
)

// Envelope is a decoded inbound message. Raw keeps the full frame so
// handlers can decode their own payload fields.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

var errMissingType = errors.New("message type is required")

// DecodeEnvelope parses a frame of the form {"type": "...", ...}.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, errMissingType
	}
	env.Raw = data
	return env, nil
}

// Decode unmarshals the whole frame into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Raw, v)
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewError(code, message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Error: code, Message: message}
}

type AuthSuccess struct {
	Type         string      `json:"type"`
	ConnectionID string      `json:"connection_id"`
	Subject      string      `json:"subject"`
	Role         domain.Role `json:"role"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

// ClientError is returned by a handler to send a specific error envelope
// back to the client instead of internal_error.
type ClientError struct {
	Code    string
	Message string
}

func (e *ClientError) Error() string { return e.Code + ": " + e.Message }

// InvalidMessage is a ClientError with the invalid_message code.
func InvalidMessage(msg string) *ClientError {
	return &ClientError{Code: CodeInvalidMessage, Message: msg}
}

// PermissionDenied is a ClientError with the permission_denied code.
func PermissionDenied(msg string) *ClientError {
	return &ClientError{Code: CodePermissionDenied, Message: msg}
}

func jsonMarshal(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return json.Marshal(v)
}
