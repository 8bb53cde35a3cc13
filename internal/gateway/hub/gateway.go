// Package hub owns live gateway connections. It authenticates each one at
// connect time and runs every inbound message through the expiry, rate,
// permission and dispatch checks before handing it to a handler.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/tabgate/internal/gateway/credential"
	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/pkg/slogx"
)

const (
	DefaultMaxMessages  = 30
	DefaultRateWindow   = 60 * time.Second
	DefaultSendQueue    = 64
	DefaultWriteTimeout = 10 * time.Second
	DefaultIdleTimeout  = 30 * time.Minute
)

// Verifier resolves a presented access token to an identity.
type Verifier interface {
	VerifyToken(ctx context.Context, token string, kind domain.TokenKind) (domain.Identity, error)
}

// Policy decides whether a role may send a message type.
type Policy interface {
	IsAllowed(messageType string, role domain.Role) bool
}

// RateLimiter is the per-connection message budget.
type RateLimiter interface {
	CheckAndConsume(connID string, max int, window time.Duration) bool
	Release(connID string)
}

// Handler processes a message that passed every check. Returning a
// *ClientError sends that error to the client; any other error is logged
// and reported as internal_error.
type Handler func(ctx context.Context, c *Conn, env Envelope) error

// Registry resolves message types to handlers.
type Registry interface {
	Lookup(messageType string) (Handler, bool)
}

// Config wires a Gateway. Zero limits take the Default values.
type Config struct {
	Credentials Verifier
	Policy      Policy
	Limiter     RateLimiter
	Handlers    Registry

	MaxMessages  int
	RateWindow   time.Duration
	SendQueue    int
	WriteTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Gateway is the connection registry and per-message pipeline.
type Gateway struct {
	creds    Verifier
	policy   Policy
	limiter  RateLimiter
	handlers Registry

	maxMessages  int
	window       time.Duration
	queue        int
	writeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Conn

	metrics metrics
}

// New returns an empty Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Credentials == nil || cfg.Policy == nil || cfg.Limiter == nil || cfg.Handlers == nil {
		return nil, errors.New("hub: Credentials, Policy, Limiter and Handlers are required")
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultRateWindow
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = DefaultSendQueue
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Gateway{
		creds:        cfg.Credentials,
		policy:       cfg.Policy,
		limiter:      cfg.Limiter,
		handlers:     cfg.Handlers,
		maxMessages:  cfg.MaxMessages,
		window:       cfg.RateWindow,
		queue:        cfg.SendQueue,
		writeTimeout: cfg.WriteTimeout,
		now:          cfg.Now,
		logger:       cfg.Logger,
		conns:        make(map[string]*Conn),
	}, nil
}

func closeFor(err error) (CloseCode, string) {
	switch {
	case errors.Is(err, credential.ErrTokenExpired):
		return CloseTokenExpired, "token expired"
	case errors.Is(err, credential.ErrTokenRevoked):
		return CloseTokenRevoked, "token revoked"
	default:
		return CloseTokenInvalid, "invalid token"
	}
}

// Connect verifies token and registers the transport. On failure the
// transport is closed with a code naming the reason and nothing is
// registered.
func (g *Gateway) Connect(ctx context.Context, t Transport, token string) (*Conn, error) {
	identity, err := g.creds.VerifyToken(ctx, token, domain.TokenAccess)
	if err != nil {
		g.metrics.authFailures.Add(1)
		code, reason := closeFor(err)
		slogx.FromContext(ctx).Warn("connection rejected", "reason", reason, "err", err)
		if cerr := t.Close(code, reason); cerr != nil {
			slogx.FromContext(ctx).Debug("transport close", "err", cerr)
		}
		return nil, err
	}

	id := uuid.NewString()
	connCtx := slogx.WithConnection(ctx, id, identity.Subject, string(identity.Role))
	c := newConn(connCtx, id, identity, t, g.queue, g.writeTimeout, g.now(), slogx.FromContext(connCtx))
	c.onWriteError = func(c *Conn, err error) {
		g.metrics.sendFailures.Add(1)
		g.remove(c, CloseInternal, "write failed")
	}

	g.mu.Lock()
	g.conns[id] = c
	g.mu.Unlock()
	g.metrics.totalConnections.Add(1)
	g.metrics.activeConnections.Add(1)

	go c.writeLoop()

	if err := c.Send(AuthSuccess{
		Type:         TypeAuthSuccess,
		ConnectionID: id,
		Subject:      identity.Subject,
		Role:         identity.Role,
		ExpiresAt:    identity.ExpiresAt,
	}); err != nil {
		g.remove(c, CloseInternal, "handshake failed")
		return nil, err
	}

	c.logger.Info("connection established")
	return c, nil
}

// Serve reads frames from c until the transport fails or the connection is
// closed, processing each in order. It always leaves c unregistered.
func (g *Gateway) Serve(c *Conn) {
	defer func() {
		g.remove(c, CloseNormal, "")
		// Serve is the only reader, so nothing can consume after this.
		g.limiter.Release(c.id)
	}()

	for {
		data, err := c.transport.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil && !IsNormalClosure(err) {
				c.logger.Debug("read ended", "err", err)
			}
			return
		}
		g.HandleMessage(c.ctx, c.id, data)
		if c.ctx.Err() != nil {
			return
		}
	}
}

// Run is Connect followed by Serve.
func (g *Gateway) Run(ctx context.Context, t Transport, token string) error {
	c, err := g.Connect(ctx, t, token)
	if err != nil {
		return err
	}
	g.Serve(c)
	return nil
}

// Outcome is what the pipeline did with one message.
type Outcome int

const (
	OutcomeDispatched Outcome = iota
	OutcomeExpired
	OutcomeRateLimited
	OutcomeInvalid
	OutcomeDenied
	OutcomeHandlerError
	OutcomeUnknownConnection
	OutcomeClosed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeExpired:
		return "expired"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeDenied:
		return "denied"
	case OutcomeHandlerError:
		return "handler_error"
	case OutcomeClosed:
		return "closed"
	default:
		return "unknown_connection"
	}
}

// HandleMessage runs one inbound frame through the pipeline. Every rejection
// except expiry leaves the connection open. A frame whose connection is
// closed while it is in flight is dropped with OutcomeClosed.
func (g *Gateway) HandleMessage(ctx context.Context, connID string, data []byte) Outcome {
	c := g.Get(connID)
	if c == nil {
		return OutcomeUnknownConnection
	}
	if c.isClosed() {
		return OutcomeClosed
	}
	defer func() { c.touch(g.now()) }()

	if !g.now().Before(c.identity.ExpiresAt) {
		g.metrics.tokenExpiredDisconnects.Add(1)
		g.reply(c, NewError(CodeTokenExpired, "access token has expired"))
		g.remove(c, CloseSessionExpired, "token expired")
		c.logger.Info("session expired")
		return OutcomeExpired
	}

	allowed := g.limiter.CheckAndConsume(connID, g.maxMessages, g.window)
	if c.isClosed() {
		// remove may have released before the consume recreated the entry.
		g.limiter.Release(connID)
		return OutcomeClosed
	}
	if !allowed {
		g.metrics.rateLimitHits.Add(1)
		g.reply(c, NewError(CodeRateLimit, "too many messages, slow down"))
		return OutcomeRateLimited
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		g.metrics.invalidMessages.Add(1)
		g.reply(c, NewError(CodeInvalidMessage, "message must be a JSON object with a type"))
		return OutcomeInvalid
	}

	handler, ok := g.handlers.Lookup(env.Type)
	if !ok || !g.policy.IsAllowed(env.Type, c.identity.Role) {
		g.metrics.permissionDenials.Add(1)
		g.reply(c, NewError(CodePermissionDenied, "not allowed to send "+env.Type))
		c.logger.Warn("permission denied", "type", env.Type)
		return OutcomeDenied
	}

	if c.isClosed() {
		return OutcomeClosed
	}

	if err := handler(ctx, c, env); err != nil {
		var ce *ClientError
		if errors.As(err, &ce) {
			if ce.Code == CodePermissionDenied {
				g.metrics.permissionDenials.Add(1)
			}
			g.reply(c, NewError(ce.Code, ce.Message))
		} else {
			c.logger.Error("handler failed", "type", env.Type, "err", err)
			g.reply(c, NewError(CodeInternalError, "internal error"))
		}
		return OutcomeHandlerError
	}

	g.metrics.messagesProcessed.Add(1)
	return OutcomeDispatched
}

func (g *Gateway) reply(c *Conn, v any) {
	if err := c.Send(v); err != nil && !errors.Is(err, ErrConnectionClosed) {
		g.metrics.sendFailures.Add(1)
		g.remove(c, CloseInternal, "send failed")
	}
}

// remove unregisters c and closes it. Safe to call concurrently and
// repeatedly.
func (g *Gateway) remove(c *Conn, code CloseCode, reason string) {
	g.mu.Lock()
	cur, ok := g.conns[c.id]
	if ok && cur == c {
		delete(g.conns, c.id)
	}
	g.mu.Unlock()

	// Closing before Release lets HandleMessage spot a consume that raced it.
	c.close(code, reason)
	if ok && cur == c {
		g.metrics.activeConnections.Add(-1)
		g.limiter.Release(c.id)
		c.logger.Info("connection closed", "code", int(code), "reason", reason)
	}
}

// Disconnect closes connID if it is live.
func (g *Gateway) Disconnect(connID string, code CloseCode, reason string) bool {
	c := g.Get(connID)
	if c == nil {
		return false
	}
	g.remove(c, code, reason)
	return true
}

// Get returns the live connection with connID, or nil.
func (g *Gateway) Get(connID string) *Conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conns[connID]
}

func (g *Gateway) snapshot() []*Conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast queues msg on every live connection not in exclude and, when
// roles is non-empty, holding one of roles. Connections whose queue
// rejects the frame are removed; delivery to the rest continues. Returns
// how many connections the frame was queued on.
func (g *Gateway) Broadcast(msg any, exclude []string, roles ...domain.Role) (int, error) {
	data, err := jsonMarshal(msg)
	if err != nil {
		return 0, err
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	var (
		delivered int
		failed    []*Conn
	)
	for _, c := range g.snapshot() {
		if _, ok := skip[c.id]; ok {
			continue
		}
		if len(roles) > 0 && !hasRole(roles, c.identity.Role) {
			continue
		}
		if err := c.enqueue(data); err != nil {
			failed = append(failed, c)
			continue
		}
		delivered++
	}

	for _, c := range failed {
		g.metrics.sendFailures.Add(1)
		g.remove(c, CloseInternal, "send failed")
	}
	return delivered, nil
}

func hasRole(roles []domain.Role, r domain.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

// Reap closes every connection idle for longer than idleTimeout and returns
// how many it closed.
func (g *Gateway) Reap(idleTimeout time.Duration) int {
	now := g.now()
	n := 0
	for _, c := range g.snapshot() {
		if now.Sub(c.LastActivity()) > idleTimeout {
			g.metrics.idleDisconnects.Add(1)
			g.remove(c, CloseIdle, "idle timeout")
			n++
		}
	}
	if n > 0 {
		g.logger.Info("reaped idle connections", "count", n)
	}
	return n
}

// ConnectionInfo describes a live connection for operators.
type ConnectionInfo struct {
	ID             string      `json:"id"`
	Subject        string      `json:"subject"`
	Role           domain.Role `json:"role"`
	ConnectedAt    time.Time   `json:"connected_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	TokenExpiresAt time.Time   `json:"token_expires_at"`
}

// Connections snapshots every live connection.
func (g *Gateway) Connections() []ConnectionInfo {
	conns := g.snapshot()
	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, ConnectionInfo{
			ID:             c.id,
			Subject:        c.identity.Subject,
			Role:           c.identity.Role,
			ConnectedAt:    c.connectedAt,
			LastActivityAt: c.LastActivity(),
			TokenExpiresAt: c.identity.ExpiresAt,
		})
	}
	return out
}

// Len is the number of live connections.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

func (g *Gateway) Metrics() Metrics { return g.metrics.snapshot() }

// Shutdown closes every connection with CloseGoingAway and waits for their
// writers to finish or ctx to end.
func (g *Gateway) Shutdown(ctx context.Context) error {
	conns := g.snapshot()
	for _, c := range conns {
		g.remove(c, CloseGoingAway, "server shutting down")
	}
	for _, c := range conns {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
