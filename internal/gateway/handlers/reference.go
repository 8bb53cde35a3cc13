package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/hub"
)

// Broadcaster fans a message out to live connections.
type Broadcaster interface {
	Broadcast(msg any, exclude []string, roles ...domain.Role) (int, error)
}

// RuleManager reads and updates the permission table. Update reports
// domain.ErrForbidden and domain.ErrInvalidRules.
type RuleManager interface {
	Rules() domain.RuleSet
	Update(ctx context.Context, caller domain.Identity, partial domain.RuleSet, replace bool) (domain.RuleSet, error)
}

type Deps struct {
	Broadcaster Broadcaster
	Rules       RuleManager
	Now         func() time.Time
}

// Register binds the built-in message types.
func Register(r *Registry, d Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	r.Register("ping", ping(d.Now))
	r.Register("echo", echo)
	if d.Broadcaster != nil {
		r.Register("broadcast", broadcast(d.Broadcaster, d.Now))
	}
	if d.Rules != nil {
		r.Register("rules.get", rulesGet(d.Rules))
		r.Register("rules.update", rulesUpdate(d.Rules))
	}
}

type pong struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
}

func ping(now func() time.Time) hub.Handler {
	return func(_ context.Context, c *hub.Conn, _ hub.Envelope) error {
		return c.Send(pong{Type: "pong", Time: now().UTC()})
	}
}

type payloadMsg struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ack struct {
	Type    string          `json:"type"`
	Of      string          `json:"of"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Count   *int            `json:"delivered,omitempty"`
}

func echo(_ context.Context, c *hub.Conn, env hub.Envelope) error {
	var in payloadMsg
	if err := env.Decode(&in); err != nil {
		return hub.InvalidMessage("malformed echo payload")
	}
	return c.Send(ack{Type: hub.TypeAck, Of: env.Type, Payload: in.Payload})
}

type broadcastIn struct {
	Payload json.RawMessage `json:"payload"`
	Role    domain.Role     `json:"role,omitempty"`
}

// BroadcastMessage is the frame fanned out to recipients of a broadcast.
type BroadcastMessage struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	Role    domain.Role     `json:"role"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

func broadcast(b Broadcaster, now func() time.Time) hub.Handler {
	return func(_ context.Context, c *hub.Conn, env hub.Envelope) error {
		var in broadcastIn
		if err := env.Decode(&in); err != nil || len(in.Payload) == 0 {
			return hub.InvalidMessage("broadcast needs a payload")
		}

		var roles []domain.Role
		if in.Role != "" {
			if !in.Role.Valid() {
				return hub.InvalidMessage("unknown role filter")
			}
			roles = append(roles, in.Role)
		}

		id := c.Identity()
		n, err := b.Broadcast(BroadcastMessage{
			Type:    "broadcast",
			From:    id.Subject,
			Role:    id.Role,
			Payload: in.Payload,
			SentAt:  now().UTC(),
		}, []string{c.ID()}, roles...)
		if err != nil {
			return err
		}
		return c.Send(ack{Type: hub.TypeAck, Of: env.Type, Count: &n})
	}
}

type rulesMsg struct {
	Type  string         `json:"type"`
	Rules domain.RuleSet `json:"rules"`
}

func rulesGet(rm RuleManager) hub.Handler {
	return func(_ context.Context, c *hub.Conn, _ hub.Envelope) error {
		return c.Send(rulesMsg{Type: "rules", Rules: rm.Rules()})
	}
}

type rulesUpdateIn struct {
	Rules   domain.RuleSet `json:"rules"`
	Replace bool           `json:"replace"`
}

func rulesUpdate(rm RuleManager) hub.Handler {
	return func(ctx context.Context, c *hub.Conn, env hub.Envelope) error {
		var in rulesUpdateIn
		if err := env.Decode(&in); err != nil || len(in.Rules) == 0 {
			return hub.InvalidMessage("rules.update needs a rules object")
		}

		rules, err := rm.Update(ctx, c.Identity(), in.Rules, in.Replace)
		switch {
		case errors.Is(err, domain.ErrForbidden):
			return hub.PermissionDenied("only admins may change rules")
		case errors.Is(err, domain.ErrInvalidRules):
			return hub.InvalidMessage(err.Error())
		case err != nil:
			return err
		}
		return c.Send(rulesMsg{Type: "rules", Rules: rules})
	}
}
