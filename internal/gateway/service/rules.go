package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/policy"
	"github.com/aussiebroadwan/tabgate/internal/gateway/store"
	"github.com/aussiebroadwan/tabgate/pkg/slogx"
)

// RulesService keeps the persisted rule table and the live policy engine in
// step.
type RulesService struct {
	Store  store.Store
	Engine *policy.Engine
	Now    func() time.Time

	mu sync.Mutex
}

func (s *RulesService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Load seeds the default table into an empty store, then loads the stored
// table into the engine.
func (s *RulesService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	empty, err := s.Store.Rules().IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("check rules: %w", err)
	}
	if empty {
		slogx.FromContext(ctx).Info("seeding default permission rules")
		if err := s.persist(ctx, domain.DefaultRules(), true); err != nil {
			return err
		}
	}

	rules, err := s.Store.Rules().ListRules(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	rs := make(domain.RuleSet, len(rules))
	for _, r := range rules {
		rs[r.MessageType] = r.Roles
	}
	if !s.Engine.UpdateRules(rs, true) {
		return fmt.Errorf("%w: stored table holds unknown roles", domain.ErrInvalidRules)
	}
	return nil
}

func (s *RulesService) Rules() domain.RuleSet { return s.Engine.Rules() }

// Update applies partial on behalf of caller, who must hold the privileged
// role.
func (s *RulesService) Update(ctx context.Context, caller domain.Identity, partial domain.RuleSet, replace bool) (domain.RuleSet, error) {
	if !caller.Role.IsPrivileged() {
		slogx.FromContext(ctx).Warn("rule update refused", slog.String("sub", caller.Subject), slog.String("role", string(caller.Role)))
		return nil, domain.ErrForbidden
	}
	rules, err := s.Apply(ctx, partial, replace)
	if err != nil {
		return nil, err
	}
	slogx.FromContext(ctx).Info("permission rules updated",
		slog.String("sub", caller.Subject), slog.Bool("replace", replace), slog.Int("entries", len(partial)))
	return rules, nil
}

// Apply persists and activates partial without a caller check. Used for
// operator-controlled sources such as the rules file.
func (s *RulesService) Apply(ctx context.Context, partial domain.RuleSet, replace bool) (domain.RuleSet, error) {
	if !policy.Validate(partial) {
		return nil, fmt.Errorf("%w: unknown role or empty message type", domain.ErrInvalidRules)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(ctx, partial, replace); err != nil {
		return nil, err
	}
	if !s.Engine.UpdateRules(partial, replace) {
		return nil, domain.ErrInvalidRules
	}
	return s.Engine.Rules(), nil
}

func (s *RulesService) persist(ctx context.Context, partial domain.RuleSet, replace bool) error {
	now := s.now().UTC()
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if replace {
			if err := tx.Rules().DeleteAllRules(ctx); err != nil {
				return err
			}
		}
		for mt, roles := range partial {
			if len(roles) == 0 {
				if err := tx.Rules().DeleteRule(ctx, mt); err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
				continue
			}
			if err := tx.Rules().UpsertRule(ctx, domain.PermissionRule{MessageType: mt, Roles: roles, UpdatedAt: now}); err != nil {
				return fmt.Errorf("upsert rule %s: %w", mt, err)
			}
		}
		return nil
	})
}
