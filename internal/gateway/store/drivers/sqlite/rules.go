package sqlite

import (
	"context"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
)

type rulesRepo struct {
	db DBTX
}

func (r *rulesRepo) ListRules(ctx context.Context) ([]domain.PermissionRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT message_type, roles, updated_at FROM permission_rules ORDER BY message_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PermissionRule
	for rows.Next() {
		var (
			rule    domain.PermissionRule
			roles   string
			updated int64
		)
		if err := rows.Scan(&rule.MessageType, &roles, &updated); err != nil {
			return nil, err
		}
		rule.Roles = splitRoles(roles)
		rule.UpdatedAt = fromMillis(updated)
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *rulesRepo) UpsertRule(ctx context.Context, rule domain.PermissionRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permission_rules (message_type, roles, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (message_type) DO UPDATE SET roles = excluded.roles, updated_at = excluded.updated_at`,
		rule.MessageType, joinRoles(rule.Roles), toMillis(rule.UpdatedAt),
	)
	return err
}

func (r *rulesRepo) DeleteRule(ctx context.Context, messageType string) error {
	return requireRow(r.db.ExecContext(ctx, `DELETE FROM permission_rules WHERE message_type = ?`, messageType))
}

func (r *rulesRepo) DeleteAllRules(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM permission_rules`)
	return err
}

func (r *rulesRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM permission_rules`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}
