package domain

import "time"

// PermissionRule grants a message type to a set of roles.
type PermissionRule struct {
	MessageType string
	Roles       []Role
	UpdatedAt   time.Time
}

// RuleSet maps message type to the roles allowed to send it.
type RuleSet map[string][]Role

// DefaultRules is the table a fresh gateway starts with.
func DefaultRules() RuleSet {
	return RuleSet{
		"ping":         {RoleStudent, RoleTeacher, RoleAdmin},
		"echo":         {RoleStudent, RoleTeacher, RoleAdmin},
		"broadcast":    {RoleTeacher, RoleAdmin},
		"rules.get":    {RoleAdmin},
		"rules.update": {RoleAdmin},
	}
}
