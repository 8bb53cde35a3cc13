package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
)

// File is the on-disk form of the rule table:
//
//	replace: true
//	rules:
//	  ping: [student, teacher, admin]
//	  broadcast: [teacher, admin]
type File struct {
	Replace bool                `yaml:"replace"`
	Rules   map[string][]string `yaml:"rules"`
}

// ParseFile decodes and validates a rules document. An empty role list is
// kept, meaning the type is removed on merge.
func ParseFile(data []byte) (domain.RuleSet, bool, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, false, fmt.Errorf("parse rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, false, fmt.Errorf("%w: no rules", domain.ErrInvalidRules)
	}

	rs := make(domain.RuleSet, len(f.Rules))
	for msgType, names := range f.Rules {
		if msgType == "" {
			return nil, false, fmt.Errorf("%w: empty message type", domain.ErrInvalidRules)
		}
		roles := make([]domain.Role, 0, len(names))
		for _, n := range names {
			r, err := domain.ParseRole(n)
			if err != nil {
				return nil, false, fmt.Errorf("%w: type %q: %v", domain.ErrInvalidRules, msgType, err)
			}
			roles = append(roles, r)
		}
		rs[msgType] = roles
	}
	return rs, f.Replace, nil
}

// LoadFile reads and parses a rules file.
func LoadFile(path string) (domain.RuleSet, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read rules file: %w", err)
	}
	rs, replace, err := ParseFile(data)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	return rs, replace, nil
}
