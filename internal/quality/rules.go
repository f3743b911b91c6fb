package quality

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shoplake/internal/domain"
)

//go:embed rulesets.yaml
var defaultRules []byte

// RuleSet holds quality rules grouped by table name.
type RuleSet struct {
	byTable map[string][]domain.QualityRule
}

type rulesFile struct {
	Rules []domain.QualityRule `yaml:"rules"`
}

// NewRuleSet parses the embedded default rules.
func NewRuleSet() (*RuleSet, error) {
	return parseRules(defaultRules)
}

// NewRuleSetFromFile parses rules from a YAML file on disk.
func NewRuleSetFromFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) (*RuleSet, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	seen := make(map[string]bool, len(f.Rules))
	byTable := make(map[string][]domain.QualityRule)
	for _, r := range f.Rules {
		if r.ID == "" {
			return nil, domain.ErrSchema("quality rule without id")
		}
		if seen[r.ID] {
			return nil, domain.ErrSchema("duplicate quality rule id %q", r.ID)
		}
		seen[r.ID] = true
		if r.Table == "" {
			return nil, domain.ErrSchema("rule %q has no table", r.ID)
		}
		switch r.Kind {
		case domain.RuleCompleteness:
			if r.TargetField == "" {
				return nil, domain.ErrSchema("rule %q has no field", r.ID)
			}
		case domain.RuleValidity:
			// A validity rule without a field checks the batch row count and
			// needs at least one bound.
			if r.TargetField == "" && r.Min == nil && r.Max == nil {
				return nil, domain.ErrSchema("rule %q has neither field nor min/max row bounds", r.ID)
			}
		case domain.RuleUniqueness:
			if r.TargetField == "" && len(r.KeyFields) == 0 {
				return nil, domain.ErrSchema("rule %q has neither field nor key_fields", r.ID)
			}
		case domain.RuleReferential:
			if r.TargetField == "" || r.ParentTable == "" || r.ParentField == "" {
				return nil, domain.ErrSchema("rule %q needs field, parent_table and parent_field", r.ID)
			}
		default:
			return nil, domain.ErrSchema("rule %q has unknown kind %q", r.ID, r.Kind)
		}
		switch r.Severity {
		case domain.SeverityFail, domain.SeverityWarn:
		case "":
			r.Severity = domain.SeverityFail
		default:
			return nil, domain.ErrSchema("rule %q has unknown severity %q", r.ID, r.Severity)
		}
		byTable[r.Table] = append(byTable[r.Table], r)
	}
	return &RuleSet{byTable: byTable}, nil
}

// For returns the rules declared for the given table, in declaration order.
func (rs *RuleSet) For(table string) []domain.QualityRule {
	return rs.byTable[table]
}
