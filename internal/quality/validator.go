// Package quality evaluates configurable data quality rules over record
// batches, producing pass/fail/warn verdicts consumed by the silver stage.
package quality

import (
	"fmt"
	"regexp"
	"sort"

	"shoplake/internal/domain"
)

// sampleLimit caps how many failing values a verdict carries.
const sampleLimit = 5

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Validate evaluates every rule against the batch and returns one verdict
// per rule. parents supplies the parent batches referential rules resolve
// against, keyed by table name.
//
// Validation is idempotent and side-effect free: it never mutates the batch,
// and re-running on the same input yields the same verdicts.
func Validate(batch *domain.Batch, rules []domain.QualityRule, parents map[string]*domain.Batch) ([]domain.Verdict, error) {
	verdicts := make([]domain.Verdict, 0, len(rules))
	for _, rule := range rules {
		v, err := evaluate(batch, rule, parents)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

// FailErr returns a *domain.ValidationFailureError when any fail-severity
// verdict did not pass, nil otherwise.
func FailErr(table string, verdicts []domain.Verdict) error {
	failed := domain.FailedRuleIDs(verdicts)
	if len(failed) == 0 {
		return nil
	}
	return &domain.ValidationFailureError{Table: table, RuleIDs: failed}
}

func evaluate(batch *domain.Batch, rule domain.QualityRule, parents map[string]*domain.Batch) (domain.Verdict, error) {
	v := domain.Verdict{
		RuleID:   rule.ID,
		Kind:     rule.Kind,
		Severity: rule.Severity,
	}

	switch rule.Kind {
	case domain.RuleCompleteness:
		return evalCompleteness(batch, rule, v)
	case domain.RuleUniqueness:
		return evalUniqueness(batch, rule, v)
	case domain.RuleValidity:
		return evalValidity(batch, rule, v)
	case domain.RuleReferential:
		return evalReferential(batch, rule, v, parents)
	}
	return v, domain.ErrSchema("rule %q has unknown kind %q", rule.ID, rule.Kind)
}

func fieldIndex(batch *domain.Batch, rule domain.QualityRule, field string) (int, error) {
	i := batch.FieldIndex(field)
	if i < 0 {
		return -1, domain.ErrSchema("rule %q targets unknown field %q in table %q", rule.ID, field, batch.Table)
	}
	return i, nil
}

func evalCompleteness(batch *domain.Batch, rule domain.QualityRule, v domain.Verdict) (domain.Verdict, error) {
	col, err := fieldIndex(batch, rule, rule.TargetField)
	if err != nil {
		return v, err
	}

	threshold := 1.0
	if rule.Threshold != nil {
		threshold = *rule.Threshold
	}

	for _, row := range batch.Rows {
		if row[col] == nil {
			v.FailedCount++
		} else {
			v.PassedCount++
		}
	}

	total := v.PassedCount + v.FailedCount
	if total == 0 {
		v.Passed = true
		return v, nil
	}
	v.Passed = float64(v.PassedCount)/float64(total) >= threshold
	return v, nil
}

func evalUniqueness(batch *domain.Batch, rule domain.QualityRule, v domain.Verdict) (domain.Verdict, error) {
	keyFields := rule.KeyFields
	if len(keyFields) == 0 {
		keyFields = []string{rule.TargetField}
	}
	for _, kf := range keyFields {
		if _, err := fieldIndex(batch, rule, kf); err != nil {
			return v, err
		}
	}

	seen := make(map[string]bool, len(batch.Rows))
	for row := range batch.Rows {
		key := batch.NaturalKeyOf(row, keyFields)
		if seen[key] {
			// Duplicates count as failures after the first occurrence.
			v.FailedCount++
			if len(v.SampleFailures) < sampleLimit {
				v.SampleFailures = append(v.SampleFailures, key)
			}
			continue
		}
		seen[key] = true
		v.PassedCount++
	}
	v.Passed = v.FailedCount == 0
	return v, nil
}

func evalValidity(batch *domain.Batch, rule domain.QualityRule, v domain.Verdict) (domain.Verdict, error) {
	if rule.TargetField == "" {
		return evalRowCount(batch, rule, v), nil
	}
	col, err := fieldIndex(batch, rule, rule.TargetField)
	if err != nil {
		return v, err
	}

	var allowed map[string]bool
	if len(rule.AllowedValues) > 0 {
		allowed = make(map[string]bool, len(rule.AllowedValues))
		for _, a := range rule.AllowedValues {
			allowed[a] = true
		}
	}

	for _, row := range batch.Rows {
		val := row[col]
		if val == nil {
			// NULLs are the completeness rule's concern.
			continue
		}
		if validValue(val, rule, allowed) {
			v.PassedCount++
			continue
		}
		v.FailedCount++
		if len(v.SampleFailures) < sampleLimit {
			v.SampleFailures = append(v.SampleFailures, domain.FormatValue(val))
		}
	}
	v.Passed = v.FailedCount == 0
	return v, nil
}

// evalRowCount checks the batch row count against the rule's Min/Max bounds.
func evalRowCount(batch *domain.Batch, rule domain.QualityRule, v domain.Verdict) domain.Verdict {
	n := batch.NumRows()
	f := float64(n)
	v.Passed = true
	if rule.Min != nil && f < *rule.Min {
		v.Passed = false
	}
	if rule.Max != nil && f > *rule.Max {
		v.Passed = false
	}
	if v.Passed {
		v.PassedCount = n
	} else {
		v.FailedCount = n
		v.SampleFailures = []string{fmt.Sprintf("row_count=%d", n)}
	}
	return v
}

func validValue(val any, rule domain.QualityRule, allowed map[string]bool) bool {
	s := domain.FormatValue(val)

	if allowed != nil && !allowed[s] {
		return false
	}

	switch rule.Format {
	case domain.FormatDate:
		if _, ok := domain.CastValue(s, domain.TypeDate); !ok {
			return false
		}
	case domain.FormatTimestamp:
		if _, ok := domain.CastValue(s, domain.TypeTimestamp); !ok {
			return false
		}
	case domain.FormatDecimal:
		if _, ok := domain.CastValue(s, domain.TypeDouble); !ok {
			return false
		}
	case domain.FormatEmail:
		if !emailPattern.MatchString(s) {
			return false
		}
	}

	if rule.Min != nil || rule.Max != nil {
		f, ok := asFloat(val)
		if !ok {
			return false
		}
		if rule.Min != nil && f < *rule.Min {
			return false
		}
		if rule.Max != nil && f > *rule.Max {
			return false
		}
	}
	return true
}

func evalReferential(batch *domain.Batch, rule domain.QualityRule, v domain.Verdict, parents map[string]*domain.Batch) (domain.Verdict, error) {
	col, err := fieldIndex(batch, rule, rule.TargetField)
	if err != nil {
		return v, err
	}

	parent, ok := parents[rule.ParentTable]
	if !ok {
		return v, domain.ErrSchema("rule %q references parent table %q which is not available", rule.ID, rule.ParentTable)
	}
	pcol := parent.FieldIndex(rule.ParentField)
	if pcol < 0 {
		return v, domain.ErrSchema("rule %q references unknown parent field %s.%s", rule.ID, rule.ParentTable, rule.ParentField)
	}

	keys := make(map[string]bool, parent.NumRows())
	for _, prow := range parent.Rows {
		if prow[pcol] != nil {
			keys[domain.FormatValue(prow[pcol])] = true
		}
	}

	orphans := map[string]bool{}
	for _, row := range batch.Rows {
		val := row[col]
		if val == nil {
			continue
		}
		s := domain.FormatValue(val)
		if keys[s] {
			v.PassedCount++
		} else {
			v.FailedCount++
			orphans[s] = true
		}
	}
	v.Passed = v.FailedCount == 0
	v.SampleFailures = sampleOf(orphans)
	return v, nil
}

func sampleOf(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	all := make([]string, 0, len(set))
	for s := range set {
		all = append(all, s)
	}
	sort.Strings(all)
	if len(all) > sampleLimit {
		all = all[:sampleLimit]
	}
	return all
}

func asFloat(val any) (float64, bool) {
	switch x := val.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
