package domain

// RuleKind is the tagged variant selecting the evaluator for a quality rule.
type RuleKind string

const (
	RuleCompleteness RuleKind = "completeness"
	RuleUniqueness   RuleKind = "uniqueness"
	RuleValidity     RuleKind = "validity"
	RuleReferential  RuleKind = "referential"
)

// Severity decides what a failed rule does to the enclosing stage.
type Severity string

const (
	// SeverityFail aborts the stage: no partial write is committed.
	SeverityFail Severity = "fail"
	// SeverityWarn is recorded in the report; processing continues.
	SeverityWarn Severity = "warn"
)

// ValueFormat names a format predicate for validity rules.
type ValueFormat string

const (
	FormatDate      ValueFormat = "date"
	FormatTimestamp ValueFormat = "timestamp"
	FormatDecimal   ValueFormat = "decimal"
	FormatEmail     ValueFormat = "email"
)

// QualityRule is one configurable data quality check. Exactly one of the
// kind-specific predicate fields is meaningful per kind.
type QualityRule struct {
	ID          string   `yaml:"id"`
	Table       string   `yaml:"table"`
	Kind        RuleKind `yaml:"kind"`
	Severity    Severity `yaml:"severity"`
	TargetField string   `yaml:"field"`

	// completeness: minimum fraction of non-NULL values (default 1.0).
	Threshold *float64 `yaml:"threshold,omitempty"`

	// uniqueness: optional composite key; TargetField used when empty.
	KeyFields []string `yaml:"key_fields,omitempty"`

	// validity: membership set, format predicate, or numeric bounds.
	AllowedValues []string    `yaml:"allowed_values,omitempty"`
	Format        ValueFormat `yaml:"format,omitempty"`
	Min           *float64    `yaml:"min,omitempty"`
	Max           *float64    `yaml:"max,omitempty"`

	// referential: parent table and key field the target must resolve into.
	ParentTable string `yaml:"parent_table,omitempty"`
	ParentField string `yaml:"parent_field,omitempty"`
}

// Verdict is the outcome of evaluating one rule over a record batch.
// Produced per run; not persisted beyond the run's report.
type Verdict struct {
	RuleID         string   `json:"rule_id"`
	Kind           RuleKind `json:"kind"`
	Severity       Severity `json:"severity"`
	Passed         bool     `json:"passed"`
	PassedCount    int      `json:"passed_count"`
	FailedCount    int      `json:"failed_count"`
	SampleFailures []string `json:"sample_failures,omitempty"`
}

// FailedRuleIDs returns the IDs of fail-severity verdicts that did not pass.
func FailedRuleIDs(verdicts []Verdict) []string {
	var ids []string
	for _, v := range verdicts {
		if !v.Passed && v.Severity == SeverityFail {
			ids = append(ids, v.RuleID)
		}
	}
	return ids
}
