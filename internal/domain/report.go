package domain

// Reject categories reported by the fact builder.
const (
	RejectReferential   = "referential_violation"
	RejectNonPositiveQy = "non_positive_quantity"
	RejectNegativeRev   = "negative_revenue"
)

// StageReport summarizes one stage run over one table. It is produced
// regardless of success or failure and persisted with the run record.
type StageReport struct {
	Stage   string `json:"stage"`
	Table   string `json:"table"`
	Skipped bool   `json:"skipped,omitempty"`

	RecordsIn  int `json:"records_in"`
	RecordsOut int `json:"records_out"`

	// CastFailures counts values that failed type coercion, per field.
	// These become NULL and count toward the field's completeness rule.
	CastFailures map[string]int `json:"cast_failures,omitempty"`

	// DroppedNull counts records dropped because a non-nullable field was
	// NULL after casting, per field.
	DroppedNull map[string]int `json:"dropped_null,omitempty"`

	DuplicatesRemoved int `json:"duplicates_removed,omitempty"`

	// Rejects counts fact-builder rejects per category.
	Rejects map[string]int `json:"rejects,omitempty"`

	Verdicts []Verdict `json:"verdicts,omitempty"`

	Error string `json:"error,omitempty"`
}

// TotalDropped returns the number of records dropped by the null policy.
func (r *StageReport) TotalDropped() int {
	total := 0
	for _, n := range r.DroppedNull {
		total += n
	}
	return total
}

// TotalRejected returns the number of records routed to the rejects set.
func (r *StageReport) TotalRejected() int {
	total := 0
	for _, n := range r.Rejects {
		total += n
	}
	return total
}
