package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoplake/internal/domain"
)

func customerBatch(rows [][]any) *domain.Batch {
	return &domain.Batch{
		Table: "customers",
		Fields: []domain.FieldDef{
			{Name: "customer_id", Type: domain.TypeString},
			{Name: "email", Type: domain.TypeString, Nullable: true},
			{Name: "country", Type: domain.TypeString, Nullable: true},
		},
		Rows: rows,
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestCompleteness(t *testing.T) {
	tests := []struct {
		name       string
		rows       [][]any
		threshold  *float64
		wantPassed bool
		wantFailed int
	}{
		{
			name:       "all present",
			rows:       [][]any{{"c1", "a@x.com", "SE"}, {"c2", "b@x.com", "NO"}},
			wantPassed: true,
		},
		{
			name:       "one null fails default threshold",
			rows:       [][]any{{"c1", "a@x.com", "SE"}, {"c2", nil, "NO"}},
			wantPassed: false,
			wantFailed: 1,
		},
		{
			name:       "one null within relaxed threshold",
			rows:       [][]any{{"c1", "a@x.com", "SE"}, {"c2", nil, "NO"}, {"c3", "c@x.com", "DK"}, {"c4", "d@x.com", "FI"}},
			threshold:  floatPtr(0.70),
			wantPassed: true,
			wantFailed: 1,
		},
		{
			name:       "empty batch passes",
			rows:       nil,
			wantPassed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := domain.QualityRule{
				ID:          "r1",
				Table:       "customers",
				Kind:        domain.RuleCompleteness,
				Severity:    domain.SeverityFail,
				TargetField: "email",
				Threshold:   tt.threshold,
			}
			verdicts, err := Validate(customerBatch(tt.rows), []domain.QualityRule{rule}, nil)
			require.NoError(t, err)
			require.Len(t, verdicts, 1)
			assert.Equal(t, tt.wantPassed, verdicts[0].Passed)
			assert.Equal(t, tt.wantFailed, verdicts[0].FailedCount)
		})
	}
}

func TestUniquenessCountsDuplicatesAfterFirst(t *testing.T) {
	batch := customerBatch([][]any{
		{"c1", "a@x.com", "SE"},
		{"c2", "a@x.com", "SE"},
	})
	rule := domain.QualityRule{
		ID:          "email_unique",
		Table:       "customers",
		Kind:        domain.RuleUniqueness,
		Severity:    domain.SeverityFail,
		TargetField: "email",
	}

	verdicts, err := Validate(batch, []domain.QualityRule{rule}, nil)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)

	v := verdicts[0]
	assert.False(t, v.Passed)
	assert.Equal(t, 1, v.FailedCount)
	assert.Equal(t, 1, v.PassedCount)
	assert.Equal(t, []string{"a@x.com"}, v.SampleFailures)
}

func TestUniquenessCompositeKey(t *testing.T) {
	batch := &domain.Batch{
		Table: "order_items",
		Fields: []domain.FieldDef{
			{Name: "order_id", Type: domain.TypeString},
			{Name: "product_id", Type: domain.TypeString},
		},
		Rows: [][]any{
			{"o1", "p1"},
			{"o1", "p2"},
			{"o1", "p1"},
		},
	}
	rule := domain.QualityRule{
		ID:        "line_unique",
		Table:     "order_items",
		Kind:      domain.RuleUniqueness,
		Severity:  domain.SeverityFail,
		KeyFields: []string{"order_id", "product_id"},
	}

	verdicts, err := Validate(batch, []domain.QualityRule{rule}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, verdicts[0].FailedCount)
	assert.Equal(t, []string{"o1|p1"}, verdicts[0].SampleFailures)
}

func TestValidity(t *testing.T) {
	statusBatch := func(values ...any) *domain.Batch {
		rows := make([][]any, len(values))
		for i, v := range values {
			rows[i] = []any{v}
		}
		return &domain.Batch{
			Table:  "orders",
			Fields: []domain.FieldDef{{Name: "status", Type: domain.TypeString, Nullable: true}},
			Rows:   rows,
		}
	}

	t.Run("allowed values", func(t *testing.T) {
		rule := domain.QualityRule{
			ID: "status_allowed", Table: "orders", Kind: domain.RuleValidity,
			Severity: domain.SeverityFail, TargetField: "status",
			AllowedValues: []string{"pending", "shipped"},
		}
		verdicts, err := Validate(statusBatch("pending", "SHIPPED", nil), []domain.QualityRule{rule}, nil)
		require.NoError(t, err)
		v := verdicts[0]
		assert.False(t, v.Passed)
		assert.Equal(t, 1, v.FailedCount)
		// NULL is skipped: completeness owns it.
		assert.Equal(t, 1, v.PassedCount)
		assert.Equal(t, []string{"SHIPPED"}, v.SampleFailures)
	})

	t.Run("email format", func(t *testing.T) {
		rule := domain.QualityRule{
			ID: "email_fmt", Table: "orders", Kind: domain.RuleValidity,
			Severity: domain.SeverityWarn, TargetField: "status",
			Format: domain.FormatEmail,
		}
		verdicts, err := Validate(statusBatch("good@example.com", "not-an-email"), []domain.QualityRule{rule}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, verdicts[0].FailedCount)
		assert.Equal(t, 1, verdicts[0].PassedCount)
	})

	t.Run("numeric range", func(t *testing.T) {
		batch := &domain.Batch{
			Table:  "order_items",
			Fields: []domain.FieldDef{{Name: "discount_percent", Type: domain.TypeDouble, Nullable: true}},
			Rows:   [][]any{{float64(0)}, {float64(100)}, {float64(101)}, {float64(-5)}, {nil}},
		}
		rule := domain.QualityRule{
			ID: "discount_range", Table: "order_items", Kind: domain.RuleValidity,
			Severity: domain.SeverityWarn, TargetField: "discount_percent",
			Min: floatPtr(0), Max: floatPtr(100),
		}
		verdicts, err := Validate(batch, []domain.QualityRule{rule}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, verdicts[0].FailedCount)
		assert.Equal(t, 2, verdicts[0].PassedCount)
	})
}

func TestReferential(t *testing.T) {
	parents := map[string]*domain.Batch{
		"customers": customerBatch([][]any{
			{"c1", "a@x.com", "SE"},
			{"c2", "b@x.com", "NO"},
		}),
	}
	orders := &domain.Batch{
		Table: "orders",
		Fields: []domain.FieldDef{
			{Name: "order_id", Type: domain.TypeString},
			{Name: "customer_id", Type: domain.TypeString},
		},
		Rows: [][]any{
			{"o1", "c1"},
			{"o2", "c9"},
			{"o3", nil},
			{"o4", "c9"},
		},
	}
	rule := domain.QualityRule{
		ID: "customer_exists", Table: "orders", Kind: domain.RuleReferential,
		Severity: domain.SeverityWarn, TargetField: "customer_id",
		ParentTable: "customers", ParentField: "customer_id",
	}

	verdicts, err := Validate(orders, []domain.QualityRule{rule}, parents)
	require.NoError(t, err)

	v := verdicts[0]
	assert.False(t, v.Passed)
	assert.Equal(t, 2, v.FailedCount)
	assert.Equal(t, 1, v.PassedCount)
	assert.Equal(t, []string{"c9"}, v.SampleFailures)
}

func TestReferentialMissingParentIsSchemaError(t *testing.T) {
	rule := domain.QualityRule{
		ID: "customer_exists", Table: "orders", Kind: domain.RuleReferential,
		Severity: domain.SeverityFail, TargetField: "customer_id",
		ParentTable: "customers", ParentField: "customer_id",
	}
	batch := &domain.Batch{
		Table:  "orders",
		Fields: []domain.FieldDef{{Name: "customer_id", Type: domain.TypeString}},
	}

	_, err := Validate(batch, []domain.QualityRule{rule}, nil)
	var se *domain.SchemaError
	require.ErrorAs(t, err, &se)
}

func TestUnknownFieldIsSchemaError(t *testing.T) {
	rule := domain.QualityRule{
		ID: "r", Table: "customers", Kind: domain.RuleCompleteness,
		Severity: domain.SeverityFail, TargetField: "nope",
	}
	_, err := Validate(customerBatch(nil), []domain.QualityRule{rule}, nil)
	var se *domain.SchemaError
	require.ErrorAs(t, err, &se)
}

func TestValidateIsIdempotent(t *testing.T) {
	batch := customerBatch([][]any{
		{"c1", "a@x.com", "SE"},
		{"c2", "a@x.com", nil},
	})
	rules := []domain.QualityRule{
		{ID: "r1", Table: "customers", Kind: domain.RuleCompleteness, Severity: domain.SeverityFail, TargetField: "country"},
		{ID: "r2", Table: "customers", Kind: domain.RuleUniqueness, Severity: domain.SeverityWarn, TargetField: "email"},
	}

	first, err := Validate(batch, rules, nil)
	require.NoError(t, err)
	second, err := Validate(batch, rules, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFailErr(t *testing.T) {
	verdicts := []domain.Verdict{
		{RuleID: "warn_fails", Severity: domain.SeverityWarn, Passed: false},
		{RuleID: "fail_passes", Severity: domain.SeverityFail, Passed: true},
	}
	assert.NoError(t, FailErr("customers", verdicts))

	verdicts = append(verdicts, domain.Verdict{RuleID: "fail_fails", Severity: domain.SeverityFail, Passed: false})
	err := FailErr("customers", verdicts)
	var vf *domain.ValidationFailureError
	require.ErrorAs(t, err, &vf)
	assert.Equal(t, "customers", vf.Table)
	assert.Equal(t, []string{"fail_fails"}, vf.RuleIDs)
}

func TestRowCountValidity(t *testing.T) {
	rule := domain.QualityRule{
		ID:       "customers_min_rows",
		Table:    "customers",
		Kind:     domain.RuleValidity,
		Severity: domain.SeverityWarn,
		Min:      floatPtr(2),
	}

	verdicts, err := Validate(customerBatch([][]any{{"c1", "a@x.com", "SE"}}), []domain.QualityRule{rule}, nil)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Passed)
	assert.Equal(t, []string{"row_count=1"}, verdicts[0].SampleFailures)

	verdicts, err = Validate(customerBatch([][]any{{"c1", "a@x.com", "SE"}, {"c2", "b@x.com", "NO"}}), []domain.QualityRule{rule}, nil)
	require.NoError(t, err)
	assert.True(t, verdicts[0].Passed)
	assert.Equal(t, 2, verdicts[0].PassedCount)
}

func TestRowCountRuleRequiresBounds(t *testing.T) {
	_, err := parseRules([]byte("rules:\n  - {id: r1, table: customers, kind: validity, severity: warn}\n"))
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestDefaultRuleSetParses(t *testing.T) {
	rs, err := NewRuleSet()
	require.NoError(t, err)
	for _, table := range []string{"customers", "products", "orders", "order_items"} {
		assert.NotEmpty(t, rs.For(table), table)
	}
}
