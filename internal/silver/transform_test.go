package silver

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoplake/internal/bronze"
	"shoplake/internal/domain"
	"shoplake/internal/quality"
	"shoplake/internal/schema"
	"shoplake/internal/storage"
)

func newTestTransformer(t *testing.T) (*Transformer, *storage.LocalStore, *schema.Registry) {
	t.Helper()
	registry, err := schema.NewRegistry()
	require.NoError(t, err)
	rules, err := quality.NewRuleSet()
	require.NoError(t, err)
	store := storage.NewLocalStore(t.TempDir())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewTransformer(registry, rules, store, logger), store, registry
}

// bronzeBatch builds a raw batch in the bronze layout from column-name to
// value maps. Values are raw strings exactly as landed.
func bronzeBatch(t *testing.T, registry *schema.Registry, table string, ingestedAt time.Time, rows []map[string]string) *domain.Batch {
	t.Helper()
	ts, err := registry.Get(table)
	require.NoError(t, err)
	fields := bronze.Fields(ts)
	batch := &domain.Batch{Table: table, Fields: fields}
	for _, m := range rows {
		row := make([]any, len(fields))
		for i, f := range fields {
			switch f.Name {
			case domain.MetaIngestedAt:
				row[i] = ingestedAt
			case domain.MetaSourceFile:
				row[i] = "test.csv"
			default:
				if v, ok := m[f.Name]; ok && v != "" {
					row[i] = v
				}
			}
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch
}

// customersParent builds a minimal parent batch for referential rules.
func customersParent(ids ...string) map[string]*domain.Batch {
	rows := make([][]any, len(ids))
	for i, id := range ids {
		rows[i] = []any{id}
	}
	return map[string]*domain.Batch{
		"customers": {
			Table:  "customers",
			Fields: []domain.FieldDef{{Name: "customer_id", Type: domain.TypeString}},
			Rows:   rows,
		},
	}
}

func TestTransformCastsAndDerivesCustomers(t *testing.T) {
	tr, store, registry := newTestTransformer(t)
	in := bronzeBatch(t, registry, "customers", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), []map[string]string{
		{"customer_id": "c1", "email": "Ann@Example.COM", "first_name": "Ann", "last_name": "Ask", "created_at": "2024-01-10 09:00:00"},
		{"customer_id": "c2", "email": "not-an-email", "first_name": "Bo", "created_at": "2024-01-10 11:30:00"},
	})

	report, written, out, err := tr.Transform(context.Background(), "customers", in, "2024-01-15", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.RecordsOut)
	require.Len(t, written, 1)
	assert.Equal(t, "created_at=2024-01-10", written[0].Ref.Key)

	assert.Equal(t, "example.com", out.Value(0, "email_domain"))
	assert.Equal(t, true, out.Value(0, "is_valid_email"))
	assert.Equal(t, "Ann Ask", out.Value(0, "full_name"))
	assert.Equal(t, false, out.Value(1, "is_valid_email"))
	assert.Equal(t, "Bo", out.Value(1, "full_name"))

	ts, err := registry.Get("customers")
	require.NoError(t, err)
	stored, err := store.Read(context.Background(), written[0].Ref, Fields(ts))
	require.NoError(t, err)
	assert.Equal(t, 2, stored.NumRows())
}

func TestTransformStandardizesText(t *testing.T) {
	tr, _, registry := newTestTransformer(t)
	when := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	_, _, customers, err := tr.Transform(ctx, "customers", bronzeBatch(t, registry, "customers", when, []map[string]string{
		{"customer_id": "c1", "email": " ANN@Example.COM ", "country": "us", "city": " Lund ", "created_at": "2024-01-10 09:00:00"},
	}), "2024-01-15", nil)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", customers.Value(0, "email"))
	assert.Equal(t, true, customers.Value(0, "is_valid_email"))
	assert.Equal(t, "US", customers.Value(0, "country"))
	assert.Equal(t, "Lund", customers.Value(0, "city"))

	_, _, products, err := tr.Transform(ctx, "products", bronzeBatch(t, registry, "products", when, []map[string]string{
		{"product_id": "p1", "sku": "sku-9", "name": " Widget", "category": "Tools", "price": "10.00", "cost": "4.00", "created_at": "2024-01-10 09:00:00"},
	}), "2024-01-15", nil)
	require.NoError(t, err)
	assert.Equal(t, "SKU-9", products.Value(0, "sku"))
	assert.Equal(t, "tools", products.Value(0, "category"))
	assert.Equal(t, "Widget", products.Value(0, "name"))

	_, _, orders, err := tr.Transform(ctx, "orders", bronzeBatch(t, registry, "orders", when, []map[string]string{
		{
			"order_id": "o1", "customer_id": "c1", "order_date": "2024-01-12 10:00:00",
			"status": " Pending", "payment_method": "Credit_Card", "shipping_country": "nl",
			"subtotal": "10", "total_amount": "10",
		},
	}), "2024-01-15", customersParent("c1"))
	require.NoError(t, err)
	assert.Equal(t, "pending", orders.Value(0, "status"))
	assert.Equal(t, "credit_card", orders.Value(0, "payment_method"))
	assert.Equal(t, "NL", orders.Value(0, "shipping_country"))
}

func TestTransformDedupKeepsMostRecentIngestedAt(t *testing.T) {
	tr, _, registry := newTestTransformer(t)
	ts, err := registry.Get("customers")
	require.NoError(t, err)

	early := bronzeBatch(t, registry, "customers", time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC), []map[string]string{
		{"customer_id": "c1", "email": "a@x.com", "first_name": "a", "created_at": "2024-01-10 09:00:00"},
	})
	late := bronzeBatch(t, registry, "customers", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), []map[string]string{
		{"customer_id": "c1", "email": "a@x.com", "first_name": "b", "created_at": "2024-01-10 09:00:00"},
	})
	in := &domain.Batch{Table: "customers", Fields: bronze.Fields(ts), Rows: append(early.Rows, late.Rows...)}

	report, _, out, err := tr.Transform(context.Background(), "customers", in, "2024-01-15", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicatesRemoved)
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, "b", out.Value(0, "first_name"))
}

func TestTransformDedupTieKeepsFirstSeen(t *testing.T) {
	tr, _, registry := newTestTransformer(t)
	when := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	in := bronzeBatch(t, registry, "customers", when, []map[string]string{
		{"customer_id": "c1", "email": "a@x.com", "first_name": "first", "created_at": "2024-01-10 09:00:00"},
		{"customer_id": "c1", "email": "a@x.com", "first_name": "second", "created_at": "2024-01-10 09:00:00"},
	})

	_, _, out, err := tr.Transform(context.Background(), "customers", in, "2024-01-15", nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, "first", out.Value(0, "first_name"))
}

func TestTransformDropsNonNullableViolations(t *testing.T) {
	tr, _, registry := newTestTransformer(t)
	when := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	in := bronzeBatch(t, registry, "orders", when, []map[string]string{
		{"order_id": "o1", "customer_id": "c1", "order_date": "2024-01-12 10:00:00", "subtotal": "10", "total_amount": "10"},
		{"order_id": "o2", "customer_id": "", "order_date": "2024-01-12 10:00:00", "subtotal": "10", "total_amount": "10"},
	})

	report, _, out, err := tr.Transform(context.Background(), "orders", in, "2024-01-15", customersParent("c1"))
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumRows())
	assert.Equal(t, 1, report.DroppedNull["customer_id"])
}

func TestTransformCastFailureBecomesNull(t *testing.T) {
	tr, _, registry := newTestTransformer(t)
	when := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	in := bronzeBatch(t, registry, "orders", when, []map[string]string{
		{"order_id": "o1", "customer_id": "c1", "order_date": "2024-01-12 10:00:00", "subtotal": "not-a-number", "total_amount": "10"},
	})

	report, _, out, err := tr.Transform(context.Background(), "orders", in, "2024-01-15", customersParent("c1"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.CastFailures["subtotal"])
	assert.Nil(t, out.Value(0, "subtotal"))
	// No subtotal means no recomputed total either.
	assert.Nil(t, out.Value(0, "calculated_total"))
}

func TestTransformOrderDerivations(t *testing.T) {
	tr, _, registry := newTestTransformer(t)
	when := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	in := bronzeBatch(t, registry, "orders", when, []map[string]string{
		{
			"order_id": "o1", "customer_id": "c1", "order_date": "2024-03-05 14:30:00",
			"subtotal": "100.00", "tax_amount": "25.00", "shipping_amount": "10.00",
			"discount_amount": "5.00", "total_amount": "130.00",
		},
		{
			"order_id": "o2", "customer_id": "c1", "order_date": "2024-03-05 15:00:00",
			"subtotal": "100.00", "total_amount": "999.00",
		},
	})

	_, _, out, err := tr.Transform(context.Background(), "orders", in, "2024-01-15", customersParent("c1"))
	require.NoError(t, err)

	assert.Equal(t, int64(2024), out.Value(0, "order_year"))
	assert.Equal(t, int64(3), out.Value(0, "order_month"))
	assert.Equal(t, int64(5), out.Value(0, "order_day"))
	assert.Equal(t, 130.0, out.Value(0, "calculated_total"))
	assert.Equal(t, true, out.Value(0, "is_total_valid"))
	assert.Equal(t, false, out.Value(1, "is_total_valid"))
}

func TestTransformOrderItemDerivations(t *testing.T) {
	tr, _, registry := newTestTransformer(t)
	when := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	in := bronzeBatch(t, registry, "order_items", when, []map[string]string{
		{
			"order_item_id": "i1", "order_id": "o1", "product_id": "p1",
			"quantity": "3", "unit_price": "10.00", "discount_percent": "20",
			"line_total": "24.00",
		},
	})

	parents := map[string]*domain.Batch{
		"orders": {
			Table:  "orders",
			Fields: []domain.FieldDef{{Name: "order_id", Type: domain.TypeString}},
			Rows:   [][]any{{"o1"}},
		},
		"products": {
			Table:  "products",
			Fields: []domain.FieldDef{{Name: "product_id", Type: domain.TypeString}},
			Rows:   [][]any{{"p1"}},
		},
	}

	_, written, out, err := tr.Transform(context.Background(), "order_items", in, "2024-01-15", parents)
	require.NoError(t, err)

	assert.Equal(t, 30.0, out.Value(0, "gross_amount"))
	assert.Equal(t, 6.0, out.Value(0, "discount_amount"))
	assert.Equal(t, 24.0, out.Value(0, "calculated_line_total"))
	assert.Equal(t, true, out.Value(0, "is_line_total_valid"))

	// No business date field: partitioned by processing date.
	require.Len(t, written, 1)
	assert.Equal(t, "processing_date=2024-01-15", written[0].Ref.Key)
}

func TestTransformFailSeverityRuleAbortsWrite(t *testing.T) {
	tr, store, registry := newTestTransformer(t)
	when := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	// Negative price trips products_price_non_negative (severity fail).
	in := bronzeBatch(t, registry, "products", when, []map[string]string{
		{"product_id": "p1", "name": "Widget", "price": "-5.00", "created_at": "2024-01-10 00:00:00"},
	})

	report, written, _, err := tr.Transform(context.Background(), "products", in, "2024-01-15", nil)
	var vf *domain.ValidationFailureError
	require.ErrorAs(t, err, &vf)
	assert.Contains(t, vf.RuleIDs, "products_price_non_negative")
	assert.Empty(t, written)
	assert.NotEmpty(t, report.Verdicts)

	keys, err := store.ListKeys("silver", "products")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestTransformIsIdempotent(t *testing.T) {
	tr, store, registry := newTestTransformer(t)
	when := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	build := func() *domain.Batch {
		return bronzeBatch(t, registry, "orders", when, []map[string]string{
			{"order_id": "o1", "customer_id": "c1", "order_date": "2024-03-05 14:30:00", "subtotal": "10", "total_amount": "10"},
			{"order_id": "o2", "customer_id": "c2", "order_date": "2024-03-06 09:00:00", "subtotal": "20", "total_amount": "20"},
		})
	}
	ctx := context.Background()

	_, written, _, err := tr.Transform(ctx, "orders", build(), "2024-01-15", customersParent("c1", "c2"))
	require.NoError(t, err)
	require.Len(t, written, 2)

	readAll := func() map[string]string {
		out := map[string]string{}
		for _, w := range written {
			data, err := os.ReadFile(store.PartitionPath(w.Ref) + "/data.csv")
			require.NoError(t, err)
			out[w.Ref.Key] = string(data)
		}
		return out
	}
	first := readAll()

	_, _, _, err = tr.Transform(ctx, "orders", build(), "2024-01-15", customersParent("c1", "c2"))
	require.NoError(t, err)
	assert.Equal(t, first, readAll())
}
