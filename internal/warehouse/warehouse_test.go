package warehouse

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoplake/internal/domain"
	"shoplake/internal/storage"
)

type stubPartitions struct {
	parts []domain.Partition
}

func (s *stubPartitions) Register(_ context.Context, p *domain.Partition) error {
	s.parts = append(s.parts, *p)
	return nil
}

func (s *stubPartitions) List(_ context.Context, layer, table string) ([]domain.Partition, error) {
	var out []domain.Partition
	for _, p := range s.parts {
		if p.Ref.Layer == layer && p.Ref.Table == table {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPartitions) ListTables(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range s.parts {
		name := p.Ref.Layer + "." + p.Ref.Table
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

func TestRefreshViewsAndQuery(t *testing.T) {
	root := t.TempDir()
	store := storage.NewLocalStore(root)
	ctx := context.Background()

	fields := []domain.FieldDef{
		{Name: "order_id", Type: domain.TypeString},
		{Name: "revenue", Type: domain.TypeDouble},
	}
	schemaJSON, err := json.Marshal(fields)
	require.NoError(t, err)

	parts := &stubPartitions{}
	for key, rows := range map[string][][]any{
		"date_key=20240305": {{"o1", 28.0}},
		"date_key=20240306": {{"o2", 120.0}},
	} {
		ref := domain.PartitionRef{Layer: "gold", Table: "fact_sales", Key: key}
		path, n, err := store.Write(ctx, ref, &domain.Batch{Table: "fact_sales", Fields: fields, Rows: rows})
		require.NoError(t, err)
		require.NoError(t, parts.Register(ctx, &domain.Partition{
			Ref: ref, Path: path, RowCount: n, SchemaJSON: string(schemaJSON),
		}))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	wh, err := Open(root, parts, logger)
	require.NoError(t, err)
	defer wh.Close()

	require.NoError(t, wh.RefreshViews(ctx))

	res, err := wh.Query(ctx, `SELECT order_id, revenue FROM gold_fact_sales ORDER BY order_id`)
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "revenue"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "o1", res.Rows[0][0])
	assert.Equal(t, 28.0, res.Rows[0][1])
}

func TestQueryRejectsNonSelect(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	wh, err := Open(root, &stubPartitions{}, logger)
	require.NoError(t, err)
	defer wh.Close()

	_, err = wh.Query(context.Background(), "DROP VIEW gold_fact_sales")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}
