package catalog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoplake/internal/db"
	"shoplake/internal/domain"
)

func openTestDB(t *testing.T) (write, read *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.sqlite")
	write, read, err := db.OpenSQLitePair(path, 2)
	require.NoError(t, err)
	t.Cleanup(func() {
		write.Close()
		read.Close()
	})
	require.NoError(t, db.RunMigrations(write))
	return write, read
}

func TestPartitionRegisterIsUpsert(t *testing.T) {
	write, read := openTestDB(t)
	repo := NewPartitionRepo(write, read)
	ctx := context.Background()

	ref := domain.PartitionRef{Layer: "silver", Table: "orders", Key: "order_date=2024-01-15"}
	require.NoError(t, repo.Register(ctx, &domain.Partition{
		Ref: ref, Path: "silver/orders/order_date=2024-01-15/data.csv", RowCount: 10, SchemaJSON: "[]",
	}))
	require.NoError(t, repo.Register(ctx, &domain.Partition{
		Ref: ref, Path: "silver/orders/order_date=2024-01-15/data.csv", RowCount: 12, SchemaJSON: "[]",
	}))

	parts, err := repo.List(ctx, "silver", "orders")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, 12, parts[0].RowCount)
	assert.False(t, parts[0].RegisteredAt.IsZero())

	tables, err := repo.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"silver.orders"}, tables)
}

func TestKeyAssignStableAndSorted(t *testing.T) {
	write, _ := openTestDB(t)
	repo := NewKeyRepo(write)
	ctx := context.Background()

	first, err := repo.Assign(ctx, "dim_customer", []string{"c3", "c1", "c2"})
	require.NoError(t, err)
	// New keys are allocated in sorted natural-key order.
	assert.Equal(t, map[string]int64{"c1": 1, "c2": 2, "c3": 3}, first)

	second, err := repo.Assign(ctx, "dim_customer", []string{"c2", "c4"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second["c2"])
	assert.Equal(t, int64(4), second["c4"])

	// Dimensions have independent key spaces.
	other, err := repo.Assign(ctx, "dim_product", []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), other["p1"])
}

func TestBookmarks(t *testing.T) {
	write, read := openTestDB(t)
	repo := NewBookmarkRepo(write, read)
	ctx := context.Background()

	seen, err := repo.Processed(ctx, "orders")
	require.NoError(t, err)
	assert.Empty(t, seen)

	require.NoError(t, repo.MarkProcessed(ctx, "orders", []string{"a.csv", "b.csv"}))
	// Marking the same file again is a no-op.
	require.NoError(t, repo.MarkProcessed(ctx, "orders", []string{"b.csv"}))

	seen, err = repo.Processed(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a.csv": true, "b.csv": true}, seen)

	require.NoError(t, repo.Clear(ctx, "orders"))
	seen, err = repo.Processed(ctx, "orders")
	require.NoError(t, err)
	assert.Empty(t, seen)
}

func TestRunLifecycle(t *testing.T) {
	write, read := openTestDB(t)
	repo := NewRunRepo(write, read)
	ctx := context.Background()

	run := &domain.Run{
		ID:      "run-1",
		Params:  domain.RunParams{Tables: []string{"orders"}, ProcessingDate: "2024-01-15", Bookmark: true},
		Trigger: domain.TriggerManual,
		Status:  domain.RunRunning,
		Stages: []domain.StageRun{
			{Stage: domain.StageBronze, Status: domain.StageRunning},
		},
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, run))

	finished := time.Now().UTC()
	run.Status = domain.RunSucceeded
	run.Stages[0].Status = domain.StageSucceeded
	run.Stages[0].Reports = []domain.StageReport{{Stage: domain.StageBronze, Table: "orders", RecordsIn: 5, RecordsOut: 5}}
	run.FinishedAt = &finished
	require.NoError(t, repo.Update(ctx, run))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, got.Status)
	assert.Equal(t, []string{"orders"}, got.Params.Tables)
	require.Len(t, got.Stages, 1)
	require.Len(t, got.Stages[0].Reports, 1)
	assert.Equal(t, 5, got.Stages[0].Reports[0].RecordsOut)
	require.NotNil(t, got.FinishedAt)

	runs, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = repo.Get(ctx, "missing")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	err = repo.Update(ctx, &domain.Run{ID: "missing", StartedAt: time.Now()})
	require.ErrorAs(t, err, &nf)
}
