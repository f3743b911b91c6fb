package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"shoplake/internal/domain"
)

var _ domain.RunRepository = (*RunRepo)(nil)

// RunRepo persists pipeline runs. Params and stage reports are stored as
// JSON documents; the queryable columns are status, trigger and timing.
type RunRepo struct {
	write *sql.DB
	read  *sql.DB
}

func NewRunRepo(write, read *sql.DB) *RunRepo {
	return &RunRepo{write: write, read: read}
}

func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	params, stages, err := marshalRun(run)
	if err != nil {
		return err
	}
	_, err = r.write.ExecContext(ctx, `
		INSERT INTO runs (id, trigger_type, status, params_json, stages_json, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		run.ID, run.Trigger, run.Status, params, stages, run.Error,
		run.StartedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	params, stages, err := marshalRun(run)
	if err != nil {
		return err
	}
	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	res, err := r.write.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, params_json = ?, stages_json = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		run.Status, params, stages, run.Error, finishedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound("run %q not found", run.ID)
	}
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Run, error) {
	row := r.read.QueryRowContext(ctx, `
		SELECT id, trigger_type, status, params_json, stages_json, error, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("run %q not found", id)
	}
	return run, err
}

func (r *RunRepo) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.read.QueryContext(ctx, `
		SELECT id, trigger_type, status, params_json, stages_json, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func marshalRun(run *domain.Run) (params, stages string, err error) {
	p, err := json.Marshal(run.Params)
	if err != nil {
		return "", "", fmt.Errorf("marshal run params: %w", err)
	}
	s, err := json.Marshal(run.Stages)
	if err != nil {
		return "", "", fmt.Errorf("marshal run stages: %w", err)
	}
	return string(p), string(s), nil
}

func scanRun(scan func(dest ...any) error) (*domain.Run, error) {
	var run domain.Run
	var params, stages, startedAt string
	var finishedAt sql.NullString
	if err := scan(&run.ID, &run.Trigger, &run.Status, &params, &stages, &run.Error, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("unmarshal run params: %w", err)
	}
	if err := json.Unmarshal([]byte(stages), &run.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal run stages: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = ts
	}
	if finishedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			run.FinishedAt = &ts
		}
	}
	return &run, nil
}
