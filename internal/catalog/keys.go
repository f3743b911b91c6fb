package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"shoplake/internal/domain"
)

var _ domain.KeyRegistry = (*KeyRepo)(nil)

// KeyRepo is the catalog-backed surrogate key registry. Known natural keys
// keep their surrogate value forever; new keys are allocated in sorted
// natural-key order within one transaction, so a rebuild over the same
// input assigns identical keys.
type KeyRepo struct {
	write *sql.DB
}

func NewKeyRepo(write *sql.DB) *KeyRepo {
	return &KeyRepo{write: write}
}

func (r *KeyRepo) Assign(ctx context.Context, dimension string, naturalKeys []string) (map[string]int64, error) {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin key assignment: %w", err)
	}
	defer tx.Rollback()

	out := make(map[string]int64, len(naturalKeys))
	rows, err := tx.QueryContext(ctx,
		`SELECT natural_key, surrogate_key FROM dim_keys WHERE dimension = ?`, dimension)
	if err != nil {
		return nil, fmt.Errorf("load dim keys: %w", err)
	}
	existing := map[string]int64{}
	for rows.Next() {
		var natural string
		var surrogate int64
		if err := rows.Scan(&natural, &surrogate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan dim key: %w", err)
		}
		existing[natural] = surrogate
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(surrogate_key), 0) FROM dim_keys WHERE dimension = ?`, dimension,
	).Scan(&next); err != nil {
		return nil, fmt.Errorf("max surrogate key: %w", err)
	}

	var fresh []string
	for _, natural := range naturalKeys {
		if surrogate, ok := existing[natural]; ok {
			out[natural] = surrogate
		} else {
			fresh = append(fresh, natural)
		}
	}
	sort.Strings(fresh)

	for _, natural := range fresh {
		if _, ok := out[natural]; ok {
			continue
		}
		next++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dim_keys (dimension, natural_key, surrogate_key) VALUES (?, ?, ?)`,
			dimension, natural, next,
		); err != nil {
			return nil, fmt.Errorf("insert dim key %q: %w", natural, err)
		}
		out[natural] = next
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit key assignment: %w", err)
	}
	return out, nil
}
