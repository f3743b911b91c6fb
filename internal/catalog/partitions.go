// Package catalog persists pipeline metadata in the SQLite metastore:
// registered partitions, surrogate key mappings, ingestion bookmarks, and
// run records.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shoplake/internal/domain"
)

var _ domain.PartitionRepository = (*PartitionRepo)(nil)

// PartitionRepo registers committed output partitions for downstream
// querying. Re-registering a partition overwrites its previous entry.
type PartitionRepo struct {
	write *sql.DB
	read  *sql.DB
}

func NewPartitionRepo(write, read *sql.DB) *PartitionRepo {
	return &PartitionRepo{write: write, read: read}
}

func (r *PartitionRepo) Register(ctx context.Context, p *domain.Partition) error {
	registeredAt := p.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}
	res, err := r.write.ExecContext(ctx, `
		INSERT INTO partitions (layer, table_name, partition_key, path, row_count, schema_json, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (layer, table_name, partition_key) DO UPDATE SET
			path = excluded.path,
			row_count = excluded.row_count,
			schema_json = excluded.schema_json,
			registered_at = excluded.registered_at`,
		p.Ref.Layer, p.Ref.Table, p.Ref.Key, p.Path, p.RowCount, p.SchemaJSON,
		registeredAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("register partition %s: %w", p.Ref.Path(), err)
	}
	if id, err := res.LastInsertId(); err == nil {
		p.ID = id
	}
	p.RegisteredAt = registeredAt
	return nil
}

func (r *PartitionRepo) List(ctx context.Context, layer, table string) ([]domain.Partition, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT id, layer, table_name, partition_key, path, row_count, schema_json, registered_at
		FROM partitions
		WHERE layer = ? AND table_name = ?
		ORDER BY partition_key`,
		layer, table,
	)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var out []domain.Partition
	for rows.Next() {
		var p domain.Partition
		var registeredAt string
		if err := rows.Scan(&p.ID, &p.Ref.Layer, &p.Ref.Table, &p.Ref.Key, &p.Path, &p.RowCount, &p.SchemaJSON, &registeredAt); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, registeredAt); err == nil {
			p.RegisteredAt = ts
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PartitionRepo) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT DISTINCT layer || '.' || table_name
		FROM partitions
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
