// Package warehouse exposes the lake to SQL via an in-process DuckDB
// instance, one view per registered table backed by the partition CSVs.
package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"shoplake/internal/domain"
)

// maxQueryRows caps ad hoc query results.
const maxQueryRows = 1000

// Warehouse maintains DuckDB views over the catalog's registered partitions
// and executes read-only queries against them.
type Warehouse struct {
	db         *sql.DB
	lakeRoot   string
	partitions domain.PartitionRepository
	logger     *slog.Logger
}

func Open(lakeRoot string, partitions domain.PartitionRepository, logger *slog.Logger) (*Warehouse, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Warehouse{db: db, lakeRoot: lakeRoot, partitions: partitions, logger: logger}, nil
}

func (w *Warehouse) Close() error { return w.db.Close() }

// RefreshViews recreates one view per registered layer.table, reading every
// partition's CSV with the schema captured at registration time.
func (w *Warehouse) RefreshViews(ctx context.Context) error {
	tables, err := w.partitions.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, qualified := range tables {
		layer, table, ok := strings.Cut(qualified, ".")
		if !ok {
			continue
		}
		parts, err := w.partitions.List(ctx, layer, table)
		if err != nil {
			return err
		}
		if len(parts) == 0 {
			continue
		}

		var fields []domain.FieldDef
		if err := json.Unmarshal([]byte(parts[len(parts)-1].SchemaJSON), &fields); err != nil {
			return fmt.Errorf("partition schema for %s: %w", qualified, err)
		}

		paths := make([]string, len(parts))
		for i, p := range parts {
			paths[i] = quoteString(filepath.Join(w.lakeRoot, filepath.FromSlash(p.Path)))
		}

		stmt := fmt.Sprintf(
			`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_csv([%s], header=true, nullstr='', columns=%s)`,
			quoteIdent(layer+"_"+table),
			strings.Join(paths, ", "),
			columnsSpec(fields),
		)
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create view %s_%s: %w", layer, table, err)
		}
		w.logger.Debug("view refreshed", "view", layer+"_"+table, "partitions", len(parts))
	}
	return nil
}

// QueryResult is a column-oriented result page for ad hoc queries.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	// Truncated is set when the row cap cut the result short.
	Truncated bool `json:"truncated,omitempty"`
}

// Query executes a read-only statement over the lake views.
func (w *Warehouse) Query(ctx context.Context, query string) (*QueryResult, error) {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(trimmed, "select") && !strings.HasPrefix(trimmed, "with") {
		return nil, domain.ErrValidation("only SELECT queries are allowed")
	}

	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.ErrValidation("query failed: %v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Columns: cols}
	for rows.Next() {
		if len(result.Rows) >= maxQueryRows {
			result.Truncated = true
			break
		}
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, c := range cells {
			if b, ok := c.([]byte); ok {
				cells[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, cells)
	}
	return result, rows.Err()
}

func columnsSpec(fields []domain.FieldDef) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", quoteString(f.Name), duckType(f.Type))
	}
	b.WriteByte('}')
	return b.String()
}

func duckType(t domain.FieldType) string {
	switch t {
	case domain.TypeInt:
		return "'BIGINT'"
	case domain.TypeDouble:
		return "'DOUBLE'"
	case domain.TypeBool:
		return "'BOOLEAN'"
	case domain.TypeDate:
		return "'DATE'"
	case domain.TypeTimestamp:
		return "'TIMESTAMP'"
	default:
		return "'VARCHAR'"
	}
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
