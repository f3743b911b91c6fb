package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shoplake/internal/domain"
)

var _ domain.BookmarkRepository = (*BookmarkRepo)(nil)

// BookmarkRepo tracks which landing files each table has already ingested.
type BookmarkRepo struct {
	write *sql.DB
	read  *sql.DB
}

func NewBookmarkRepo(write, read *sql.DB) *BookmarkRepo {
	return &BookmarkRepo{write: write, read: read}
}

func (r *BookmarkRepo) Processed(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.read.QueryContext(ctx,
		`SELECT source_file FROM bookmarks WHERE table_name = ?`, table)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var file string
		if err := rows.Scan(&file); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out[file] = true
	}
	return out, rows.Err()
}

func (r *BookmarkRepo) MarkProcessed(ctx context.Context, table string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bookmark update: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, file := range files {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bookmarks (table_name, source_file, processed_at)
			VALUES (?, ?, ?)
			ON CONFLICT (table_name, source_file) DO NOTHING`,
			table, file, now,
		); err != nil {
			return fmt.Errorf("mark %s processed: %w", file, err)
		}
	}
	return tx.Commit()
}

func (r *BookmarkRepo) Clear(ctx context.Context, table string) error {
	if _, err := r.write.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE table_name = ?`, table); err != nil {
		return fmt.Errorf("clear bookmarks: %w", err)
	}
	return nil
}
