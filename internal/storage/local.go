package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"shoplake/internal/domain"
)

// dataFile is the single CSV file inside a partition directory.
const dataFile = "data.csv"

// LocalStore writes layer partitions under a lake root directory, one
// directory per partition:
//
//	<root>/<layer>/<table>/<partition key>/data.csv
//
// Writes replace the whole partition directory atomically: content is
// staged in a sibling temp directory and renamed into place, so readers
// never observe a half-written partition.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Root returns the lake root directory.
func (s *LocalStore) Root() string { return s.root }

// PartitionPath returns the absolute directory of a partition.
func (s *LocalStore) PartitionPath(ref domain.PartitionRef) string {
	return filepath.Join(s.root, filepath.FromSlash(ref.Path()))
}

// Write replaces the partition with the batch's rows and returns the
// relative data file path and row count.
func (s *LocalStore) Write(ctx context.Context, ref domain.PartitionRef, batch *domain.Batch) (string, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	final := s.PartitionPath(ref)
	parent := filepath.Dir(final)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", 0, fmt.Errorf("create table dir: %w", err)
	}

	staging := filepath.Join(parent, ".staging-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return "", 0, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	f, err := os.Create(filepath.Join(staging, dataFile))
	if err != nil {
		return "", 0, fmt.Errorf("create data file: %w", err)
	}
	if err := WriteCSV(f, batch); err != nil {
		f.Close()
		return "", 0, fmt.Errorf("encode partition %s: %w", ref.Path(), err)
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("close data file: %w", err)
	}

	if err := os.RemoveAll(final); err != nil {
		return "", 0, fmt.Errorf("remove previous partition: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		return "", 0, fmt.Errorf("commit partition %s: %w", ref.Path(), err)
	}
	return ref.Path() + "/" + dataFile, batch.NumRows(), nil
}

// Read loads one partition typed per the given fields.
func (s *LocalStore) Read(ctx context.Context, ref domain.PartitionRef, fields []domain.FieldDef) (*domain.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.PartitionPath(ref), dataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound("partition %s not found", ref.Path())
		}
		return nil, fmt.Errorf("open partition %s: %w", ref.Path(), err)
	}
	defer f.Close()
	return ReadCSV(f, ref.Table, fields)
}

// ReadAll loads and concatenates several partitions of one table, in the
// given order. Missing partitions are skipped.
func (s *LocalStore) ReadAll(ctx context.Context, refs []domain.PartitionRef, fields []domain.FieldDef) (*domain.Batch, error) {
	if len(refs) == 0 {
		return &domain.Batch{Fields: fields}, nil
	}
	out := &domain.Batch{Table: refs[0].Table, Fields: fields}
	for _, ref := range refs {
		batch, err := s.Read(ctx, ref, fields)
		if err != nil {
			var nf *domain.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return nil, err
		}
		out.Rows = append(out.Rows, batch.Rows...)
	}
	return out, nil
}

// ListKeys returns the partition keys present on disk for a layer/table,
// sorted lexicographically. Staging leftovers are ignored.
func (s *LocalStore) ListKeys(layer, table string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, layer, table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}
