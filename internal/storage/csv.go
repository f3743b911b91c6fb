// Package storage persists layer partitions as CSV files under the lake
// root and syncs the lake to remote object stores.
package storage

import (
	"encoding/csv"
	"fmt"
	"io"

	"shoplake/internal/domain"
)

// WriteCSV encodes the batch as headered CSV. NULL cells are written as the
// empty string; values use the canonical text encoding so re-reads and
// re-writes of unchanged data are byte identical.
func WriteCSV(w io.Writer, batch *domain.Batch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(batch.FieldNames()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(batch.Fields))
	for i, row := range batch.Rows {
		for j, cell := range row {
			if cell == nil {
				record[j] = ""
			} else {
				record[j] = domain.FormatValue(cell)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV decodes a headered CSV stream into a batch typed per the given
// field definitions. The header must list exactly the defined fields in
// order. Empty cells decode to NULL.
func ReadCSV(r io.Reader, table string, fields []domain.FieldDef) (*domain.Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(fields)

	header, err := cr.Read()
	if err == io.EOF {
		return &domain.Batch{Table: table, Fields: fields}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, f := range fields {
		if header[i] != f.Name {
			return nil, domain.ErrSchema("table %q: header column %d is %q, want %q", table, i, header[i], f.Name)
		}
	}

	batch := &domain.Batch{Table: table, Fields: fields}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		row := make([]any, len(fields))
		for j, raw := range record {
			val, ok := domain.CastValue(raw, fields[j].Type)
			if !ok {
				return nil, domain.ErrSchema("table %q line %d: %q is not a valid %s for field %q",
					table, line, raw, fields[j].Type, fields[j].Name)
			}
			row[j] = val
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}
