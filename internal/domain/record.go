package domain

import (
	"strings"
	"time"
)

// Lineage metadata field names attached by the bronze ingestor and carried
// through silver output, mirroring the layer layout's reserved columns.
const (
	MetaIngestedAt = "_ingested_at"
	MetaSourceFile = "_source_file"
)

// Batch is the unit of data flowing between stages: a named table with an
// ordered field list and rows aligned to it. Cell values are one of
// nil (NULL), string, int64, float64, bool, or time.Time.
//
// Bronze batches carry all source fields string-typed plus the lineage
// columns; silver and gold batches are typed per their schema.
type Batch struct {
	Table  string
	Fields []FieldDef
	Rows   [][]any
}

// FieldIndex returns the position of the named field, or -1 when absent.
func (b *Batch) FieldIndex(name string) int {
	for i, f := range b.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// FieldNames returns the batch's field names in order.
func (b *Batch) FieldNames() []string {
	names := make([]string, len(b.Fields))
	for i, f := range b.Fields {
		names[i] = f.Name
	}
	return names
}

// NumRows returns the number of rows in the batch.
func (b *Batch) NumRows() int { return len(b.Rows) }

// Value returns the cell at (row, field name), nil when the field is absent.
func (b *Batch) Value(row int, field string) any {
	i := b.FieldIndex(field)
	if i < 0 {
		return nil
	}
	return b.Rows[row][i]
}

// NaturalKeyOf joins the values of the given key fields for one row into a
// deterministic composite key string.
func (b *Batch) NaturalKeyOf(row int, keyFields []string) string {
	parts := make([]string, len(keyFields))
	for i, kf := range keyFields {
		parts[i] = FormatValue(b.Value(row, kf))
	}
	return strings.Join(parts, "|")
}

// IngestedAtOf returns the lineage timestamp of one row, zero when missing.
func (b *Batch) IngestedAtOf(row int) time.Time {
	v := b.Value(row, MetaIngestedAt)
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}
