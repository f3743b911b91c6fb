// Package silver turns raw bronze batches into cleaned, typed, deduplicated
// silver partitions: cast, null policy, dedup, derivations, schema
// enforcement, then the quality gate.
package silver

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"shoplake/internal/domain"
	"shoplake/internal/quality"
	"shoplake/internal/schema"
	"shoplake/internal/storage"
)

// Transformer runs the silver stage for one table at a time.
type Transformer struct {
	registry *schema.Registry
	rules    *quality.RuleSet
	store    *storage.LocalStore
	logger   *slog.Logger
}

func NewTransformer(registry *schema.Registry, rules *quality.RuleSet, store *storage.LocalStore, logger *slog.Logger) *Transformer {
	return &Transformer{registry: registry, rules: rules, store: store, logger: logger}
}

// Fields returns the silver field layout for a table: the full declared
// schema (source and derived fields) followed by the lineage columns.
func Fields(ts *domain.TableSchema) []domain.FieldDef {
	fields := make([]domain.FieldDef, 0, len(ts.Fields)+2)
	fields = append(fields, ts.Fields...)
	fields = append(fields,
		domain.FieldDef{Name: domain.MetaIngestedAt, Type: domain.TypeTimestamp},
		domain.FieldDef{Name: domain.MetaSourceFile, Type: domain.TypeString},
	)
	return fields
}

// Transform cleans one table's bronze rows and writes the silver partitions.
// parents holds already-transformed batches of upstream tables for
// referential rules. processingDate partitions rows without a business date.
//
// A fail-severity rule failure aborts before any write: the returned report
// still carries every verdict. On success the cleaned batch is returned for
// downstream stages.
func (t *Transformer) Transform(ctx context.Context, table string, bronze *domain.Batch, processingDate string, parents map[string]*domain.Batch) (domain.StageReport, []domain.Partition, *domain.Batch, error) {
	report := domain.StageReport{
		Stage:        domain.StageSilver,
		Table:        table,
		CastFailures: map[string]int{},
		DroppedNull:  map[string]int{},
	}

	ts, err := t.registry.Get(table)
	if err != nil {
		report.Error = err.Error()
		return report, nil, nil, err
	}
	report.RecordsIn = bronze.NumRows()

	fields := Fields(ts)
	batch := t.cast(ts, fields, bronze, &report)
	t.dropNull(ts, batch, &report)
	t.dedupe(ts, batch, &report)
	if err := derive(ts, batch); err != nil {
		report.Error = err.Error()
		return report, nil, nil, err
	}

	verdicts, err := quality.Validate(batch, t.rules.For(table), parents)
	if err != nil {
		report.Error = err.Error()
		return report, nil, nil, err
	}
	report.Verdicts = verdicts
	if err := quality.FailErr(table, verdicts); err != nil {
		report.Error = err.Error()
		t.logger.Error("silver quality gate failed", "table", table, "error", err)
		return report, nil, nil, err
	}

	written, err := t.writePartitions(ctx, ts, batch, processingDate, &report)
	if err != nil {
		report.Error = err.Error()
		return report, nil, nil, err
	}
	report.RecordsOut = batch.NumRows()
	t.logger.Info("silver transform complete",
		"table", table,
		"records_in", report.RecordsIn,
		"records_out", report.RecordsOut,
		"duplicates_removed", report.DuplicatesRemoved,
		"dropped_null", report.TotalDropped(),
	)
	return report, written, batch, nil
}

// cast coerces every source field to its declared type. Failed casts become
// NULL and are counted per field; they never abort the stage.
func (t *Transformer) cast(ts *domain.TableSchema, fields []domain.FieldDef, bronze *domain.Batch, report *domain.StageReport) *domain.Batch {
	out := &domain.Batch{Table: ts.Name, Fields: fields}
	srcIdx := make([]int, len(fields))
	for i, f := range fields {
		srcIdx[i] = bronze.FieldIndex(f.Name)
	}

	for r := range bronze.Rows {
		row := make([]any, len(fields))
		for i, f := range fields {
			if f.Derived {
				continue
			}
			si := srcIdx[i]
			if si < 0 || bronze.Rows[r][si] == nil {
				continue
			}
			switch f.Name {
			case domain.MetaIngestedAt, domain.MetaSourceFile:
				row[i] = bronze.Rows[r][si]
				continue
			}
			raw, ok := bronze.Rows[r][si].(string)
			if !ok {
				row[i] = bronze.Rows[r][si]
				continue
			}
			val, ok := domain.CastValue(raw, f.Type)
			if !ok {
				report.CastFailures[f.Name]++
				continue
			}
			row[i] = val
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// dropNull enforces the null policy: rows with NULL in a non-nullable
// source field are dropped and counted against the first violating field.
func (t *Transformer) dropNull(ts *domain.TableSchema, batch *domain.Batch, report *domain.StageReport) {
	kept := batch.Rows[:0]
	for _, row := range batch.Rows {
		violation := ""
		for i, f := range batch.Fields {
			if f.Nullable || f.Derived {
				continue
			}
			switch f.Name {
			case domain.MetaIngestedAt, domain.MetaSourceFile:
				continue
			}
			if row[i] == nil {
				violation = f.Name
				break
			}
		}
		if violation != "" {
			report.DroppedNull[violation]++
			continue
		}
		kept = append(kept, row)
	}
	batch.Rows = kept
}

// dedupe keeps one row per natural key: the row with the greatest ordering
// value wins, and on ties the first-seen row wins. Output preserves the
// first-seen order of keys.
func (t *Transformer) dedupe(ts *domain.TableSchema, batch *domain.Batch, report *domain.StageReport) {
	orderField := ts.OrderingField
	if orderField == "" {
		orderField = domain.MetaIngestedAt
	}
	orderIdx := batch.FieldIndex(orderField)

	winner := map[string]int{}
	var order []string
	for r := range batch.Rows {
		key := batch.NaturalKeyOf(r, ts.NaturalKey)
		w, seen := winner[key]
		if !seen {
			winner[key] = r
			order = append(order, key)
			continue
		}
		if orderIdx >= 0 && domain.CompareValues(batch.Rows[r][orderIdx], batch.Rows[w][orderIdx]) > 0 {
			winner[key] = r
		}
	}

	report.DuplicatesRemoved = len(batch.Rows) - len(order)
	rows := make([][]any, 0, len(order))
	for _, key := range order {
		rows = append(rows, batch.Rows[winner[key]])
	}
	batch.Rows = rows
}

// writePartitions splits the batch by business date and replaces each
// affected partition. Rows without a business date, and tables without one,
// go to the processing-date partition.
func (t *Transformer) writePartitions(ctx context.Context, ts *domain.TableSchema, batch *domain.Batch, processingDate string, report *domain.StageReport) ([]domain.Partition, error) {
	keyField := ts.BusinessDateField
	if keyField == "" {
		keyField = "processing_date"
	}
	dateIdx := -1
	if ts.BusinessDateField != "" {
		dateIdx = batch.FieldIndex(ts.BusinessDateField)
	}

	byKey := map[string][][]any{}
	for _, row := range batch.Rows {
		date := processingDate
		if dateIdx >= 0 {
			if tv, ok := row[dateIdx].(time.Time); ok {
				date = tv.Format("2006-01-02")
			}
		}
		key := keyField + "=" + date
		byKey[key] = append(byKey[key], row)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var written []domain.Partition
	for _, key := range keys {
		ref := domain.PartitionRef{Layer: "silver", Table: ts.Name, Key: key}
		part := &domain.Batch{Table: ts.Name, Fields: batch.Fields, Rows: byKey[key]}
		path, rows, err := t.store.Write(ctx, ref, part)
		if err != nil {
			return nil, err
		}
		written = append(written, domain.Partition{Ref: ref, Path: path, RowCount: rows})
	}
	return written, nil
}
