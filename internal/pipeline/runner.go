// Package pipeline orchestrates the bronze, silver and gold stages as an
// explicit state machine with strict precedence, and schedules runs.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shoplake/internal/bronze"
	"shoplake/internal/domain"
	"shoplake/internal/gold"
	"shoplake/internal/quality"
	"shoplake/internal/schema"
	"shoplake/internal/silver"
	"shoplake/internal/storage"
)

// silverLevels orders silver processing so referential parents are cleaned
// before their children. Tables within a level are independent.
var silverLevels = [][]string{
	{"customers", "products"},
	{"orders"},
	{"order_items"},
}

// ViewRefresher is notified after a successful run so query views track the
// newly committed partitions.
type ViewRefresher interface {
	RefreshViews(ctx context.Context) error
}

// Runner executes pipeline runs. At most one run is in flight at a time;
// a second Execute returns a conflict.
type Runner struct {
	registry    *schema.Registry
	rules       *quality.RuleSet
	store       *storage.LocalStore
	ingestor    *bronze.Ingestor
	transformer *silver.Transformer
	keys        domain.KeyRegistry
	partitions  domain.PartitionRepository
	runs        domain.RunRepository
	refresher   ViewRefresher
	logger      *slog.Logger

	workers          int
	dimDateStartYear int
	dimDateEndYear   int

	mu      sync.Mutex
	running bool
}

// RunnerDeps wires a Runner.
type RunnerDeps struct {
	Registry    *schema.Registry
	Rules       *quality.RuleSet
	Store       *storage.LocalStore
	Ingestor    *bronze.Ingestor
	Transformer *silver.Transformer
	Keys        domain.KeyRegistry
	Partitions  domain.PartitionRepository
	Runs        domain.RunRepository
	Refresher   ViewRefresher // optional
	Logger      *slog.Logger

	Workers          int
	DimDateStartYear int
	DimDateEndYear   int
}

func NewRunner(deps RunnerDeps) *Runner {
	workers := deps.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		registry:         deps.Registry,
		rules:            deps.Rules,
		store:            deps.Store,
		ingestor:         deps.Ingestor,
		transformer:      deps.Transformer,
		keys:             deps.Keys,
		partitions:       deps.Partitions,
		runs:             deps.Runs,
		refresher:        deps.Refresher,
		logger:           deps.Logger,
		workers:          workers,
		dimDateStartYear: deps.DimDateStartYear,
		dimDateEndYear:   deps.DimDateEndYear,
	}
}

// Execute runs the full pipeline. The run record is persisted after every
// stage transition, success or failure, so reports are never lost.
func (r *Runner) Execute(ctx context.Context, trigger domain.TriggerType, params domain.RunParams) (*domain.Run, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, domain.ErrConflict("a pipeline run is already in flight")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if params.ProcessingDate == "" {
		params.ProcessingDate = time.Now().UTC().Format("2006-01-02")
	}
	if len(params.Tables) == 0 {
		params.Tables = r.registry.Tables()
	}
	workers := params.Workers
	if workers <= 0 {
		workers = r.workers
	}

	run := &domain.Run{
		ID:        uuid.NewString(),
		Params:    params,
		Trigger:   trigger,
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	for _, stage := range domain.Stages {
		run.Stages = append(run.Stages, domain.StageRun{Stage: stage, Status: domain.StagePending})
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	state := &runState{params: params, workers: workers, silver: map[string]*domain.Batch{}}
	failed := false
	for i := range run.Stages {
		sr := &run.Stages[i]
		if failed {
			sr.Status = domain.StageSkipped
			continue
		}

		now := time.Now().UTC()
		sr.Status = domain.StageRunning
		sr.StartedAt = &now
		r.persist(ctx, run)
		r.logger.Info("stage started", "run", run.ID, "stage", sr.Stage)

		reports, err := r.runStage(ctx, sr.Stage, state)
		sr.Reports = reports
		finished := time.Now().UTC()
		sr.FinishedAt = &finished
		if err != nil {
			sr.Status = domain.StageFailed
			sr.Error = err.Error()
			failed = true
			r.logger.Error("stage failed", "run", run.ID, "stage", sr.Stage, "error", err)
			continue
		}
		sr.Status = domain.StageSucceeded
		r.persist(ctx, run)
	}

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	if failed {
		run.Status = domain.RunFailed
		for _, sr := range run.Stages {
			if sr.Status == domain.StageFailed {
				run.Error = sr.Error
				break
			}
		}
	} else {
		run.Status = domain.RunSucceeded
		if r.refresher != nil {
			if err := r.refresher.RefreshViews(ctx); err != nil {
				r.logger.Warn("view refresh failed", "run", run.ID, "error", err)
			}
		}
	}
	r.persist(ctx, run)
	r.logger.Info("run finished", "run", run.ID, "status", run.Status)
	return run, nil
}

// runState carries data between stages of one run.
type runState struct {
	params  domain.RunParams
	workers int
	silver  map[string]*domain.Batch
	facts   *domain.Batch
	dims    map[string]*domain.Batch
}

func (r *Runner) runStage(ctx context.Context, stage string, state *runState) ([]domain.StageReport, error) {
	switch stage {
	case domain.StageBronze:
		return r.runBronze(ctx, state)
	case domain.StageSilver:
		return r.runSilver(ctx, state)
	case domain.StageGoldDims:
		return r.runGoldDims(ctx, state)
	case domain.StageGoldFact:
		return r.runGoldFacts(ctx, state)
	}
	return nil, domain.ErrSchema("unknown stage %q", stage)
}

func (r *Runner) runBronze(ctx context.Context, state *runState) ([]domain.StageReport, error) {
	var mu sync.Mutex
	reports := make([]domain.StageReport, 0, len(state.params.Tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(state.workers)
	for _, table := range state.params.Tables {
		g.Go(func() error {
			report, written, err := r.ingestor.Ingest(gctx, table, state.params.Bookmark)
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			if err != nil {
				return err
			}
			ts, err := r.registry.Get(table)
			if err != nil {
				return err
			}
			return r.register(gctx, written, bronze.Fields(ts))
		})
	}
	err := g.Wait()
	sortReports(reports)
	return reports, err
}

func (r *Runner) runSilver(ctx context.Context, state *runState) ([]domain.StageReport, error) {
	requested := map[string]bool{}
	for _, t := range state.params.Tables {
		requested[t] = true
	}

	var reports []domain.StageReport
	for _, level := range silverLevels {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(state.workers)
		for _, table := range level {
			if !requested[table] {
				continue
			}
			g.Go(func() error {
				raw, err := r.readBronze(gctx, table)
				if err != nil {
					return err
				}
				report, written, cleaned, err := r.transformer.Transform(gctx, table, raw, state.params.ProcessingDate, state.silver)
				mu.Lock()
				reports = append(reports, report)
				mu.Unlock()
				if err != nil {
					return err
				}
				ts, err := r.registry.Get(table)
				if err != nil {
					return err
				}
				if err := r.register(gctx, written, silver.Fields(ts)); err != nil {
					return err
				}
				mu.Lock()
				state.silver[table] = cleaned
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			sortReports(reports)
			return reports, err
		}
	}
	sortReports(reports)
	return reports, nil
}

func (r *Runner) runGoldDims(ctx context.Context, state *runState) ([]domain.StageReport, error) {
	state.dims = map[string]*domain.Batch{}
	var reports []domain.StageReport

	dimDate := gold.BuildDimDate(r.dimDateStartYear, r.dimDateEndYear)
	if err := r.writeGold(ctx, dimDate, ""); err != nil {
		return reports, err
	}
	state.dims["dim_date"] = dimDate
	reports = append(reports, domain.StageReport{
		Stage: domain.StageGoldDims, Table: "dim_date",
		RecordsIn: dimDate.NumRows(), RecordsOut: dimDate.NumRows(),
	})

	customers, err := r.silverBatch(ctx, state, "customers")
	if err != nil {
		return reports, err
	}
	orders, err := r.silverBatch(ctx, state, "orders")
	if err != nil {
		return reports, err
	}
	asOf, err := time.Parse("2006-01-02", state.params.ProcessingDate)
	if err != nil {
		return reports, domain.ErrValidation("processing date %q is not YYYY-MM-DD", state.params.ProcessingDate)
	}
	dimCustomer, err := gold.BuildDimCustomer(ctx, r.keys, customers, orders, asOf)
	if err != nil {
		return reports, err
	}
	if err := r.writeGold(ctx, dimCustomer, ""); err != nil {
		return reports, err
	}
	state.dims["dim_customer"] = dimCustomer
	reports = append(reports, domain.StageReport{
		Stage: domain.StageGoldDims, Table: "dim_customer",
		RecordsIn: customers.NumRows(), RecordsOut: dimCustomer.NumRows(),
	})

	products, err := r.silverBatch(ctx, state, "products")
	if err != nil {
		return reports, err
	}
	dimProduct, err := gold.BuildDimProduct(ctx, r.keys, products)
	if err != nil {
		return reports, err
	}
	if err := r.writeGold(ctx, dimProduct, ""); err != nil {
		return reports, err
	}
	state.dims["dim_product"] = dimProduct
	reports = append(reports, domain.StageReport{
		Stage: domain.StageGoldDims, Table: "dim_product",
		RecordsIn: products.NumRows(), RecordsOut: dimProduct.NumRows(),
	})
	return reports, nil
}

func (r *Runner) runGoldFacts(ctx context.Context, state *runState) ([]domain.StageReport, error) {
	items, err := r.silverBatch(ctx, state, "order_items")
	if err != nil {
		return nil, err
	}
	orders, err := r.silverBatch(ctx, state, "orders")
	if err != nil {
		return nil, err
	}

	out, err := gold.BuildFacts(gold.FactInput{
		Items:       items,
		Orders:      orders,
		DimDate:     state.dims["dim_date"],
		DimCustomer: state.dims["dim_customer"],
		DimProduct:  state.dims["dim_product"],
	})
	if err != nil {
		return nil, err
	}

	report := domain.StageReport{
		Stage:      domain.StageGoldFact,
		Table:      "fact_sales",
		RecordsIn:  items.NumRows(),
		RecordsOut: out.Facts.NumRows(),
		Rejects:    out.Counts,
	}

	// Facts are partitioned by date_key; each affected partition is
	// rebuilt whole from this run's fact set.
	byDate := map[int64][][]any{}
	dateCol := out.Facts.FieldIndex("date_key")
	for _, row := range out.Facts.Rows {
		key := row[dateCol].(int64)
		byDate[key] = append(byDate[key], row)
	}
	for key, rows := range byDate {
		part := &domain.Batch{Table: "fact_sales", Fields: gold.FactSalesFields, Rows: rows}
		if err := r.writeGold(ctx, part, formatDateKey(key)); err != nil {
			return []domain.StageReport{report}, err
		}
	}

	if out.Rejects.NumRows() > 0 {
		if err := r.writeGold(ctx, out.Rejects, "processing_date="+state.params.ProcessingDate); err != nil {
			return []domain.StageReport{report}, err
		}
	}

	for _, agg := range []*domain.Batch{gold.BuildAggDailySales(out.Facts), gold.BuildAggProductPerformance(out.Facts)} {
		if err := r.writeGold(ctx, agg, ""); err != nil {
			return []domain.StageReport{report}, err
		}
	}
	state.facts = out.Facts
	return []domain.StageReport{report}, nil
}

// silverBatch returns the cleaned batch for a table, reading it back from
// the silver layer when it was not produced earlier in this run.
func (r *Runner) silverBatch(ctx context.Context, state *runState, table string) (*domain.Batch, error) {
	if batch, ok := state.silver[table]; ok {
		return batch, nil
	}
	ts, err := r.registry.Get(table)
	if err != nil {
		return nil, err
	}
	keys, err := r.store.ListKeys("silver", table)
	if err != nil {
		return nil, err
	}
	refs := make([]domain.PartitionRef, len(keys))
	for i, key := range keys {
		refs[i] = domain.PartitionRef{Layer: "silver", Table: table, Key: key}
	}
	batch, err := r.store.ReadAll(ctx, refs, silver.Fields(ts))
	if err != nil {
		return nil, err
	}
	batch.Table = table
	state.silver[table] = batch
	return batch, nil
}

// readBronze concatenates every bronze partition of a table.
func (r *Runner) readBronze(ctx context.Context, table string) (*domain.Batch, error) {
	ts, err := r.registry.Get(table)
	if err != nil {
		return nil, err
	}
	keys, err := r.store.ListKeys("bronze", table)
	if err != nil {
		return nil, err
	}
	refs := make([]domain.PartitionRef, len(keys))
	for i, key := range keys {
		refs[i] = domain.PartitionRef{Layer: "bronze", Table: table, Key: key}
	}
	batch, err := r.store.ReadAll(ctx, refs, bronze.Fields(ts))
	if err != nil {
		return nil, err
	}
	batch.Table = table
	return batch, nil
}

func (r *Runner) writeGold(ctx context.Context, batch *domain.Batch, key string) error {
	ref := domain.PartitionRef{Layer: "gold", Table: batch.Table, Key: key}
	path, rows, err := r.store.Write(ctx, ref, batch)
	if err != nil {
		return err
	}
	return r.register(ctx, []domain.Partition{{Ref: ref, Path: path, RowCount: rows}}, batch.Fields)
}

// register records committed partitions with their schema in the catalog.
func (r *Runner) register(ctx context.Context, parts []domain.Partition, fields []domain.FieldDef) error {
	schemaJSON, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	for i := range parts {
		parts[i].SchemaJSON = string(schemaJSON)
		if err := r.partitions.Register(ctx, &parts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) persist(ctx context.Context, run *domain.Run) {
	if err := r.runs.Update(ctx, run); err != nil {
		r.logger.Error("persist run failed", "run", run.ID, "error", err)
	}
}

// sortReports orders per-table reports by table name so concurrent stages
// report deterministically.
func sortReports(reports []domain.StageReport) {
	sort.Slice(reports, func(i, j int) bool { return reports[i].Table < reports[j].Table })
}

func formatDateKey(key int64) string {
	return "date_key=" + strconv.FormatInt(key, 10)
}
