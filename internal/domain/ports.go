package domain

import "context"

// PartitionRepository records committed output partitions and their schemas
// in the catalog for downstream querying.
type PartitionRepository interface {
	Register(ctx context.Context, p *Partition) error
	List(ctx context.Context, layer, table string) ([]Partition, error)
	ListTables(ctx context.Context) ([]string, error)
}

// KeyRegistry assigns surrogate keys with upsert semantics: a natural key
// already present keeps its surrogate value across rebuilds; new keys
// receive new, previously unused values. Unseen keys are never deleted.
type KeyRegistry interface {
	// Assign returns the surrogate key for every natural key, allocating
	// new keys for those not yet registered. New keys are allocated in
	// sorted natural-key order so assignment is deterministic.
	Assign(ctx context.Context, dimension string, naturalKeys []string) (map[string]int64, error)
}

// BookmarkRepository tracks which source files a table's ingestion has
// already processed, enabling incremental re-runs.
type BookmarkRepository interface {
	Processed(ctx context.Context, table string) (map[string]bool, error)
	MarkProcessed(ctx context.Context, table string, files []string) error
	Clear(ctx context.Context, table string) error
}

// RunRepository persists pipeline runs and their stage reports.
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	Update(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
}
