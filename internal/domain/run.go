package domain

import "time"

// Stage names, in strict precedence order.
const (
	StageBronze   = "bronze"
	StageSilver   = "silver"
	StageGoldDims = "gold_dims"
	StageGoldFact = "gold_facts"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{StageBronze, StageSilver, StageGoldDims, StageGoldFact}

// StageStatus is the state of one stage within a pipeline run.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// RunStatus is the overall state of a pipeline run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// TriggerType records what started a run.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerAPI       TriggerType = "api"
)

// RunParams are the stage invocation parameters: configuration, not code.
type RunParams struct {
	// Tables to process; empty means every registered source table.
	Tables []string `json:"tables,omitempty"`
	// ProcessingDate is the target business date (YYYY-MM-DD).
	ProcessingDate string `json:"processing_date"`
	// Bookmark enables incremental processing: already-ingested source
	// files are skipped. Disabled means full partition reprocessing.
	Bookmark bool `json:"bookmark"`
	// Workers bounds stage-internal parallelism (0 = default).
	Workers int `json:"workers,omitempty"`
}

// StageRun tracks one stage's state within a run.
type StageRun struct {
	Stage      string        `json:"stage"`
	Status     StageStatus   `json:"status"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Reports    []StageReport `json:"reports,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Run is one end-to-end pipeline execution.
type Run struct {
	ID         string      `json:"id"`
	Params     RunParams   `json:"params"`
	Trigger    TriggerType `json:"trigger"`
	Status     RunStatus   `json:"status"`
	Stages     []StageRun  `json:"stages"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// PartitionRef identifies one output partition in the lake layout.
type PartitionRef struct {
	Layer string // bronze, silver, gold
	Table string
	// Key is the partition path segment, e.g. "ingestion_date=2024-03-01".
	// Empty for unpartitioned gold dimensions.
	Key string
}

// Path renders the partition's location relative to the lake root.
func (p PartitionRef) Path() string {
	if p.Key == "" {
		return p.Layer + "/" + p.Table
	}
	return p.Layer + "/" + p.Table + "/" + p.Key
}

// Partition is a committed partition registered in the catalog, carrying its
// schema for downstream querying.
type Partition struct {
	ID           int64     `json:"id"`
	Ref          PartitionRef `json:"ref"`
	Path         string    `json:"path"`
	RowCount     int       `json:"row_count"`
	SchemaJSON   string    `json:"schema_json"`
	RegisteredAt time.Time `json:"registered_at"`
}
