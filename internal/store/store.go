// Package store persists bulk enrichment runs and their per-batch output,
// so an interrupted run can resume from its last completed batch.
package store

import (
	"context"
	"time"

	"github.com/safeland/floodrisk-cli/internal/enrich"
)

// RunStatus tracks an enrichment run's lifecycle.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one bulk enrichment job.
type Run struct {
	ID            string    `json:"id"`
	Status        RunStatus `json:"status"`
	SchemaVersion int       `json:"schema_version"`
	BatchSize     int       `json:"batch_size"`
	TotalCoords   int       `json:"total_coords"`
	Batches       int       `json:"batches"`
	Vectors       int       `json:"vectors"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines persistence for the enrichment pipeline. SaveBatch
// satisfies enrich.Checkpointer.
type Store interface {
	CreateRun(ctx context.Context, schemaVersion, batchSize, totalCoords int) (*Run, error)
	CompleteRun(ctx context.Context, runID string) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	LatestRun(ctx context.Context) (*Run, error)

	SaveBatch(ctx context.Context, runID string, batch int, vectors []enrich.FeatureVector) error
	CompletedBatches(ctx context.Context, runID string) (int, error)
	Vectors(ctx context.Context, runID string) ([]enrich.FeatureVector, error)

	Migrate(ctx context.Context) error
	Close() error
}
