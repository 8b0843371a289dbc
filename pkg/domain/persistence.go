package domain

import "context"

// RunStore is a minimal abstraction over durable backends for run records.
type RunStore interface {
	// SaveRun stores a new run. It fails if a run with the same ID exists.
	SaveRun(ctx context.Context, run RunRecord) error
	// GetRun returns the run with the given ID.
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	// ListRuns returns runs of the given kind (all kinds when empty), newest first.
	ListRuns(ctx context.Context, kind RunKind) ([]RunRecord, error)
	// DeleteRun removes a run; it reports whether the run existed.
	DeleteRun(ctx context.Context, id string) (bool, error)
	// Close releases backend resources.
	Close() error
}
