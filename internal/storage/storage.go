// Package storage persists run history and per-block burst samples.
package storage

import (
	"context"
	"errors"

	"github.com/gateway-fm/dcaload/pkg/types"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Storage defines the persistence interface for run history.
type Storage interface {
	// Run lifecycle, called by the driver
	StartRun(ctx context.Context, run types.RunSummary) error
	RecordBurst(ctx context.Context, runID string, burst types.BurstSummary) error
	FinishRun(ctx context.Context, run types.RunSummary) error

	// History queries
	GetRun(ctx context.Context, id string) (*types.RunSummary, error)
	ListRuns(ctx context.Context, limit, offset int) (*types.PaginatedRuns, error)
	GetBlockSamples(ctx context.Context, runID string) ([]types.BurstSummary, error)
	DeleteRun(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}
