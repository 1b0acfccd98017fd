package store

import (
	"context"

	"github.com/artpar/releaser/internal/core/release"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for deploy history.
type Store interface {
	// Deploy record operations
	CreateDeployRecord(ctx context.Context, record *release.DeployRecord) error
	FinishDeployRecord(ctx context.Context, record *release.DeployRecord) error
	GetDeployRecord(ctx context.Context, id string) (*release.DeployRecord, error)
	ListDeployRecords(ctx context.Context, target string, opts ListOptions) ([]release.DeployRecord, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int

	// Host restricts the result to one host when set.
	Host string
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
