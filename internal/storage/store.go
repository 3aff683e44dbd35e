// Package storage defines the durable job record store. Implementations live
// in the postgres, sqlite and memory subpackages; whichever is configured is
// the single source of truth for job state.
package storage

import (
	"context"
	"errors"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrTypeNotFound = errors.New("job type not found")
)

// JobStore persists one row per job id.
type JobStore interface {
	// CreateJob inserts j. When a row with the same JobID already exists it
	// is returned unchanged with created=false.
	CreateJob(ctx context.Context, j *domain.Job) (stored *domain.Job, created bool, err error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	// ListJobs returns a user's jobs, newest first. An empty category
	// matches every category.
	ListJobs(ctx context.Context, userID, category string) ([]*domain.Job, error)
	// UpdateJob writes every mutable field of j in one statement keyed by
	// JobID and bumps UpdatedAt.
	UpdateJob(ctx context.Context, j *domain.Job) error
	// ListUnfinished pages through jobs that are not terminal, ordered by
	// JobID and starting after afterJobID.
	ListUnfinished(ctx context.Context, afterJobID string, limit int) ([]*domain.Job, error)
	// ClearJobs deletes a user's jobs, optionally limited to one category.
	ClearJobs(ctx context.Context, userID, category string) (int64, error)
}

// TypeConfigs is the read-only lookup of generator type configuration.
type TypeConfigs interface {
	GetTypeConfig(ctx context.Context, name string) (*domain.TypeConfig, error)
}

// Store is everything a backend provides.
type Store interface {
	JobStore
	TypeConfigs
	Ping(ctx context.Context) error
	Close() error
}
