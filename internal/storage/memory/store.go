// Package memory is an in-process storage.Store. Safe for concurrent use;
// intended for tests and single-process development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.Job
	types map[string]domain.TypeConfig
	now   func() time.Time
}

func New() *Store {
	return &Store{
		jobs:  make(map[string]*domain.Job),
		types: make(map[string]domain.TypeConfig),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// PutTypeConfig registers or replaces a type configuration.
func (s *Store) PutTypeConfig(tc domain.TypeConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[tc.Name] = tc
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) CreateJob(_ context.Context, j *domain.Job) (*domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[j.JobID]; ok {
		return existing.Clone(), false, nil
	}
	cp := j.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := s.now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.jobs[cp.JobID] = cp
	return cp.Clone(), true, nil
}

func (s *Store) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (s *Store) ListJobs(_ context.Context, userID, category string) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Job, 0)
	for _, j := range s.jobs {
		if j.UserID != userID || (category != "" && j.Category != category) {
			continue
		}
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (s *Store) ListUnfinished(_ context.Context, afterJobID string, limit int) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Job, 0)
	for _, j := range s.jobs {
		if j.JobID > afterJobID && !j.Status.Terminal() {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].JobID < out[b].JobID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateJob(_ context.Context, j *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[j.JobID]
	if !ok {
		return storage.ErrJobNotFound
	}
	cp := j.Clone()
	// identity columns are immutable
	cp.ID, cp.UserID, cp.Category, cp.Type, cp.CreatedAt = cur.ID, cur.UserID, cur.Category, cur.Type, cur.CreatedAt
	cp.UpdatedAt = s.now()
	s.jobs[j.JobID] = cp
	j.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *Store) ClearJobs(_ context.Context, userID, category string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, j := range s.jobs {
		if j.UserID != userID || (category != "" && j.Category != category) {
			continue
		}
		delete(s.jobs, id)
		n++
	}
	return n, nil
}

func (s *Store) GetTypeConfig(_ context.Context, name string) (*domain.TypeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tc, ok := s.types[name]
	if !ok {
		return nil, storage.ErrTypeNotFound
	}
	return &tc, nil
}
