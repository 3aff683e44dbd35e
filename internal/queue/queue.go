// Package queue keeps the poll schedule: for every job still being
// reconciled, when its next status poll is due.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry identifies a job to poll and the type whose status endpoint applies.
type Entry struct {
	JobID string
	Type  string
}

// Schedule is implemented by RedisQ and Memory.
type Schedule interface {
	// Schedule sets (or moves) the next poll time for e.JobID.
	Schedule(ctx context.Context, e Entry, at time.Time) error
	// Add schedules e at at unless the job already has an entry. It
	// reports whether an entry was added.
	Add(ctx context.Context, e Entry, at time.Time) (bool, error)
	// Due claims up to batch entries due at or before now. A claimed entry
	// is removed from the schedule; claiming is exclusive across callers.
	Due(ctx context.Context, now time.Time, batch int64) ([]Entry, error)
	// Remove forgets a job.
	Remove(ctx context.Context, jobID string) error
}

// Memory is a process-local Schedule.
type Memory struct {
	mu      sync.Mutex
	entries map[string]scheduled
}

type scheduled struct {
	Entry
	at time.Time
}

func NewMemory() *Memory { return &Memory{entries: make(map[string]scheduled)} }

func (m *Memory) Schedule(_ context.Context, e Entry, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.JobID] = scheduled{Entry: e, at: at}
	return nil
}

func (m *Memory) Add(_ context.Context, e Entry, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.JobID]; ok {
		return false, nil
	}
	m.entries[e.JobID] = scheduled{Entry: e, at: at}
	return true, nil
}

func (m *Memory) Due(_ context.Context, now time.Time, batch int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]scheduled, 0)
	for _, s := range m.entries {
		if !s.at.After(now) {
			due = append(due, s)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	if batch > 0 && int64(len(due)) > batch {
		due = due[:batch]
	}

	out := make([]Entry, 0, len(due))
	for _, s := range due {
		delete(m.entries, s.JobID)
		out = append(out, s.Entry)
	}
	return out, nil
}

func (m *Memory) Remove(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, jobID)
	return nil
}

// Len reports how many jobs are scheduled.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
