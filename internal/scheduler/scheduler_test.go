package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/queue"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
)

type fakeReconciler struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(jobID string) (domain.PollResult, error)
}

func (f *fakeReconciler) Reconcile(_ context.Context, jobID, _ string) (domain.PollResult, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[jobID]++
	f.mu.Unlock()
	return f.fn(jobID)
}

func (f *fakeReconciler) count(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[jobID]
}

func TestTick(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	past := time.Now().Add(-time.Second)
	for _, id := range []string{"running", "done", "gone", "broken"} {
		if err := q.Schedule(ctx, queue.Entry{JobID: id, Type: "reel"}, past); err != nil {
			t.Fatal(err)
		}
	}

	rec := &fakeReconciler{fn: func(jobID string) (domain.PollResult, error) {
		switch jobID {
		case "done":
			return domain.PollResult{JobID: jobID, Status: domain.Completed, ShouldStopPolling: true}, nil
		case "gone":
			return domain.PollResult{}, storage.ErrJobNotFound
		case "broken":
			return domain.PollResult{}, errors.New("db down")
		}
		return domain.PollResult{JobID: jobID, Status: domain.Processing}, nil
	}}

	s := New(q, rec, WithInterval(time.Minute), WithConcurrency(2))
	n, err := s.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("expected 4 processed, got %d", n)
	}
	if q.Len() != 2 {
		t.Fatalf("expected running and broken rescheduled, got %d entries", q.Len())
	}

	// rescheduled entries are not due yet
	if n, _ := s.Tick(ctx); n != 0 {
		t.Fatalf("expected nothing due, got %d", n)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	due, err := q.Due(ctx, s.now(), 10)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, e := range due {
		got[e.JobID] = true
	}
	if !got["running"] || !got["broken"] || len(got) != 2 {
		t.Errorf("unexpected due set %v", got)
	}
}

func TestTick_Empty(t *testing.T) {
	rec := &fakeReconciler{fn: func(string) (domain.PollResult, error) {
		t.Error("reconcile called with an empty schedule")
		return domain.PollResult{}, nil
	}}
	n, err := New(queue.NewMemory(), rec).Tick(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

type staticLeader struct {
	leader bool
	calls  int32
}

func (l *staticLeader) Acquire(context.Context) (bool, error) {
	atomic.AddInt32(&l.calls, 1)
	return l.leader, nil
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewMemory()
	q.Schedule(ctx, queue.Entry{JobID: "j1"}, time.Now().Add(-time.Second))

	rec := &fakeReconciler{fn: func(jobID string) (domain.PollResult, error) {
		return domain.PollResult{JobID: jobID, ShouldStopPolling: true}, nil
	}}
	s := New(q, rec, WithInterval(10*time.Millisecond), WithLeader(&staticLeader{leader: true}))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count("j1") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.count("j1") != 1 {
		t.Errorf("expected one reconcile, got %d", rec.count("j1"))
	}
	if q.Len() != 0 {
		t.Errorf("stopped job still scheduled")
	}
}

func TestRun_NotLeader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	q := queue.NewMemory()
	q.Schedule(ctx, queue.Entry{JobID: "j1"}, time.Now().Add(-time.Second))

	rec := &fakeReconciler{fn: func(jobID string) (domain.PollResult, error) {
		return domain.PollResult{JobID: jobID}, nil
	}}
	l := &staticLeader{}
	s := New(q, rec, WithInterval(5*time.Millisecond), WithLeader(l))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	for atomic.LoadInt32(&l.calls) < 3 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if rec.count("j1") != 0 {
		t.Errorf("follower reconciled a job")
	}
}

// recordingSchedule notes every Remove.
type recordingSchedule struct {
	*queue.Memory
	mu      sync.Mutex
	removed []string
}

func (r *recordingSchedule) Remove(ctx context.Context, jobID string) error {
	r.mu.Lock()
	r.removed = append(r.removed, jobID)
	r.mu.Unlock()
	return r.Memory.Remove(ctx, jobID)
}

func TestTick_DeletedJobIsRemoved(t *testing.T) {
	ctx := context.Background()
	q := &recordingSchedule{Memory: queue.NewMemory()}
	q.Schedule(ctx, queue.Entry{JobID: "gone", Type: "reel"}, time.Now().Add(-time.Second))

	rec := &fakeReconciler{fn: func(string) (domain.PollResult, error) {
		return domain.PollResult{}, storage.ErrJobNotFound
	}}
	if _, err := New(q, rec).Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if len(q.removed) != 1 || q.removed[0] != "gone" {
		t.Errorf("expected deleted job removed from the schedule, got %v", q.removed)
	}
}

type staticSource struct {
	jobs []*domain.Job
}

func (s *staticSource) ListUnfinished(_ context.Context, after string, limit int) ([]*domain.Job, error) {
	var out []*domain.Job
	for _, j := range s.jobs {
		if j.JobID > after && !j.Status.Terminal() && len(out) < limit {
			out = append(out, j)
		}
	}
	return out, nil
}

func TestSweep_RestoresLostEntries(t *testing.T) {
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)
	src := &staticSource{jobs: []*domain.Job{
		{JobID: "a", Type: "reel", Status: domain.Processing, CreatedAt: old},
		{JobID: "b", Type: "reel", Status: domain.Approved, CreatedAt: old},
		{JobID: "c", Type: "quote", Status: domain.Processing, CreatedAt: old},
		{JobID: "d", Type: "reel", Status: domain.Pending, CreatedAt: old},
		{JobID: "e", Type: "reel", Status: domain.Pending, CreatedAt: time.Now()},
	}}

	q := queue.NewMemory()
	future := time.Now().Add(time.Hour)
	q.Schedule(ctx, queue.Entry{JobID: "c", Type: "quote"}, future)

	// a batch of two forces paging
	s := New(q, &fakeReconciler{}, WithSweep(src, 1), WithBatch(2), WithInterval(time.Minute))
	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected a, b and d restored, got %d", n)
	}

	due, err := q.Due(ctx, time.Now(), 10)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, e := range due {
		got[e.JobID] = true
	}
	if !got["a"] || !got["b"] || !got["d"] || got["c"] || got["e"] {
		t.Errorf("unexpected due set %v", got)
	}
	if q.Len() != 1 {
		t.Errorf("existing entry for c was disturbed")
	}
}

func TestRun_SweepsOnStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &staticSource{jobs: []*domain.Job{
		{JobID: "lost", Type: "reel", Status: domain.Processing, CreatedAt: time.Now().Add(-time.Hour)},
	}}
	rec := &fakeReconciler{fn: func(jobID string) (domain.PollResult, error) {
		return domain.PollResult{JobID: jobID, ShouldStopPolling: true}, nil
	}}
	s := New(queue.NewMemory(), rec, WithInterval(10*time.Millisecond), WithSweep(src, 100))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count("lost") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if rec.count("lost") != 1 {
		t.Errorf("job missing from the schedule was not polled, count=%d", rec.count("lost"))
	}
}
