// Package scheduler drives background reconciliation of jobs whose status
// poll is due.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/queue"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultBatch       = 200
	DefaultConcurrency = 16
	// DefaultSweepEvery is how many ticks pass between store sweeps.
	DefaultSweepEvery = 60
)

type Reconciler interface {
	Reconcile(ctx context.Context, jobID, typeName string) (domain.PollResult, error)
}

// Source lists jobs that still need polling. The store is authoritative;
// the schedule is rebuilt from it.
type Source interface {
	ListUnfinished(ctx context.Context, afterJobID string, limit int) ([]*domain.Job, error)
}

type Scheduler struct {
	schedule    queue.Schedule
	rec         Reconciler
	leader      Leader
	interval    time.Duration
	batch       int64
	concurrency int
	source      Source
	sweepEvery  int
	logger      *zap.Logger
	now         func() time.Time
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option { return func(s *Scheduler) { s.interval = d } }

func WithBatch(n int64) Option { return func(s *Scheduler) { s.batch = n } }

func WithConcurrency(n int) Option { return func(s *Scheduler) { s.concurrency = n } }

// WithLeader makes ticks run only while l reports leadership.
func WithLeader(l Leader) Option { return func(s *Scheduler) { s.leader = l } }

// WithSweep re-adds unfinished jobs from src that are missing from the
// schedule, on the first tick and then every n ticks.
func WithSweep(src Source, n int) Option {
	return func(s *Scheduler) {
		s.source = src
		s.sweepEvery = n
	}
}

func WithLogger(l *zap.Logger) Option { return func(s *Scheduler) { s.logger = l } }

func New(schedule queue.Schedule, rec Reconciler, opts ...Option) *Scheduler {
	s := &Scheduler{
		schedule:    schedule,
		rec:         rec,
		interval:    DefaultInterval,
		batch:       DefaultBatch,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.batch <= 0 {
		s.batch = DefaultBatch
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.sweepEvery <= 0 {
		s.sweepEvery = DefaultSweepEvery
	}
	return s
}

// Run ticks every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int64("batch", s.batch),
		zap.Int("concurrency", s.concurrency),
	)
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-tick.C:
		}

		if s.leader != nil {
			ok, err := s.leader.Acquire(ctx)
			if err != nil {
				s.logger.Warn("leader election failed", zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
		}
		if s.source != nil && ticks%s.sweepEvery == 0 {
			if n, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("restored missing poll entries", zap.Int("jobs", n))
			}
		}
		ticks++
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("tick failed", zap.Error(err))
		}
	}
}

// Sweep schedules every unfinished job in the store that has no schedule
// entry, due immediately, and returns how many it added. Jobs whose entry
// was claimed by a crashed scheduler are recovered this way.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, nil
	}
	now := s.now()
	added := 0
	after := ""
	for {
		jobs, err := s.source.ListUnfinished(ctx, after, int(s.batch))
		if err != nil {
			return added, errors.Wrap(err, "scheduler: list unfinished")
		}
		for _, j := range jobs {
			if j.Status == domain.Pending && now.Sub(j.CreatedAt) < s.interval {
				// still being submitted
				continue
			}
			ok, err := s.schedule.Add(ctx, queue.Entry{JobID: j.JobID, Type: j.Type}, now)
			if err != nil {
				return added, errors.Wrap(err, "scheduler: sweep")
			}
			if ok {
				added++
			}
		}
		if len(jobs) < int(s.batch) {
			return added, nil
		}
		after = jobs[len(jobs)-1].JobID
	}
}

// Tick reconciles one batch of due jobs and returns how many it processed.
// Jobs that should keep polling are rescheduled one interval out.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	due, err := s.schedule.Due(ctx, s.now(), s.batch)
	if err != nil {
		return 0, errors.Wrap(err, "scheduler: due")
	}
	if len(due) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, e := range due {
		e := e
		g.Go(func() error {
			s.process(gctx, e)
			return nil
		})
	}
	_ = g.Wait()
	return len(due), nil
}

func (s *Scheduler) process(ctx context.Context, e queue.Entry) {
	log := s.logger.With(zap.String("job_id", e.JobID))

	res, err := s.rec.Reconcile(ctx, e.JobID, e.Type)
	switch {
	case errors.Is(err, storage.ErrJobNotFound):
		log.Debug("dropping deleted job")
		if err := s.schedule.Remove(ctx, e.JobID); err != nil {
			log.Debug("remove failed", zap.Error(err))
		}
		return
	case err != nil:
		if ctx.Err() != nil {
			// shutting down; leave the job for the next run
			s.reschedule(context.WithoutCancel(ctx), e, log)
			return
		}
		log.Warn("reconcile failed", zap.Error(err))
	case res.ShouldStopPolling:
		if err := s.schedule.Remove(ctx, e.JobID); err != nil {
			log.Debug("remove failed", zap.Error(err))
		}
		return
	}
	s.reschedule(ctx, e, log)
}

func (s *Scheduler) reschedule(ctx context.Context, e queue.Entry, log *zap.Logger) {
	if err := s.schedule.Schedule(ctx, e, s.now().Add(s.interval)); err != nil {
		log.Error("reschedule failed", zap.Error(err))
	}
}
