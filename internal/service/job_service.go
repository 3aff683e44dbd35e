// Package service is the application layer over the store, the dispatch
// gateway, the reconciliation engine and the poll schedule.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/cache"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/dispatch"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/lock"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/queue"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Reconciler runs one reconciliation cycle.
type Reconciler interface {
	Reconcile(ctx context.Context, jobID, typeName string) (domain.PollResult, error)
}

type Deps struct {
	Store      storage.Store
	Gateway    *dispatch.Gateway
	Reconciler Reconciler
	Schedule   queue.Schedule
	Locks      lock.Locker
	Cache      *cache.Cache
	// Poster delivers the posting action for approved or completed jobs.
	Poster dispatch.Poster
	// FirstPoll is the delay before the first status poll of a new job.
	FirstPoll time.Duration
	Logger    *zap.Logger
}

type JobService struct {
	store     storage.Store
	gateway   *dispatch.Gateway
	rec       Reconciler
	schedule  queue.Schedule
	locks     lock.Locker
	cache     *cache.Cache
	poster    dispatch.Poster
	firstPoll time.Duration
	logger    *zap.Logger
}

func NewJobService(d Deps) *JobService {
	s := &JobService{
		store:     d.Store,
		gateway:   d.Gateway,
		rec:       d.Reconciler,
		schedule:  d.Schedule,
		locks:     d.Locks,
		cache:     d.Cache,
		poster:    d.Poster,
		firstPoll: d.FirstPoll,
		logger:    d.Logger,
	}
	if s.locks == nil {
		s.locks = lock.NewLocal()
	}
	if s.cache == nil {
		s.cache = cache.New(0)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

type CreateJobRequest struct {
	UserID   string         `json:"user_id"`
	JobID    string         `json:"job_id"`
	Category string         `json:"category"`
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
}

func (r *CreateJobRequest) validate() error {
	fields := []struct{ name, value string }{
		{"user_id", r.UserID},
		{"job_id", r.JobID},
		{"category", r.Category},
		{"type", r.Type},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrInvalidInput, "missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// CreateJob records a pending job. Creating an existing job id returns the
// stored job with created=false.
func (s *JobService) CreateJob(ctx context.Context, req *CreateJobRequest) (*domain.Job, bool, error) {
	if err := req.validate(); err != nil {
		return nil, false, err
	}
	j, created, err := s.store.CreateJob(ctx, &domain.Job{
		JobID:    req.JobID,
		UserID:   req.UserID,
		Category: req.Category,
		Type:     req.Type,
		Status:   domain.Pending,
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "create job")
	}
	if created {
		s.logger.Info("job created",
			zap.String("job_id", j.JobID),
			zap.String("user_id", j.UserID),
			zap.String("type", j.Type),
		)
	} else {
		s.logger.Info("duplicate job create", zap.String("job_id", j.JobID))
	}
	s.cache.Put(j)
	return j, created, nil
}

// Submit creates the job, dispatches it once and schedules status polling.
// A repeated submit of the same job id returns the existing job untouched
// with created=false. Dispatch failures leave the job failed and are
// returned alongside it.
func (s *JobService) Submit(ctx context.Context, req *CreateJobRequest) (*domain.Job, bool, error) {
	j, created, err := s.CreateJob(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return j, false, nil
	}

	unlock, err := s.locks.Lock(ctx, j.JobID)
	if err != nil {
		return nil, true, errors.Wrap(err, "submit: lock")
	}
	defer unlock()

	// a cycle may have run between create and lock
	j, err = s.store.GetJob(ctx, j.JobID)
	if err != nil {
		return nil, true, errors.Wrap(err, "submit: reload")
	}
	if j.Status != domain.Pending {
		s.cache.Put(j)
		return j, true, nil
	}

	tc, err := s.store.GetTypeConfig(ctx, j.Type)
	switch {
	case errors.Is(err, storage.ErrTypeNotFound):
		_, derr := s.gateway.Fail(ctx, j, &dispatch.ConfigError{Type: j.Type, Err: err})
		s.cache.Put(j)
		return j, true, derr
	case err != nil:
		return nil, true, errors.Wrap(err, "submit: type config")
	case !tc.IsActive:
		_, derr := s.gateway.Fail(ctx, j, &dispatch.ConfigError{Type: j.Type, Err: domain.ErrTypeInactive})
		s.cache.Put(j)
		return j, true, derr
	}

	_, err = s.gateway.Dispatch(ctx, j, tc.ExternalURL, req.Payload)
	s.cache.Put(j)
	if err != nil {
		return j, true, err
	}

	if s.schedule != nil {
		at := time.Now().Add(s.firstPoll)
		if err := s.schedule.Schedule(ctx, queue.Entry{JobID: j.JobID, Type: j.Type}, at); err != nil {
			// the UI poll path still works without the schedule
			s.logger.Warn("failed to schedule first poll", zap.String("job_id", j.JobID), zap.Error(err))
		}
	}
	return j, true, nil
}

// Ping checks the backing store.
func (s *JobService) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// GetJob reads the store. The cache only answers for terminal jobs, whose
// state can no longer change.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if j, ok := s.cache.Get(jobID); ok && j.Status.Terminal() {
		return j, nil
	}
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(j)
	return j, nil
}

func (s *JobService) ListJobs(ctx context.Context, userID, category string) ([]*domain.Job, error) {
	if userID == "" {
		return nil, errors.Wrap(ErrInvalidInput, "missing user_id")
	}
	return s.store.ListJobs(ctx, userID, category)
}

// Reconcile runs one reconciliation cycle; this is the UI polling entry
// point.
func (s *JobService) Reconcile(ctx context.Context, jobID, typeName string) (domain.PollResult, error) {
	res, err := s.rec.Reconcile(ctx, jobID, typeName)
	if errors.Is(err, storage.ErrJobNotFound) {
		s.cache.Delete(jobID)
	}
	if err == nil && res.ShouldStopPolling && s.schedule != nil {
		if rerr := s.schedule.Remove(ctx, jobID); rerr != nil {
			s.logger.Debug("failed to unschedule job", zap.String("job_id", jobID), zap.Error(rerr))
		}
	}
	return res, err
}

// ClearJobs deletes a user's jobs, optionally one category only. Cache and
// schedule entries of the deleted jobs are dropped too.
func (s *JobService) ClearJobs(ctx context.Context, userID, category string) (int64, error) {
	if userID == "" {
		return 0, errors.Wrap(ErrInvalidInput, "missing user_id")
	}
	var ids []string
	if s.schedule != nil {
		jobs, err := s.store.ListJobs(ctx, userID, category)
		if err != nil {
			return 0, err
		}
		for _, j := range jobs {
			ids = append(ids, j.JobID)
		}
	}

	n, err := s.store.ClearJobs(ctx, userID, category)
	if err != nil {
		return 0, err
	}
	s.cache.DeleteFunc(func(j *domain.Job) bool {
		return j.UserID == userID && (category == "" || j.Category == category)
	})
	for _, id := range ids {
		if err := s.schedule.Remove(ctx, id); err != nil {
			s.logger.Debug("failed to unschedule cleared job", zap.String("job_id", id), zap.Error(err))
		}
	}
	s.logger.Info("jobs cleared",
		zap.String("user_id", userID),
		zap.String("category", category),
		zap.Int64("deleted", n),
	)
	return n, nil
}

// Post publishes an approved or completed job through its type's posting
// endpoint and marks it posted.
func (s *JobService) Post(ctx context.Context, jobID string) (*domain.Job, error) {
	unlock, err := s.locks.Lock(ctx, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "post: lock")
	}
	defer unlock()

	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != domain.Approved && j.Status != domain.Completed {
		return nil, errors.Wrapf(ErrInvalidTransition, "cannot post a %s job", j.Status)
	}
	tc, err := s.store.GetTypeConfig(ctx, j.Type)
	if err != nil {
		if errors.Is(err, storage.ErrTypeNotFound) {
			return nil, &dispatch.ConfigError{Type: j.Type, Err: err}
		}
		return nil, errors.Wrap(err, "post: type config")
	}
	if tc.PostingURL == "" {
		return nil, &dispatch.ConfigError{Type: j.Type, Err: errors.New("no posting url configured")}
	}

	_, err = s.poster.PostJSON(ctx, tc.PostingURL, map[string]any{
		"jobId":     j.JobID,
		"userId":    j.UserID,
		"resultUrl": j.ResultURL,
		"caption":   j.Caption,
	})
	if err != nil {
		return nil, errors.Wrap(err, "post")
	}

	j.Status = domain.Posted
	j.ErrorMessage = ""
	if err := s.store.UpdateJob(context.WithoutCancel(ctx), j); err != nil {
		return nil, errors.Wrap(err, "post: persist")
	}
	s.cache.Put(j)
	s.logger.Info("job posted", zap.String("job_id", j.JobID))
	return j, nil
}
