// Package reconcile turns noisy external status polls into durable job state.
//
// One call to Engine.Reconcile is one cycle: load the job, poll its status
// endpoint (if the type has one), fold the observation into the job's
// failure and stagnation trackers, persist, and tell the caller whether to
// keep polling. Cycles for the same job are serialized by a per-job lock.
package reconcile

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/cache"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/lock"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/normalize"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/webhook"
)

// StatusFetcher performs the status request for a job.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, statusURL, jobID string) ([]byte, error)
}

type Engine struct {
	jobs   storage.JobStore
	types  storage.TypeConfigs
	fetch  StatusFetcher
	locks  lock.Locker
	cache  *cache.Cache
	norm   *normalize.Normalizer
	logger *zap.Logger
}

type Option func(*Engine)

func WithLocker(l lock.Locker) Option { return func(e *Engine) { e.locks = l } }

// WithCache lets the engine answer polls for jobs already known to be
// terminal without a store read.
func WithCache(c *cache.Cache) Option { return func(e *Engine) { e.cache = c } }

func WithNormalizer(n *normalize.Normalizer) Option { return func(e *Engine) { e.norm = n } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func New(jobs storage.JobStore, types storage.TypeConfigs, fetch StatusFetcher, opts ...Option) *Engine {
	e := &Engine{
		jobs:   jobs,
		types:  types,
		fetch:  fetch,
		locks:  lock.NewLocal(),
		norm:   normalize.New(),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Reconcile runs one cycle for jobID. typeName selects the status endpoint;
// empty means the job's own type. storage.ErrJobNotFound is returned for
// unknown jobs and the caller must stop polling them.
func (e *Engine) Reconcile(ctx context.Context, jobID, typeName string) (domain.PollResult, error) {
	unlock, err := e.locks.Lock(ctx, jobID)
	if err != nil {
		return domain.PollResult{}, errors.Wrapf(err, "reconcile %s: lock", jobID)
	}
	defer unlock()

	if e.cache != nil {
		if j, ok := e.cache.Get(jobID); ok && j.Status.Terminal() {
			return stopped(j), nil
		}
	}

	j, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			e.forget(jobID)
			return domain.PollResult{}, err
		}
		return domain.PollResult{}, errors.Wrapf(err, "reconcile %s: load", jobID)
	}
	if j.Status.Terminal() {
		e.remember(j)
		return stopped(j), nil
	}

	if typeName == "" {
		typeName = j.Type
	}
	statusURL, err := e.statusURL(ctx, typeName)
	if err != nil {
		return domain.PollResult{}, errors.Wrapf(err, "reconcile %s: type config", jobID)
	}

	var out Outcome
	if statusURL != "" {
		out, err = e.poll(ctx, statusURL, j.JobID)
		if err != nil {
			return domain.PollResult{}, err
		}
	}

	prev := j.Status
	res := Apply(j, out)

	// an observation that completed is persisted even if the caller is
	// going away
	if err := e.jobs.UpdateJob(context.WithoutCancel(ctx), j); err != nil {
		e.forget(jobID)
		if errors.Is(err, storage.ErrJobNotFound) {
			return domain.PollResult{}, err
		}
		return domain.PollResult{}, errors.Wrapf(err, "reconcile %s: persist", jobID)
	}
	e.remember(j)
	e.log(j, prev, res)
	return res, nil
}

// poll fetches and normalizes one status response. Transport problems become
// error outcomes; only cancellation of ctx aborts the cycle.
func (e *Engine) poll(ctx context.Context, statusURL, jobID string) (Outcome, error) {
	body, err := e.fetch.FetchStatus(ctx, statusURL, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, errors.Wrapf(ctx.Err(), "reconcile %s: poll", jobID)
		}
		return Outcome{Err: describe(err)}, nil
	}
	r := e.norm.Normalize(body)
	if r.Status == "" && r.RawStatus != "" {
		e.logger.Debug("unrecognized external status",
			zap.String("job_id", jobID),
			zap.String("status", r.RawStatus),
		)
	}
	return FromNormalized(r), nil
}

// statusURL returns the status endpoint configured for typeName. Unknown
// types have no endpoint.
func (e *Engine) statusURL(ctx context.Context, typeName string) (string, error) {
	tc, err := e.types.GetTypeConfig(ctx, typeName)
	if err != nil {
		if errors.Is(err, storage.ErrTypeNotFound) {
			return "", nil
		}
		return "", err
	}
	return tc.StatusURL, nil
}

func (e *Engine) remember(j *domain.Job) {
	if e.cache != nil {
		e.cache.Put(j)
	}
}

func (e *Engine) forget(jobID string) {
	if e.cache != nil {
		e.cache.Delete(jobID)
	}
}

func (e *Engine) log(j *domain.Job, prev domain.Status, res domain.PollResult) {
	fields := []zap.Field{
		zap.String("job_id", j.JobID),
		zap.String("status", string(j.Status)),
		zap.Int("poll_count", j.Polls),
		zap.Int("failure_count", j.Failures),
	}
	switch {
	case res.Stalled:
		e.logger.Info("job stalled, polling stopped", fields...)
	case prev != j.Status && j.Status == domain.Failed:
		e.logger.Warn("job failed after repeated poll errors", append(fields, zap.String("error", j.ErrorMessage))...)
	case prev != j.Status:
		e.logger.Info("job status changed", append(fields, zap.String("from", string(prev)))...)
	case res.Error != "":
		e.logger.Debug("poll error absorbed", append(fields, zap.String("error", res.Error))...)
	}
}

func stopped(j *domain.Job) domain.PollResult {
	res := resultOf(j)
	res.ShouldStopPolling = true
	return res
}

func describe(err error) string {
	var se *webhook.StatusError
	if errors.As(err, &se) {
		return se.Error()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "status endpoint timed out"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "status endpoint timed out"
	}
	return "status request failed: " + errors.Cause(err).Error()
}
