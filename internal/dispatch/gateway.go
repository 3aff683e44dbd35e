// Package dispatch submits newly created jobs to their external generator.
//
// A dispatch is attempted exactly once. The generator may start real work
// (rendering, uploads) on receipt, so a failed submission marks the job
// failed instead of retrying. Success only means the request was accepted:
// the job moves to processing and completion is left to reconciliation.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
)

// ErrAlreadyDispatched is returned for a job that has left pending.
var ErrAlreadyDispatched = errors.New("job already dispatched")

// ConfigError reports a dispatch that could not be attempted because the
// job's type is misconfigured. It is never transient.
type ConfigError struct {
	Type string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("dispatch: type %q: %v", e.Type, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Poster sends the generation request.
type Poster interface {
	PostJSON(ctx context.Context, endpoint string, payload any) ([]byte, error)
}

// Result describes a dispatch attempt.
type Result struct {
	Status   domain.Status   `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type Gateway struct {
	jobs   storage.JobStore
	poster Poster
	logger *zap.Logger
}

func NewGateway(jobs storage.JobStore, poster Poster, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{jobs: jobs, poster: poster, logger: logger}
}

// Request is the body sent to the generator.
type Request struct {
	JobID    string         `json:"jobId"`
	UserID   string         `json:"userId"`
	Category string         `json:"category"`
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Dispatch submits j to externalURL once and records the outcome on j and
// in the store. The returned error is non-nil when the job ended up failed
// or could not be updated; a *ConfigError marks a configuration problem.
func (g *Gateway) Dispatch(ctx context.Context, j *domain.Job, externalURL string, payload map[string]any) (Result, error) {
	if j.Status != domain.Pending {
		return Result{Status: j.Status}, ErrAlreadyDispatched
	}
	if externalURL == "" {
		cerr := &ConfigError{Type: j.Type, Err: domain.ErrNoExternalURL}
		return g.fail(ctx, j, cerr)
	}

	resp, err := g.poster.PostJSON(ctx, externalURL, Request{
		JobID:    j.JobID,
		UserID:   j.UserID,
		Category: j.Category,
		Type:     j.Type,
		Payload:  payload,
	})
	if err != nil {
		return g.fail(ctx, j, errors.Wrap(err, "dispatch"))
	}

	j.Status = domain.Processing
	j.ErrorMessage = ""
	if json.Valid(resp) {
		j.DispatchResponse = resp
	} else if len(resp) > 0 {
		// keep non-JSON bodies readable in the jsonb column
		quoted, _ := json.Marshal(string(resp))
		j.DispatchResponse = quoted
	}
	if err := g.jobs.UpdateJob(context.WithoutCancel(ctx), j); err != nil {
		return Result{}, errors.Wrapf(err, "dispatch %s: persist", j.JobID)
	}
	g.logger.Info("job dispatched",
		zap.String("job_id", j.JobID),
		zap.String("type", j.Type),
	)
	return Result{Status: j.Status, Response: j.DispatchResponse}, nil
}

// Fail marks a still-pending job failed because it could not be dispatched.
func (g *Gateway) Fail(ctx context.Context, j *domain.Job, cause error) (Result, error) {
	return g.fail(ctx, j, cause)
}

func (g *Gateway) fail(ctx context.Context, j *domain.Job, cause error) (Result, error) {
	j.Status = domain.Failed
	j.ErrorMessage = cause.Error()
	if err := g.jobs.UpdateJob(context.WithoutCancel(ctx), j); err != nil {
		return Result{}, errors.Wrapf(err, "dispatch %s: persist failure", j.JobID)
	}
	g.logger.Warn("job dispatch failed",
		zap.String("job_id", j.JobID),
		zap.String("type", j.Type),
		zap.Error(cause),
	)
	return Result{Status: j.Status, Error: j.ErrorMessage}, cause
}
