package reconcile

import (
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/normalize"
)

// Outcome is what one poll observed.
type Outcome struct {
	// Err is set for a transport failure, a non-2xx response or an error
	// payload.
	Err string
	// Status is the canonical status reported, empty when the poll carried
	// no usable status.
	Status    domain.Status
	ResultURL string
	Caption   string
}

// FromNormalized converts a normalizer result into an Outcome.
func FromNormalized(r normalize.Result) Outcome {
	return Outcome{Err: r.Error, Status: r.Status, ResultURL: r.ResultURL, Caption: r.Caption}
}

const reportedFailed = "external job reported failed"

// Apply folds one observation into j and returns the cycle result. It
// assumes j is not terminal.
//
// Failure and stagnation accounting are independent: an error outcome
// counts toward MaxFailures and is observed as "failed" for stagnation, but
// only the failure threshold may change the persisted status on error.
func Apply(j *domain.Job, o Outcome) domain.PollResult {
	failed := o.Err != "" || o.Status == domain.Failed
	errMsg := o.Err
	if failed && errMsg == "" {
		errMsg = reportedFailed
	}

	observed := j.Status
	switch {
	case failed:
		observed = domain.Failed
	case o.Status != "":
		observed = o.Status
	}

	stalled := j.Observe(observed)
	stop := stalled

	if failed {
		j.ErrorMessage = errMsg
		if j.RecordFailure() {
			j.Status = domain.Failed
			stop = true
		}
	} else {
		j.ResetFailures()
		j.ErrorMessage = ""
		j.Status = observed
		if o.ResultURL != "" {
			j.ResultURL = o.ResultURL
		}
		if o.Caption != "" {
			j.Caption = o.Caption
		}
		if observed.Terminal() {
			stop = true
		}
	}

	res := resultOf(j)
	res.ShouldStopPolling = stop
	res.Stalled = stalled && !j.Status.Terminal()
	if failed {
		res.Error = errMsg
	}
	return res
}

func resultOf(j *domain.Job) domain.PollResult {
	return domain.PollResult{
		JobID:     j.JobID,
		Status:    j.Status,
		ResultURL: j.ResultURL,
		Caption:   j.Caption,
		Error:     j.ErrorMessage,
		PollCount: j.Polls,
	}
}
