package domain

const (
	// MaxFailures is the number of consecutive error outcomes that force a
	// job to failed.
	MaxFailures = 10
	// MaxStagnantPolls is the number of consecutive identical observations
	// after which polling stops.
	MaxStagnantPolls = 50
)

// FailureTracker counts consecutive poll cycles that ended in an error or an
// explicit failed signal.
type FailureTracker struct {
	Failures int `json:"failure_count"`
}

// RecordFailure counts one more error outcome and reports whether the
// threshold has been reached.
func (f *FailureTracker) RecordFailure() bool {
	f.Failures++
	return f.Failures >= MaxFailures
}

func (f *FailureTracker) ResetFailures() { f.Failures = 0 }

// StagnationTracker counts consecutive polls that observed the same status.
type StagnationTracker struct {
	Polls      int    `json:"poll_count"`
	LastStatus Status `json:"last_status,omitempty"`
}

// Observe records one poll observation and reports whether the job has been
// stuck on the same status for MaxStagnantPolls polls.
func (s *StagnationTracker) Observe(observed Status) bool {
	if observed == s.LastStatus {
		s.Polls++
	} else {
		s.Polls = 1
		s.LastStatus = observed
	}
	return s.Polls >= MaxStagnantPolls
}
