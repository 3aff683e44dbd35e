package domain

import (
	"encoding/json"
	"time"
)

type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Approved   Status = "approved"
	Completed  Status = "completed"
	Posted     Status = "posted"
	Failed     Status = "failed"
	Rejected   Status = "rejected"
)

// Statuses lists every canonical status in lifecycle order.
var Statuses = []Status{Pending, Processing, Approved, Completed, Posted, Failed, Rejected}

// Unfinished lists the statuses a job can still leave through polling.
var Unfinished = []Status{Pending, Processing, Approved}

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further status polling happens once a job
// reaches s.
func (s Status) Terminal() bool {
	switch s {
	case Completed, Posted, Failed, Rejected:
		return true
	}
	return false
}

// Job is one unit of content-generation work. JobID is assigned by the
// caller, ID is the internal row identifier.
type Job struct {
	ID               string          `json:"id"`
	JobID            string          `json:"job_id"`
	UserID           string          `json:"user_id"`
	Category         string          `json:"category"`
	Type             string          `json:"type"`
	Status           Status          `json:"status"`
	ResultURL        string          `json:"result_url,omitempty"`
	Caption          string          `json:"caption,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	DispatchResponse json.RawMessage `json:"dispatch_response,omitempty"`

	FailureTracker
	StagnationTracker

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.DispatchResponse != nil {
		cp.DispatchResponse = append(json.RawMessage(nil), j.DispatchResponse...)
	}
	return &cp
}
