package domain

import "errors"

var (
	ErrNoExternalURL = errors.New("no external url configured for type")
	ErrTypeInactive  = errors.New("type is not active")
)

// TypeConfig is the externally managed configuration of one generator type.
type TypeConfig struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	ExternalURL string `json:"external_url"`
	StatusURL   string `json:"status_url,omitempty"`
	PostingURL  string `json:"posting_url,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// PollResult is what one reconciliation cycle hands back to its caller.
type PollResult struct {
	JobID             string `json:"job_id"`
	Status            Status `json:"status"`
	ResultURL         string `json:"result_url,omitempty"`
	Caption           string `json:"caption,omitempty"`
	Error             string `json:"error,omitempty"`
	PollCount         int    `json:"poll_count"`
	ShouldStopPolling bool   `json:"should_stop_polling"`
	// Stalled is set when polling stopped because the status never changed.
	Stalled bool `json:"stalled,omitempty"`
}
