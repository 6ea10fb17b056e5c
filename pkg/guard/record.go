package guard

import (
	"time"
)

// Status of a request over its lifetime. Only Issued records are ever persisted.
type Status string

const (
	StatusSubmitted Status = "Submitted"
	StatusPolling   Status = "Polling"
	StatusIssued    Status = "Issued"
	StatusFailed    Status = "Failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusIssued || s == StatusFailed
}

// RequestRecord is the content of a semaphore file.
type RequestRecord struct {
	Principal    string    `yaml:"principal"`
	NormalizedID string    `yaml:"normalized_id"`
	Kind         string    `yaml:"seclib"`
	RequestID    string    `yaml:"request_id,omitempty"`
	RunID        string    `yaml:"run_id,omitempty"`
	SubmittedAt  time.Time `yaml:"submitted_at"`
	Status       Status    `yaml:"status"`
}

// Advance moves the record to next. Terminal records do not change.
func (r *RequestRecord) Advance(next Status) bool {
	if r.Status.Terminal() {
		return false
	}
	r.Status = next
	return true
}

// lockInfo is the content of an in-flight lock file.
type lockInfo struct {
	RunID     string    `yaml:"run_id"`
	PID       int       `yaml:"pid"`
	CreatedAt time.Time `yaml:"created_at"`
}
