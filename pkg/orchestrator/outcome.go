package orchestrator

import (
	"errors"

	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/guard"
	"github.com/Layr-Labs/certreq/pkg/materialize"
	"github.com/Layr-Labs/certreq/pkg/poller"
	"github.com/Layr-Labs/certreq/pkg/spec"
	"github.com/Layr-Labs/certreq/pkg/store"
)

// Status is the final state of one run.
type Status string

const (
	Success          Status = "success"
	AlreadySatisfied Status = "already_satisfied"
	InProgress       Status = "in_progress"
	TimedOut         Status = "timed_out"
	Failed           Status = "failed"
)

// Error taxonomy. The component packages own the definitions; they are re-exported here so
// callers only need this package to classify an outcome.
var (
	ErrInvalidSpec          = spec.ErrInvalidSpec
	ErrUnsupportedStoreKind = spec.ErrUnsupportedStoreKind
	ErrStoreUnavailable     = store.ErrStoreUnavailable
	ErrInProgress           = guard.ErrInProgress
	ErrNotIssued            = materialize.ErrNotIssued
	ErrClientNotConfigured  = errors.New("identity management client is not configured")
)

type (
	SubmissionError = getcert.SubmissionError
	PollTimeout     = poller.PollTimeout
	PollFailed      = poller.PollFailed
)

// RequestOutcome is what Run reports. Err is nil only for Success and AlreadySatisfied.
type RequestOutcome struct {
	Spec      spec.CertificateRequestSpec
	Status    Status
	Record    guard.RequestRecord
	RequestID string
	Resumed   bool // polling resumed a request the daemon was already tracking
	Err       error
}

// Retryable reports whether running again later may succeed without operator action.
func (o RequestOutcome) Retryable() bool {
	return IsRetryable(o.Err)
}

// IsRetryable is true for poll timeouts and concurrent runs of the same principal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var timeout *PollTimeout
	return errors.As(err, &timeout) || errors.Is(err, ErrInProgress)
}
