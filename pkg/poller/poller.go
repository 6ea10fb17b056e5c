package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Layr-Labs/certreq/pkg/common/iface"
	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/store"
)

const (
	// DefaultMaxAttempts matches the five probes the daemon usually needs for an IPA issued certificate
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
)

// PollTimeout means the request was still pending after every attempt. It is retryable.
type PollTimeout struct {
	Attempts   int
	LastStatus string
}

func (e *PollTimeout) Error() string {
	status := e.LastStatus
	if status == "" {
		status = "not tracked yet"
	}
	return fmt.Sprintf("certificate still pending after %d attempts (last status: %s)", e.Attempts, status)
}

// PollFailed means the daemon reported a terminal failure, or status could not be queried.
type PollFailed struct {
	LastStatus string
	CAError    string
	Err        error
}

func (e *PollFailed) Error() string {
	switch {
	case e.Err != nil && e.LastStatus != "":
		return fmt.Sprintf("certificate request failed (last status: %s): %v", e.LastStatus, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("certificate request failed: %v", e.Err)
	case e.CAError != "":
		return fmt.Sprintf("certificate request failed with status %s: %s", e.LastStatus, e.CAError)
	default:
		return fmt.Sprintf("certificate request failed with status %s", e.LastStatus)
	}
}

func (e *PollFailed) Unwrap() error { return e.Err }

// StatusQuerier is the part of getcert.Client the poller needs.
type StatusQuerier interface {
	Status(ctx context.Context, h getcert.RequestHandle) (getcert.StatusReport, error)
}

// Observer is notified after every status query.
type Observer interface {
	PollAttempt(state getcert.State)
}

var errStillPending = errors.New("still pending")

// Poller waits for a submitted request to reach a terminal state.
type Poller struct {
	client   StatusQuerier
	log      iface.Logger
	observer Observer
}

// New creates a poller. observer may be nil.
func New(client StatusQuerier, logger iface.Logger, observer Observer) *Poller {
	return &Poller{client: client, log: logger, observer: observer}
}

// AwaitIssuance polls until the request is issued, fails, or maxAttempts queries were made.
//
// The delay before attempt n+1 is baseDelay*n. Polling stops at the first issued status.
//
// Returns:
//   - confirmed material on issuance (no bytes for nss)
//   - *PollFailed on a terminal daemon state or a status query error
//   - *PollTimeout when every attempt saw a pending state
//   - the context error when ctx ends first
func (p *Poller) AwaitIssuance(ctx context.Context, h getcert.RequestHandle, maxAttempts int, baseDelay time.Duration) (*store.IssuedMaterial, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		attempts int
		last     getcert.StatusReport
		material *store.IssuedMaterial
	)

	operation := func() error {
		attempts++
		report, err := p.client.Status(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return backoff.Permanent(&PollFailed{LastStatus: last.Status, Err: err})
		}
		last = report
		state := report.State()
		if p.observer != nil {
			p.observer.PollAttempt(state)
		}

		switch state {
		case getcert.Issued:
			m, err := h.Store.Collect()
			if errors.Is(err, store.ErrMaterialIncomplete) {
				// The daemon may report issuance a moment before the staged files are complete.
				p.log.Debug("Status %s but material not readable yet: %v", report.Status, err)
				return errStillPending
			}
			if err != nil {
				return backoff.Permanent(&PollFailed{LastStatus: report.Status, Err: err})
			}
			material = m
			return nil
		case getcert.Failed:
			return backoff.Permanent(&PollFailed{LastStatus: report.Status, CAError: report.CAError})
		default:
			return errStillPending
		}
	}

	b := backoff.WithContext(NewLinearBackOff(baseDelay, maxAttempts-1), ctx)
	notify := func(_ error, next time.Duration) {
		status := last.Status
		if !last.Found {
			status = "not tracked yet"
		}
		p.log.Debug("Attempt %d/%d for %s: %s, next check in %s", attempts, maxAttempts, h.Store.Spec().Principal(), status, next)
	}

	err := backoff.RetryNotify(operation, b, notify)
	switch {
	case err == nil:
		p.log.Debug("Certificate for %s issued after %d attempt(s)", h.Store.Spec().Principal(), attempts)
		return material, nil
	case errors.Is(err, errStillPending):
		return nil, &PollTimeout{Attempts: attempts, LastStatus: last.Status}
	default:
		return nil, err
	}
}
