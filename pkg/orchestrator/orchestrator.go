package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Layr-Labs/certreq/pkg/common/iface"
	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/guard"
	"github.com/Layr-Labs/certreq/pkg/materialize"
	"github.com/Layr-Labs/certreq/pkg/metrics"
	"github.com/Layr-Labs/certreq/pkg/poller"
	"github.com/Layr-Labs/certreq/pkg/spec"
	"github.com/Layr-Labs/certreq/pkg/store"
)

// DefaultIPAConfigPath exists once the host was enrolled with ipa-client-install.
const DefaultIPAConfigPath = "/etc/ipa/default.conf"

// Client is the ipa-getcert protocol as used by the orchestrator.
type Client interface {
	Submit(ctx context.Context, h store.Handle) (getcert.RequestHandle, error)
	Status(ctx context.Context, h getcert.RequestHandle) (getcert.StatusReport, error)
}

// Guard records which principals were already requested and serializes runs per principal.
type Guard interface {
	AlreadyRequested(s spec.CertificateRequestSpec) (bool, error)
	MarkRequested(s spec.CertificateRequestSpec, rec guard.RequestRecord) error
	Read(s spec.CertificateRequestSpec) (*guard.RequestRecord, error)
	Lock(s spec.CertificateRequestSpec, runID string) (func() error, error)
}

// Options tune a run. Zero values fall back to defaults.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// IPAConfigPath must exist before anything is requested. Empty skips the check.
	IPAConfigPath string

	Layout store.Layout
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:   poller.DefaultMaxAttempts,
		BaseDelay:     poller.DefaultBaseDelay,
		IPAConfigPath: DefaultIPAConfigPath,
		Layout:        store.DefaultLayout(),
	}
}

// Orchestrator sequences validation, idempotency, submission, polling and materialization.
// It holds no per-request state, so one instance can serve concurrent runs.
type Orchestrator struct {
	client  Client
	guard   Guard
	poller  *poller.Poller
	writer  *materialize.Writer
	metrics *metrics.Metrics
	opts    Options
	log     iface.Logger
	clock   func() time.Time
	runID   func() string
}

// New creates an orchestrator. m may be nil.
func New(client Client, g Guard, opts Options, logger iface.Logger, m *metrics.Metrics) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = poller.DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = poller.DefaultBaseDelay
	}
	if opts.Layout.MarkerDirMode == 0 {
		opts.Layout.MarkerDirMode = store.MarkerDirMode
	}

	var observer poller.Observer
	if m != nil {
		observer = m
	}
	return &Orchestrator{
		client:  client,
		guard:   g,
		poller:  poller.New(client, logger, observer),
		writer:  materialize.NewWriter(logger),
		metrics: m,
		opts:    opts,
		log:     logger,
		clock:   time.Now,
		runID:   func() string { return uuid.New().String() },
	}
}

// SetClock sets the time provider (mainly for testing)
func (o *Orchestrator) SetClock(clock func() time.Time) {
	o.clock = clock
}

// RunParams validates p and runs it. Invalid input fails before any side effect.
func (o *Orchestrator) RunParams(ctx context.Context, p spec.Params) RequestOutcome {
	s, err := spec.New(p)
	if err != nil {
		out := RequestOutcome{Status: Failed, Err: err}
		o.observe(out, 0)
		return out
	}
	return o.Run(ctx, s)
}

// Run drives one request to completion.
//
// Sequence: already requested? -> client configured? -> prepare store -> lock -> submit (or
// resume a request the daemon already tracks) -> poll -> materialize (file pair) -> mark.
// A failed or timed out request is never marked, so the next run tries again.
func (o *Orchestrator) Run(ctx context.Context, s spec.CertificateRequestSpec) (out RequestOutcome) {
	start := o.clock()
	out = RequestOutcome{Spec: s}
	defer func() { o.observe(out, o.clock().Sub(start)) }()

	fail := func(err error) RequestOutcome {
		out.Status = Failed
		out.Err = err
		o.log.Error("Request for %s failed: %v", s.Principal(), err)
		return out
	}

	if s.IsZero() {
		return fail(fmt.Errorf("%w: empty spec", ErrInvalidSpec))
	}

	if done, err := o.guard.AlreadyRequested(s); err != nil {
		return fail(err)
	} else if done {
		o.log.Info("Certificate for %s already requested", s.Principal())
		out.Status = AlreadySatisfied
		return out
	}

	if err := o.checkClientConfigured(); err != nil {
		return fail(err)
	}

	h, err := store.Prepare(s, o.opts.Layout)
	if err != nil {
		return fail(err)
	}

	runID := o.runID()
	unlock, err := o.guard.Lock(s, runID)
	if errors.Is(err, ErrInProgress) {
		o.log.Warn("Another run is requesting %s, try again later", s.Principal())
		out.Status = InProgress
		out.Err = err
		return out
	}
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := unlock(); err != nil {
			o.log.Warn("Failed to release lock for %s: %v", s.Principal(), err)
		}
	}()

	// A concurrent run may have finished between the first check and taking the lock.
	if done, err := o.guard.AlreadyRequested(s); err != nil {
		return fail(err)
	} else if done {
		out.Status = AlreadySatisfied
		return out
	}

	if err := h.ClearStale(); err != nil {
		return fail(err)
	}

	rec := guard.RequestRecord{RunID: runID, Status: guard.StatusSubmitted}
	req, resumed, err := o.submitOrResume(ctx, h)
	if err != nil {
		rec.Advance(guard.StatusFailed)
		out.Record = rec
		return fail(err)
	}
	rec.RequestID = req.ID
	rec.SubmittedAt = req.SubmittedAt.UTC()
	out.RequestID = req.ID
	out.Resumed = resumed

	rec.Advance(guard.StatusPolling)
	material, err := o.poller.AwaitIssuance(ctx, req, o.opts.MaxAttempts, o.opts.BaseDelay)
	if err != nil {
		var failed *PollFailed
		if errors.As(err, &failed) {
			rec.Advance(guard.StatusFailed)
		}
		out.Record = rec
		var timeout *PollTimeout
		if errors.As(err, &timeout) {
			out.Status = TimedOut
			out.Err = err
			o.log.Warn("Certificate for %s not issued yet: %v", s.Principal(), err)
			return out
		}
		return fail(err)
	}
	rec.Advance(guard.StatusIssued)
	out.Record = rec

	var placement *materialize.Placement
	if s.Kind() == spec.FilePairStore {
		placement, err = o.writer.Materialize(material, s.KeyPath(), s.CertPath())
		if err != nil {
			return fail(err)
		}
	}
	material.Wipe()

	if err := o.guard.MarkRequested(s, rec); err != nil {
		if errors.Is(err, guard.ErrAlreadyRequested) {
			// another run recorded the same issued certificate first
			o.commit(s, placement)
			out.Status = AlreadySatisfied
			return out
		}
		if placement != nil {
			if rbErr := placement.Rollback(); rbErr != nil {
				o.log.Warn("Failed to roll back materialized files for %s: %v", s.Principal(), rbErr)
			}
		}
		return fail(fmt.Errorf("record request: %w", err))
	}
	o.commit(s, placement)

	o.log.Info("Certificate for %s issued", s.Principal())
	out.Status = Success
	return out
}

// submitOrResume submits a new request unless the daemon already tracks one for this store,
// which happens when a previous run timed out while polling.
func (o *Orchestrator) submitOrResume(ctx context.Context, h store.Handle) (getcert.RequestHandle, bool, error) {
	current := getcert.RequestHandle{Store: h}
	report, err := o.client.Status(ctx, current)
	if err != nil {
		o.log.Debug("Could not check existing tracking for %s: %v", h.Spec().Principal(), err)
	} else if report.Found {
		o.log.Info("Resuming tracked request %s for %s (status %s)", report.RequestID, h.Spec().Principal(), report.Status)
		return getcert.RequestHandle{ID: report.RequestID, Store: h, SubmittedAt: o.clock()}, true, nil
	}

	req, err := o.client.Submit(ctx, h)
	if o.metrics != nil {
		o.metrics.ObserveSubmission(err)
	}
	if err != nil {
		return getcert.RequestHandle{}, false, err
	}
	return req, false, nil
}

func (o *Orchestrator) commit(s spec.CertificateRequestSpec, placement *materialize.Placement) {
	if placement == nil {
		return
	}
	if err := placement.Commit(); err != nil {
		o.log.Warn("Failed to remove backups of replaced files for %s: %v", s.Principal(), err)
	}
}

func (o *Orchestrator) checkClientConfigured() error {
	if o.opts.IPAConfigPath == "" {
		return nil
	}
	if _, err := os.Stat(o.opts.IPAConfigPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s not found", ErrClientNotConfigured, o.opts.IPAConfigPath)
		}
		return fmt.Errorf("%w: %w", ErrClientNotConfigured, err)
	}
	return nil
}

func (o *Orchestrator) observe(out RequestOutcome, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveRun(string(out.Status), out.Spec.Principal(), elapsed, o.clock())
}
