package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/guard"
	"github.com/Layr-Labs/certreq/pkg/spec"
	"github.com/Layr-Labs/certreq/pkg/store"
)

// DefaultParallelism bounds concurrent runs in RunAll.
const DefaultParallelism = 4

// RunAll runs every spec in its own goroutine, at most parallelism at a time.
// One principal failing or waiting does not hold up the others; outcomes keep the input order.
func (o *Orchestrator) RunAll(ctx context.Context, specs []spec.CertificateRequestSpec, parallelism int) []RequestOutcome {
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}
	outcomes := make([]RequestOutcome, len(specs))

	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, s := range specs {
		g.Go(func() error {
			outcomes[i] = o.Run(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Inspection is the read-only view used by the status command.
type Inspection struct {
	Requested bool
	Record    *guard.RequestRecord
	Report    getcert.StatusReport
	State     getcert.State
}

// Inspect reports the semaphore and daemon view of s without changing anything.
func (o *Orchestrator) Inspect(ctx context.Context, s spec.CertificateRequestSpec) (Inspection, error) {
	var in Inspection
	requested, err := o.guard.AlreadyRequested(s)
	if err != nil {
		return in, err
	}
	in.Requested = requested
	if requested {
		if rec, err := o.guard.Read(s); err == nil {
			in.Record = rec
		}
	}

	h, err := store.Open(s)
	if err != nil {
		return in, err
	}
	req := getcert.RequestHandle{Store: h}
	if in.Record != nil {
		req.ID = in.Record.RequestID
	}
	report, err := o.client.Status(ctx, req)
	if err != nil {
		return in, err
	}
	in.Report = report
	in.State = report.State()
	return in, nil
}

// Resync re-materializes a file pair request whose staged material the daemon renewed.
// Unchanged material yields AlreadySatisfied.
func (o *Orchestrator) Resync(ctx context.Context, s spec.CertificateRequestSpec) (out RequestOutcome) {
	start := o.clock()
	out = RequestOutcome{Spec: s}
	defer func() { o.observe(out, o.clock().Sub(start)) }()

	fail := func(err error) RequestOutcome {
		out.Status = Failed
		out.Err = err
		o.log.Error("Resync for %s failed: %v", s.Principal(), err)
		return out
	}

	if s.Kind() != spec.FilePairStore {
		return fail(fmt.Errorf("%w: resync only applies to the file pair store", ErrInvalidSpec))
	}
	rec, err := o.guard.Read(s)
	if err != nil {
		return fail(err)
	}
	out.Record = *rec
	out.RequestID = rec.RequestID

	unlock, err := o.guard.Lock(s, o.runID())
	if errors.Is(err, ErrInProgress) {
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

	h, err := store.Open(s)
	if err != nil {
		return fail(err)
	}
	material, err := o.poller.AwaitIssuance(ctx, getcert.RequestHandle{ID: rec.RequestID, Store: h}, 1, o.opts.BaseDelay)
	if err != nil {
		var timeout *PollTimeout
		if errors.As(err, &timeout) {
			out.Status = TimedOut
			out.Err = err
			return out
		}
		return fail(err)
	}

	if sameAsOnDisk(material, s) {
		material.Wipe()
		o.log.Info("Certificate for %s is up to date", s.Principal())
		out.Status = AlreadySatisfied
		return out
	}
	placement, err := o.writer.Materialize(material, s.KeyPath(), s.CertPath())
	if err != nil {
		return fail(err)
	}
	o.commit(s, placement)
	o.log.Info("Certificate for %s refreshed from the daemon", s.Principal())
	out.Status = Success
	return out
}

func sameAsOnDisk(m *store.IssuedMaterial, s spec.CertificateRequestSpec) bool {
	key, err := os.ReadFile(s.KeyPath())
	if err != nil {
		return false
	}
	cert, err := os.ReadFile(s.CertPath())
	if err != nil {
		return false
	}
	return m.Equal(&store.IssuedMaterial{Key: key, Certificate: cert})
}
