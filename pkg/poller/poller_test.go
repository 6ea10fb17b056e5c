package poller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/certreq/pkg/common/logger"
	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/poller"
	"github.com/Layr-Labs/certreq/pkg/spec"
	"github.com/Layr-Labs/certreq/pkg/store"
	"github.com/Layr-Labs/certreq/pkg/testutils"
)

// scriptedStatus returns one report per call, repeating the last.
type scriptedStatus struct {
	mu      sync.Mutex
	reports []getcert.StatusReport
	err     error
	calls   int
	times   []time.Time
}

func (s *scriptedStatus) Status(ctx context.Context, _ getcert.RequestHandle) (getcert.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.times = append(s.times, time.Now())
	if s.err != nil {
		return getcert.StatusReport{}, s.err
	}
	return s.reports[min(s.calls-1, len(s.reports)-1)], nil
}

type countingObserver struct {
	mu     sync.Mutex
	states []getcert.State
}

func (o *countingObserver) PollAttempt(state getcert.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func tracked(status string) getcert.StatusReport {
	return getcert.StatusReport{Found: true, RequestID: "1", Status: status}
}

func nssRequest(t *testing.T) getcert.RequestHandle {
	t.Helper()
	h, err := store.Open(testutils.MustSpec(t, spec.Params{
		Principal: "HTTP/www.example.com", Kind: "nss", DBName: "alias", Nickname: "Server-Cert",
	}))
	require.NoError(t, err)
	return getcert.RequestHandle{ID: "1", Store: h}
}

func TestAwaitIssuance_IssuedOnThirdAttempt(t *testing.T) {
	client := &scriptedStatus{reports: []getcert.StatusReport{
		tracked("SUBMITTING"), tracked("CA_WORKING"), tracked("MONITORING"), tracked("MONITORING"),
	}}
	obs := &countingObserver{}
	p := poller.New(client, logger.NewNoopLogger(), obs)

	base := 10 * time.Millisecond
	start := time.Now()
	m, err := p.AwaitIssuance(context.Background(), nssRequest(t), 5, base)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, m.Confirmed())
	assert.Equal(t, 3, client.calls, "polling stops at the first issued status")
	assert.Equal(t, []getcert.State{getcert.Pending, getcert.Pending, getcert.Issued}, obs.states)
	// waits of 1*base and 2*base
	assert.GreaterOrEqual(t, elapsed, 3*base)
	assert.GreaterOrEqual(t, client.times[2].Sub(client.times[1]), 2*base)
}

func TestAwaitIssuance_Failed(t *testing.T) {
	report := tracked("CA_REJECTED")
	report.CAError = "Insufficient access"
	client := &scriptedStatus{reports: []getcert.StatusReport{tracked("SUBMITTING"), report}}
	p := poller.New(client, logger.NewNoopLogger(), nil)

	_, err := p.AwaitIssuance(context.Background(), nssRequest(t), 5, time.Millisecond)
	var failed *poller.PollFailed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "CA_REJECTED", failed.LastStatus)
	assert.Equal(t, "Insufficient access", failed.CAError)
	assert.Equal(t, 2, client.calls, "a terminal failure stops polling")
}

func TestAwaitIssuance_Stuck(t *testing.T) {
	report := tracked("CA_WORKING")
	report.Stuck = true
	client := &scriptedStatus{reports: []getcert.StatusReport{report}}
	p := poller.New(client, logger.NewNoopLogger(), nil)

	_, err := p.AwaitIssuance(context.Background(), nssRequest(t), 5, time.Millisecond)
	var failed *poller.PollFailed
	assert.ErrorAs(t, err, &failed)
}

func TestAwaitIssuance_Timeout(t *testing.T) {
	client := &scriptedStatus{reports: []getcert.StatusReport{tracked("CA_UNREACHABLE")}}
	p := poller.New(client, logger.NewNoopLogger(), nil)

	_, err := p.AwaitIssuance(context.Background(), nssRequest(t), 4, time.Millisecond)
	var timeout *poller.PollTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 4, timeout.Attempts)
	assert.Equal(t, "CA_UNREACHABLE", timeout.LastStatus)
	assert.Equal(t, 4, client.calls)
}

func TestAwaitIssuance_SingleAttempt(t *testing.T) {
	client := &scriptedStatus{reports: []getcert.StatusReport{{}}}
	p := poller.New(client, logger.NewNoopLogger(), nil)

	_, err := p.AwaitIssuance(context.Background(), nssRequest(t), 0, time.Hour)
	var timeout *poller.PollTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 1, client.calls)
	assert.Contains(t, timeout.Error(), "not tracked yet")
}

func TestAwaitIssuance_StatusError(t *testing.T) {
	client := &scriptedStatus{err: &getcert.ListError{ExitCode: 1, Stderr: "dbus error"}}
	p := poller.New(client, logger.NewNoopLogger(), nil)

	_, err := p.AwaitIssuance(context.Background(), nssRequest(t), 5, time.Millisecond)
	var failed *poller.PollFailed
	require.ErrorAs(t, err, &failed)
	var listErr *getcert.ListError
	assert.ErrorAs(t, err, &listErr)
	assert.Equal(t, 1, client.calls)
}

func TestAwaitIssuance_ContextCancelled(t *testing.T) {
	client := &scriptedStatus{reports: []getcert.StatusReport{tracked("CA_WORKING")}}
	p := poller.New(client, logger.NewNoopLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.AwaitIssuance(ctx, nssRequest(t), 10, time.Second)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), time.Second, "sleeps must honour cancellation")
}

func TestAwaitIssuance_WaitsForCompleteMaterial(t *testing.T) {
	basedir := t.TempDir()
	s := testutils.MustSpec(t, testutils.FilePairParams(basedir, "HTTP/h.example.com"))
	h, err := store.Prepare(s, testutils.TestLayout())
	require.NoError(t, err)

	client := &scriptedStatus{reports: []getcert.StatusReport{tracked("MONITORING")}}
	p := poller.New(client, logger.NewNoopLogger(), nil)

	// issued but nothing staged: stays pending until attempts run out
	_, err = p.AwaitIssuance(context.Background(), getcert.RequestHandle{ID: "1", Store: h}, 2, time.Millisecond)
	var timeout *poller.PollTimeout
	require.ErrorAs(t, err, &timeout)

	keyPEM, certPEM := testutils.WriteStaged(t, s)
	m, err := p.AwaitIssuance(context.Background(), getcert.RequestHandle{ID: "1", Store: h}, 2, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, keyPEM, m.Key)
	assert.Equal(t, certPEM, m.Certificate)
}

func TestLinearBackOff(t *testing.T) {
	b := poller.NewLinearBackOff(time.Second, 3)
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	assert.Equal(t, time.Duration(-1), b.NextBackOff())

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())

	none := poller.NewLinearBackOff(time.Second, 0)
	assert.Equal(t, time.Duration(-1), none.NextBackOff())
}
