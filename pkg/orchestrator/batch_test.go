package orchestrator_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/guard"
	"github.com/Layr-Labs/certreq/pkg/orchestrator"
	"github.com/Layr-Labs/certreq/pkg/spec"
	"github.com/Layr-Labs/certreq/pkg/testutils"
)

// routedGetcert gives every nss nickname its own fake daemon entry.
type routedGetcert struct {
	byNickname map[string]*testutils.FakeGetcert
	byID       map[string]*testutils.FakeGetcert
}

func newRoutedGetcert(statuses map[string][]string) *routedGetcert {
	r := &routedGetcert{
		byNickname: map[string]*testutils.FakeGetcert{},
		byID:       map[string]*testutils.FakeGetcert{},
	}
	for nickname, st := range statuses {
		f := testutils.NewFakeGetcert(st...)
		f.RequestID = "id-" + nickname
		r.byNickname[nickname] = f
		r.byID[f.RequestID] = f
	}
	return r
}

func (r *routedGetcert) Run(ctx context.Context, name string, args ...string) (getcert.Result, error) {
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "-n":
			if f, ok := r.byNickname[args[i+1]]; ok {
				return f.Run(ctx, name, args...)
			}
		case "-i":
			if f, ok := r.byID[args[i+1]]; ok {
				return f.Run(ctx, name, args...)
			}
		}
	}
	return getcert.Result{ExitCode: 1, Stderr: fmt.Sprintf("no route for %v", args)}, nil
}

func TestRunAll(t *testing.T) {
	router := newRoutedGetcert(map[string][]string{
		"one":   {"SUBMITTING", "MONITORING"},
		"two":   {"CA_REJECTED"},
		"three": {"CA_UNREACHABLE"},
		"four":  {"MONITORING"},
	})
	h := newHarness(t, router, 3)
	basedir := t.TempDir()

	var specs []spec.CertificateRequestSpec
	for _, nick := range []string{"one", "two", "three", "four"} {
		p := testutils.NSSParams(t, basedir, "HTTP/"+nick+".example.com")
		p.Nickname = nick
		specs = append(specs, testutils.MustSpec(t, p))
	}

	outcomes := h.orch.RunAll(context.Background(), specs, 2)
	require.Len(t, outcomes, 4)

	assert.Equal(t, orchestrator.Success, outcomes[0].Status)
	assert.Equal(t, orchestrator.Failed, outcomes[1].Status)
	assert.Equal(t, orchestrator.TimedOut, outcomes[2].Status)
	assert.Equal(t, orchestrator.Success, outcomes[3].Status)
	for i, s := range specs {
		assert.Equal(t, s.Principal(), outcomes[i].Spec.Principal(), "outcomes keep input order")
	}

	for nick, f := range router.byNickname {
		assert.Equal(t, 1, f.Count("request"), nick)
	}

	records, err := guard.New().List(specs[0].MarkerDir())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "HTTP/four.example.com", records[0].Principal)
	assert.Equal(t, "HTTP/one.example.com", records[1].Principal)
}

func TestInspect(t *testing.T) {
	fake := testutils.NewFakeGetcert("MONITORING")
	h := newHarness(t, fake, 5)
	s := testutils.MustSpec(t, testutils.NSSParams(t, t.TempDir(), "HTTP/www.example.com"))

	before, err := h.orch.Inspect(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, before.Requested)
	assert.False(t, before.Report.Found)
	assert.Equal(t, getcert.Pending, before.State)

	require.NoError(t, h.orch.Run(context.Background(), s).Err)

	after, err := h.orch.Inspect(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, after.Requested)
	require.NotNil(t, after.Record)
	assert.Equal(t, fake.RequestID, after.Record.RequestID)
	assert.Equal(t, getcert.Issued, after.State)

	last := fake.Calls()[len(fake.Calls())-1]
	assert.Equal(t, []string{"list", "-i", fake.RequestID}, last)
	assert.Equal(t, 1, fake.Count("request"), "inspect never submits")
}

func TestResync(t *testing.T) {
	fake := testutils.NewFakeGetcert("MONITORING")
	h := newHarness(t, fake, 5)
	s := testutils.MustSpec(t, testutils.FilePairParams(t.TempDir(), "HTTP/h.example.com"))

	require.NoError(t, h.orch.Run(context.Background(), s).Err)

	unchanged := h.orch.Resync(context.Background(), s)
	require.NoError(t, unchanged.Err)
	assert.Equal(t, orchestrator.AlreadySatisfied, unchanged.Status)

	// the daemon renewed the certificate in the staging area
	keyPEM, certPEM := testutils.WriteStaged(t, s)

	renewed := h.orch.Resync(context.Background(), s)
	require.NoError(t, renewed.Err)
	assert.Equal(t, orchestrator.Success, renewed.Status)

	gotKey, err := os.ReadFile(s.KeyPath())
	require.NoError(t, err)
	assert.Equal(t, keyPEM, gotKey)
	gotCert, err := os.ReadFile(s.CertPath())
	require.NoError(t, err)
	assert.Equal(t, certPEM, gotCert)
	info, err := os.Stat(s.KeyPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0440), info.Mode().Perm())

	assert.Equal(t, 1, fake.Count("request"))
}

func TestResync_Errors(t *testing.T) {
	fake := testutils.NewFakeGetcert("MONITORING")
	h := newHarness(t, fake, 5)

	nss := testutils.MustSpec(t, testutils.NSSParams(t, t.TempDir(), "HTTP/www.example.com"))
	out := h.orch.Resync(context.Background(), nss)
	assert.ErrorIs(t, out.Err, orchestrator.ErrInvalidSpec)

	fp := testutils.MustSpec(t, testutils.FilePairParams(t.TempDir(), "HTTP/h.example.com"))
	out = h.orch.Resync(context.Background(), fp)
	assert.ErrorIs(t, out.Err, guard.ErrNotRequested)
	assert.Empty(t, fake.Calls())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, orchestrator.IsRetryable(nil))
	assert.True(t, orchestrator.IsRetryable(&orchestrator.PollTimeout{Attempts: 5}))
	assert.True(t, orchestrator.IsRetryable(fmt.Errorf("wrapped: %w", orchestrator.ErrInProgress)))
	assert.False(t, orchestrator.IsRetryable(&orchestrator.PollFailed{LastStatus: "CA_REJECTED"}))
	assert.False(t, orchestrator.IsRetryable(orchestrator.ErrStoreUnavailable))
}
