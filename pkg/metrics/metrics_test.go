package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/certreq/pkg/getcert"
)

func TestMetrics(t *testing.T) {
	m := New()
	now := time.Unix(1_792_000_000, 0)

	m.ObserveRun("success", "HTTP/a", 2*time.Second, now)
	m.ObserveRun("failed", "HTTP/b", time.Second, now)
	m.ObserveSubmission(nil)
	m.ObserveSubmission(errors.New("rejected"))
	m.PollAttempt(getcert.Pending)
	m.PollAttempt(getcert.Issued)
	m.ObserveCommand("request", nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Submissions.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PollAttempts.WithLabelValues("issued")))
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(m.LastSuccessTS.WithLabelValues("HTTP/a")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LastSuccessTS), "only successful principals get a timestamp")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Commands.WithLabelValues("request", "success")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveRun("success", "HTTP/a", time.Second, time.Now())

	path := filepath.Join(t.TempDir(), "certreq.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `certreq_runs_total{outcome="success"} 1`)
	assert.Contains(t, string(data), "certreq_run_duration_seconds_bucket")
}
