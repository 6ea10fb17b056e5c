package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Layr-Labs/certreq/pkg/getcert"
)

// Metrics are registered on their own registry so a run can dump exactly its own series
// into a node_exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	Commands      *prometheus.CounterVec
	Runs          *prometheus.CounterVec
	Submissions   *prometheus.CounterVec
	PollAttempts  *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	LastSuccessTS *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certreq_commands_total",
			Help: "CLI command invocations by result",
		}, []string{"command", "result"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certreq_runs_total",
			Help: "Orchestrator runs by outcome",
		}, []string{"outcome"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certreq_submissions_total",
			Help: "ipa-getcert request invocations by result",
		}, []string{"result"}),
		PollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certreq_poll_attempts_total",
			Help: "Status queries by classified state",
		}, []string{"state"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "certreq_run_duration_seconds",
			Help:    "Wall time of a single orchestrator run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		LastSuccessTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "certreq_last_success_timestamp_seconds",
			Help: "Unix time of the last successful issuance per principal",
		}, []string{"principal"}),
	}
	m.registry.MustRegister(m.Commands, m.Runs, m.Submissions, m.PollAttempts, m.RunDuration, m.LastSuccessTS)
	return m
}

// Registry exposes the registry, e.g. for tests using testutil.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PollAttempt implements poller.Observer.
func (m *Metrics) PollAttempt(state getcert.State) {
	m.PollAttempts.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) ObserveRun(outcome string, principal string, elapsed time.Duration, now time.Time) {
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	if outcome == "success" {
		m.LastSuccessTS.WithLabelValues(principal).Set(float64(now.Unix()))
	}
}

func (m *Metrics) ObserveCommand(command string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.Commands.WithLabelValues(command, result).Inc()
}

func (m *Metrics) ObserveSubmission(err error) {
	if err != nil {
		m.Submissions.WithLabelValues("error").Inc()
		return
	}
	m.Submissions.WithLabelValues("accepted").Inc()
}

// WriteTextfile writes all series in the Prometheus text format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
