package output

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/guard"
	"github.com/Layr-Labs/certreq/pkg/orchestrator"
)

func init() {
	color.NoColor = true
}

func TestPrintOutcomes(t *testing.T) {
	var buf bytes.Buffer
	PrintOutcomes(&buf, []orchestrator.RequestOutcome{
		{Status: orchestrator.Failed, Err: errors.New("invalid request spec: principal is required")},
		{Status: orchestrator.TimedOut, RequestID: "42", Err: &orchestrator.PollTimeout{Attempts: 5, LastStatus: "CA_UNREACHABLE"}},
		{Status: orchestrator.Success, RequestID: "43", Resumed: true},
	})

	out := buf.String()
	assert.Contains(t, out, "PRINCIPAL")
	assert.Contains(t, out, "principal is required")
	assert.Contains(t, out, "timed out")
	assert.Contains(t, out, "CA_UNREACHABLE")
	assert.Contains(t, out, "resumed tracked request")
}

func TestPrintInspection(t *testing.T) {
	var buf bytes.Buffer
	PrintInspection(&buf, "HTTP/www.example.com", orchestrator.Inspection{})
	assert.Contains(t, buf.String(), "Requested:  no")
	assert.Contains(t, buf.String(), "not tracked")

	buf.Reset()
	submitted := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	PrintInspection(&buf, "HTTP/www.example.com", orchestrator.Inspection{
		Requested: true,
		Record:    &guard.RequestRecord{SubmittedAt: submitted},
		Report: getcert.StatusReport{
			Found: true, RequestID: "42", Status: "CA_REJECTED", Stuck: true, CAError: "denied",
		},
		State: getcert.Failed,
	})
	out := buf.String()
	assert.Contains(t, out, "Requested:  yes (2026-10-18T12:00:00Z)")
	assert.Contains(t, out, "Status:     CA_REJECTED (failed)")
	assert.Contains(t, out, "Stuck:      yes")
	assert.Contains(t, out, "CA error:   denied")
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	PrintRecords(&buf, []guard.RequestRecord{
		{NormalizedID: "HTTP_a", Principal: "HTTP/a", Kind: "nss", RequestID: "1"},
		{NormalizedID: "legacy"},
	})
	out := buf.String()
	assert.Contains(t, out, "HTTP_a")
	assert.Contains(t, out, "HTTP/a")
	assert.Contains(t, out, "legacy")
}
