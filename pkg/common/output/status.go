package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/guard"
	"github.com/Layr-Labs/certreq/pkg/orchestrator"
)

// StateColor renders a classified daemon state.
func StateColor(state getcert.State) string {
	switch state {
	case getcert.Issued:
		return color.GreenString(state.String())
	case getcert.Failed:
		return color.RedString(state.String())
	default:
		return color.YellowString(state.String())
	}
}

// OutcomeColor renders a run status.
func OutcomeColor(status orchestrator.Status) string {
	label := strings.ReplaceAll(string(status), "_", " ")
	switch status {
	case orchestrator.Success, orchestrator.AlreadySatisfied:
		return color.GreenString(label)
	case orchestrator.InProgress, orchestrator.TimedOut:
		return color.YellowString(label)
	default:
		return color.RedString(label)
	}
}

// PrintOutcomes writes one line per outcome.
func PrintOutcomes(w io.Writer, outcomes []orchestrator.RequestOutcome) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRINCIPAL\tRESULT\tREQUEST ID\tDETAIL")
	for _, o := range outcomes {
		principal := o.Spec.Principal()
		if principal == "" {
			principal = "-"
		}
		detail := ""
		if o.Err != nil {
			detail = o.Err.Error()
		} else if o.Resumed {
			detail = "resumed tracked request"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", principal, OutcomeColor(o.Status), dash(o.RequestID), detail)
	}
	_ = tw.Flush()
}

// PrintInspection writes the status command view.
func PrintInspection(w io.Writer, principal string, in orchestrator.Inspection) {
	fmt.Fprintf(w, "Principal:  %s\n", principal)
	if in.Requested {
		when := "unknown"
		if in.Record != nil && !in.Record.SubmittedAt.IsZero() {
			when = in.Record.SubmittedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "Requested:  yes (%s)\n", when)
	} else {
		fmt.Fprintln(w, "Requested:  no")
	}
	if !in.Report.Found {
		fmt.Fprintln(w, "Daemon:     not tracked")
		return
	}
	fmt.Fprintf(w, "Request ID: %s\n", in.Report.RequestID)
	fmt.Fprintf(w, "Status:     %s (%s)\n", in.Report.Status, StateColor(in.State))
	if in.Report.Stuck {
		fmt.Fprintln(w, "Stuck:      "+color.RedString("yes"))
	}
	if in.Report.Subject != "" {
		fmt.Fprintf(w, "Subject:    %s\n", in.Report.Subject)
	}
	if in.Report.Expires != "" {
		fmt.Fprintf(w, "Expires:    %s\n", in.Report.Expires)
	}
	if in.Report.CAError != "" {
		fmt.Fprintf(w, "CA error:   %s\n", color.RedString(in.Report.CAError))
	}
}

// PrintRecords writes the list command view.
func PrintRecords(w io.Writer, records []guard.RequestRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MARKER\tPRINCIPAL\tSECLIB\tREQUEST ID\tSUBMITTED")
	for _, r := range records {
		submitted := "-"
		if !r.SubmittedAt.IsZero() {
			submitted = r.SubmittedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.NormalizedID, dash(r.Principal), dash(r.Kind), dash(r.RequestID), submitted)
	}
	_ = tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
