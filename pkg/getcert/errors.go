package getcert

import (
	"fmt"
	"strings"
)

// SubmissionError reports a request the daemon did not accept. It is never retried:
// a malformed request stays malformed.
type SubmissionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SubmissionError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	return fmt.Sprintf("certificate request rejected (exit %d): %s", e.ExitCode, msg)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ListError reports a status query that could not be completed.
type ListError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ListError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status query failed: %v", e.Err)
	}
	return fmt.Sprintf("status query failed (exit %d): %s", e.ExitCode, strings.TrimSpace(e.Stderr))
}

func (e *ListError) Unwrap() error { return e.Err }
