package getcert

import (
	"bufio"
	"strings"
)

// State is the classification of a daemon status.
type State int

const (
	Pending State = iota
	Issued
	Failed
)

func (s State) String() string {
	switch s {
	case Issued:
		return "issued"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Daemon states that end a request successfully.
var issuedStatuses = map[string]struct{}{
	"MONITORING":      {},
	"POST_SAVED_CERT": {},
}

// Daemon states that need an operator before the request can progress.
var failedStatuses = map[string]struct{}{
	"CA_REJECTED":             {},
	"CA_UNCONFIGURED":         {},
	"NEED_GUIDANCE":           {},
	"NEED_CA":                 {},
	"NEED_KEY_GEN_PERMS":      {},
	"NEED_KEY_GEN_PIN":        {},
	"NEED_KEY_GEN_TOKEN":      {},
	"NEED_KEYINFO_READ_PIN":   {},
	"NEED_KEYINFO_READ_TOKEN": {},
	"NEED_CSR_GEN_PIN":        {},
	"NEED_CSR_GEN_TOKEN":      {},
}

// Classify maps a daemon status to a State. Unknown and transitional statuses are Pending;
// CA_UNREACHABLE is also Pending because the daemon retries it on its own.
func Classify(status string, stuck bool) State {
	status = strings.ToUpper(strings.TrimSpace(status))
	if _, ok := issuedStatuses[status]; ok {
		return Issued
	}
	if _, ok := failedStatuses[status]; ok {
		return Failed
	}
	if stuck {
		return Failed
	}
	return Pending
}

// StatusReport is one tracked request as printed by ipa-getcert list.
type StatusReport struct {
	Found     bool
	RequestID string
	Status    string
	Stuck     bool
	CAError   string
	Subject   string
	Expires   string
}

// State classifies the report. A request the daemon does not list yet is Pending.
func (r StatusReport) State() State {
	if !r.Found {
		return Pending
	}
	return Classify(r.Status, r.Stuck)
}

// ParseList reads the first request block of ipa-getcert list output.
func ParseList(out string) StatusReport {
	var r StatusReport
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "Request ID ") {
			if r.Found {
				// only the first block is of interest
				break
			}
			r.Found = true
			r.RequestID = strings.Trim(strings.TrimPrefix(trimmed, "Request ID "), "':")
			continue
		}
		if !r.Found {
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "status":
			r.Status = value
		case "stuck":
			r.Stuck = strings.EqualFold(value, "yes")
		case "ca-error":
			r.CAError = value
		case "subject":
			r.Subject = value
		case "expires":
			r.Expires = value
		}
	}
	return r
}
