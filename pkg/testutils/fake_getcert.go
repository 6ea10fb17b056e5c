package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Layr-Labs/certreq/pkg/getcert"
)

const untrackedListOutput = "Number of certificates and requests being tracked: 0.\n"

// FakeGetcert stands in for ipa-getcert. Before a request is submitted, list reports nothing
// tracked. Afterwards each list call returns the next entry of Statuses, repeating the last one.
// When a returned status is an issued one and the request named a key and certificate file,
// freshly generated PEM material is written there as the daemon would.
type FakeGetcert struct {
	RequestID string
	Statuses  []string
	Stuck     bool
	CAError   string

	// RequestResult replaces the accepted response of "request" when set.
	RequestResult *getcert.Result
	// Tracked makes list report the request before anything was submitted.
	Tracked bool
	// BlockList makes list wait for its context to end.
	BlockList bool
	// SkipMaterial suppresses writing staged files on issuance.
	SkipMaterial bool

	mu          sync.Mutex
	calls       [][]string
	listed      int
	keyPath     string
	certPath    string
	wroteStaged bool
}

func NewFakeGetcert(statuses ...string) *FakeGetcert {
	return &FakeGetcert{RequestID: "20261018120000", Statuses: statuses}
}

func (f *FakeGetcert) Run(ctx context.Context, name string, args ...string) (getcert.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{}, args...))
	f.mu.Unlock()

	if len(args) == 0 {
		return getcert.Result{ExitCode: 2, Stderr: "usage"}, nil
	}

	switch args[0] {
	case "request":
		return f.request(args[1:])
	case "list":
		if f.BlockList {
			<-ctx.Done()
			return getcert.Result{}, ctx.Err()
		}
		return f.list()
	default:
		return getcert.Result{ExitCode: 2, Stderr: fmt.Sprintf("unknown command %s", args[0])}, nil
	}
}

func (f *FakeGetcert) request(args []string) (getcert.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RequestResult != nil {
		return *f.RequestResult, nil
	}
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "-k":
			f.keyPath = args[i+1]
		case "-f":
			f.certPath = args[i+1]
		}
	}
	f.Tracked = true
	return getcert.Result{Stdout: fmt.Sprintf("New signing request \"%s\" added.\n", f.RequestID)}, nil
}

func (f *FakeGetcert) list() (getcert.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.Tracked {
		return getcert.Result{Stdout: untrackedListOutput}, nil
	}
	status := "SUBMITTING"
	if len(f.Statuses) > 0 {
		status = f.Statuses[min(f.listed, len(f.Statuses)-1)]
	}
	f.listed++

	if getcert.Classify(status, f.Stuck) == getcert.Issued && !f.SkipMaterial && !f.wroteStaged && f.keyPath != "" {
		if err := f.writeStaged(); err != nil {
			return getcert.Result{ExitCode: 1, Stderr: err.Error()}, nil
		}
		f.wroteStaged = true
	}
	return getcert.Result{Stdout: ListOutput(f.RequestID, status, f.Stuck, f.CAError)}, nil
}

func (f *FakeGetcert) writeStaged() error {
	keyPEM, certPEM, err := generatePEMPair("fake.example.com")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.keyPath), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(f.keyPath, keyPEM, 0600); err != nil {
		return err
	}
	return os.WriteFile(f.certPath, certPEM, 0644)
}

// Count returns how many times the subcommand ran.
func (f *FakeGetcert) Count(subcommand string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) > 0 && c[0] == subcommand {
			n++
		}
	}
	return n
}

// Calls returns every invocation's arguments.
func (f *FakeGetcert) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// LastRequest returns the arguments of the most recent request invocation.
func (f *FakeGetcert) LastRequest() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if len(f.calls[i]) > 0 && f.calls[i][0] == "request" {
			return f.calls[i]
		}
	}
	return nil
}

// ListOutput renders one tracked request the way ipa-getcert list prints it.
func ListOutput(id, status string, stuck bool, caError string) string {
	var b strings.Builder
	b.WriteString("Number of certificates and requests being tracked: 1.\n")
	fmt.Fprintf(&b, "Request ID '%s':\n", id)
	fmt.Fprintf(&b, "\tstatus: %s\n", status)
	if caError != "" {
		fmt.Fprintf(&b, "\tca-error: %s\n", caError)
	}
	stuckValue := "no"
	if stuck {
		stuckValue = "yes"
	}
	fmt.Fprintf(&b, "\tstuck: %s\n", stuckValue)
	b.WriteString("\tkey pair storage: type=NSSDB,location='/etc/pki/alias',nickname='Server-Cert'\n")
	b.WriteString("\tCA: IPA\n")
	b.WriteString("\tissuer: CN=Certificate Authority,O=EXAMPLE.COM\n")
	b.WriteString("\tsubject: CN=www.example.com,O=EXAMPLE.COM\n")
	b.WriteString("\texpires: 2028-10-18 12:00:00 UTC\n")
	b.WriteString("\ttrack: yes\n")
	b.WriteString("\tauto-renew: yes\n")
	return b.String()
}
