package getcert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/Layr-Labs/certreq/pkg/common/iface"
	"github.com/Layr-Labs/certreq/pkg/materialize"
	"github.com/Layr-Labs/certreq/pkg/spec"
	"github.com/Layr-Labs/certreq/pkg/store"
)

const (
	DefaultBinary         = "ipa-getcert"
	DefaultCommandTimeout = 30 * time.Second
)

var requestIDPattern = regexp.MustCompile(`New signing request "([^"]+)" added`)

// PinSource looks up an NSS database PIN. An empty PIN with a nil error means none is stored.
type PinSource interface {
	PIN(dbPath string) (string, error)
}

// RequestHandle identifies a submitted request.
type RequestHandle struct {
	ID          string // daemon tracking id, empty if it was not printed
	Store       store.Handle
	SubmittedAt time.Time
}

// Config for Client.
type Config struct {
	Binary         string
	CommandTimeout time.Duration
}

// Client speaks the ipa-getcert request/list protocol.
type Client struct {
	runner Runner
	cfg    Config
	pins   PinSource
	log    iface.Logger
	clock  func() time.Time
}

// NewClient creates a client. pins may be nil.
func NewClient(runner Runner, cfg Config, pins PinSource, logger iface.Logger) *Client {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	return &Client{
		runner: runner,
		cfg:    cfg,
		pins:   pins,
		log:    logger,
		clock:  time.Now,
	}
}

// SetClock sets the time provider (mainly for testing)
func (c *Client) SetClock(clock func() time.Time) {
	c.clock = clock
}

// RequestArgs builds the full argument list for ipa-getcert request.
func RequestArgs(h store.Handle, pinFile string) []string {
	s := h.Spec()
	args := append([]string{"request"}, h.RequestArgs(pinFile)...)
	args = append(args, "-K", s.Principal())
	if dn := s.SubjectDN(); dn != "" {
		args = append(args, "-N", dn)
	}
	if s.Hostname() != "" {
		args = append(args, "-D", s.Hostname())
	}
	if cmd := s.PostSaveCommand(); cmd != "" {
		args = append(args, "-C", cmd)
	}
	return args
}

// Submit issues exactly one request. Idempotency is the caller's job.
func (c *Client) Submit(ctx context.Context, h store.Handle) (RequestHandle, error) {
	s := h.Spec()

	pinFile, err := c.writePinFile(s)
	if err != nil {
		return RequestHandle{}, &SubmissionError{ExitCode: -1, Err: err}
	}

	c.log.Debug("Submitting certificate request for %s", s.Principal())
	res, err := c.run(ctx, RequestArgs(h, pinFile))
	if err != nil {
		return RequestHandle{}, &SubmissionError{ExitCode: -1, Stderr: res.Stderr, Err: err}
	}
	if res.ExitCode != 0 {
		return RequestHandle{}, &SubmissionError{ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	handle := RequestHandle{Store: h, SubmittedAt: c.clock()}
	if m := requestIDPattern.FindStringSubmatch(res.Stdout); m != nil {
		handle.ID = m[1]
	}
	c.log.Debug("Request for %s accepted (id %q)", s.Principal(), handle.ID)
	return handle, nil
}

// Status queries the daemon once. Requests with a known id are selected by id.
func (c *Client) Status(ctx context.Context, h RequestHandle) (StatusReport, error) {
	args := []string{"list"}
	if h.ID != "" {
		args = append(args, "-i", h.ID)
	} else {
		args = append(args, h.Store.ListArgs()...)
	}

	res, err := c.run(ctx, args)
	if err != nil {
		return StatusReport{}, &ListError{ExitCode: -1, Stderr: res.Stderr, Err: err}
	}
	if res.ExitCode != 0 {
		return StatusReport{}, &ListError{ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return ParseList(res.Stdout), nil
}

// run applies the per-invocation timeout and converts its expiry into ErrCommandTimeout.
func (c *Client) run(ctx context.Context, args []string) (Result, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	res, err := c.runner.Run(cmdCtx, c.cfg.Binary, args...)
	if err != nil && ctx.Err() == nil && errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w: %s %s after %s", ErrCommandTimeout, c.cfg.Binary, args[0], c.cfg.CommandTimeout)
	}
	return res, err
}

// writePinFile writes the keyring PIN for s to its pin file and returns the path, or "" when
// the configured password file applies. The PIN never appears on the command line, where
// any local user could read it from the process list.
func (c *Client) writePinFile(s spec.CertificateRequestSpec) (string, error) {
	if c.pins == nil || s.Kind() != spec.NssStore || s.HasExplicitPasswordFile() {
		return "", nil
	}
	pin, err := c.pins.PIN(s.DBPath())
	if err != nil {
		return "", fmt.Errorf("read nss pin: %w", err)
	}
	if pin == "" {
		return "", nil
	}
	path := store.KeyringPinFile(s)
	if err := materialize.WriteFile(path, []byte(pin), store.PinFileMode, os.Geteuid(), os.Getegid()); err != nil {
		return "", fmt.Errorf("write nss pin file: %w", err)
	}
	return path, nil
}
