package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"al.essio.dev/pkg/shellescape"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/guard"
	"github.com/Layr-Labs/certreq/pkg/orchestrator"
	"github.com/Layr-Labs/certreq/pkg/spec"
	"github.com/Layr-Labs/certreq/pkg/store"
)

// DefaultRunner executes ipa-getcert. Tests replace it with a scripted runner.
var DefaultRunner getcert.Runner = getcert.ExecRunner{}

// DefaultLayout controls marker directory ownership. Tests running unprivileged replace it.
var DefaultLayout = store.DefaultLayout()

// SpecParamsFromFlags collects the request spec flags.
func SpecParamsFromFlags(cCtx *cli.Context) spec.Params {
	return spec.Params{
		Principal:    cCtx.String(common.PrincipalFlag.Name),
		Kind:         cCtx.String(common.SeclibFlag.Name),
		DBName:       cCtx.String(common.DBNameFlag.Name),
		Nickname:     cCtx.String(common.NicknameFlag.Name),
		Key:          cCtx.String(common.KeyFlag.Name),
		Cert:         cCtx.String(common.CertFlag.Name),
		Basedir:      cCtx.String(common.BasedirFlag.Name),
		Subject:      cCtx.String(common.SubjectFlag.Name),
		Hostname:     cCtx.String(common.HostnameFlag.Name),
		PasswordFile: cCtx.String(common.PasswordFileFlag.Name),
		PostSave:     cCtx.String(common.PostSaveFlag.Name),
		OwnerID:      cCtx.Int(common.OwnerIDFlag.Name),
		GroupID:      cCtx.Int(common.GroupIDFlag.Name),
	}
}

// SpecFromFlags validates the single request described by flags.
func SpecFromFlags(cCtx *cli.Context) (spec.CertificateRequestSpec, error) {
	return spec.New(SpecParamsFromFlags(cCtx))
}

// LoadSpecs returns the requests of this invocation: the manifest when --manifest is set,
// otherwise the single request described by flags. Poll settings from the manifest apply
// unless the matching flag was given explicitly. With --auto-resync, file pair requests get a
// post-save command that runs resync.
func LoadSpecs(cCtx *cli.Context) ([]spec.CertificateRequestSpec, spec.PollSettings, error) {
	settings := PollSettingsFromFlags(cCtx)

	specs, settings, err := loadSpecs(cCtx, settings)
	if err != nil || !cCtx.Bool(common.AutoResyncFlag.Name) {
		return specs, settings, err
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, settings, fmt.Errorf("locate certreq binary for --auto-resync: %w", err)
	}
	return WithResyncHook(specs, exe), settings, nil
}

func loadSpecs(cCtx *cli.Context, settings spec.PollSettings) ([]spec.CertificateRequestSpec, spec.PollSettings, error) {
	path := cCtx.String(common.ManifestFlag.Name)
	if path == "" {
		s, err := SpecFromFlags(cCtx)
		if err != nil {
			return nil, settings, err
		}
		return []spec.CertificateRequestSpec{s}, settings, nil
	}

	if cCtx.IsSet(common.PrincipalFlag.Name) {
		return nil, settings, fmt.Errorf("%w: --manifest and --principal cannot be combined", spec.ErrInvalidSpec)
	}
	manifest, err := spec.LoadManifest(path)
	if err != nil {
		return nil, settings, err
	}
	specs, err := manifest.Specs()
	if err != nil {
		return nil, settings, err
	}

	if !cCtx.IsSet(common.MaxAttemptsFlag.Name) && manifest.Poll.MaxAttempts > 0 {
		settings.MaxAttempts = manifest.Poll.MaxAttempts
	}
	if !cCtx.IsSet(common.BaseDelayFlag.Name) && manifest.Poll.BaseDelay > 0 {
		settings.BaseDelay = manifest.Poll.BaseDelay
	}
	if !cCtx.IsSet(common.CommandTimeoutFlag.Name) && manifest.Poll.CommandTimeout > 0 {
		settings.CommandTimeout = manifest.Poll.CommandTimeout
	}
	if !cCtx.IsSet(common.ParallelismFlag.Name) && manifest.Poll.Parallelism > 0 {
		settings.Parallelism = manifest.Poll.Parallelism
	}
	return specs, settings, nil
}

// WithResyncHook sets a post-save command running `exe resync` for every file pair spec that
// has none, so certmonger renewals of the staged pair reach the final paths.
func WithResyncHook(specs []spec.CertificateRequestSpec, exe string) []spec.CertificateRequestSpec {
	out := make([]spec.CertificateRequestSpec, len(specs))
	for i, s := range specs {
		if s.Kind() == spec.FilePairStore && s.PostSaveCommand() == "" {
			s = s.WithPostSave(ResyncCommandLine(exe, s))
		}
		out[i] = s
	}
	return out
}

// ResyncCommandLine is the shell command re-materializing s, quoted for certmonger's /bin/sh.
func ResyncCommandLine(exe string, s spec.CertificateRequestSpec) string {
	return shellescape.QuoteCommand([]string{
		exe, "resync",
		"--" + common.SeclibFlag.Name, string(s.Kind()),
		"--" + common.PrincipalFlag.Name, s.Principal(),
		"--" + common.KeyFlag.Name, s.KeyPath(),
		"--" + common.CertFlag.Name, s.CertPath(),
		"--" + common.BasedirFlag.Name, s.Basedir(),
		"--" + common.DBNameFlag.Name, s.DBName(),
		"--" + common.OwnerIDFlag.Name, strconv.Itoa(s.OwnerID()),
		"--" + common.GroupIDFlag.Name, strconv.Itoa(s.GroupID()),
	})
}

// PollSettingsFromFlags reads the pipeline tuning flags.
func PollSettingsFromFlags(cCtx *cli.Context) spec.PollSettings {
	return spec.PollSettings{
		MaxAttempts:    cCtx.Int(common.MaxAttemptsFlag.Name),
		BaseDelay:      cCtx.Duration(common.BaseDelayFlag.Name),
		CommandTimeout: cCtx.Duration(common.CommandTimeoutFlag.Name),
		Parallelism:    cCtx.Int(common.ParallelismFlag.Name),
	}
}

// NewOrchestrator wires the ipa-getcert client, guard, metrics and logger for a command.
func NewOrchestrator(cCtx *cli.Context, settings spec.PollSettings) *orchestrator.Orchestrator {
	logger := common.LoggerFromContext(cCtx)

	var pins getcert.PinSource
	if cCtx.Bool(common.PinFromKeyringFlag.Name) {
		pins = common.KeyringPins{}
	}
	client := getcert.NewClient(DefaultRunner, getcert.Config{
		Binary:         cCtx.String(common.GetcertBinaryFlag.Name),
		CommandTimeout: settings.CommandTimeout,
	}, pins, logger)

	opts := orchestrator.Options{
		MaxAttempts:   settings.MaxAttempts,
		BaseDelay:     settings.BaseDelay,
		IPAConfigPath: cCtx.String(common.IPAConfigFlag.Name),
		Layout:        DefaultLayout,
	}
	return orchestrator.New(client, guard.New(), opts, logger, common.MetricsFromContext(cCtx.Context))
}

// ExitError maps outcomes to the process exit status: 0 when every request is satisfied,
// 75 when the only problems are retryable, 1 otherwise.
func ExitError(outcomes []orchestrator.RequestOutcome) error {
	code := common.ExitOK
	var errs []error
	for _, o := range outcomes {
		if o.Err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", principalOf(o), o.Err))
		if o.Retryable() {
			if code == common.ExitOK {
				code = common.ExitTempFail
			}
			continue
		}
		code = common.ExitFailure
	}
	if code == common.ExitOK {
		return nil
	}
	return cli.Exit(errors.Join(errs...).Error(), code)
}

func principalOf(o orchestrator.RequestOutcome) string {
	if p := o.Spec.Principal(); p != "" {
		return p
	}
	return "request"
}
