package common

import (
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/orchestrator"
	"github.com/Layr-Labs/certreq/pkg/poller"
	"github.com/Layr-Labs/certreq/pkg/spec"
)

func envVars(name string) []string {
	return []string{EnvPrefix + name}
}

// Request spec flags. Names follow the ipa-getcert parameter vocabulary (dbname, seclib, principal...).
var (
	PrincipalFlag = &cli.StringFlag{
		Name:    "principal",
		Usage:   "Kerberos principal the certificate is issued for (e.g. HTTP/host.example.com)",
		EnvVars: envVars("PRINCIPAL"),
	}

	SeclibFlag = &cli.StringFlag{
		Name:    "seclib",
		Aliases: []string{"kind"},
		Usage:   "Backing store: nss or openssl (key/cert file pair)",
		Value:   string(spec.NssStore),
		EnvVars: envVars("SECLIB"),
	}

	DBNameFlag = &cli.StringFlag{
		Name:    "dbname",
		Usage:   "NSS database directory name under basedir",
		EnvVars: envVars("DBNAME"),
	}

	NicknameFlag = &cli.StringFlag{
		Name:    "nickname",
		Usage:   "Certificate nickname inside the NSS database",
		EnvVars: envVars("NICKNAME"),
	}

	KeyFlag = &cli.StringFlag{
		Name:    "key",
		Usage:   "Final private key path (file pair store)",
		EnvVars: envVars("KEY"),
	}

	CertFlag = &cli.StringFlag{
		Name:    "cert",
		Usage:   "Final certificate path (file pair store)",
		EnvVars: envVars("CERT"),
	}

	BasedirFlag = &cli.StringFlag{
		Name:    "basedir",
		Usage:   "Directory holding NSS databases and request markers",
		Value:   spec.DefaultBasedir,
		EnvVars: envVars("BASEDIR"),
	}

	SubjectFlag = &cli.StringFlag{
		Name:    "subject",
		Usage:   "Subject common name override",
		EnvVars: envVars("SUBJECT"),
	}

	HostnameFlag = &cli.StringFlag{
		Name:    "hostname",
		Usage:   "DNS name added to the request",
		EnvVars: envVars("HOSTNAME"),
	}

	PasswordFileFlag = &cli.StringFlag{
		Name:    "password-file",
		Usage:   "NSS database password file (defaults to <basedir>/<dbname>/pwdfile.txt)",
		EnvVars: envVars("PASSWORD_FILE"),
	}

	PostSaveFlag = &cli.StringFlag{
		Name:    "post-save",
		Usage:   "Command certmonger runs after saving a new or renewed certificate (ipa-getcert -C)",
		EnvVars: envVars("POST_SAVE"),
	}

	OwnerIDFlag = &cli.IntFlag{
		Name:    "owner-id",
		Usage:   "Numeric owner of the semaphore and materialized files",
		EnvVars: envVars("OWNER_ID"),
	}

	GroupIDFlag = &cli.IntFlag{
		Name:    "group-id",
		Usage:   "Numeric group of the semaphore and materialized files",
		EnvVars: envVars("GROUP_ID"),
	}
)

// SpecFlags select one request.
var SpecFlags = []cli.Flag{
	PrincipalFlag,
	SeclibFlag,
	DBNameFlag,
	NicknameFlag,
	KeyFlag,
	CertFlag,
	BasedirFlag,
	SubjectFlag,
	HostnameFlag,
	PasswordFileFlag,
	PostSaveFlag,
	OwnerIDFlag,
	GroupIDFlag,
}

// Pipeline flags.
var (
	ManifestFlag = &cli.StringFlag{
		Name:    "manifest",
		Aliases: []string{"f"},
		Usage:   "YAML manifest listing several requests (replaces the single-request flags)",
		EnvVars: envVars("MANIFEST"),
	}

	MaxAttemptsFlag = &cli.IntFlag{
		Name:    "max-attempts",
		Usage:   "Status queries before giving up with a retryable timeout",
		Value:   poller.DefaultMaxAttempts,
		EnvVars: envVars("MAX_ATTEMPTS"),
	}

	BaseDelayFlag = &cli.DurationFlag{
		Name:    "base-delay",
		Usage:   "Delay unit between status queries; the nth wait is n times this",
		Value:   poller.DefaultBaseDelay,
		EnvVars: envVars("BASE_DELAY"),
	}

	CommandTimeoutFlag = &cli.DurationFlag{
		Name:    "command-timeout",
		Usage:   "Timeout for each ipa-getcert invocation",
		Value:   getcert.DefaultCommandTimeout,
		EnvVars: envVars("COMMAND_TIMEOUT"),
	}

	GetcertBinaryFlag = &cli.StringFlag{
		Name:    "getcert",
		Usage:   "Path to the ipa-getcert binary",
		Value:   getcert.DefaultBinary,
		EnvVars: envVars("GETCERT"),
	}

	IPAConfigFlag = &cli.StringFlag{
		Name:    "ipa-config",
		Usage:   "File whose presence shows the host is enrolled; empty skips the check",
		Value:   orchestrator.DefaultIPAConfigPath,
		EnvVars: envVars("IPA_CONFIG"),
	}

	ParallelismFlag = &cli.IntFlag{
		Name:    "parallelism",
		Usage:   "Requests processed concurrently from a manifest",
		Value:   orchestrator.DefaultParallelism,
		EnvVars: envVars("PARALLELISM"),
	}

	PinFromKeyringFlag = &cli.BoolFlag{
		Name:    "pin-from-keyring",
		Usage:   "Use the PIN stored with 'certreq pin set'; it reaches certmonger as <basedir>/<dbname>/certreq-pin.txt (0600)",
		EnvVars: envVars("PIN_FROM_KEYRING"),
	}

	AutoResyncFlag = &cli.BoolFlag{
		Name:    "auto-resync",
		Usage:   "Have certmonger run 'certreq resync' after each renewal of a file pair certificate",
		EnvVars: envVars("AUTO_RESYNC"),
	}

	YesFlag = &cli.BoolFlag{
		Name:  "yes",
		Usage: "Skip confirmation prompts (for automation)",
	}
)

// PipelineFlags tune how requests are executed.
var PipelineFlags = []cli.Flag{
	ManifestFlag,
	MaxAttemptsFlag,
	BaseDelayFlag,
	CommandTimeoutFlag,
	GetcertBinaryFlag,
	IPAConfigFlag,
	ParallelismFlag,
	PinFromKeyringFlag,
	AutoResyncFlag,
}

// GlobalFlags defines flags that apply to the entire application (global flags).
var GlobalFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable verbose logging",
	},
	&cli.StringFlag{
		Name:    "metrics-textfile",
		Usage:   "Write run metrics in Prometheus text format to this file",
		EnvVars: envVars("METRICS_TEXTFILE"),
	},
}

// CloneFlags returns shallow copies of flags. Applying a flag from its env var writes the value
// and the set state into the flag itself, so apps built more than once in a process need copies.
func CloneFlags(flags ...cli.Flag) []cli.Flag {
	out := make([]cli.Flag, 0, len(flags))
	for _, f := range flags {
		switch f := f.(type) {
		case *cli.StringFlag:
			c := *f
			out = append(out, &c)
		case *cli.IntFlag:
			c := *f
			out = append(out, &c)
		case *cli.DurationFlag:
			c := *f
			out = append(out, &c)
		case *cli.BoolFlag:
			c := *f
			out = append(out, &c)
		default:
			out = append(out, f)
		}
	}
	return out
}
