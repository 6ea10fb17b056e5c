package common

const (
	// EnvFile is loaded from the working directory before any command runs
	EnvFile = ".env"

	// KeyringServiceName namespaces NSS database PINs in the OS keyring
	KeyringServiceName = "certreq"

	// Environment variable prefix for every flag
	EnvPrefix = "CERTREQ_"

	// Exit codes. ExitTempFail follows sysexits EX_TEMPFAIL so cron wrappers can retry.
	ExitOK       = 0
	ExitFailure  = 1
	ExitTempFail = 75
)
