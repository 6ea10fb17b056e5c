package store

import (
	"os"

	"github.com/Layr-Labs/certreq/pkg/spec"
)

const (
	KeyFileMode  os.FileMode = 0440
	CertFileMode os.FileMode = 0444

	// MarkerDirMode is applied to ${basedir}/${dbname}/requested
	MarkerDirMode os.FileMode = 0600
	// SemaphoreFileMode is applied to each per-principal marker
	SemaphoreFileMode os.FileMode = 0600

	stagingDirMode os.FileMode = 0700
	parentDirMode  os.FileMode = 0755

	StagedKeyFileName  = "key.pem"
	StagedCertFileName = "cert.pem"

	// KeyringPinFileName holds a keyring PIN handed to the daemon, inside the NSS database
	KeyringPinFileName = "certreq-pin.txt"
	// PinFileMode keeps the PIN readable by its owner only
	PinFileMode os.FileMode = 0600
)

// Handle is a prepared backing store for one request.
type Handle interface {
	// Spec returns the request the handle was prepared for
	Spec() spec.CertificateRequestSpec

	// RequestArgs returns the store specific ipa-getcert request flags.
	//
	// A non-empty pinFile replaces the configured password file (nss only).
	RequestArgs(pinFile string) []string

	// ListArgs returns flags that select this request in ipa-getcert list
	ListArgs() []string

	// ClearStale removes leftovers of an interrupted run that would confuse the daemon.
	// Call it only while holding the request lock.
	ClearStale() error

	// Collect reads issued material once the daemon reports issuance.
	//
	// Returns:
	//   - nss: confirmed material with no bytes, the daemon owns the database
	//   - file pair: confirmed material holding the staged key and certificate
	Collect() (*IssuedMaterial, error)
}

// Layout controls ownership and modes of the directories certreq creates.
// Production uses DefaultLayout; tests running unprivileged override the ids and modes.
type Layout struct {
	MarkerDirMode os.FileMode
	RootUID       int
	RootGID       int
}

func DefaultLayout() Layout {
	return Layout{
		MarkerDirMode: MarkerDirMode,
		RootUID:       0,
		RootGID:       0,
	}
}
