package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Layr-Labs/certreq/pkg/spec"
)

var ErrStoreUnavailable = errors.New("credential store unavailable")

// Prepare readies the backing store for s and returns its handle.
//
// For the file pair store the key and certificate are deliberately not created: an empty key
// file handed to the daemon is read as an existing key and the request wedges in NEED_KEYINFO.
func Prepare(s spec.CertificateRequestSpec, layout Layout) (Handle, error) {
	switch s.Kind() {
	case spec.NssStore:
		return prepareNSS(s, layout)
	case spec.FilePairStore:
		return prepareFilePair(s, layout)
	default:
		return nil, fmt.Errorf("%w: %q", spec.ErrUnsupportedStoreKind, s.Kind())
	}
}

// Open returns the handle for s without touching the filesystem. Read-only commands use it.
func Open(s spec.CertificateRequestSpec) (Handle, error) {
	switch s.Kind() {
	case spec.NssStore:
		return &nssHandle{spec: s}, nil
	case spec.FilePairStore:
		return newFilePairHandle(s), nil
	default:
		return nil, fmt.Errorf("%w: %q", spec.ErrUnsupportedStoreKind, s.Kind())
	}
}

func prepareNSS(s spec.CertificateRequestSpec, layout Layout) (Handle, error) {
	info, err := os.Stat(s.DBPath())
	switch {
	case os.IsNotExist(err):
		return nil, fmt.Errorf("%w: nss database %s does not exist", ErrStoreUnavailable, s.DBPath())
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", ErrStoreUnavailable, s.DBPath())
	}

	if err := ensureDir(s.MarkerDir(), layout.MarkerDirMode, layout.RootUID, layout.RootGID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return &nssHandle{spec: s}, nil
}

func prepareFilePair(s spec.CertificateRequestSpec, layout Layout) (Handle, error) {
	if err := os.MkdirAll(s.DBPath(), parentDirMode); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStoreUnavailable, s.DBPath(), err)
	}
	if err := ensureDir(s.MarkerDir(), layout.MarkerDirMode, layout.RootUID, layout.RootGID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.StagingDir()), stagingDirMode); err != nil {
		return nil, fmt.Errorf("%w: create staging: %w", ErrStoreUnavailable, err)
	}
	if err := ensureDir(s.StagingDir(), stagingDirMode, layout.RootUID, layout.RootGID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	for _, dir := range []string{filepath.Dir(s.KeyPath()), filepath.Dir(s.CertPath())} {
		if err := os.MkdirAll(dir, parentDirMode); err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", ErrStoreUnavailable, dir, err)
		}
	}

	return newFilePairHandle(s), nil
}

// ensureDir creates dir if needed and enforces mode and ownership on it.
func ensureDir(dir string, mode os.FileMode, uid, gid int) error {
	if err := os.Mkdir(dir, mode); err != nil && !os.IsExist(err) {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", dir)
	}
	if err := os.Chmod(dir, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", dir, err)
	}
	if err := os.Lchown(dir, uid, gid); err != nil {
		return fmt.Errorf("chown %s: %w", dir, err)
	}
	return nil
}

// removeIfEmpty deletes a zero-byte file left behind by an interrupted run.
func removeIfEmpty(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode().IsRegular() && info.Size() == 0 {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove empty %s: %w", path, err)
		}
	}
	return nil
}

type nssHandle struct {
	spec spec.CertificateRequestSpec
}

func (h *nssHandle) Spec() spec.CertificateRequestSpec { return h.spec }

func (h *nssHandle) RequestArgs(pinFile string) []string {
	args := []string{"-d", h.spec.DBPath(), "-n", h.spec.Nickname()}
	if pinFile != "" {
		return append(args, "-p", pinFile)
	}
	return append(args, "-p", h.spec.PasswordFile())
}

func (h *nssHandle) ListArgs() []string {
	return []string{"-d", h.spec.DBPath(), "-n", h.spec.Nickname()}
}

func (h *nssHandle) ClearStale() error { return nil }

func (h *nssHandle) Collect() (*IssuedMaterial, error) {
	return confirmed(&IssuedMaterial{
		Owner: h.spec.OwnerID(),
		Group: h.spec.GroupID(),
	}), nil
}

type filePairHandle struct {
	spec       spec.CertificateRequestSpec
	stagedKey  string
	stagedCert string
}

func newFilePairHandle(s spec.CertificateRequestSpec) *filePairHandle {
	return &filePairHandle{
		spec:       s,
		stagedKey:  filepath.Join(s.StagingDir(), StagedKeyFileName),
		stagedCert: filepath.Join(s.StagingDir(), StagedCertFileName),
	}
}

func (h *filePairHandle) Spec() spec.CertificateRequestSpec { return h.spec }

func (h *filePairHandle) RequestArgs(string) []string {
	return []string{"-k", h.stagedKey, "-f", h.stagedCert}
}

func (h *filePairHandle) ListArgs() []string {
	return []string{"-f", h.stagedCert}
}

// ClearStale removes zero-byte staged files left by an interrupted run; the daemon would
// otherwise read an empty key file as an existing key.
func (h *filePairHandle) ClearStale() error {
	for _, p := range []string{h.stagedKey, h.stagedCert} {
		if err := removeIfEmpty(p); err != nil {
			return err
		}
	}
	return nil
}

func (h *filePairHandle) Collect() (*IssuedMaterial, error) {
	key, err := readPEMFile(h.stagedKey, isKeyBlock)
	if err != nil {
		return nil, err
	}
	cert, err := readPEMFile(h.stagedCert, isCertificateBlock)
	if err != nil {
		return nil, err
	}
	return confirmed(&IssuedMaterial{
		Certificate: cert,
		Key:         key,
		KeyMode:     KeyFileMode,
		CertMode:    CertFileMode,
		Owner:       h.spec.OwnerID(),
		Group:       h.spec.GroupID(),
	}), nil
}

// KeyringPinFile is where a PIN taken from the keyring is written for the daemon. The daemon
// keeps the path and reads it again on renewal, so the file outlives the request.
func KeyringPinFile(s spec.CertificateRequestSpec) string {
	return filepath.Join(s.DBPath(), KeyringPinFileName)
}

// StagedPaths exposes where the daemon writes file pair material. Used by tests and status output.
func StagedPaths(s spec.CertificateRequestSpec) (keyPath, certPath string) {
	h := newFilePairHandle(s)
	return h.stagedKey, h.stagedCert
}
