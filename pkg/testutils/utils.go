package testutils

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/common/logger"
	"github.com/Layr-Labs/certreq/pkg/metrics"
	"github.com/Layr-Labs/certreq/pkg/spec"
	"github.com/Layr-Labs/certreq/pkg/store"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// CreateTestAppWithNoopLoggerAndAccess creates a CLI app with no-op logger and returns both app and logger
func CreateTestAppWithNoopLoggerAndAccess(name string, flags []cli.Flag, action cli.ActionFunc) (*cli.App, *logger.NoopLogger) {
	noopLogger := logger.NewNoopLogger()
	app := &cli.App{
		Name:  name,
		Flags: flags,
		Before: func(cCtx *cli.Context) error {
			// Use the same logger instance
			ctx := common.WithLogger(cCtx.Context, noopLogger)
			ctx = common.WithMetrics(ctx, metrics.New())
			cCtx.Context = ctx
			return nil
		},
		Action: action,
	}
	return app, noopLogger
}

// CreateTestAppWithCommands wraps commands in an app that writes to out and never exits the process.
func CreateTestAppWithCommands(out *bytes.Buffer, commands ...*cli.Command) (*cli.App, *logger.NoopLogger) {
	app, noopLogger := CreateTestAppWithNoopLoggerAndAccess("certreq", common.GlobalFlags, nil)
	app.Commands = commands
	app.Writer = out
	app.ErrWriter = out
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app, noopLogger
}

// TestLayout lets an unprivileged test own the marker directory.
func TestLayout() store.Layout {
	return store.Layout{
		MarkerDirMode: 0700,
		RootUID:       os.Getuid(),
		RootGID:       os.Getgid(),
	}
}

// NSSParams returns a valid nss request rooted at basedir, owned by the current user.
// The database directory is created.
func NSSParams(t *testing.T, basedir, principal string) spec.Params {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(basedir, "alias"), 0755))
	return spec.Params{
		Principal: principal,
		Kind:      "nss",
		DBName:    "alias",
		Nickname:  "Server-Cert",
		Basedir:   basedir,
		OwnerID:   os.Getuid(),
		GroupID:   os.Getgid(),
	}
}

// FilePairParams returns a valid file pair request rooted at basedir, owned by the current user.
func FilePairParams(basedir, principal string) spec.Params {
	return spec.Params{
		Principal: principal,
		Kind:      "openssl",
		Key:       filepath.Join(basedir, "private", "k.key"),
		Cert:      filepath.Join(basedir, "certs", "k.crt"),
		Basedir:   basedir,
		OwnerID:   os.Getuid(),
		GroupID:   os.Getgid(),
	}
}

// MustSpec builds a spec or fails the test.
func MustSpec(t *testing.T, p spec.Params) spec.CertificateRequestSpec {
	t.Helper()
	s, err := spec.New(p)
	require.NoError(t, err)
	return s
}

// GeneratePEMPair returns a PEM encoded EC private key and a self-signed certificate for cn.
func GeneratePEMPair(t *testing.T, cn string) (keyPEM, certPEM []byte) {
	t.Helper()
	keyPEM, certPEM, err := generatePEMPair(cn)
	require.NoError(t, err)
	return keyPEM, certPEM
}

func generatePEMPair(cn string) (keyPEM, certPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(24 * time.Hour),
		DNSNames:     []string{cn},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, err
	}

	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return keyPEM, certPEM, nil
}

// WriteStaged places a fresh key and certificate where the daemon would write them for s.
func WriteStaged(t *testing.T, s spec.CertificateRequestSpec) (keyPEM, certPEM []byte) {
	t.Helper()
	keyPEM, certPEM = GeneratePEMPair(t, s.Principal())
	keyPath, certPath := store.StagedPaths(s)
	require.NoError(t, os.MkdirAll(filepath.Dir(keyPath), 0700))
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0600))
	require.NoError(t, os.WriteFile(certPath, certPEM, 0644))
	return keyPEM, certPEM
}
