package store

import (
	"bytes"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrMaterialIncomplete = errors.New("issued material incomplete")

// IssuedMaterial is what the daemon produced for a request. It is owned by the
// materialization writer until written and wiped afterwards.
type IssuedMaterial struct {
	Certificate []byte
	Key         []byte // nil when the nss database holds the key
	KeyMode     os.FileMode
	CertMode    os.FileMode
	Owner       int
	Group       int

	confirmed bool
}

// Confirmed reports whether the material came from a request the daemon reported as issued.
func (m *IssuedMaterial) Confirmed() bool {
	return m != nil && m.confirmed
}

// Wipe zeroes the key and certificate bytes.
func (m *IssuedMaterial) Wipe() {
	if m == nil {
		return
	}
	for i := range m.Key {
		m.Key[i] = 0
	}
	for i := range m.Certificate {
		m.Certificate[i] = 0
	}
	m.Key = nil
	m.Certificate = nil
}

// Equal reports whether both hold the same bytes. Resync uses it to skip unchanged material.
func (m *IssuedMaterial) Equal(other *IssuedMaterial) bool {
	if m == nil || other == nil {
		return m == other
	}
	return bytes.Equal(m.Key, other.Key) && bytes.Equal(m.Certificate, other.Certificate)
}

func confirmed(m *IssuedMaterial) *IssuedMaterial {
	m.confirmed = true
	return m
}

// validatePEM checks data holds at least one block whose type matches.
func validatePEM(data []byte, typeMatches func(string) bool) error {
	rest := data
	for {
		block, r := pem.Decode(rest)
		if block == nil {
			return errors.New("no PEM block found")
		}
		if typeMatches(block.Type) && len(block.Bytes) > 0 {
			return nil
		}
		rest = r
	}
}

func isCertificateBlock(t string) bool { return t == "CERTIFICATE" }
func isKeyBlock(t string) bool         { return strings.HasSuffix(t, "PRIVATE KEY") }

func readPEMFile(path string, typeMatches func(string) bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s not written yet", ErrMaterialIncomplete, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMaterialIncomplete, path)
	}
	if err := validatePEM(data, typeMatches); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMaterialIncomplete, path, err)
	}
	return data, nil
}
