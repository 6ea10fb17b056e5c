package common

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	KeyPrefix = "nss-pin:"
)

var ErrPinNotFound = errors.New("pin not found")

// wrapKeyringError converts keyring backend errors to our standard error types
func wrapKeyringError(err error, dbPath string) error {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())
	if errors.Is(err, keyring.ErrNotFound) || strings.Contains(errStr, "not found") {
		return fmt.Errorf("%w: %s", ErrPinNotFound, dbPath)
	}

	return err
}

// KeyringStore keeps NSS database PINs, keyed by the absolute database path.
type KeyringStore interface {
	StorePIN(dbPath, pin string) error
	GetPIN(dbPath string) (string, error)
	DeletePIN(dbPath string) error
}

type OSKeyringStore struct{}

func account(dbPath string) string {
	return KeyPrefix + filepath.Clean(dbPath)
}

func (o *OSKeyringStore) StorePIN(dbPath, pin string) error {
	return keyring.Set(KeyringServiceName, account(dbPath), pin)
}

func (o *OSKeyringStore) GetPIN(dbPath string) (string, error) {
	pin, err := keyring.Get(KeyringServiceName, account(dbPath))
	return pin, wrapKeyringError(err, dbPath)
}

func (o *OSKeyringStore) DeletePIN(dbPath string) error {
	err := keyring.Delete(KeyringServiceName, account(dbPath))
	return wrapKeyringError(err, dbPath)
}

var DefaultKeyringStore KeyringStore = &OSKeyringStore{}

// KeyringPins adapts a KeyringStore to getcert.PinSource. A missing PIN is not an error,
// and neither is a host without a usable keyring backend: the password file is used then.
type KeyringPins struct {
	Store KeyringStore
}

func (k KeyringPins) PIN(dbPath string) (string, error) {
	store := k.Store
	if store == nil {
		store = DefaultKeyringStore
	}
	pin, err := store.GetPIN(dbPath)
	if err != nil {
		if errors.Is(err, ErrPinNotFound) || errors.Is(err, keyring.ErrUnsupportedPlatform) {
			return "", nil
		}
		return "", err
	}
	return pin, nil
}

// ValidatePIN rejects values ipa-getcert cannot take on its command line.
func ValidatePIN(pin string) error {
	if pin == "" {
		return errors.New("pin cannot be empty")
	}
	if strings.ContainsAny(pin, "\r\n\x00") {
		return errors.New("pin cannot contain newlines or NUL bytes")
	}
	return nil
}
