package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func setupMockKeyring(t *testing.T) {
	keyring.MockInit()
	_ = keyring.DeleteAll(KeyringServiceName)
	t.Cleanup(func() {
		_ = keyring.DeleteAll(KeyringServiceName)
	})
}

func TestOSKeyringStore(t *testing.T) {
	setupMockKeyring(t)
	store := &OSKeyringStore{}

	_, err := store.GetPIN("/etc/pki/alias")
	assert.ErrorIs(t, err, ErrPinNotFound)

	require.NoError(t, store.StorePIN("/etc/pki/alias/", "1234"))

	pin, err := store.GetPIN("/etc/pki/alias")
	require.NoError(t, err)
	assert.Equal(t, "1234", pin, "paths are cleaned before use as the account")

	require.NoError(t, store.DeletePIN("/etc/pki/alias"))
	assert.ErrorIs(t, store.DeletePIN("/etc/pki/alias"), ErrPinNotFound)
}

type failingStore struct{ err error }

func (f failingStore) StorePIN(string, string) error { return f.err }
func (f failingStore) GetPIN(string) (string, error) { return "", f.err }
func (f failingStore) DeletePIN(string) error        { return f.err }

func TestKeyringPins(t *testing.T) {
	setupMockKeyring(t)

	pins := KeyringPins{Store: &OSKeyringStore{}}
	pin, err := pins.PIN("/etc/pki/alias")
	require.NoError(t, err)
	assert.Empty(t, pin, "a missing pin is not an error")

	require.NoError(t, pins.Store.StorePIN("/etc/pki/alias", "s3cret"))
	pin, err = pins.PIN("/etc/pki/alias")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pin)

	pin, err = KeyringPins{Store: failingStore{err: keyring.ErrUnsupportedPlatform}}.PIN("/etc/pki/alias")
	require.NoError(t, err)
	assert.Empty(t, pin)

	_, err = KeyringPins{Store: failingStore{err: errors.New("dbus: locked")}}.PIN("/etc/pki/alias")
	assert.Error(t, err)
}

func TestValidatePIN(t *testing.T) {
	assert.NoError(t, ValidatePIN("1234"))
	assert.Error(t, ValidatePIN(""))
	assert.Error(t, ValidatePIN("12\n34"))
	assert.Error(t, ValidatePIN("12\x0034"))
}
