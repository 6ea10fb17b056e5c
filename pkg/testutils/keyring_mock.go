package testutils

import (
	"testing"

	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/zalando/go-keyring"
)

// MockKeyring provides a test helper for keyring operations using the native mock
type MockKeyring struct {
	t *testing.T
}

// SetupMockKeyring initializes the native keyring mock for testing
func SetupMockKeyring(t *testing.T) *MockKeyring {
	keyring.MockInit()

	// Clear any existing keys at start
	mock := &MockKeyring{t: t}
	mock.Clear()

	t.Cleanup(func() {
		mock.Clear()
	})

	return mock
}

// StorePIN stores a pin using the real implementation (which talks to the mock)
func (m *MockKeyring) StorePIN(dbPath, pin string) error {
	return common.DefaultKeyringStore.StorePIN(dbPath, pin)
}

// Clear removes all stored pins from the mock
func (m *MockKeyring) Clear() {
	_ = keyring.DeleteAll(common.KeyringServiceName)
}
