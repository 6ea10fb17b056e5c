package pin

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/testutils"
)

func TestSetAndDelete(t *testing.T) {
	testutils.SetupMockKeyring(t)

	var out bytes.Buffer
	app, log := testutils.CreateTestAppWithCommands(&out, SetCommand, DeleteCommand)

	require.NoError(t, app.Run([]string{"certreq", "set", "--basedir", "/etc/pki", "--dbname", "alias", "--pin", "1234"}))
	assert.True(t, log.Contains("info", "Stored PIN for /etc/pki/alias"))

	pin, err := common.KeyringPins{}.PIN("/etc/pki/alias")
	require.NoError(t, err)
	assert.Equal(t, "1234", pin)

	require.NoError(t, app.Run([]string{"certreq", "delete", "--dbname", "alias", "--yes"}))
	_, err = common.DefaultKeyringStore.GetPIN("/etc/pki/alias")
	assert.ErrorIs(t, err, common.ErrPinNotFound)

	err = app.Run([]string{"certreq", "delete", "--dbname", "alias", "--yes"})
	assert.ErrorContains(t, err, "no pin stored")
}

func TestSetValidation(t *testing.T) {
	testutils.SetupMockKeyring(t)

	var out bytes.Buffer
	app, _ := testutils.CreateTestAppWithCommands(&out, SetCommand)

	assert.ErrorContains(t, app.Run([]string{"certreq", "set", "--pin", "1234"}), "--dbname is required")
	assert.Error(t, app.Run([]string{"certreq", "set", "--dbname", "a/b", "--pin", "1234"}))
	assert.Error(t, app.Run([]string{"certreq", "set", "--dbname", "alias", "--pin", "12\n34"}))
}

func TestStoredPinIsPassedToRequests(t *testing.T) {
	mock := testutils.SetupMockKeyring(t)
	require.NoError(t, mock.StorePIN("/srv/pki/alias", "s3cret"))

	pin, err := common.KeyringPins{}.PIN("/srv/pki/alias/")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pin)
}
