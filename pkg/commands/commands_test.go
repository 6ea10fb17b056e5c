package commands

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/commands/utils"
	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/getcert"
	"github.com/Layr-Labs/certreq/pkg/guard"
	"github.com/Layr-Labs/certreq/pkg/testutils"
)

func useFakeGetcert(t *testing.T, fake getcert.Runner) {
	t.Helper()
	origRunner, origLayout := utils.DefaultRunner, utils.DefaultLayout
	utils.DefaultRunner = fake
	utils.DefaultLayout = testutils.TestLayout()
	t.Cleanup(func() {
		utils.DefaultRunner = origRunner
		utils.DefaultLayout = origLayout
	})
}

func nssArgs(t *testing.T, basedir string) []string {
	t.Helper()
	require.NoError(t, os.MkdirAll(basedir+"/alias", 0755))
	return []string{
		"--principal", "HTTP/www.example.com",
		"--seclib", "nss",
		"--dbname", "alias",
		"--nickname", "Server-Cert",
		"--basedir", basedir,
		"--owner-id", fmt.Sprint(os.Getuid()),
		"--group-id", fmt.Sprint(os.Getgid()),
	}
}

func pipelineArgs(maxAttempts int) []string {
	return []string{"--ipa-config=", "--base-delay", "1ms", "--max-attempts", fmt.Sprint(maxAttempts)}
}

func run(app *cli.App, args ...[]string) error {
	all := []string{"certreq"}
	for _, a := range args {
		all = append(all, a...)
	}
	return app.Run(all)
}

func TestRequestListResetFlow(t *testing.T) {
	fake := testutils.NewFakeGetcert("SUBMITTING", "MONITORING")
	useFakeGetcert(t, fake)
	basedir := t.TempDir()
	spec := nssArgs(t, basedir)

	var out bytes.Buffer
	app, _ := testutils.CreateTestAppWithCommands(&out, RequestCommand, ListCommand, ResetCommand, StatusCommand)

	require.NoError(t, run(app, []string{"request"}, spec, pipelineArgs(5)))
	assert.Contains(t, out.String(), "HTTP/www.example.com")
	assert.Contains(t, out.String(), "success")

	out.Reset()
	require.NoError(t, run(app, []string{"request"}, spec, pipelineArgs(5)))
	assert.Contains(t, out.String(), "already satisfied")
	assert.Equal(t, 1, fake.Count("request"))

	out.Reset()
	require.NoError(t, run(app, []string{"list", "--basedir", basedir, "--dbname", "alias"}))
	assert.Contains(t, out.String(), "HTTP_www.example.com")
	assert.Contains(t, out.String(), fake.RequestID)

	out.Reset()
	require.NoError(t, run(app, []string{"status"}, spec))
	assert.Contains(t, out.String(), "Requested:  yes")
	assert.Contains(t, out.String(), "MONITORING (issued)")

	require.NoError(t, run(app, []string{"reset", "--yes"}, spec))
	records, err := guard.New().List(basedir + "/alias/requested")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRequest_TimeoutExitsTempFail(t *testing.T) {
	fake := testutils.NewFakeGetcert("CA_UNREACHABLE")
	useFakeGetcert(t, fake)

	var out bytes.Buffer
	app, _ := testutils.CreateTestAppWithCommands(&out, RequestCommand)

	err := run(app, []string{"request"}, nssArgs(t, t.TempDir()), pipelineArgs(2))
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, common.ExitTempFail, exit.ExitCode())
	assert.Contains(t, out.String(), "timed out")
}

func TestRequest_InvalidSpecExitsFailure(t *testing.T) {
	fake := testutils.NewFakeGetcert()
	useFakeGetcert(t, fake)

	var out bytes.Buffer
	app, _ := testutils.CreateTestAppWithCommands(&out, RequestCommand)

	err := run(app, []string{"request", "--principal", "HTTP/x", "--seclib", "foo"})
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, common.ExitFailure, exit.ExitCode())
	assert.Contains(t, exit.Error(), "unrecognized security library")
	assert.Empty(t, fake.Calls())
}

func TestResetNothingRecorded(t *testing.T) {
	useFakeGetcert(t, testutils.NewFakeGetcert())

	var out bytes.Buffer
	app, log := testutils.CreateTestAppWithCommands(&out, ResetCommand)

	require.NoError(t, run(app, []string{"reset", "--yes"}, nssArgs(t, t.TempDir())))
	assert.True(t, log.Contains("info", "Nothing recorded"))
}

func TestListRejectsNestedDBName(t *testing.T) {
	var out bytes.Buffer
	app, _ := testutils.CreateTestAppWithCommands(&out, ListCommand)
	assert.Error(t, run(app, []string{"list", "--basedir", t.TempDir(), "--dbname", "../etc"}))
}
