package version

import (
	"fmt"

	"github.com/Layr-Labs/certreq/internal/version"

	"github.com/urfave/cli/v2"
)

// VersionCommand defines the "version" command
var VersionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print the version of certreq",
	Action: func(cCtx *cli.Context) error {
		return VersionRun(cCtx)
	},
}

func VersionRun(cCtx *cli.Context) error {
	v := version.GetVersion()
	commit := version.GetCommit()

	fmt.Fprintf(cCtx.App.Writer, "Version: %s\nCommit: %s\n", v, commit)

	return nil
}
