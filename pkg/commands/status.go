package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/commands/utils"
	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/common/output"
)

var StatusCommand = &cli.Command{
	Name:   "status",
	Usage:  "Show the recorded marker and the daemon status of a request",
	Flags:  append(append([]cli.Flag{}, common.SpecFlags...), common.GetcertBinaryFlag, common.CommandTimeoutFlag),
	Action: statusAction,
}

func statusAction(cCtx *cli.Context) error {
	s, err := utils.SpecFromFlags(cCtx)
	if err != nil {
		return cli.Exit(err.Error(), common.ExitFailure)
	}

	orch := utils.NewOrchestrator(cCtx, utils.PollSettingsFromFlags(cCtx))
	in, err := orch.Inspect(cCtx.Context, s)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", s.Principal(), err)
	}

	output.PrintInspection(cCtx.App.Writer, s.Principal(), in)
	return nil
}
