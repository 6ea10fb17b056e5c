package commands

import (
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/commands/utils"
	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/common/output"
	"github.com/Layr-Labs/certreq/pkg/orchestrator"
)

var ResyncCommand = &cli.Command{
	Name:  "resync",
	Usage: "Copy renewed file pair material from the daemon's staging area to its final paths",
	Flags: append(append([]cli.Flag{}, common.SpecFlags...),
		common.GetcertBinaryFlag, common.CommandTimeoutFlag, common.BaseDelayFlag),
	Action: resyncAction,
}

func resyncAction(cCtx *cli.Context) error {
	s, err := utils.SpecFromFlags(cCtx)
	if err != nil {
		return cli.Exit(err.Error(), common.ExitFailure)
	}

	orch := utils.NewOrchestrator(cCtx, utils.PollSettingsFromFlags(cCtx))
	outcome := orch.Resync(cCtx.Context, s)

	outcomes := []orchestrator.RequestOutcome{outcome}
	output.PrintOutcomes(cCtx.App.Writer, outcomes)
	return utils.ExitError(outcomes)
}
