package commands

import (
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/commands/utils"
	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/common/output"
	"github.com/Layr-Labs/certreq/pkg/orchestrator"
)

var RequestCommand = &cli.Command{
	Name:  "request",
	Usage: "Request a certificate through certmonger and wait until it is issued",
	Description: `Submits the request once, polls the daemon until the certificate is issued, places
file pair material at its final paths and records a marker so later runs are no-ops.

For file pairs certmonger tracks a staging copy, so its automatic renewals only reach the
final key and certificate through 'certreq resync'. Pass --auto-resync to have certmonger run
it after every renewal (ipa-getcert -C), or schedule 'certreq resync' at least daily.

Exit status is 0 when every request is satisfied, 75 when a request is still pending or
being handled by another run (retry later), and 1 on any other failure.`,
	Flags:  append(append([]cli.Flag{}, common.SpecFlags...), common.PipelineFlags...),
	Action: requestAction,
}

func requestAction(cCtx *cli.Context) error {
	logger := common.LoggerFromContext(cCtx)

	specs, settings, err := utils.LoadSpecs(cCtx)
	if err != nil {
		return cli.Exit(err.Error(), common.ExitFailure)
	}

	if env, ok := common.AppEnvironmentFromContext(cCtx.Context); ok {
		logger.Debug("certreq %s on %s, invocation %s", env.CLIVersion, env.Hostname, env.InvocationID)
	}

	orch := utils.NewOrchestrator(cCtx, settings)

	var outcomes []orchestrator.RequestOutcome
	if len(specs) == 1 {
		outcomes = []orchestrator.RequestOutcome{orch.Run(cCtx.Context, specs[0])}
	} else {
		logger.Info("Processing %d requests, %d at a time", len(specs), settings.Parallelism)
		outcomes = orch.RunAll(cCtx.Context, specs, settings.Parallelism)
	}

	output.PrintOutcomes(cCtx.App.Writer, outcomes)
	return utils.ExitError(outcomes)
}
