package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/certreq/pkg/commands"
	"github.com/Layr-Labs/certreq/pkg/commands/version"
	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/hooks"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx := common.WithShutdown(context.Background())

	app := &cli.App{
		Name:  "certreq",
		Usage: "Request and track certificates through certmonger (ipa-getcert)",
		Flags: common.GlobalFlags,
		Before: func(cCtx *cli.Context) error {
			err := hooks.LoadEnvFile(cCtx)
			if err != nil {
				return err
			}
			common.WithAppEnvironment(cCtx)

			// Parse verbose flags from raw argv to capture from subcommand flags
			verbose := common.PeelBoolFromFlags(os.Args[1:], "--verbose", "-v")
			if verbose {
				err := cCtx.Set("verbose", "true")
				if err != nil {
					return fmt.Errorf("failed to set verbose flag globally: %w", err)
				}
			}

			logger := common.GetLoggerFromCLIContext(cCtx)
			cCtx.Context = common.WithLogger(cCtx.Context, logger)

			return hooks.WithCommandMetricsContext(cCtx)
		},
		Commands: []*cli.Command{
			commands.RequestCommand,
			commands.StatusCommand,
			commands.ListCommand,
			commands.ResetCommand,
			commands.ResyncCommand,
			commands.PinCommand,
			version.VersionCommand,
		},
		UseShortOptionHandling: true,
	}

	actionChain := hooks.NewActionChain()
	actionChain.Use(hooks.WithMetricEmission)

	hooks.ApplyMiddleware(app.Commands, actionChain)

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
