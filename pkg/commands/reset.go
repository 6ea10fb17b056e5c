package commands

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/commands/utils"
	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/common/output"
	"github.com/Layr-Labs/certreq/pkg/guard"
)

var ResetCommand = &cli.Command{
	Name:  "reset",
	Usage: "Forget that a principal was requested so the next run submits again",
	Description: `Only the local marker is removed. The daemon keeps tracking the existing request;
stop it with 'ipa-getcert stop-tracking' first if a fresh key is wanted.`,
	Flags:  append(append([]cli.Flag{}, common.SpecFlags...), common.YesFlag),
	Action: resetAction,
}

func resetAction(cCtx *cli.Context) error {
	logger := common.LoggerFromContext(cCtx)

	s, err := utils.SpecFromFlags(cCtx)
	if err != nil {
		return cli.Exit(err.Error(), common.ExitFailure)
	}

	if !cCtx.Bool(common.YesFlag.Name) {
		confirmed, err := output.Confirm(fmt.Sprintf("Forget the request marker for %s?", s.Principal()))
		if err != nil {
			return fmt.Errorf("failed to get confirmation: %w", err)
		}
		if !confirmed {
			logger.Info("Reset cancelled")
			return nil
		}
	}

	if err := guard.New().Forget(s); err != nil {
		if errors.Is(err, guard.ErrNotRequested) {
			logger.Info("Nothing recorded for %s", s.Principal())
			return nil
		}
		return fmt.Errorf("failed to reset %s: %w", s.Principal(), err)
	}

	logger.Info("Forgot request marker for %s", s.Principal())
	return nil
}
