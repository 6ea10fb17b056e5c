package pin

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/common/output"
)

var DeleteCommand = &cli.Command{
	Name:   "delete",
	Usage:  "Remove the stored PIN of an NSS database",
	Flags:  []cli.Flag{common.BasedirFlag, common.DBNameFlag, common.YesFlag},
	Action: deleteAction,
}

func deleteAction(cCtx *cli.Context) error {
	logger := common.LoggerFromContext(cCtx)

	dbPath, err := dbPathFromFlags(cCtx)
	if err != nil {
		return err
	}

	if _, err := common.DefaultKeyringStore.GetPIN(dbPath); err != nil {
		if errors.Is(err, common.ErrPinNotFound) {
			return fmt.Errorf("no pin stored for '%s'", dbPath)
		}
		return fmt.Errorf("failed to read keyring: %w", err)
	}

	if !cCtx.Bool(common.YesFlag.Name) {
		confirmed, err := output.Confirm(fmt.Sprintf("Remove stored PIN for '%s'?", dbPath))
		if err != nil {
			return fmt.Errorf("failed to get confirmation: %w", err)
		}
		if !confirmed {
			logger.Info("Delete cancelled")
			return nil
		}
	}

	if err := common.DefaultKeyringStore.DeletePIN(dbPath); err != nil {
		return fmt.Errorf("failed to remove pin from keyring: %w", err)
	}

	logger.Info("Removed PIN for %s", dbPath)
	return nil
}
