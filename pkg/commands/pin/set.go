package pin

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/common/output"
)

var SetCommand = &cli.Command{
	Name:   "set",
	Usage:  "Store the PIN of an NSS database in the OS keyring",
	Flags:  []cli.Flag{common.BasedirFlag, common.DBNameFlag, PinFlag},
	Action: setAction,
}

func setAction(cCtx *cli.Context) error {
	logger := common.LoggerFromContext(cCtx)

	dbPath, err := dbPathFromFlags(cCtx)
	if err != nil {
		return err
	}

	pin := cCtx.String(PinFlag.Name)
	if pin == "" {
		pin, err = output.InputPassword(fmt.Sprintf("PIN for %s:", dbPath), common.ValidatePIN)
		if err != nil {
			return fmt.Errorf("failed to read pin: %w", err)
		}
	}
	if err := common.ValidatePIN(pin); err != nil {
		return err
	}

	if err := common.DefaultKeyringStore.StorePIN(dbPath, pin); err != nil {
		return fmt.Errorf("failed to store pin in keyring: %w", err)
	}

	logger.Info("Stored PIN for %s", dbPath)
	logger.Info("Pass --pin-from-keyring to 'certreq request' to use it")
	return nil
}
