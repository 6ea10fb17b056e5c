package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/common/output"
	"github.com/Layr-Labs/certreq/pkg/guard"
	"github.com/Layr-Labs/certreq/pkg/spec"
)

var ListCommand = &cli.Command{
	Name:   "list",
	Usage:  "List principals already requested for a database",
	Flags:  []cli.Flag{common.BasedirFlag, common.DBNameFlag},
	Action: listAction,
}

func listAction(cCtx *cli.Context) error {
	logger := common.LoggerFromContext(cCtx)

	dbname := cCtx.String(common.DBNameFlag.Name)
	if dbname == "" {
		dbname = spec.DefaultFilePairDBName
	}
	if filepath.Base(dbname) != dbname {
		return cli.Exit(errors.New("dbname must be a single directory name").Error(), common.ExitFailure)
	}
	markerDir := filepath.Join(cCtx.String(common.BasedirFlag.Name), dbname, spec.MarkerDirName)

	records, err := guard.New().List(markerDir)
	if err != nil {
		return fmt.Errorf("failed to list requests: %w", err)
	}
	if len(records) == 0 {
		logger.Info("No requests recorded in %s", markerDir)
		return nil
	}

	output.PrintRecords(cCtx.App.Writer, records)
	return nil
}
