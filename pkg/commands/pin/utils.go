package pin

import (
	"errors"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/common"
)

var PinFlag = &cli.StringFlag{
	Name:    "pin",
	Usage:   "PIN to store; prompted for when omitted",
	EnvVars: []string{common.EnvPrefix + "NSS_PIN"},
}

// dbPathFromFlags resolves the NSS database the PIN belongs to. It must match the path
// the request command derives, so both use basedir and dbname.
func dbPathFromFlags(cCtx *cli.Context) (string, error) {
	dbname := cCtx.String(common.DBNameFlag.Name)
	if dbname == "" {
		return "", errors.New("--dbname is required")
	}
	if filepath.Base(dbname) != dbname {
		return "", errors.New("dbname must be a single directory name")
	}
	return filepath.Join(cCtx.String(common.BasedirFlag.Name), dbname), nil
}
