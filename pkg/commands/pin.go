package commands

import (
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/pkg/commands/pin"
)

var PinCommand = &cli.Command{
	Name:  "pin",
	Usage: "Manage NSS database PINs stored in the OS keyring",
	Subcommands: []*cli.Command{
		pin.SetCommand,
		pin.DeleteCommand,
	},
}
