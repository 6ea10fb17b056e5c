package hooks

import (
	"os"

	"github.com/Layr-Labs/certreq/pkg/common"
	"github.com/Layr-Labs/certreq/pkg/metrics"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// MetricsTextfileFlag is the global flag naming the node_exporter textfile
const MetricsTextfileFlag = "metrics-textfile"

type ActionChain struct {
	Processors []func(action cli.ActionFunc) cli.ActionFunc
}

// NewActionChain creates a new action chain
func NewActionChain() *ActionChain {
	return &ActionChain{
		Processors: make([]func(action cli.ActionFunc) cli.ActionFunc, 0),
	}
}

// Use appends a new processor to the chain
func (ac *ActionChain) Use(processor func(action cli.ActionFunc) cli.ActionFunc) {
	ac.Processors = append(ac.Processors, processor)
}

func (ac *ActionChain) Wrap(action cli.ActionFunc) cli.ActionFunc {
	for i := len(ac.Processors) - 1; i >= 0; i-- {
		action = ac.Processors[i](action)
	}
	return action
}

func ApplyMiddleware(commands []*cli.Command, chain *ActionChain) {
	for _, cmd := range commands {
		if cmd.Action != nil {
			cmd.Action = chain.Wrap(cmd.Action)
		}
		if len(cmd.Subcommands) > 0 {
			ApplyMiddleware(cmd.Subcommands, chain)
		}
	}
}

// WithMetricEmission counts the command result and, when --metrics-textfile is set,
// dumps every series collected during the invocation to that file.
func WithMetricEmission(action cli.ActionFunc) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		// Run command action
		err := action(ctx)

		m := common.MetricsFromContext(ctx.Context)
		m.ObserveCommand(ctx.Command.Name, err)

		path := ctx.String(MetricsTextfileFlag)
		if path == "" {
			return err
		}
		if werr := m.WriteTextfile(path); werr != nil {
			common.LoggerFromContext(ctx).Warn("failed to write metrics to %s: %v", path, werr)
		}
		return err
	}
}

// WithCommandMetricsContext stores a fresh metrics set for the invocation
func WithCommandMetricsContext(ctx *cli.Context) error {
	ctx.Context = common.WithMetrics(ctx.Context, metrics.New())
	return nil
}

func LoadEnvFile(ctx *cli.Context) error {
	// version and help never read configuration
	if ctx.Command.Name != "version" && ctx.Command.Name != "help" {
		if err := loadEnvFile(); err != nil {
			return err
		}
	}
	return nil
}

// loadEnvFile loads environment variables from .env file if it exists
// Silently succeeds if no .env file is found
func loadEnvFile() error {
	// Check if .env file exists in current directory
	if _, err := os.Stat(common.EnvFile); os.IsNotExist(err) {
		return nil // .env doesn't exist, just return without error
	}

	// Load .env file
	return godotenv.Load(common.EnvFile)
}
