package common

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/certreq/internal/version"
)

// WithShutdown creates a new context that will be cancelled on SIGTERM/SIGINT
func WithShutdown(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		signal.Stop(sigChan)
		cancel()
		_, _ = fmt.Fprintln(os.Stderr, "caught interrupt, shutting down gracefully.")
	}()

	return ctx
}

type appEnvironmentContextKey struct{}

// AppEnvironment describes the invocation; it is logged with every run.
type AppEnvironment struct {
	CLIVersion   string
	OS           string
	Arch         string
	Hostname     string
	InvocationID string
}

func NewAppEnvironment(os, arch, hostname string) *AppEnvironment {
	return &AppEnvironment{
		CLIVersion:   version.GetVersion(),
		OS:           os,
		Arch:         arch,
		Hostname:     hostname,
		InvocationID: uuid.New().String(),
	}
}

func WithAppEnvironment(ctx *cli.Context) {
	hostname, _ := os.Hostname()
	ctx.Context = withAppEnvironment(ctx.Context, NewAppEnvironment(
		runtime.GOOS,
		runtime.GOARCH,
		hostname,
	))
}

func withAppEnvironment(ctx context.Context, appEnvironment *AppEnvironment) context.Context {
	return context.WithValue(ctx, appEnvironmentContextKey{}, appEnvironment)
}

func AppEnvironmentFromContext(ctx context.Context) (*AppEnvironment, bool) {
	env, ok := ctx.Value(appEnvironmentContextKey{}).(*AppEnvironment)
	return env, ok
}
