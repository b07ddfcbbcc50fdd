// Command sazid is a coding assistant that chats about a project, runs
// whitelisted tools on it and retrieves its content into every prompt.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cosmikwolf/sazid/internal/adapters/driving/cli"
	"github.com/cosmikwolf/sazid/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if a == nil {
		fmt.Fprintf(os.Stderr, "sazid: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown: %v", err)
		}
	}()

	cli.SetVersion(version)
	cli.SetServices(a.services)
	if err != nil {
		// Only the settings commands work until the configuration is fixed.
		cli.SetSetupError(err)
	}

	if err := cli.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
