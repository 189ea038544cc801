package main

import (
	"context"
	"eventmaster/cli"
	"eventmaster/internal"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run())
}

// run keeps every defer inside a function that returns, so the store is
// closed before the process exits.
func run() int {
	// 1. Configuration & Logger, a missing .env is fine
	_ = godotenv.Load()
	cfg, err := internal.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return exitConfig
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. The store is opened by the first command that needs it
	var app *cli.App
	defer func() {
		if app != nil {
			if err := app.Close(); err != nil {
				log.Warn("Close failed", "error", err)
			}
		}
	}()
	cmd := cli.NewRootCommand(func(ctx context.Context) (*cli.App, error) {
		a, err := cli.NewApp(ctx, cfg, log)
		app = a
		return a, err
	})

	// 4. Run
	if err = cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code := cli.GetExitCode(err); code != exitOK {
			return code
		}
		return exitRuntime
	}
	return exitOK
}
