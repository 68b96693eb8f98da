// Command exportrag answers exporter regulation questions from a local corpus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/exportrag/internal/adapters/driving/cli"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal; keys may come from config.toml or the shell.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cli.SetBootstrap(bootstrap)
	err := cli.Execute(ctx, version)
	stop()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
