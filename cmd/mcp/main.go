package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/alikoudar/irobot-sub000/internal/adapters/mcp"
	"github.com/alikoudar/irobot-sub000/internal/bootstrap"
	"github.com/alikoudar/irobot-sub000/internal/config"
	"github.com/alikoudar/irobot-sub000/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "mcp", Logger: logger})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server, err := mcpadapter.NewServer(app.Chat, app.Cache, logger)
	if err != nil {
		logger.Error("mcp_init_failed", "error", err)
		os.Exit(1)
	}
	if err := server.ServeStdio(); err != nil {
		logger.Error("mcp_serve_failed", "error", err)
	}
}
