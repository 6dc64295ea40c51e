// Package app assembles the stake and market engine from its configuration
// and runs it in one of the supported modes.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aurayield/engine/internal/config"
)

// App is the top-level application. It owns the wired dependencies for the
// lifetime of Run and releases them on exit.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an App from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependencies and blocks until the context is cancelled or a
// component fails. The mode decides which components run in this process.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("app: starting",
		slog.String("mode", a.cfg.Mode),
		slog.Int("port", a.cfg.Server.Port),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	switch a.cfg.Mode {
	case "server":
		return a.runServer(ctx, deps)
	case "worker":
		return a.runWorker(ctx, deps)
	case "full":
		return a.runFull(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}
