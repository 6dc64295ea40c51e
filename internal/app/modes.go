package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aurayield/engine/internal/feed"
	"github.com/aurayield/engine/internal/notify"
	"github.com/aurayield/engine/internal/server"
	"github.com/aurayield/engine/internal/server/handler"
	"github.com/aurayield/engine/internal/server/ws"
)

// runServer runs the HTTP API and the WebSocket hub.
func (a *App) runServer(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return waitGroup(g)
}

// runWorker runs the background components: the reading feeder, the market
// void sweeper, the notification listener, and the archiver when enabled.
func (a *App) runWorker(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startWorkers(ctx, g, deps)
	return waitGroup(g)
}

// runFull runs everything in a single process.
func (a *App) runFull(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	a.startWorkers(ctx, g, deps)
	return waitGroup(g)
}

// startServer registers the HTTP server and WebSocket hub on the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Bus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  time.Duration(a.cfg.Server.RateWindowSec) * time.Second,
		},
		server.Handlers{
			Health:      handler.NewHealthHandler(a.logger),
			Accounts:    handler.NewAccountHandler(deps.Ledger, a.logger),
			Stakes:      handler.NewStakeHandler(deps.StakeEngine, a.logger),
			Markets:     handler.NewMarketHandler(deps.MarketEngine, a.logger),
			Leaderboard: handler.NewLeaderboardHandler(deps.ScoreAgg, a.logger),
		},
		hub,
		deps.Limiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startWorkers registers the background loops on the group.
func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	feeder := feed.NewReadingFeeder(deps.Bus, deps.StakeEngine, feed.Options{
		BatchSize:    a.cfg.Feed.BatchSize,
		PollInterval: a.cfg.Feed.PollInterval.Duration,
	}, a.logger)
	g.Go(func() error {
		if err := feeder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	listener := notify.NewListener(deps.Bus, deps.Notifier, a.logger)
	g.Go(func() error {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return a.runVoidSweeper(ctx, deps)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}
}

// runVoidSweeper periodically voids markets whose deadline has passed without
// a resolution.
func (a *App) runVoidSweeper(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Market.SweepInterval.Duration)
	defer ticker.Stop()

	a.logger.Info("app: void sweeper started",
		slog.Duration("interval", a.cfg.Market.SweepInterval.Duration),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			voided, err := deps.MarketEngine.VoidExpired(ctx)
			if err != nil {
				a.logger.Error("app: void sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if voided > 0 {
				a.logger.Info("app: expired markets voided",
					slog.Int("count", voided),
				)
			}
		}
	}
}

// runArchiver periodically moves terminal records older than the retention
// window into cold storage.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	a.logger.Info("app: archiver started",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
		slog.Duration("interval", a.cfg.Archive.Interval.Duration),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

			archived := int64(0)
			for name, fn := range map[string]func(context.Context, time.Time) (int64, error){
				"stakes":  deps.Archiver.ArchiveStakes,
				"markets": deps.Archiver.ArchiveMarkets,
				"audit":   deps.Archiver.ArchiveAudit,
			} {
				n, err := fn(ctx, cutoff)
				if err != nil {
					a.logger.Error("app: archive pass failed",
						slog.String("kind", name),
						slog.String("error", err.Error()),
					)
					continue
				}
				archived += n
			}
			if archived > 0 {
				a.logger.Info("app: records archived",
					slog.Int64("count", archived),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}

// waitGroup waits for the errgroup, treating context cancellation as a clean
// shutdown.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
