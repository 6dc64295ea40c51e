package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/aurayield/engine/internal/blob/s3"
	"github.com/aurayield/engine/internal/cache/redis"
	"github.com/aurayield/engine/internal/config"
	"github.com/aurayield/engine/internal/domain"
	"github.com/aurayield/engine/internal/engine"
	"github.com/aurayield/engine/internal/ledger"
	"github.com/aurayield/engine/internal/notify"
	"github.com/aurayield/engine/internal/oracle"
	"github.com/aurayield/engine/internal/score"
	"github.com/aurayield/engine/internal/store/postgres"
	"github.com/aurayield/engine/internal/yield"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Accounts domain.AccountStore
	Stakes   domain.StakeStore
	Markets  domain.MarketStore
	Wagers   domain.WagerStore
	Scores   domain.ScoreStore
	Audit    domain.AuditStore

	// Redis
	Locks   domain.LockManager
	Board   domain.Leaderboard
	Bus     domain.SignalBus
	Limiter domain.RateLimiter

	// Blob storage; nil unless S3 is enabled.
	Archiver domain.Archiver

	// Components
	Ledger       *ledger.Ledger
	ScoreAgg     *score.Aggregator
	StakeEngine  *engine.StakeEngine
	MarketEngine *engine.MarketEngine
	Notifier     *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Accounts = postgres.NewAccountStore(pool)
	deps.Stakes = postgres.NewStakeStore(pool)
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Wagers = postgres.NewWagerStore(pool)
	deps.Scores = postgres.NewScoreStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Locks = redis.NewLockManager(redisClient)
	deps.Board = redis.NewLeaderboard(redisClient)
	deps.Bus = redis.NewSignalBus(redisClient)
	deps.Limiter = redis.NewRateLimiter(redisClient)

	// --- S3 blob storage (archiver only; optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Stakes,
			deps.Markets,
			deps.Wagers,
			deps.Audit,
			logger,
		)
	}

	// --- Domain components ---
	deps.Ledger = ledger.New(deps.Accounts, deps.Audit, logger)
	deps.ScoreAgg = score.NewAggregator(deps.Scores, deps.Accounts, deps.Board, logger)

	orc := oracle.New()
	yld := yield.NewCalculator(cfg.Engine.AnnualYieldRate, cfg.Engine.ForfeitRate)

	deps.StakeEngine = engine.NewStakeEngine(
		engine.StakeConfig{
			MaxPrincipalCents: cfg.Engine.MaxPrincipalCents,
			AllowedDurations:  cfg.Engine.AllowedDurations,
			MinPassRate:       cfg.Engine.MinPassRate,
			LockTTL:           cfg.Engine.LockTTL.Duration,
		},
		deps.Stakes, deps.Ledger, orc, yld, deps.ScoreAgg,
		deps.Locks, deps.Bus, logger,
	)
	deps.MarketEngine = engine.NewMarketEngine(
		engine.MarketConfig{
			VoidAfter: cfg.Market.VoidAfter.Duration,
			LockTTL:   cfg.Market.LockTTL.Duration,
		},
		deps.Markets, deps.Wagers, deps.Ledger, deps.ScoreAgg,
		deps.Locks, deps.Bus, logger,
	)

	// The treasury account must exist before the first forfeiture or
	// unclaimed pool lands in it.
	if err := seedTreasury(ctx, deps.Accounts); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: seed treasury: %w", err)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// seedTreasury creates the reserved treasury account if it does not exist.
func seedTreasury(ctx context.Context, accounts domain.AccountStore) error {
	now := time.Now().UTC()
	err := accounts.Create(ctx, domain.Account{
		ID:        domain.TreasuryAccountID,
		Handle:    domain.TreasuryAccountID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return err
	}
	return nil
}
