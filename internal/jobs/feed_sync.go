package jobs

import (
	"context"
	"fmt"
	"time"

	"NexoCorpERP/api/bankfeed"
	"NexoCorpERP/api/bankfeed/aggregator"
	"NexoCorpERP/internal/config"
	"NexoCorpERP/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
)

// FeedSyncConfig controls the scheduled bank-feed refresh.
type FeedSyncConfig struct {
	Schedule   string
	TimeZone   string
	MaxRetries int
	RetryDelay time.Duration
}

func NewDefaultFeedSyncConfig() *FeedSyncConfig {
	return &FeedSyncConfig{
		Schedule:   config.DefaultFeedSyncSchedule,
		TimeZone:   config.DefaultTimeZone,
		MaxRetries: config.FeedSyncMaxRetries,
		RetryDelay: time.Duration(config.FeedSyncRetryDelaySecs) * time.Second,
	}
}

// RunFeedSyncScheduler schedules the periodic refresh of every syncable
// bank connection. Connections whose last run ended in a credential error
// are left alone until the user fixes them.
func RunFeedSyncScheduler(cfg *FeedSyncConfig, db *pgxpool.Pool) error {
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultFeedSyncSchedule
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = config.FeedSyncMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Duration(config.FeedSyncRetryDelaySecs) * time.Second
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("load timezone %s: %w", cfg.TimeZone, err)
	}

	client, err := aggregator.NewClientFromEnv()
	if err != nil {
		return fmt.Errorf("feed sync scheduler: %w", err)
	}

	store := bankfeed.NewPgStore(db)
	syncer := &bankfeed.Syncer{Agg: client, Store: store}

	upstreamBreaker := NewCircuitBreaker(5, 30*time.Second)

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.Schedule, func() {
		logger.Audit(fmt.Sprintf("Running bank feed sync at %s", time.Now().In(loc)))
		runFeedSyncPass(cfg, syncer, upstreamBreaker)
	})
	if err != nil {
		return fmt.Errorf("schedule feed sync: %w", err)
	}
	c.Start()

	logger.Audit("Bank feed sync scheduled: " + cfg.Schedule)
	return nil
}

func runFeedSyncPass(cfg *FeedSyncConfig, syncer *bankfeed.Syncer, breaker *CircuitBreaker) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	conns, err := syncer.Store.ListSyncableConnections(ctx)
	if err != nil {
		logger.Audit(fmt.Sprintf("Feed sync: listing connections failed: %v", err))
		return
	}

	for _, conn := range conns {
		connID := conn.ConnectionID
		err := RetryWithBackoff(cfg.MaxRetries, cfg.RetryDelay, func() error {
			return breaker.Execute(func() error {
				result, err := syncer.Sync(ctx, bankfeed.Caller{Scope: "service"}, bankfeed.SyncRequest{
					ConnectionID: connID,
				})
				if err != nil {
					return err
				}
				logger.Sync(fmt.Sprintf("Feed sync %s: imported=%d updated=%d period=%s",
					connID, result.Imported, result.Updated, result.Period))
				return nil
			})
		})
		if err != nil {
			logger.Audit(fmt.Sprintf("Feed sync for %s failed: %v", connID, err))
		}
	}
}

// RunFeedSyncOnce refreshes every syncable connection immediately.
func RunFeedSyncOnce(cfg *FeedSyncConfig, db *pgxpool.Pool) error {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = config.FeedSyncMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Duration(config.FeedSyncRetryDelaySecs) * time.Second
	}

	client, err := aggregator.NewClientFromEnv()
	if err != nil {
		return err
	}
	syncer := &bankfeed.Syncer{Agg: client, Store: bankfeed.NewPgStore(db)}
	runFeedSyncPass(cfg, syncer, NewCircuitBreaker(5, 30*time.Second))
	return nil
}
