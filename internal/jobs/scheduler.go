package jobs

import (
	"fmt"
	"log"
	"time"

	"NexoCorpERP/internal/logger"
	"NexoCorpERP/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CronService struct {
	config map[string]interface{}
	db     *pgxpool.Pool
}

func NewCronService(cfg map[string]interface{}, db *pgxpool.Pool) serviceiface.Service {
	return &CronService{
		config: cfg,
		db:     db,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	feedConfig := NewDefaultFeedSyncConfig()

	// Override from services.yaml if provided
	if s.config != nil {
		if schedule, ok := s.config["feed_sync_schedule"].(string); ok && schedule != "" {
			feedConfig.Schedule = schedule
		}
		if tz, ok := s.config["timezone"].(string); ok && tz != "" {
			feedConfig.TimeZone = tz
		}
		if retries, ok := s.config["max_retries"].(int); ok && retries > 0 {
			feedConfig.MaxRetries = retries
		}
		if delay, ok := s.config["retry_delay_secs"].(int); ok && delay > 0 {
			feedConfig.RetryDelay = time.Duration(delay) * time.Second
		}
	}

	err := RunFeedSyncScheduler(feedConfig, s.db)
	if err != nil {
		return fmt.Errorf("failed to start feed sync scheduler: %v", err)
	}

	logger.Audit("Cron service started with bank feed sync scheduler")
	log.Println("Cron service started, bank feed sync scheduled")

	return nil
}

func (s *CronService) Stop() error {
	log.Println("Cron service stopped.")
	return nil
}
