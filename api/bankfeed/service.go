package bankfeed

import (
	"NexoCorpERP/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
)

type BankFeedService struct {
	config map[string]interface{}
	pool   *pgxpool.Pool
}

func NewBankFeedService(cfg map[string]interface{}, pool *pgxpool.Pool) serviceiface.Service {
	return &BankFeedService{config: cfg, pool: pool}
}

func (s *BankFeedService) Name() string {
	return "bankfeed"
}

func (s *BankFeedService) Start() error {
	go StartBankFeedService(s.pool)
	return nil
}

func (s *BankFeedService) Stop() error {
	return nil
}
