package config

const (
	DefaultTimeZone = "America/Sao_Paulo"

	// Open-banking aggregator defaults
	DefaultAggregatorBaseURL = "https://api.openfinance.dev"
	DefaultAPIKeyCacheTTL    = 600 // seconds
	MinAPIKeyCacheTTL        = 60  // seconds

	// The aggregator caps each transaction request at 500 records
	MaxFetchLimit     = 500
	DefaultFetchLimit = 500

	// Sync windows (days)
	DefaultSyncLookbackDays = 30
	WebhookLookbackDays     = 7
	InitialSyncLookbackDays = 30

	// Scheduled Feed Sync Configuration Constants
	DefaultFeedSyncSchedule = "0 */6 * * *"
	FeedSyncMaxRetries      = 3
	FeedSyncRetryDelaySecs  = 2
	FeedSyncBatchSize       = 100
)
