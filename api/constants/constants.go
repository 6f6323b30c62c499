package constants

// Service ports. The gateway proxies public paths to these.
const (
	GatewayPort  = ":8081"
	BankFeedPort = ":6143"
)

// Bank-feed HTTP surface
const (
	RouteSync            = "/bankfeed/sync"
	RouteWebhook         = "/bankfeed/webhook"
	RouteConnections     = "/bankfeed/connections"
	RouteConnectionsSave = "/bankfeed/connections/save"
	RouteImport          = "/bankfeed/import"
	RouteTransactions    = "/bankfeed/transactions"
)

// Upload limits
const (
	MaxUploadBytes = 32 << 20
)
