package bankfeed

import (
	"log"
	"net/http"
	"os"

	"NexoCorpERP/api/bankfeed/aggregator"
	"NexoCorpERP/api/constants"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRouter wires every bank-feed endpoint onto one gorilla router.
func NewRouter(pool *pgxpool.Pool, client *aggregator.Client) *mux.Router {
	store := NewPgStore(pool)
	syncer := &Syncer{
		Agg:          client,
		Store:        store,
		ServiceToken: os.Getenv("SYNC_SERVICE_TOKEN"),
	}

	router := mux.NewRouter()
	router.HandleFunc(constants.RouteSync, SyncHandler(syncer)).Methods("POST")
	router.HandleFunc(constants.RouteWebhook, WebhookHandler(syncer)).Methods("POST")
	router.HandleFunc(constants.RouteWebhook, WebhookHealthHandler()).Methods("GET")
	router.HandleFunc(constants.RouteConnections, CreateConnectionHandler(client, syncer)).Methods("POST")
	router.HandleFunc(constants.RouteConnections, GetConnectionHandler(client, syncer)).Methods("GET")
	router.HandleFunc(constants.RouteConnectionsSave, SaveConnectionHandler(client, syncer)).Methods("POST")
	router.HandleFunc(constants.RouteImport, ImportStatementHandler(syncer)).Methods("POST")
	router.HandleFunc(constants.RouteTransactions, ListTransactionsHandler(pool, syncer)).Methods("GET")
	return router
}

// StartBankFeedService runs the bank-feed HTTP service on its own port.
func StartBankFeedService(pool *pgxpool.Pool) {
	client, err := aggregator.NewClientFromEnv()
	if err != nil {
		log.Fatalf("BankFeed Service: %v", err)
	}

	log.Println("BankFeed Service started on " + constants.BankFeedPort)
	if err := http.ListenAndServe(constants.BankFeedPort, NewRouter(pool, client)); err != nil {
		log.Fatalf("BankFeed Service failed: %v", err)
	}
}
