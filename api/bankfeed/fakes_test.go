package bankfeed

import (
	"context"
	"errors"
	"time"

	"NexoCorpERP/api/bankfeed/aggregator"
)

// fakeStore is an in-memory Store with call counters so tests can assert
// which persistence paths ran.
type fakeStore struct {
	existing    map[string]bool
	connections map[string]*BankConnection
	segments    map[string]*string

	upserted      []CanonicalTransaction
	existsCalls   int
	upsertCalls   int
	touchedAt     map[string]time.Time
	existsErr     error
	upsertErr     error
	saveErr       error
	savedConns    []BankConnection
	defaultConn   *BankConnection
	syncableConns []BankConnection
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		existing:    map[string]bool{},
		connections: map[string]*BankConnection{},
		segments:    map[string]*string{},
		touchedAt:   map[string]time.Time{},
	}
}

func (f *fakeStore) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	f.existsCalls++
	if f.existsErr != nil {
		return nil, f.existsErr
	}
	out := map[string]bool{}
	for _, id := range ids {
		if f.existing[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertTransactions(ctx context.Context, records []CanonicalTransaction) error {
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, records...)
	return nil
}

func (f *fakeStore) GetConnection(ctx context.Context, id string) (*BankConnection, error) {
	if conn, ok := f.connections[id]; ok {
		return conn, nil
	}
	return nil, errors.New("no rows in result set")
}

func (f *fakeStore) DefaultConnection(ctx context.Context, userID *string) (*BankConnection, error) {
	if f.defaultConn != nil {
		return f.defaultConn, nil
	}
	return nil, errors.New("no rows in result set")
}

func (f *fakeStore) ListSyncableConnections(ctx context.Context) ([]BankConnection, error) {
	return f.syncableConns, nil
}

func (f *fakeStore) SaveConnection(ctx context.Context, conn BankConnection) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedConns = append(f.savedConns, conn)
	f.connections[conn.ConnectionID] = &conn
	return nil
}

func (f *fakeStore) TouchLastSync(ctx context.Context, connectionID string, at time.Time) error {
	f.touchedAt[connectionID] = at
	return nil
}

func (f *fakeStore) UserSegment(ctx context.Context, userID string) (*string, error) {
	if segment, ok := f.segments[userID]; ok {
		return segment, nil
	}
	return nil, nil
}

// fakeAggregator serves canned accounts and transactions, with counters.
type fakeAggregator struct {
	accounts     []aggregator.Account
	transactions map[string][]aggregator.Transaction

	listAccountsCalls int
	listTxCalls       int
	lastFrom          string
	lastTo            string
	accountsErr       error
	txErr             error
}

func (f *fakeAggregator) ListAccounts(ctx context.Context, itemID string) ([]aggregator.Account, error) {
	f.listAccountsCalls++
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return f.accounts, nil
}

func (f *fakeAggregator) ListTransactions(ctx context.Context, accountID, from, to string, pageSize int) (*aggregator.FetchResult, error) {
	f.listTxCalls++
	f.lastFrom, f.lastTo = from, to
	if f.txErr != nil {
		return nil, f.txErr
	}
	return &aggregator.FetchResult{
		Transactions: f.transactions[accountID],
		StartDate:    from,
		EndDate:      to,
	}, nil
}

// fakeConnectionAPI backs the connection lifecycle handlers.
type fakeConnectionAPI struct {
	item       *aggregator.Item
	connectors []aggregator.Connector
	createErr  error
	getErr     error
}

func (f *fakeConnectionAPI) CreateItem(ctx context.Context, connectorID int, params map[string]string, webhookURL string) (*aggregator.Item, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.item, nil
}

func (f *fakeConnectionAPI) GetItem(ctx context.Context, itemID string) (*aggregator.Item, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.item, nil
}

func (f *fakeConnectionAPI) ListConnectors(ctx context.Context, country, name string) ([]aggregator.Connector, error) {
	return f.connectors, nil
}
