package bankfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence surface the sync and import flows need. The
// production implementation is PgStore; tests substitute fakes.
type Store interface {
	ExistingExternalIDs(ctx context.Context, externalIDs []string) (map[string]bool, error)
	UpsertTransactions(ctx context.Context, records []CanonicalTransaction) error
	GetConnection(ctx context.Context, connectionID string) (*BankConnection, error)
	DefaultConnection(ctx context.Context, userID *string) (*BankConnection, error)
	ListSyncableConnections(ctx context.Context) ([]BankConnection, error)
	SaveConnection(ctx context.Context, conn BankConnection) error
	TouchLastSync(ctx context.Context, connectionID string, at time.Time) error
	UserSegment(ctx context.Context, userID string) (*string, error)
}

// PgStore implements Store on the company schema.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Pool exposes the underlying pool for read-only listing handlers.
func (s *PgStore) Pool() *pgxpool.Pool {
	return s.pool
}

// ExistingExternalIDs answers which of the candidate ids are already
// persisted, in a single round trip.
func (s *PgStore) ExistingExternalIDs(ctx context.Context, externalIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(externalIDs))
	if len(externalIDs) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT external_id FROM nexocorp.financial_transactions WHERE external_id = ANY($1)`,
		externalIDs,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "query existing external ids", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &PersistenceError{Op: "scan existing external id", Err: err}
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate existing external ids", Err: err}
	}
	return existing, nil
}

// UpsertTransactions writes the batch with a multi-row insert. Conflicts on
// external_id replace the stored row with the incoming one.
func (s *PgStore) UpsertTransactions(ctx context.Context, records []CanonicalTransaction) error {
	if len(records) == 0 {
		return nil
	}

	const cols = 14
	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]interface{}, 0, len(records)*cols)

	for i, rec := range records {
		base := i * cols
		placeholders := make([]string, cols)
		for j := 0; j < cols; j++ {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		var raw interface{}
		if len(rec.Raw) > 0 {
			raw = []byte(rec.Raw)
		}
		valueArgs = append(valueArgs,
			rec.ExternalID,
			rec.ConnectionID,
			rec.AccountID,
			rec.Date,
			rec.Description,
			rec.Amount,
			string(rec.Direction),
			rec.Type,
			rec.Status,
			rec.Balance,
			rec.Category,
			rec.Institution,
			rec.SegmentID,
			raw,
		)
	}

	query := `
		INSERT INTO nexocorp.financial_transactions (
			external_id, connection_id, account_id, date, description,
			amount, direction, type, status, balance,
			category, institution, segment_id, raw
		) VALUES ` + strings.Join(valueStrings, ",") + `
		ON CONFLICT (external_id) DO UPDATE SET
			connection_id = EXCLUDED.connection_id,
			account_id = EXCLUDED.account_id,
			date = EXCLUDED.date,
			description = EXCLUDED.description,
			amount = EXCLUDED.amount,
			direction = EXCLUDED.direction,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			balance = EXCLUDED.balance,
			category = EXCLUDED.category,
			institution = EXCLUDED.institution,
			segment_id = EXCLUDED.segment_id,
			raw = EXCLUDED.raw,
			updated_at = now()`

	if _, err := s.pool.Exec(ctx, query, valueArgs...); err != nil {
		return &PersistenceError{Op: "upsert transactions", Err: err}
	}
	return nil
}

func (s *PgStore) GetConnection(ctx context.Context, connectionID string) (*BankConnection, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT connection_id, owner_user_id, segment_id, connector_id, connector_name,
		       status, execution_status, last_error, metadata, last_sync_at, created_at, updated_at
		FROM nexocorp.bank_connections
		WHERE connection_id = $1`,
		connectionID,
	)
	return scanConnection(row)
}

// DefaultConnection returns the most recently updated connection, scoped to
// the owner when one is given. Used when a sync request names no target.
func (s *PgStore) DefaultConnection(ctx context.Context, userID *string) (*BankConnection, error) {
	query := `
		SELECT connection_id, owner_user_id, segment_id, connector_id, connector_name,
		       status, execution_status, last_error, metadata, last_sync_at, created_at, updated_at
		FROM nexocorp.bank_connections`
	args := []interface{}{}
	if userID != nil {
		query += ` WHERE owner_user_id = $1`
		args = append(args, *userID)
	}
	query += ` ORDER BY updated_at DESC LIMIT 1`

	row := s.pool.QueryRow(ctx, query, args...)
	return scanConnection(row)
}

// ListSyncableConnections returns the connections the scheduler should
// refresh. Connections waiting on the user are skipped.
func (s *PgStore) ListSyncableConnections(ctx context.Context) ([]BankConnection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT connection_id, owner_user_id, segment_id, connector_id, connector_name,
		       status, execution_status, last_error, metadata, last_sync_at, created_at, updated_at
		FROM nexocorp.bank_connections
		WHERE COALESCE(execution_status, '') NOT IN ('INVALID_CREDENTIALS', 'USER_INPUT_TIMEOUT')
		ORDER BY last_sync_at NULLS FIRST`)
	if err != nil {
		return nil, &PersistenceError{Op: "list syncable connections", Err: err}
	}
	defer rows.Close()

	conns := make([]BankConnection, 0, 8)
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate syncable connections", Err: err}
	}
	return conns, nil
}

func (s *PgStore) SaveConnection(ctx context.Context, conn BankConnection) error {
	var metadata interface{}
	if conn.Metadata != nil {
		encoded, err := json.Marshal(conn.Metadata)
		if err != nil {
			return &PersistenceError{Op: "encode connection metadata", Err: err}
		}
		metadata = encoded
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO nexocorp.bank_connections (
			connection_id, owner_user_id, segment_id, connector_id, connector_name,
			status, execution_status, last_error, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (connection_id) DO UPDATE SET
			owner_user_id = COALESCE(EXCLUDED.owner_user_id, nexocorp.bank_connections.owner_user_id),
			segment_id = COALESCE(EXCLUDED.segment_id, nexocorp.bank_connections.segment_id),
			connector_id = COALESCE(EXCLUDED.connector_id, nexocorp.bank_connections.connector_id),
			connector_name = COALESCE(EXCLUDED.connector_name, nexocorp.bank_connections.connector_name),
			status = EXCLUDED.status,
			execution_status = EXCLUDED.execution_status,
			last_error = EXCLUDED.last_error,
			metadata = COALESCE(EXCLUDED.metadata, nexocorp.bank_connections.metadata),
			updated_at = now()`,
		conn.ConnectionID, conn.OwnerUserID, conn.SegmentID, conn.ConnectorID, conn.ConnectorName,
		conn.Status, conn.ExecutionStatus, conn.LastError, metadata,
	)
	if err != nil {
		return &PersistenceError{Op: "save connection", Err: err}
	}
	return nil
}

func (s *PgStore) TouchLastSync(ctx context.Context, connectionID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE nexocorp.bank_connections SET last_sync_at = $2, updated_at = now() WHERE connection_id = $1`,
		connectionID, at,
	)
	if err != nil {
		return &PersistenceError{Op: "touch last sync", Err: err}
	}
	return nil
}

func (s *PgStore) UserSegment(ctx context.Context, userID string) (*string, error) {
	var segment *string
	err := s.pool.QueryRow(ctx,
		`SELECT segment_id FROM nexocorp.users WHERE id = $1`,
		userID,
	).Scan(&segment)
	if err != nil {
		return nil, &PersistenceError{Op: "lookup user segment", Err: err}
	}
	return segment, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row rowScanner) (*BankConnection, error) {
	var conn BankConnection
	var metadata []byte
	err := row.Scan(
		&conn.ConnectionID, &conn.OwnerUserID, &conn.SegmentID, &conn.ConnectorID, &conn.ConnectorName,
		&conn.Status, &conn.ExecutionStatus, &conn.LastError, &metadata,
		&conn.LastSyncAt, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "scan connection", Err: err}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &conn.Metadata); err != nil {
			return nil, &PersistenceError{Op: "decode connection metadata", Err: err}
		}
	}
	return &conn, nil
}
