package bankfeed

import (
	"encoding/json"
	"time"
)

// Direction classifies a transaction by money flow. The persisted amount is
// always non-negative; direction is the only carrier of sign semantics.
type Direction string

const (
	DirectionReceivable Direction = "receivable" // money in
	DirectionPayable    Direction = "payable"    // money out
)

// Legacy two-valued classification kept in lockstep with Direction for
// consumers that predate the direction column.
const (
	TypeReceita = "receita"
	TypeDespesa = "despesa"
)

const (
	StatusPosted = "POSTED"

	// DefaultDescription replaces empty source descriptions.
	DefaultDescription = "Transação bancária"
)

// CanonicalTransaction is the normalized, storage-ready transaction record
// produced by both the statement parsers and the aggregator normalizer.
type CanonicalTransaction struct {
	ExternalID   string          `json:"externalId"`
	ConnectionID *string         `json:"connectionId,omitempty"`
	AccountID    *string         `json:"accountId,omitempty"`
	Date         string          `json:"date"` // YYYY-MM-DD
	Description  string          `json:"description"`
	Amount       float64         `json:"amount"`
	Direction    Direction       `json:"direction"`
	Type         string          `json:"type"`
	Category     *string         `json:"category,omitempty"`
	Status       string          `json:"status"`
	Institution  *string         `json:"institution,omitempty"`
	Balance      *float64        `json:"balance,omitempty"`
	SegmentID    *string         `json:"segmentId,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// SignedAmount reconstructs the signed value implied by (amount, direction).
func (t CanonicalTransaction) SignedAmount() float64 {
	if t.Direction == DirectionPayable {
		return -t.Amount
	}
	return t.Amount
}

// legacyType returns the receita/despesa value matching a direction.
func legacyType(d Direction) string {
	if d == DirectionPayable {
		return TypeDespesa
	}
	return TypeReceita
}

// BankConnection mirrors one aggregator-side item: a linked credential set
// for an institution, owned by a user and optionally scoped to a segment.
type BankConnection struct {
	ConnectionID    string                 `json:"connectionId"`
	OwnerUserID     *string                `json:"ownerUserId,omitempty"`
	SegmentID       *string                `json:"segmentId,omitempty"`
	ConnectorID     *string                `json:"connectorId,omitempty"`
	ConnectorName   *string                `json:"connectorName,omitempty"`
	Status          string                 `json:"status"`
	ExecutionStatus string                 `json:"executionStatus"`
	LastError       *string                `json:"lastError,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	LastSyncAt      *time.Time             `json:"lastSyncAt,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// UpsertResult reports how a batch landed against the pre-write snapshot.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// SyncResult is the orchestrator's response shape.
type SyncResult struct {
	Imported int    `json:"imported"`
	Updated  int    `json:"updated"`
	Period   string `json:"period"`
	Message  string `json:"message,omitempty"`
}
