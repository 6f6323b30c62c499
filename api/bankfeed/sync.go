package bankfeed

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"NexoCorpERP/api/bankfeed/aggregator"
	"NexoCorpERP/api/constants"
	"NexoCorpERP/internal/config"
	"NexoCorpERP/internal/logger"
)

// AggregatorAPI is the slice of the provider client the feed flows use.
type AggregatorAPI interface {
	ListAccounts(ctx context.Context, itemID string) ([]aggregator.Account, error)
	ListTransactions(ctx context.Context, accountID, from, to string, pageSize int) (*aggregator.FetchResult, error)
}

// Syncer drives one reconciliation pass: resolve the target connection,
// fetch the window from the provider, normalize, and upsert.
type Syncer struct {
	Agg          AggregatorAPI
	Store        Store
	ServiceToken string
}

// Caller identifies who requested a sync.
type Caller struct {
	Scope  string // "service" or "user"
	UserID string
	Email  string
}

// SyncRequest is the JSON body accepted by the sync endpoint. All fields
// are optional; missing ones fall back to defaults.
type SyncRequest struct {
	ConnectionID string  `json:"connectionId"`
	AccountID    string  `json:"accountId"`
	DateFrom     string  `json:"dateFrom"`
	DateTo       string  `json:"dateTo"`
	Limit        int     `json:"limit"`
	SegmentID    *string `json:"segmentId"`
}

type userToken struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Authorize accepts either the internal service bearer token or an
// X-User-Token carrying a base64 JSON user identity.
func (s *Syncer) Authorize(r *http.Request) (Caller, error) {
	if auth := r.Header.Get("Authorization"); auth != "" && s.ServiceToken != "" {
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token == s.ServiceToken {
			return Caller{Scope: "service"}, nil
		}
		return Caller{}, ErrUnauthorized
	}

	if raw := r.Header.Get("X-User-Token"); raw != "" {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Caller{}, ErrUnauthorized
		}
		var tok userToken
		if err := json.Unmarshal(decoded, &tok); err != nil || tok.UserID == "" {
			return Caller{}, ErrUnauthorized
		}
		return Caller{Scope: "user", UserID: tok.UserID, Email: tok.Email}, nil
	}

	return Caller{}, ErrUnauthorized
}

// Sync runs one reconciliation pass for the caller and request.
func (s *Syncer) Sync(ctx context.Context, caller Caller, req SyncRequest) (*SyncResult, error) {
	conn, err := s.resolveTarget(ctx, caller, req)
	if err != nil {
		return nil, err
	}

	from, to, err := resolveWindow(req.DateFrom, req.DateTo, config.DefaultSyncLookbackDays)
	if err != nil {
		return nil, err
	}
	period := from + " to " + to

	limit := req.Limit
	if limit <= 0 || limit > config.MaxFetchLimit {
		limit = config.DefaultFetchLimit
	}

	accountIDs, err := s.resolveAccounts(ctx, conn.ConnectionID, req.AccountID)
	if err != nil {
		return nil, err
	}

	fetched := make([]aggregator.Transaction, 0, limit)
	for _, accountID := range accountIDs {
		page, err := s.Agg.ListTransactions(ctx, accountID, from, to, limit)
		if err != nil {
			return nil, wrapUpstream("fetch transactions", err)
		}
		fetched = append(fetched, page.Transactions...)
	}

	if len(fetched) == 0 {
		return &SyncResult{Period: period, Message: constants.MsgNoNewTransaction}, nil
	}

	segment := s.resolveSegment(ctx, caller, req, conn)
	records := make([]CanonicalTransaction, 0, len(fetched))
	for _, tx := range fetched {
		records = append(records, NormalizeAggregatorTransaction(tx, conn.ConnectionID, segment))
	}

	result, err := UpsertBatch(ctx, s.Store, records)
	if err != nil {
		return nil, err
	}

	if err := s.Store.TouchLastSync(ctx, conn.ConnectionID, time.Now()); err != nil {
		logger.Sync(fmt.Sprintf("sync: failed to update last_sync_at for %s: %v", conn.ConnectionID, err))
	}

	return &SyncResult{
		Imported: result.Inserted,
		Updated:  result.Updated,
		Period:   period,
		Message:  fmt.Sprintf("imported %d, updated %d transactions", result.Inserted, result.Updated),
	}, nil
}

func (s *Syncer) resolveTarget(ctx context.Context, caller Caller, req SyncRequest) (*BankConnection, error) {
	if req.ConnectionID != "" {
		conn, err := s.Store.GetConnection(ctx, req.ConnectionID)
		if err != nil {
			return nil, &BadRequestError{Reason: "unknown connection: " + req.ConnectionID}
		}
		return conn, nil
	}

	var owner *string
	if caller.Scope == "user" && caller.UserID != "" {
		owner = &caller.UserID
	}
	conn, err := s.Store.DefaultConnection(ctx, owner)
	if err != nil {
		return nil, &BadRequestError{Reason: "no bank connection available to sync"}
	}
	return conn, nil
}

func (s *Syncer) resolveAccounts(ctx context.Context, connectionID, accountID string) ([]string, error) {
	if accountID != "" {
		return []string{accountID}, nil
	}
	accounts, err := s.Agg.ListAccounts(ctx, connectionID)
	if err != nil {
		return nil, wrapUpstream("list accounts", err)
	}
	ids := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		ids = append(ids, acc.ID)
	}
	if len(ids) == 0 {
		return nil, &BadRequestError{Reason: "connection has no accounts to sync"}
	}
	return ids, nil
}

// resolveSegment picks the cost segment for the batch: explicit request
// value, then the caller's own segment, then the connection's.
func (s *Syncer) resolveSegment(ctx context.Context, caller Caller, req SyncRequest, conn *BankConnection) *string {
	if req.SegmentID != nil && strings.TrimSpace(*req.SegmentID) != "" {
		return req.SegmentID
	}
	if caller.Scope == "user" && caller.UserID != "" {
		if segment, err := s.Store.UserSegment(ctx, caller.UserID); err == nil && segment != nil {
			return segment
		}
	}
	return conn.SegmentID
}

func resolveWindow(from, to string, lookbackDays int) (string, string, error) {
	const layout = "2006-01-02"
	now := time.Now()

	end := now
	if to != "" {
		parsed, err := time.Parse(layout, to)
		if err != nil {
			return "", "", &BadRequestError{Reason: "dateTo must be YYYY-MM-DD"}
		}
		end = parsed
	}

	start := end.AddDate(0, 0, -lookbackDays)
	if from != "" {
		parsed, err := time.Parse(layout, from)
		if err != nil {
			return "", "", &BadRequestError{Reason: "dateFrom must be YYYY-MM-DD"}
		}
		start = parsed
	}

	if start.After(end) {
		return "", "", &BadRequestError{Reason: "dateFrom must not be after dateTo"}
	}
	return start.Format(layout), end.Format(layout), nil
}

func wrapUpstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

// SyncHandler exposes Sync over HTTP.
func SyncHandler(s *Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.Authorize(r)
		if err != nil {
			writeFeedError(w, err)
			return
		}

		var req SyncRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeFeedError(w, &BadRequestError{Reason: "invalid JSON body"})
				return
			}
		}

		result, err := s.Sync(r.Context(), caller, req)
		if err != nil {
			writeFeedError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"result":  result,
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeFeedError maps the feed error taxonomy onto HTTP statuses.
func writeFeedError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrEmptyStatement), errors.Is(err, ErrUnsupportedFormat):
		status = http.StatusUnprocessableEntity
	default:
		var badReq *BadRequestError
		var format *FormatError
		var upstream *UpstreamError
		if errors.As(err, &badReq) {
			status = http.StatusBadRequest
		} else if errors.As(err, &format) {
			status = http.StatusUnprocessableEntity
		} else if errors.As(err, &upstream) {
			status = http.StatusBadGateway
		}
	}
	logger.Sync(fmt.Sprintf("bankfeed: request failed (%d): %v", status, err))
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}
