package bankfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"NexoCorpERP/api/bankfeed/aggregator"
	"NexoCorpERP/internal/config"
	"NexoCorpERP/internal/logger"
)

// ConnectionAPI is the slice of the provider client the connection
// lifecycle handlers use.
type ConnectionAPI interface {
	CreateItem(ctx context.Context, connectorID int, parameters map[string]string, webhookURL string) (*aggregator.Item, error)
	GetItem(ctx context.Context, itemID string) (*aggregator.Item, error)
	ListConnectors(ctx context.Context, country, name string) ([]aggregator.Connector, error)
}

type createConnectionRequest struct {
	ConnectorID int               `json:"connectorId"`
	Parameters  map[string]string `json:"parameters"`
	WebhookURL  string            `json:"webhookUrl"`
	SegmentID   *string           `json:"segmentId"`
	StartSync   *bool             `json:"startSync"`
}

// CreateConnectionHandler opens a new provider connection. Persisting the
// record and the optional initial sync are best-effort: the created item is
// reported even when those follow-ups fail.
func CreateConnectionHandler(api ConnectionAPI, s *Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.Authorize(r)
		if err != nil {
			writeFeedError(w, err)
			return
		}

		var req createConnectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeFeedError(w, &BadRequestError{Reason: "invalid JSON body"})
			return
		}
		if req.ConnectorID == 0 {
			writeFeedError(w, &BadRequestError{Reason: "connectorId is required"})
			return
		}

		item, err := api.CreateItem(r.Context(), req.ConnectorID, req.Parameters, req.WebhookURL)
		if err != nil {
			writeFeedError(w, wrapUpstream("create item", err))
			return
		}

		conn := connectionFromItem(item)
		conn.SegmentID = req.SegmentID
		if caller.Scope == "user" && caller.UserID != "" {
			conn.OwnerUserID = &caller.UserID
		}
		if err := s.Store.SaveConnection(r.Context(), conn); err != nil {
			logger.Sync(fmt.Sprintf("connections: failed to persist %s: %v", item.ID, err))
		}

		response := map[string]interface{}{
			"success": true,
			"item":    item,
		}

		startSync := req.StartSync == nil || *req.StartSync
		if startSync {
			result, err := s.Sync(r.Context(), caller, SyncRequest{
				ConnectionID: item.ID,
				DateFrom:     time.Now().AddDate(0, 0, -config.InitialSyncLookbackDays).Format("2006-01-02"),
				SegmentID:    req.SegmentID,
			})
			if err != nil {
				logger.Sync(fmt.Sprintf("connections: initial sync for %s failed: %v", item.ID, err))
				response["initialSync"] = map[string]interface{}{"success": false, "error": err.Error()}
			} else {
				response["initialSync"] = map[string]interface{}{"success": true, "result": result}
			}
		}

		respondJSON(w, http.StatusCreated, response)
	}
}

// GetConnectionHandler returns one connection by id, or lists the
// available connectors when no id is given.
func GetConnectionHandler(api ConnectionAPI, s *Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.Authorize(r); err != nil {
			writeFeedError(w, err)
			return
		}

		connectionID := r.URL.Query().Get("connectionId")
		if connectionID != "" {
			item, err := api.GetItem(r.Context(), connectionID)
			if err != nil {
				writeFeedError(w, wrapUpstream("get item", err))
				return
			}
			stored, err := s.Store.GetConnection(r.Context(), connectionID)
			if err != nil {
				stored = nil
			}
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"item":    item,
				"stored":  stored,
			})
			return
		}

		connectors, err := api.ListConnectors(r.Context(), r.URL.Query().Get("country"), r.URL.Query().Get("name"))
		if err != nil {
			writeFeedError(w, wrapUpstream("list connectors", err))
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"connectors": connectors,
		})
	}
}

type saveConnectionRequest struct {
	ConnectionID string                 `json:"connectionId"`
	SegmentID    *string                `json:"segmentId"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// SaveConnectionHandler refreshes the stored record for a connection from
// the provider's current item state.
func SaveConnectionHandler(api ConnectionAPI, s *Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.Authorize(r)
		if err != nil {
			writeFeedError(w, err)
			return
		}

		var req saveConnectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConnectionID == "" {
			writeFeedError(w, &BadRequestError{Reason: "connectionId is required"})
			return
		}

		item, err := api.GetItem(r.Context(), req.ConnectionID)
		if err != nil {
			writeFeedError(w, wrapUpstream("get item", err))
			return
		}

		conn := connectionFromItem(item)
		conn.SegmentID = req.SegmentID
		conn.Metadata = req.Metadata
		if caller.Scope == "user" && caller.UserID != "" {
			conn.OwnerUserID = &caller.UserID
		}
		if err := s.Store.SaveConnection(r.Context(), conn); err != nil {
			writeFeedError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"connection": conn,
		})
	}
}

func connectionFromItem(item *aggregator.Item) BankConnection {
	conn := BankConnection{
		ConnectionID:    item.ID,
		Status:          item.Status,
		ExecutionStatus: item.ExecutionStatus,
	}
	if item.Connector != nil {
		id := strconv.Itoa(item.Connector.ID)
		conn.ConnectorID = &id
		if item.Connector.Name != "" {
			name := item.Connector.Name
			conn.ConnectorName = &name
		}
	}
	if item.Error != nil {
		if encoded, err := json.Marshal(item.Error); err == nil {
			msg := string(encoded)
			conn.LastError = &msg
		}
	}
	return conn
}
