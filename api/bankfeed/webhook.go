package bankfeed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"NexoCorpERP/internal/config"
	"NexoCorpERP/internal/logger"
)

// WebhookEvent is the provider's event notification payload. Deliveries are
// not uniform: the event name sometimes arrives as "type" and the connection
// id may be nested under item.id or data.itemId.
type WebhookEvent struct {
	Event  string `json:"event"`
	Type   string `json:"type"`
	ItemID string `json:"itemId"`
	Item   *struct {
		ID string `json:"id"`
	} `json:"item"`
	Data *struct {
		ItemID string `json:"itemId"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e WebhookEvent) eventName() string {
	if e.Event != "" {
		return e.Event
	}
	return e.Type
}

func (e WebhookEvent) connectionID() string {
	if e.ItemID != "" {
		return e.ItemID
	}
	if e.Item != nil && e.Item.ID != "" {
		return e.Item.ID
	}
	if e.Data != nil {
		return e.Data.ItemID
	}
	return ""
}

func isSyncEvent(name string) bool {
	return name == "transactions.updated" || name == "item.updated"
}

// WebhookHandler receives provider event notifications. Authentication and
// payload validation answer 401/400; past that boundary the handler always
// answers 200 with the processing outcome in the body, so the provider
// never re-delivers an event we already consumed.
func WebhookHandler(s *Syncer) http.HandlerFunc {
	secret := os.Getenv("SYNC_SECRET_TOKEN")

	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if token != secret {
				writeFeedError(w, ErrUnauthorized)
				return
			}
		}

		var event WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			writeFeedError(w, &BadRequestError{Reason: "invalid webhook payload"})
			return
		}
		// only sync-triggering events need a connection id; item.error and
		// unknown events get acked regardless
		if isSyncEvent(event.eventName()) && event.connectionID() == "" {
			writeFeedError(w, &BadRequestError{Reason: "webhook payload missing itemId"})
			return
		}

		outcome := processWebhookEvent(r, s, event)
		respondJSON(w, http.StatusOK, outcome)
	}
}

// processWebhookEvent never lets a failure escape as a non-200: errors and
// panics become fields of the acknowledged outcome.
func processWebhookEvent(r *http.Request, s *Syncer, event WebhookEvent) (outcome map[string]interface{}) {
	name := event.eventName()
	itemID := event.connectionID()
	outcome = map[string]interface{}{
		"received": true,
		"event":    name,
		"itemId":   itemID,
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Sync(fmt.Sprintf("webhook: panic while processing %s for %s: %v", name, itemID, rec))
			outcome["processed"] = false
			outcome["error"] = fmt.Sprintf("internal error: %v", rec)
		}
	}()

	switch {
	case isSyncEvent(name):
		result, err := s.Sync(r.Context(), Caller{Scope: "service"}, SyncRequest{
			ConnectionID: itemID,
			DateFrom:     time.Now().AddDate(0, 0, -config.WebhookLookbackDays).Format("2006-01-02"),
		})
		if err != nil {
			logger.Sync(fmt.Sprintf("webhook: resync for %s failed: %v", itemID, err))
			outcome["processed"] = false
			outcome["error"] = err.Error()
			return outcome
		}
		outcome["processed"] = true
		outcome["result"] = result

	case name == "item.error":
		detail := "unknown"
		if event.Error != nil {
			detail = event.Error.Code + ": " + event.Error.Message
		}
		logger.Sync(fmt.Sprintf("webhook: item %s reported error (%s)", itemID, detail))
		outcome["processed"] = true

	default:
		logger.Sync(fmt.Sprintf("webhook: ignoring event %q for %s", name, itemID))
		outcome["processed"] = false
		outcome["reason"] = "unhandled event type"
	}
	return outcome
}

// WebhookHealthHandler lets the provider's endpoint verification probe us.
func WebhookHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
	}
}
