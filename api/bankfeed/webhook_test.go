package bankfeed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"NexoCorpERP/api/bankfeed/aggregator"
	"NexoCorpERP/api/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookBody(event, itemID string) string {
	return `{"event":"` + event + `","itemId":"` + itemID + `"}`
}

func TestWebhookTriggersResync(t *testing.T) {
	store := newFakeStore()
	store.connections["item-1"] = connFixture("item-1")
	agg := &fakeAggregator{
		accounts: []aggregator.Account{{ID: "acc-1"}},
		transactions: map[string][]aggregator.Transaction{
			"acc-1": {{ID: "t1", Amount: 9, Date: "2024-03-01", Description: "Pix"}},
		},
	}
	handler := WebhookHandler(newTestSyncer(store, agg))

	for _, event := range []string{"transactions.updated", "item.updated"} {
		r := httptest.NewRequest("POST", constants.RouteWebhook, strings.NewReader(webhookBody(event, "item-1")))
		w := httptest.NewRecorder()
		handler(w, r)

		require.Equal(t, http.StatusOK, w.Code, event)
		assert.Contains(t, w.Body.String(), `"processed":true`, event)
	}
	assert.Equal(t, 2, agg.listAccountsCalls)
}

func TestWebhookAlwaysAcksProcessingFailures(t *testing.T) {
	store := newFakeStore()
	store.connections["item-1"] = connFixture("item-1")
	agg := &fakeAggregator{accountsErr: &aggregator.APIError{Status: 502, Body: "upstream down"}}
	handler := WebhookHandler(newTestSyncer(store, agg))

	r := httptest.NewRequest("POST", constants.RouteWebhook, strings.NewReader(webhookBody("transactions.updated", "item-1")))
	w := httptest.NewRecorder()
	handler(w, r)

	// the provider still gets a 200 so it does not re-deliver
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed":false`)
	assert.Contains(t, w.Body.String(), "upstream down")
}

func TestWebhookNestedItemID(t *testing.T) {
	store := newFakeStore()
	store.connections["item-1"] = connFixture("item-1")
	agg := &fakeAggregator{
		accounts: []aggregator.Account{{ID: "acc-1"}},
		transactions: map[string][]aggregator.Transaction{
			"acc-1": {{ID: "t1", Amount: 9, Date: "2024-03-01", Description: "Pix"}},
		},
	}
	handler := WebhookHandler(newTestSyncer(store, agg))

	// the id may arrive under item.id or data.itemId, and the event name
	// sometimes comes as "type"
	bodies := []string{
		`{"event":"transactions.updated","item":{"id":"item-1"}}`,
		`{"event":"item.updated","data":{"itemId":"item-1"}}`,
		`{"type":"transactions.updated","itemId":"item-1"}`,
	}
	for _, body := range bodies {
		r := httptest.NewRequest("POST", constants.RouteWebhook, strings.NewReader(body))
		w := httptest.NewRecorder()
		handler(w, r)

		require.Equal(t, http.StatusOK, w.Code, body)
		assert.Contains(t, w.Body.String(), `"processed":true`, body)
		assert.Contains(t, w.Body.String(), `"itemId":"item-1"`, body)
	}
	assert.Equal(t, 3, agg.listAccountsCalls)
}

func TestWebhookItemErrorWithoutItemIDAcked(t *testing.T) {
	store := newFakeStore()
	agg := &fakeAggregator{}
	handler := WebhookHandler(newTestSyncer(store, agg))

	body := `{"event":"item.error","error":{"code":"INVALID_CREDENTIALS","message":"bad creds"}}`
	r := httptest.NewRequest("POST", constants.RouteWebhook, strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed":true`)
	assert.Zero(t, agg.listAccountsCalls)
}

func TestWebhookItemErrorOnlyLogged(t *testing.T) {
	store := newFakeStore()
	agg := &fakeAggregator{}
	handler := WebhookHandler(newTestSyncer(store, agg))

	body := `{"event":"item.error","itemId":"item-1","error":{"code":"INVALID_CREDENTIALS","message":"bad creds"}}`
	r := httptest.NewRequest("POST", constants.RouteWebhook, strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed":true`)
	assert.Zero(t, agg.listAccountsCalls)
	assert.Zero(t, store.upsertCalls)
}

func TestWebhookUnknownEventAcked(t *testing.T) {
	handler := WebhookHandler(newTestSyncer(newFakeStore(), &fakeAggregator{}))

	r := httptest.NewRequest("POST", constants.RouteWebhook, strings.NewReader(webhookBody("connector.updated", "item-1")))
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unhandled event type")
}

func TestWebhookMissingItemID(t *testing.T) {
	handler := WebhookHandler(newTestSyncer(newFakeStore(), &fakeAggregator{}))

	r := httptest.NewRequest("POST", constants.RouteWebhook, strings.NewReader(`{"event":"item.updated"}`))
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookInvalidPayload(t *testing.T) {
	handler := WebhookHandler(newTestSyncer(newFakeStore(), &fakeAggregator{}))

	r := httptest.NewRequest("POST", constants.RouteWebhook, strings.NewReader("not json"))
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookSecretEnforced(t *testing.T) {
	t.Setenv("SYNC_SECRET_TOKEN", "hook-secret")
	handler := WebhookHandler(newTestSyncer(newFakeStore(), &fakeAggregator{}))

	r := httptest.NewRequest("POST", constants.RouteWebhook, strings.NewReader(webhookBody("item.error", "item-1")))
	r.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	handler(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest("POST", constants.RouteWebhook, strings.NewReader(webhookBody("item.error", "item-1")))
	r.Header.Set("Authorization", "Bearer hook-secret")
	w = httptest.NewRecorder()
	handler(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookHealth(t *testing.T) {
	handler := WebhookHealthHandler()

	r := httptest.NewRequest("GET", constants.RouteWebhook, nil)
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
