package bankfeed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"NexoCorpERP/api/bankfeed/aggregator"
	"NexoCorpERP/api/constants"
	"NexoCorpERP/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemFixture() *aggregator.Item {
	return &aggregator.Item{
		ID:              "item-1",
		Status:          "UPDATED",
		ExecutionStatus: "SUCCESS",
		Connector:       &aggregator.Connector{ID: 201, Name: "Banco Alfa", Country: "BR"},
	}
}

func TestCreateConnectionPersistsAndSyncs(t *testing.T) {
	store := newFakeStore()
	api := &fakeConnectionAPI{item: itemFixture()}
	agg := &fakeAggregator{accounts: []aggregator.Account{{ID: "acc-1"}}}
	s := newTestSyncer(store, agg)
	handler := CreateConnectionHandler(api, s)

	r := httptest.NewRequest("POST", constants.RouteConnections, strings.NewReader(`{"connectorId":201,"parameters":{"cpf":"123"}}`))
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"item-1"`)
	assert.Contains(t, w.Body.String(), "initialSync")

	require.Len(t, store.savedConns, 1)
	saved := store.savedConns[0]
	assert.Equal(t, "item-1", saved.ConnectionID)
	require.NotNil(t, saved.ConnectorID)
	assert.Equal(t, "201", *saved.ConnectorID)
	require.NotNil(t, saved.ConnectorName)
	assert.Equal(t, "Banco Alfa", *saved.ConnectorName)
	assert.Equal(t, 1, agg.listAccountsCalls)

	// initial sync fetches the fixed initial lookback window
	wantFrom := time.Now().AddDate(0, 0, -config.InitialSyncLookbackDays).Format("2006-01-02")
	assert.Equal(t, wantFrom, agg.lastFrom)
}

func TestCreateConnectionStartSyncFalse(t *testing.T) {
	store := newFakeStore()
	api := &fakeConnectionAPI{item: itemFixture()}
	agg := &fakeAggregator{}
	handler := CreateConnectionHandler(api, newTestSyncer(store, agg))

	r := httptest.NewRequest("POST", constants.RouteConnections, strings.NewReader(`{"connectorId":201,"startSync":false}`))
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "initialSync")
	assert.Zero(t, agg.listAccountsCalls)
}

func TestCreateConnectionSurvivesPersistFailure(t *testing.T) {
	store := newFakeStore()
	store.saveErr = &PersistenceError{Op: "save connection"}
	api := &fakeConnectionAPI{item: itemFixture()}
	handler := CreateConnectionHandler(api, newTestSyncer(store, &fakeAggregator{}))

	r := httptest.NewRequest("POST", constants.RouteConnections, strings.NewReader(`{"connectorId":201,"startSync":false}`))
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	// created item is still reported even though persisting failed
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"item-1"`)
}

func TestCreateConnectionValidation(t *testing.T) {
	handler := CreateConnectionHandler(&fakeConnectionAPI{item: itemFixture()}, newTestSyncer(newFakeStore(), &fakeAggregator{}))

	r := httptest.NewRequest("POST", constants.RouteConnections, strings.NewReader(`{}`))
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateConnectionUpstreamFailure(t *testing.T) {
	api := &fakeConnectionAPI{createErr: &aggregator.APIError{Status: 500, Body: "down"}}
	handler := CreateConnectionHandler(api, newTestSyncer(newFakeStore(), &fakeAggregator{}))

	r := httptest.NewRequest("POST", constants.RouteConnections, strings.NewReader(`{"connectorId":201}`))
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetConnectionByID(t *testing.T) {
	store := newFakeStore()
	store.connections["item-1"] = connFixture("item-1")
	handler := GetConnectionHandler(&fakeConnectionAPI{item: itemFixture()}, newTestSyncer(store, &fakeAggregator{}))

	r := httptest.NewRequest("GET", constants.RouteConnections+"?connectionId=item-1", nil)
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"item-1"`)
	assert.Contains(t, w.Body.String(), `"stored"`)
}

func TestGetConnectionListsConnectors(t *testing.T) {
	api := &fakeConnectionAPI{connectors: []aggregator.Connector{
		{ID: 201, Name: "Banco Alfa", Country: "BR"},
		{ID: 202, Name: "Banco Beta", Country: "BR"},
	}}
	handler := GetConnectionHandler(api, newTestSyncer(newFakeStore(), &fakeAggregator{}))

	r := httptest.NewRequest("GET", constants.RouteConnections+"?country=BR", nil)
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Banco Alfa")
	assert.Contains(t, w.Body.String(), "Banco Beta")
}

func TestSaveConnectionRefreshesFromProvider(t *testing.T) {
	store := newFakeStore()
	segment := "seg-1"
	handler := SaveConnectionHandler(&fakeConnectionAPI{item: itemFixture()}, newTestSyncer(store, &fakeAggregator{}))

	body := `{"connectionId":"item-1","segmentId":"` + segment + `","metadata":{"alias":"principal"}}`
	r := httptest.NewRequest("POST", constants.RouteConnectionsSave, strings.NewReader(body))
	r.Header.Set("X-User-Token", userHeader(t, "user-1", "ana@example.com"))
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.savedConns, 1)
	saved := store.savedConns[0]
	require.NotNil(t, saved.SegmentID)
	assert.Equal(t, "seg-1", *saved.SegmentID)
	require.NotNil(t, saved.OwnerUserID)
	assert.Equal(t, "user-1", *saved.OwnerUserID)
	assert.Equal(t, "principal", saved.Metadata["alias"])
}

func TestSaveConnectionRequiresID(t *testing.T) {
	handler := SaveConnectionHandler(&fakeConnectionAPI{item: itemFixture()}, newTestSyncer(newFakeStore(), &fakeAggregator{}))

	r := httptest.NewRequest("POST", constants.RouteConnectionsSave, strings.NewReader(`{}`))
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
