package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capguard/budget-sentinel/internal/config"
	"github.com/capguard/budget-sentinel/internal/handler"
	"github.com/capguard/budget-sentinel/internal/ledger"
	"github.com/capguard/budget-sentinel/internal/ledger/memstore"
	"github.com/capguard/budget-sentinel/internal/metrics"
)

type fakeBilling struct {
	enabled      bool
	disableCalls int
}

func (f *fakeBilling) IsBillingEnabled(context.Context, string) (bool, error) {
	return f.enabled, nil
}

func (f *fakeBilling) DisableBilling(context.Context, string) error {
	f.disableCalls++
	f.enabled = false
	return nil
}

type unreachableStore struct {
	ledger.Store
}

func (unreachableStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func newTestServer(t *testing.T, store ledger.Store, bill *fakeBilling) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	h := handler.New(store, bill, handler.WithMetrics(metrics.New(reg)))
	return New(config.Default().Server, h, store, reg)
}

func rawPayload(t *testing.T, project string, budget, cost float64) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"budgetDisplayName": project,
		"budgetAmount":      budget,
		"costAmount":        cost,
		"costIntervalStart": "2026-08-01T00:00:00Z",
	})
	require.NoError(t, err)
	return []byte(base64.StdEncoding.EncodeToString(raw))
}

func envelope(t *testing.T, payload []byte) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":      string(payload),
			"messageId": "msg-1",
		},
		"subscription": "projects/p/subscriptions/s",
	})
	require.NoError(t, err)
	return body
}

func postEvent(s *Server, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleEvent_RawPayload(t *testing.T) {
	store := memstore.New()
	bill := &fakeBilling{enabled: true}
	s := newTestServer(t, store, bill)

	rec := postEvent(s, rawPayload(t, "proj-a", 100, 40))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	l, err := store.GetLedger(context.Background(),
		ledger.CollectionKey("budget-notifications", "proj-a"))
	require.NoError(t, err)
	assert.Equal(t, 40.0, l.Total())
}

func TestHandleEvent_PushEnvelope(t *testing.T) {
	store := memstore.New()
	bill := &fakeBilling{enabled: true}
	s := newTestServer(t, store, bill)

	rec := postEvent(s, envelope(t, rawPayload(t, "proj-a", 100, 120)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, bill.disableCalls)
}

func TestHandleEvent_MalformedPayload(t *testing.T) {
	s := newTestServer(t, memstore.New(), &fakeBilling{enabled: true})

	rec := postEvent(s, []byte("!!not-base64!!"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["error"]["message"])
}

func TestHandleEvent_EmptyEnvelope(t *testing.T) {
	s := newTestServer(t, memstore.New(), &fakeBilling{enabled: true})

	rec := postEvent(s, []byte(`{"message":{},"subscription":"s"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvent_AlreadyDisabledIsServerError(t *testing.T) {
	s := newTestServer(t, memstore.New(), &fakeBilling{enabled: false})

	rec := postEvent(s, rawPayload(t, "proj-a", 100, 40))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleEvent_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, memstore.New(), &fakeBilling{enabled: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, memstore.New(), &fakeBilling{enabled: true})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
}

func TestHandleHealth_StoreDown(t *testing.T) {
	s := newTestServer(t, unreachableStore{Store: memstore.New()}, &fakeBilling{enabled: true})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	store := memstore.New()
	bill := &fakeBilling{enabled: true}
	s := newTestServer(t, store, bill)

	postEvent(s, rawPayload(t, "proj-a", 100, 40))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "budget_sentinel_notifications_total")
	assert.Contains(t, rec.Body.String(), "budget_sentinel_cost_total")
}
