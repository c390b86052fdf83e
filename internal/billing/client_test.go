package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBillingAPI mimics the billing control API for one project.
type fakeBillingAPI struct {
	infos       map[string]map[string]any
	stickyPut   bool // when true, updates do not actually unlink the account
	putRequests int
}

func (f *fakeBillingAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/", func(w http.ResponseWriter, r *http.Request) {
		projectID := r.URL.Path[len("/v1/projects/") : len(r.URL.Path)-len("/billingInfo")]
		info, ok := f.infos[projectID]
		if !ok {
			info = map[string]any{"name": "projects/" + projectID + "/billingInfo"}
		}

		if r.Method == http.MethodPut {
			f.putRequests++
			if !f.stickyPut {
				info["billingAccountName"] = ""
				info["billingEnabled"] = false
				f.infos[projectID] = info
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	})
	return mux
}

func newFakeAPI(t *testing.T, f *fakeBillingAPI) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "test-token")
}

func TestIsBillingEnabled_True(t *testing.T) {
	c := newFakeAPI(t, &fakeBillingAPI{infos: map[string]map[string]any{
		"p1": {"billingAccountName": "billingAccounts/ABC", "billingEnabled": true},
	}})

	enabled, err := c.IsBillingEnabled(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestIsBillingEnabled_False(t *testing.T) {
	c := newFakeAPI(t, &fakeBillingAPI{infos: map[string]map[string]any{
		"p1": {"billingAccountName": "", "billingEnabled": false},
	}})

	enabled, err := c.IsBillingEnabled(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestIsBillingEnabled_AbsentInfoIsNotEnabled(t *testing.T) {
	c := newFakeAPI(t, &fakeBillingAPI{infos: map[string]map[string]any{}})

	enabled, err := c.IsBillingEnabled(context.Background(), "unknown-project")
	require.NoError(t, err)
	assert.False(t, enabled, "absent billing info must count as not confirmed enabled")
}

func TestDisableBilling_Success(t *testing.T) {
	api := &fakeBillingAPI{infos: map[string]map[string]any{
		"p1": {"billingAccountName": "billingAccounts/ABC", "billingEnabled": true},
	}}
	c := newFakeAPI(t, api)

	err := c.DisableBilling(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, api.putRequests)
}

func TestDisableBilling_PostConditionFailure(t *testing.T) {
	api := &fakeBillingAPI{
		infos: map[string]map[string]any{
			"p1": {"billingAccountName": "billingAccounts/ABC", "billingEnabled": true},
		},
		stickyPut: true,
	}
	c := newFakeAPI(t, api)

	err := c.DisableBilling(context.Background(), "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBillingControlFailure)
}

func TestClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := NewHTTPClient(srv.URL, "test-token")

	_, err := c.IsBillingEnabled(context.Background(), "p1")
	assert.Error(t, err)

	err = c.DisableBilling(context.Background(), "p1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBillingControlFailure, "transport errors are not post-condition failures")
}
