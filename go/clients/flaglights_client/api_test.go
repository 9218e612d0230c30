package flaglights_client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcdev12/flaglights/go/internal/gateway"
	"github.com/mcdev12/flaglights/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_DecodesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, StatusEndpoint, r.URL.Path)
		_, _ = w.Write([]byte(`{"flag": "yellow", "pending_flag": "red", "delay_seconds": 12,
			"live": true, "connected": true, "selected_devices": ["d1"]}`))
	}))
	defer srv.Close()

	snap, err := NewFlaglightsClient(srv.URL, time.Second).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.FlagYellow, snap.Flag)
	assert.Equal(t, models.FlagRed, snap.PendingFlag)
	assert.Equal(t, 12, snap.DelaySeconds)
	assert.True(t, snap.Live)
	assert.Equal(t, []string{"d1"}, snap.SelectedDevices)
}

func TestActions_DecodesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ActionsEndpoint, r.URL.Path)
		_, _ = w.Write([]byte(`{"actions": [{"id": "6f1c2a7e-3b0d-4a55-9c1e-2f4b8d9a0c11", "type": "flag-update",
			"enqueued_at": "2024-05-26T13:00:00Z", "due_at": "2024-05-26T13:00:05Z", "executed": false}]}`))
	}))
	defer srv.Close()

	actions, err := NewFlaglightsClient(srv.URL, time.Second).Actions(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "6f1c2a7e-3b0d-4a55-9c1e-2f4b8d9a0c11", actions[0].ID.String())
	assert.Equal(t, time.Date(2024, 5, 26, 13, 0, 5, 0, time.UTC), actions[0].DueAt)
	assert.False(t, actions[0].Executed)
}

func TestSetDelay_SendsSeconds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, DelayEndpoint, r.URL.Path)
		assert.Equal(t, JSONContentType, r.Header.Get(ContentTypeHeader))

		var req gateway.DelayRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Seconds)
		_ = json.NewEncoder(w).Encode(gateway.DelayResponse{Seconds: *req.Seconds})
	}))
	defer srv.Close()

	seconds, err := NewFlaglightsClient(srv.URL, time.Second).SetDelay(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 30, seconds)
}

func TestSetDelay_SurfacesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "delay must be non-negative"}`))
	}))
	defer srv.Close()

	_, err := NewFlaglightsClient(srv.URL, time.Second).SetDelay(context.Background(), -1)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "delay must be non-negative", apiErr.Message)
}

func TestNonJSONErrorKeepsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	_, err := NewFlaglightsClient(srv.URL, time.Second).Status(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Contains(t, err.Error(), "504")
}

func TestApplyFlagAndToggle_UsePathParams(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/flags/checkered" {
			_, _ = w.Write([]byte(`{"flag": "green", "applied_flag": "checkered"}`))
			return
		}
		_, _ = w.Write([]byte(`{"selected": ["d1", "d2"]}`))
	}))
	defer srv.Close()

	client := NewFlaglightsClient(srv.URL, time.Second)

	snap, err := client.ApplyFlag(context.Background(), models.FlagCheckered)
	require.NoError(t, err)
	assert.Equal(t, models.FlagCheckered, snap.AppliedFlag)

	selected, err := client.ToggleDevice(context.Background(), "d2")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, selected)

	assert.Equal(t, []string{"/api/flags/checkered", "/api/devices/d2/toggle"}, paths)
}

func TestInjectAndClearTestMessage(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, TestMessageEndpoint, r.URL.Path)
		methods = append(methods, r.Method)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var req gateway.TestMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "RED", req.Flag)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"category": "Flag", "flag": "RED", "message": "RED FLAG", "date": "2026-05-24T13:00:00Z"}`))
	}))
	defer srv.Close()

	client := NewFlaglightsClient(srv.URL, time.Second)

	msg, err := client.InjectTestMessage(context.Background(), gateway.TestMessageRequest{Flag: "RED", Message: "RED FLAG"})
	require.NoError(t, err)
	assert.Equal(t, "RED", msg.RawFlag())

	require.NoError(t, client.ClearTestMessage(context.Background()))
	assert.Equal(t, []string{http.MethodPost, http.MethodDelete}, methods)
}
