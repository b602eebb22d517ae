package capi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayloop/capi-dispatch/internal/models"
)

func testClient(url, testEventCode string) *Client {
	c := New(url, "pixel-1", "secret-token", testEventCode, 5*time.Second)
	c.baseDelay = time.Millisecond
	return c
}

func sampleBatch() []models.OutboundEvent {
	return []models.OutboundEvent{
		{
			EventName:    "ChatMessagesThresholdCrossed",
			EventTime:    1700000000,
			ActionSource: "website",
			EventID:      "chat-threshold:A:s1",
			UserData:     models.UserData{Phones: []string{"abcd"}},
			CustomData:   map[string]any{"messages_sent": 6},
		},
	}
}

func TestSend_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pixel-1/events", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret-token", r.URL.Query().Get("access_token"))
		assert.Empty(t, r.URL.Query().Get("test_event_code"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload struct {
			Data []models.OutboundEvent `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &payload))
		require.Len(t, payload.Data, 1)
		assert.Equal(t, "chat-threshold:A:s1", payload.Data[0].EventID)

		w.Write([]byte(`{"events_received":1,"fbtrace_id":"tr-1"}`))
	}))
	defer server.Close()

	body, err := testClient(server.URL, "").Send(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.JSONEq(t, `{"events_received":1,"fbtrace_id":"tr-1"}`, string(body))
}

func TestSend_TestEventCodeForwarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TEST123", r.URL.Query().Get("test_event_code"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL, "TEST123").Send(context.Background(), sampleBatch())
	require.NoError(t, err)
}

func TestSend_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"events_received":1}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL, "").Send(context.Background(), sampleBatch())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSend_ExhaustsAttempts(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid token"}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL, "").Send(context.Background(), sampleBatch())
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "invalid token")
}

func TestSend_TransportFailureEveryAttempt(t *testing.T) {
	// A server that is already closed fails at the transport layer.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := testClient(server.URL, "").Send(context.Background(), sampleBatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestSend_RawIdentityNeverSerialized(t *testing.T) {
	var raw []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	batch := sampleBatch()
	batch[0].UserData = models.UserData{Phones: []string{"5f7f3b0c"}}

	_, err := testClient(server.URL, "").Send(context.Background(), batch)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "+1555")
	assert.Contains(t, string(raw), "5f7f3b0c")
}
