package metabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	c := New(Config{
		SiteURL:    url,
		Token:      "session-token",
		QuestionID: "42",
	}, 5*time.Second)
	c.baseDelay = time.Millisecond
	return c
}

func TestFetchRows_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/card/42/query/json", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "session-token", r.Header.Get("X-Metabase-Session"))

		// No template-tag values configured, so no parameters key.
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "parameters")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"session_id":"s1","phone_e164":"+15550001111","messages_sent":6,"source_url":"https://x","experiment_label":"A"}]`))
	}))
	defer server.Close()

	rows, err := testClient(server.URL).FetchRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0].SessionID)
	assert.Equal(t, "+15550001111", rows[0].PhoneE164)
	assert.Equal(t, 6, rows[0].MessagesSent)
	assert.Equal(t, "https://x", rows[0].SourceURL)
	assert.Equal(t, "A", rows[0].ExperimentLabel)
}

func TestFetchRows_NullFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"session_id":"s2","phone_e164":null,"messages_sent":9,"source_url":null}]`))
	}))
	defer server.Close()

	rows, err := testClient(server.URL).FetchRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].PhoneE164)
	assert.Equal(t, "", rows[0].SourceURL)
	assert.Equal(t, "", rows[0].ExperimentLabel)
}

func TestFetchRows_TemplateTagParameters(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := New(Config{
		SiteURL:    server.URL,
		Token:      "tok",
		QuestionID: "7",
		DateStart:  "2026-01-01",
		BotID:      "bot-9",
	}, 5*time.Second)
	c.baseDelay = time.Millisecond

	_, err := c.FetchRows(context.Background())
	require.NoError(t, err)

	params, ok := captured["parameters"].([]any)
	require.True(t, ok)
	require.Len(t, params, 2)

	first := params[0].(map[string]any)
	assert.Equal(t, "category", first["type"])
	assert.Equal(t, "2026-01-01", first["value"])

	target := first["target"].([]any)
	assert.Equal(t, "variable", target[0])
	inner := target[1].([]any)
	assert.Equal(t, "template-tag", inner[0])
	assert.Equal(t, "date_start", inner[1])
}

func TestFetchRows_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	rows, err := testClient(server.URL).FetchRows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 3, calls)
}

func TestFetchRows_ExhaustsAttempts(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`boom`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).FetchRows(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "boom")
}

func TestFetchRows_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := testClient(server.URL)
	c.baseDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.FetchRows(ctx)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("FetchRows did not return after cancellation")
	}
}
