// Package capi delivers event batches to the Meta Conversions API.
package capi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relayloop/capi-dispatch/internal/metrics"
	"github.com/relayloop/capi-dispatch/internal/models"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 400 * time.Millisecond
)

// Client posts event batches to the Graph API events endpoint.
type Client struct {
	graphURL      string
	pixelID       string
	accessToken   string
	testEventCode string

	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

// New constructs a Client. testEventCode may be empty; when set it is
// forwarded so the downstream marks the events as test traffic.
func New(graphURL, pixelID, accessToken, testEventCode string, timeout time.Duration) *Client {
	return &Client{
		graphURL:      strings.TrimRight(graphURL, "/"),
		pixelID:       pixelID,
		accessToken:   accessToken,
		testEventCode: testEventCode,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
}

// Send serializes the whole batch as one request and retries the whole
// operation on failure. Retrying the full batch is safe because every event
// carries a deterministic event_id the downstream deduplicates on. On
// success the response body is returned verbatim.
func (c *Client) Send(ctx context.Context, events []models.OutboundEvent) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]any{"data": events})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		metrics.DeliveryAttempts.Inc()

		body, err := c.post(ctx, payload)
		if err == nil {
			return body, nil
		}
		metrics.DeliveryErrors.Inc()
		lastErr = err

		if attempt < c.maxAttempts {
			if err := sleepBackoff(ctx, c.baseDelay, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("delivery failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, payload []byte) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/%s/events", c.graphURL, c.pixelID)

	q := url.Values{}
	q.Set("access_token", c.accessToken)
	if c.testEventCode != "" {
		q.Set("test_event_code", c.testEventCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("conversions API status %d: %s", resp.StatusCode, body)
	}

	return body, nil
}

func sleepBackoff(ctx context.Context, baseDelay time.Duration, attempt int) error {
	delay := baseDelay << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
