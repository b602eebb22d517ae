// Package metabase fetches candidate source rows from a Metabase saved
// question. The pipeline treats Metabase as an opaque upstream; the query
// itself is owned elsewhere.
package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relayloop/capi-dispatch/internal/models"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 400 * time.Millisecond
)

// Config carries the saved-question coordinates and optional template-tag
// parameters. Parameters with empty values are omitted from the query.
type Config struct {
	SiteURL    string
	Token      string
	QuestionID string

	DateStart string
	DateEnd   string
	BotID     string

	DateStartTag string
	DateEndTag   string
	BotIDTag     string
}

// Client queries the Metabase card endpoint.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

// New constructs a Client with the given request timeout.
func New(cfg Config, timeout time.Duration) *Client {
	if cfg.DateStartTag == "" {
		cfg.DateStartTag = "date_start"
	}
	if cfg.DateEndTag == "" {
		cfg.DateEndTag = "date_end"
	}
	if cfg.BotIDTag == "" {
		cfg.BotIDTag = "bot_id"
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
}

// templateTagParam is one entry of the Metabase parameters array targeting a
// template tag in the saved question.
type templateTagParam struct {
	Type   string `json:"type"`
	Target []any  `json:"target"`
	Value  string `json:"value"`
}

func tagParam(tag, value string) templateTagParam {
	return templateTagParam{
		Type:   "category",
		Target: []any{"variable", []any{"template-tag", tag}},
		Value:  value,
	}
}

// FetchRows runs the saved question and decodes the rows. The whole request
// is retried with exponential backoff; the last error is returned when every
// attempt fails.
func (c *Client) FetchRows(ctx context.Context) ([]models.SourceRow, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		rows, err := c.query(ctx)
		if err == nil {
			return rows, nil
		}
		lastErr = err

		if attempt < c.maxAttempts {
			if err := sleepBackoff(ctx, c.baseDelay, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("metabase query failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) query(ctx context.Context) ([]models.SourceRow, error) {
	var params []templateTagParam
	if c.cfg.DateStart != "" {
		params = append(params, tagParam(c.cfg.DateStartTag, c.cfg.DateStart))
	}
	if c.cfg.DateEnd != "" {
		params = append(params, tagParam(c.cfg.DateEndTag, c.cfg.DateEnd))
	}
	if c.cfg.BotID != "" {
		params = append(params, tagParam(c.cfg.BotIDTag, c.cfg.BotID))
	}

	body := map[string]any{}
	if len(params) > 0 {
		body["parameters"] = params
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/card/%s/query/json", c.cfg.SiteURL, c.cfg.QuestionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Metabase-Session", c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("metabase response status %d: %s", resp.StatusCode, msg)
	}

	var rows []models.SourceRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}

	return rows, nil
}

// sleepBackoff waits baseDelay doubled per completed attempt, or returns
// early when the context is done.
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
