// Package dispatch sequences the pipeline: fetch, filter, dedup, build,
// deliver, commit.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/relayloop/capi-dispatch/internal/eligibility"
	"github.com/relayloop/capi-dispatch/internal/identity"
	"github.com/relayloop/capi-dispatch/internal/ledger"
	"github.com/relayloop/capi-dispatch/internal/logging"
	"github.com/relayloop/capi-dispatch/internal/metrics"
	"github.com/relayloop/capi-dispatch/internal/models"
)

// EventName is the conversion event emitted by this pipeline.
const EventName = "ChatMessagesThresholdCrossed"

// RowSource yields the current batch of candidate rows.
type RowSource interface {
	FetchRows(ctx context.Context) ([]models.SourceRow, error)
}

// EventSender delivers one batch downstream and returns the raw response.
type EventSender interface {
	Send(ctx context.Context, events []models.OutboundEvent) (json.RawMessage, error)
}

// Config carries the dispatcher's tuning. Zero values get sensible defaults.
type Config struct {
	// Exclusions holds normalized E.164 numbers that must never dispatch.
	Exclusions map[string]struct{}
	// ActionSource tags outbound events; defaults to "website".
	ActionSource string
	// Logger defaults to the process default.
	Logger *logging.Logger
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// Dispatcher runs the pipeline once per Run call. Runs are sequential within
// a process; overlapping runs across processes are not serialized here, the
// deployment guarantees at most one concurrent trigger.
type Dispatcher struct {
	source       RowSource
	sender       EventSender
	ledger       ledger.Ledger
	exclusions   map[string]struct{}
	actionSource string
	log          *logging.Logger
	now          func() time.Time
}

// New constructs a Dispatcher.
func New(source RowSource, sender EventSender, led ledger.Ledger, cfg Config) *Dispatcher {
	if cfg.ActionSource == "" {
		cfg.ActionSource = "website"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Exclusions == nil {
		cfg.Exclusions = map[string]struct{}{}
	}
	return &Dispatcher{
		source:       source,
		sender:       sender,
		ledger:       led,
		exclusions:   cfg.Exclusions,
		actionSource: cfg.ActionSource,
		log:          cfg.Logger,
		now:          cfg.Now,
	}
}

// pendingKey is the ledger coordinate for one batched event.
type pendingKey struct {
	sessionID  string
	experiment string
}

// Run executes one pipeline pass. Any failure aborts the whole run: nothing
// is sent on fetch failure, and no ledger entry is written unless delivery
// was confirmed. The caller retries by invoking the next scheduled run; the
// ledger is what makes that retry safe.
func (d *Dispatcher) Run(ctx context.Context) (*models.RunResult, error) {
	start := time.Now()
	res, err := d.run(ctx)
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	return res, nil
}

func (d *Dispatcher) run(ctx context.Context) (*models.RunResult, error) {
	rows, err := d.source.FetchRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch source rows: %w", err)
	}
	metrics.RowsFetched.Add(float64(len(rows)))

	// Duplicate (session, experiment) pairs within one run collapse onto the
	// last-seen row; batch order stays first-seen.
	var order []string
	events := make(map[string]models.OutboundEvent)
	keys := make(map[string]pendingKey)

	for _, row := range rows {
		if !eligibility.Eligible(row, d.exclusions) {
			metrics.RowsSkipped.WithLabelValues("ineligible").Inc()
			continue
		}

		experiment := strings.TrimSpace(row.ExperimentLabel)
		if experiment == "" {
			experiment = identity.DefaultLabel
		}
		eventID := identity.EventID(row.SessionID, experiment)

		if _, seen := events[eventID]; !seen {
			// A check failure is never read as "not yet dispatched": the run
			// aborts rather than risking a duplicate send.
			already, err := d.ledger.Exists(ctx, row.SessionID, experiment)
			if err != nil {
				return nil, fmt.Errorf("ledger check %s: %w", eventID, err)
			}
			if already {
				metrics.RowsSkipped.WithLabelValues("duplicate").Inc()
				continue
			}
			order = append(order, eventID)
			keys[eventID] = pendingKey{sessionID: row.SessionID, experiment: experiment}
		}

		events[eventID] = d.buildEvent(row, experiment, eventID)
	}

	if len(order) == 0 {
		d.log.InfoContext(ctx, "no dispatchable events", logging.Rows(len(rows)))
		return &models.RunResult{Processed: 0}, nil
	}

	batch := make([]models.OutboundEvent, 0, len(order))
	for _, eventID := range order {
		batch = append(batch, events[eventID])
	}

	meta, err := d.sender.Send(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("deliver batch of %d: %w", len(batch), err)
	}
	metrics.EventsDispatched.Add(float64(len(batch)))

	// Commit only after confirmed delivery. Keys that fail to commit stay
	// eligible next run; the downstream event_id dedup absorbs the replay.
	when := d.now()
	var commitErr error
	for _, eventID := range order {
		key := keys[eventID]
		if err := d.ledger.MarkDispatched(ctx, key.sessionID, key.experiment, when); err != nil {
			d.log.ErrorContext(ctx, "ledger commit failed",
				logging.EventID(eventID), logging.Error(err))
			if commitErr == nil {
				commitErr = err
			}
		}
	}
	if commitErr != nil {
		return nil, fmt.Errorf("commit ledger entries: %w", commitErr)
	}

	d.log.InfoContext(ctx, "dispatch run complete",
		logging.Rows(len(rows)), logging.Processed(len(batch)))

	return &models.RunResult{Processed: len(batch), Meta: meta}, nil
}

func (d *Dispatcher) buildEvent(row models.SourceRow, experiment, eventID string) models.OutboundEvent {
	e164, _ := identity.Normalize(row.PhoneE164)

	var sourceURL any
	if row.SourceURL != "" {
		sourceURL = row.SourceURL
	}

	return models.OutboundEvent{
		EventName:      EventName,
		EventTime:      d.now().Unix(),
		EventSourceURL: row.SourceURL,
		ActionSource:   d.actionSource,
		EventID:        eventID,
		UserData:       models.UserData{Phones: []string{identity.Hash(e164)}},
		CustomData: map[string]any{
			"messages_sent":    row.MessagesSent,
			"experiment_label": experiment,
			"source_url":       sourceURL,
		},
	}
}
