// Package handlers exposes the HTTP trigger surface.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/relayloop/capi-dispatch/internal/dispatch"
	"github.com/relayloop/capi-dispatch/internal/httputil"
	"github.com/relayloop/capi-dispatch/internal/identity"
	"github.com/relayloop/capi-dispatch/internal/ledger"
	"github.com/relayloop/capi-dispatch/internal/logging"
	"github.com/relayloop/capi-dispatch/internal/models"
)

// nowUnix is overridable in tests.
var nowUnix = func() int64 { return time.Now().Unix() }

// Runner runs one dispatch pass.
type Runner interface {
	Run(ctx context.Context) (*models.RunResult, error)
}

// Handler serves the trigger, health and diagnostic endpoints.
type Handler struct {
	runner       Runner
	source       dispatch.RowSource
	sender       dispatch.EventSender
	ledger       ledger.Ledger
	actionSource string
	log          *logging.Logger
}

// New constructs a Handler. source and sender back the diagnostic endpoints
// only; the scheduled path goes through runner exclusively.
func New(runner Runner, source dispatch.RowSource, sender dispatch.EventSender, led ledger.Ledger, actionSource string, log *logging.Logger) *Handler {
	if actionSource == "" {
		actionSource = "website"
	}
	if log == nil {
		log = logging.Default()
	}
	return &Handler{
		runner:       runner,
		source:       source,
		sender:       sender,
		ledger:       led,
		actionSource: actionSource,
		log:          log,
	}
}

// Dispatch handles the scheduled trigger. GET is allowed alongside POST so
// plain cron invokers can hit it without a body.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := h.runner.Run(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "dispatch run failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{
		"status":    "ok",
		"processed": res.Processed,
	}
	if len(res.Meta) > 0 {
		resp["meta"] = json.RawMessage(res.Meta)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Health reports whether the ledger store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Ping(r.Context()); err != nil {
		h.log.WarnContext(r.Context(), "ledger unreachable", logging.Error(err))
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// DebugFire sends one synthetic event, bypassing the eligibility filter and
// the ledger entirely. Verification only; the router registers it solely
// when debug mode is on.
func (h *Handler) DebugFire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	e164 := q.Get("e164")
	sessionID := q.Get("session_id")
	if e164 == "" || sessionID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "e164 and session_id are required")
		return
	}

	label := q.Get("experiment_label")
	if strings.TrimSpace(label) == "" {
		label = identity.DefaultLabel
	}
	sourceURL := q.Get("source_url")

	var customSourceURL any
	if sourceURL != "" {
		customSourceURL = sourceURL
	}

	evt := models.OutboundEvent{
		EventName:      dispatch.EventName,
		EventTime:      nowUnix(),
		EventSourceURL: sourceURL,
		ActionSource:   h.actionSource,
		EventID:        identity.EventID(sessionID, label),
		UserData:       models.UserData{Phones: []string{identity.Hash(e164)}},
		CustomData: map[string]any{
			"messages_sent":    6,
			"experiment_label": label,
			"source_url":       customSourceURL,
		},
	}

	out, err := h.sender.Send(r.Context(), []models.OutboundEvent{evt})
	if err != nil {
		h.log.ErrorContext(r.Context(), "debug fire failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"out":  json.RawMessage(out),
		"sent": []models.OutboundEvent{evt},
	})
}

// DebugRows dumps the current source rows without dispatching anything.
func (h *Handler) DebugRows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rows, err := h.source.FetchRows(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "debug rows fetch failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rows": rows})
}
