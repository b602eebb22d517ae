// Package models defines the data shapes flowing through the dispatch pipeline.
package models

import "encoding/json"

// SourceRow is one candidate conversion event as returned by the Metabase
// saved question. Rows are read-only inputs; the pipeline never writes them
// back anywhere.
type SourceRow struct {
	SessionID       string `json:"session_id"`
	PhoneE164       string `json:"phone_e164"`
	MessagesSent    int    `json:"messages_sent"`
	SourceURL       string `json:"source_url"`
	ExperimentLabel string `json:"experiment_label"`
}

// UserData carries the hashed identity fields accepted by the Conversions API.
// Only hashed values ever appear here.
type UserData struct {
	Phones []string `json:"ph"`
}

// OutboundEvent is the payload unit sent to the Conversions API. EventID is
// deterministic for a given (session, experiment) pair so the downstream API
// can collapse duplicate sends on its own.
type OutboundEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	ActionSource   string         `json:"action_source"`
	EventID        string         `json:"event_id"`
	UserData       UserData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data"`
}

// RunResult summarizes one orchestrator run. Meta holds the downstream
// response body verbatim for observability; it is never interpreted.
type RunResult struct {
	Processed int
	Meta      json.RawMessage
}
