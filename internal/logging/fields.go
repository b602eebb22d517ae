package logging

import "log/slog"

// Common field names for consistent logging across the service.
const (
	FieldService    = "service"
	FieldEventID    = "event_id"
	FieldSessionID  = "session_id"
	FieldExperiment = "experiment"
	FieldProcessed  = "processed"
	FieldRows       = "rows"
	FieldAttempt    = "attempt"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// EventID returns a slog attribute for a downstream event identifier.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// SessionID returns a slog attribute for a session identifier.
func SessionID(id string) slog.Attr {
	return slog.String(FieldSessionID, id)
}

// Experiment returns a slog attribute for an experiment label.
func Experiment(label string) slog.Attr {
	return slog.String(FieldExperiment, label)
}

// Processed returns a slog attribute for a dispatched event count.
func Processed(n int) slog.Attr {
	return slog.Int(FieldProcessed, n)
}

// Rows returns a slog attribute for a fetched row count.
func Rows(n int) slog.Attr {
	return slog.Int(FieldRows, n)
}

// Attempt returns a slog attribute for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
