package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across the pipeline.
const (
	FieldRunID    = "run_id"
	FieldEventID  = "event_id"
	FieldMAC      = "mac"
	FieldHostname = "hostname"
	FieldBasis    = "basis"
	FieldCount    = "count"
	FieldIndex    = "index"
	FieldDuration = "duration_ms"
	FieldError    = "error"
)

// RunID returns a slog attribute for the pipeline run ID.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// MAC returns a slog attribute for a MAC address.
func MAC(mac string) slog.Attr {
	return slog.String(FieldMAC, mac)
}

// Hostname returns a slog attribute for a hostname.
func Hostname(name string) slog.Attr {
	return slog.String(FieldHostname, name)
}

// Basis returns a slog attribute for a correlation basis.
func Basis(basis string) slog.Attr {
	return slog.String(FieldBasis, basis)
}

// Count returns a slog attribute for a record count.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Index returns a slog attribute for an index name.
func Index(name string) slog.Attr {
	return slog.String(FieldIndex, name)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
