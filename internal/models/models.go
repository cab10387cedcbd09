// Package models defines the core data types shared across the enrichment
// pipeline: authentication events, asset records, correlation results and
// per-cycle run reports.
package models

import (
	"time"
)

// MatchBasis describes how an AuthEvent was matched to an AssetRecord.
type MatchBasis string

const (
	// BasisExactMAC indicates the event's Calling-Station-ID matched an
	// asset's MAC address exactly.
	BasisExactMAC MatchBasis = "exact-mac"

	// BasisHostname indicates the event's Endpoint ID matched an asset's
	// hostname.
	BasisHostname MatchBasis = "hostname"

	// BasisNone indicates no asset matched.
	BasisNone MatchBasis = "none"
)

// AuthEvent is one indexed authentication record as read from the event
// source. Enrichment is populated by the batcher and written back as a
// partial document update keyed by ID.
type AuthEvent struct {
	ID               string         `json:"id"`
	Timestamp        time.Time      `json:"@timestamp"`
	CallingStationID string         `json:"calling_station_id"`
	EndpointID       string         `json:"endpoint_id"`
	EventCode        string         `json:"event_code"`
	AuthStatus       string         `json:"auth_status"`
	Enrichment       map[string]any `json:"enrichment,omitempty"`
}

// AssetRecord is one device or user entity from the asset inventory.
// Records are immutable once a snapshot is built; lookups share them
// read-only across workers.
type AssetRecord struct {
	ID        string    `json:"id"`
	Hostname  string    `json:"hostname"`
	IPs       []string  `json:"ips"`
	MACs      []string  `json:"macs"`
	OSType    string    `json:"os_type,omitempty"`
	OSVersion string    `json:"os_version,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
	Subnets   []string  `json:"subnets,omitempty"`
}

// PreferredIP returns the record's first preferred IP, or "" when the
// inventory reported none.
func (r *AssetRecord) PreferredIP() string {
	if len(r.IPs) == 0 {
		return ""
	}
	return r.IPs[0]
}

// PopulatedFields counts the non-empty attributes of the record. Used as
// the secondary tie-break between duplicate inventory entries.
func (r *AssetRecord) PopulatedFields() int {
	n := 0
	if r.Hostname != "" {
		n++
	}
	if len(r.IPs) > 0 {
		n++
	}
	if len(r.MACs) > 0 {
		n++
	}
	if r.OSType != "" {
		n++
	}
	if r.OSVersion != "" {
		n++
	}
	if !r.LastSeen.IsZero() {
		n++
	}
	if len(r.Subnets) > 0 {
		n++
	}
	return n
}

// CorrelationResult is the outcome of matching one AuthEvent against the
// directory snapshot. Record is nil when Basis is BasisNone.
type CorrelationResult struct {
	Basis  MatchBasis   `json:"basis"`
	Record *AssetRecord `json:"record,omitempty"`
}

// Matched reports whether the correlation found an asset.
func (c CorrelationResult) Matched() bool {
	return c.Basis != BasisNone && c.Record != nil
}

// PipelineRunReport aggregates the counts for one pipeline cycle. A report
// is always produced, even for a fatal cycle.
type PipelineRunReport struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	EventsRead  int64 `json:"events_read"`
	Matched     int64 `json:"matched"`
	Unmatched   int64 `json:"unmatched"`
	Written     int64 `json:"written"`
	WriteErrors int64 `json:"write_errors"`

	SnapshotAssets int  `json:"snapshot_assets"`
	Truncated      bool `json:"truncated"`

	Fatal       bool   `json:"fatal"`
	FatalReason string `json:"fatal_reason,omitempty"`
}

// NewRunReport creates a report for a cycle starting now.
func NewRunReport(runID string) *PipelineRunReport {
	return &PipelineRunReport{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}
}

// Finalize stamps the completion time.
func (r *PipelineRunReport) Finalize() {
	r.CompletedAt = time.Now().UTC()
}

// Elapsed returns the cycle duration. Zero until Finalize is called.
func (r *PipelineRunReport) Elapsed() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// MarkFatal flags the run as fatally failed. The first reason wins.
func (r *PipelineRunReport) MarkFatal(reason string) {
	if r.Fatal {
		return
	}
	r.Fatal = true
	r.FatalReason = reason
}
