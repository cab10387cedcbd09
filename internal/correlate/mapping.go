package correlate

import (
	"github.com/sentinelworks/ise-enrich/internal/models"
)

// FieldMapping maps one ISE source field to one enrichment target path.
// Resolve produces the value from the matched pair; returning false skips
// the field for this event.
type FieldMapping struct {
	Source  string
	Target  string
	Resolve func(event models.AuthEvent, record *models.AssetRecord) (any, bool)
}

// EnrichmentFields is the authoritative mapping between the ISE log
// schema and the enrichment targets. Adding a field pair here is the only
// change needed to enrich a new target path.
var EnrichmentFields = []FieldMapping{
	{
		Source: "Calling-Station-ID",
		Target: "client.ip",
		Resolve: func(_ models.AuthEvent, record *models.AssetRecord) (any, bool) {
			ip := record.PreferredIP()
			return ip, ip != ""
		},
	},
	{
		Source: "Endpoint ID",
		Target: "host.hostname",
		Resolve: func(_ models.AuthEvent, record *models.AssetRecord) (any, bool) {
			return record.Hostname, record.Hostname != ""
		},
	},
	{
		Source: "Event ID",
		Target: "event.code",
		Resolve: func(event models.AuthEvent, _ *models.AssetRecord) (any, bool) {
			return event.EventCode, event.EventCode != ""
		},
	},
	{
		Source: "Auth Status",
		Target: "event.outcome",
		Resolve: func(event models.AuthEvent, _ *models.AssetRecord) (any, bool) {
			return event.AuthStatus, event.AuthStatus != ""
		},
	},
}

// Enrichment walks the mapping table and builds the fields to merge into
// the event document, keyed by target path.
func Enrichment(event models.AuthEvent, record *models.AssetRecord) map[string]any {
	fields := make(map[string]any, len(EnrichmentFields))
	for _, m := range EnrichmentFields {
		if value, ok := m.Resolve(event, record); ok {
			fields[m.Target] = value
		}
	}
	return fields
}
