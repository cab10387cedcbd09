// Package correlate matches authentication events to asset records. It is
// pure: all lookups go against an immutable directory snapshot, so the
// same inputs always yield the same result.
package correlate

import (
	"github.com/sentinelworks/ise-enrich/internal/assetdir"
	"github.com/sentinelworks/ise-enrich/internal/models"
)

// Correlate resolves an event's identity fields against the directory
// snapshot. Exact MAC match on Calling-Station-ID has highest confidence;
// on a miss the Endpoint ID is interpreted as a hostname. Both misses
// yield BasisNone with no record.
func Correlate(event models.AuthEvent, snap *assetdir.Snapshot) models.CorrelationResult {
	if snap == nil {
		return models.CorrelationResult{Basis: models.BasisNone}
	}

	if event.CallingStationID != "" {
		if rec, ok := snap.LookupByMAC(event.CallingStationID); ok {
			return models.CorrelationResult{Basis: models.BasisExactMAC, Record: rec}
		}
	}

	if event.EndpointID != "" {
		if rec, ok := snap.LookupByHostname(event.EndpointID); ok {
			return models.CorrelationResult{Basis: models.BasisHostname, Record: rec}
		}
	}

	return models.CorrelationResult{Basis: models.BasisNone}
}
