package assetdir

import (
	"sort"
	"time"

	"github.com/sentinelworks/ise-enrich/internal/models"
	"github.com/sentinelworks/ise-enrich/internal/normalize"
)

// Snapshot is a read-only view of the asset inventory built once per
// refresh. It is safe to share across workers; nothing mutates it after
// construction.
type Snapshot struct {
	records    []models.AssetRecord
	byMAC      map[string]*models.AssetRecord
	byHostname map[string]*models.AssetRecord
	builtAt    time.Time
}

// BuildSnapshot indexes the given records by MAC and short hostname.
// Duplicate inventory entries for the same key are resolved at build time
// by precedence, so lookups stay deterministic: most recent last-seen
// wins, then the record with more populated fields, then the lowest asset
// ID.
func BuildSnapshot(records []models.AssetRecord) *Snapshot {
	ordered := make([]models.AssetRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return higherPrecedence(&ordered[i], &ordered[j])
	})

	s := &Snapshot{
		records:    ordered,
		byMAC:      make(map[string]*models.AssetRecord),
		byHostname: make(map[string]*models.AssetRecord),
		builtAt:    time.Now().UTC(),
	}

	// Records are precedence-ordered, so first writer wins per key.
	for i := range s.records {
		rec := &s.records[i]
		for _, mac := range rec.MACs {
			if _, exists := s.byMAC[mac]; !exists {
				s.byMAC[mac] = rec
			}
		}
		if short, ok := normalize.ShortHostname(rec.Hostname); ok {
			if _, exists := s.byHostname[short]; !exists {
				s.byHostname[short] = rec
			}
		}
	}

	return s
}

// higherPrecedence reports whether a should win over b when both claim
// the same identity key. The order is total: ties on last-seen and field
// count fall through to the asset ID.
func higherPrecedence(a, b *models.AssetRecord) bool {
	if !a.LastSeen.Equal(b.LastSeen) {
		return a.LastSeen.After(b.LastSeen)
	}
	if pa, pb := a.PopulatedFields(), b.PopulatedFields(); pa != pb {
		return pa > pb
	}
	return a.ID < b.ID
}

// LookupByMAC returns the asset owning the given MAC address. The input
// is normalized before lookup.
func (s *Snapshot) LookupByMAC(mac string) (*models.AssetRecord, bool) {
	clean, ok := normalize.MAC(mac)
	if !ok {
		return nil, false
	}
	rec, ok := s.byMAC[clean]
	return rec, ok
}

// LookupByHostname returns the asset with the given hostname. Matching is
// on the normalized short name, so "WKSTN-42" finds "wkstn-42.corp".
func (s *Snapshot) LookupByHostname(name string) (*models.AssetRecord, bool) {
	short, ok := normalize.ShortHostname(name)
	if !ok {
		return nil, false
	}
	rec, ok := s.byHostname[short]
	return rec, ok
}

// Len returns the number of records in the snapshot. A nil snapshot is
// empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// BuiltAt returns when the snapshot was constructed.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}
