package assetdir

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sentinelworks/ise-enrich/internal/models"
)

// assetFetcher is the subset of Client the cache needs; narrowed for
// testing.
type assetFetcher interface {
	DiscoverySucceeded(ctx context.Context) (bool, error)
	FetchAssets(ctx context.Context, assetType string, fields []string) ([]map[string]any, error)
}

// Cache holds the current Snapshot and refreshes it wholesale. A failed
// refresh never partially overwrites: the prior snapshot stays in place
// until a complete new one has been built.
type Cache struct {
	mu           sync.RWMutex
	client       assetFetcher
	deviceFields []string
	userFields   []string
	snap         *Snapshot
	log          *slog.Logger
}

// NewCache creates an empty cache backed by the given client.
func NewCache(client assetFetcher, deviceFields, userFields []string, log *slog.Logger) *Cache {
	return &Cache{
		client:       client,
		deviceFields: deviceFields,
		userFields:   userFields,
		log:          log,
	}
}

// Refresh fetches all device and user assets and swaps in a new snapshot.
// All-or-nothing: any failure leaves the existing snapshot untouched and
// returns an error wrapping ErrDirectoryUnavailable.
func (c *Cache) Refresh(ctx context.Context) error {
	ok, err := c.client.DiscoverySucceeded(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: inventory discovery has not succeeded", ErrDirectoryUnavailable)
	}

	rawDevices, err := c.client.FetchAssets(ctx, AssetTypeDevices, c.deviceFields)
	if err != nil {
		return err
	}

	// User records carry hostname associations only; device records are
	// the primary correlation source. A user fetch failure is still a
	// failed refresh.
	rawUsers, err := c.client.FetchAssets(ctx, AssetTypeUsers, c.userFields)
	if err != nil {
		return err
	}

	records := make([]models.AssetRecord, 0, len(rawDevices)+len(rawUsers))
	skipped := 0
	for _, raw := range rawDevices {
		rec, usable := parseAsset(raw)
		if !usable {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	for _, raw := range rawUsers {
		rec, usable := parseUserAsset(raw)
		if !usable {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	snap := BuildSnapshot(records)

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	c.log.Info("asset directory snapshot refreshed",
		slog.Int("assets", snap.Len()),
		slog.Int("skipped", skipped),
	)
	return nil
}

// Snapshot returns the current snapshot, or nil before the first
// successful refresh.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}
