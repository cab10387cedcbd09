package assetdir

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	discoverySucceeded bool
	discoveryErr       error
	devices            []map[string]any
	users              []map[string]any
	fetchErr           error
}

func (f *fakeFetcher) DiscoverySucceeded(_ context.Context) (bool, error) {
	return f.discoverySucceeded, f.discoveryErr
}

func (f *fakeFetcher) FetchAssets(_ context.Context, assetType string, _ []string) ([]map[string]any, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if assetType == AssetTypeUsers {
		return f.users, nil
	}
	return f.devices, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCacheRefresh(t *testing.T) {
	fetcher := &fakeFetcher{
		discoverySucceeded: true,
		devices: []map[string]any{
			{
				axonID:            "a1",
				axonHostname:      "wkstn-42.corp",
				axonMACsPreferred: []any{"AA:BB:CC:00:11:22"},
				axonIPsPreferred:  []any{"10.0.0.4"},
				axonLastSeen:      "2026-08-20T10:30:00Z",
			},
			{
				// No usable identity; dropped at parse time.
				axonID: "a2",
			},
		},
		users: []map[string]any{
			{
				axonID:           "u1",
				axonAssocDevices: []any{"lt-alice.corp"},
			},
		},
	}

	cache := NewCache(fetcher, nil, nil, testLogger())
	require.Nil(t, cache.Snapshot())

	require.NoError(t, cache.Refresh(context.Background()))

	snap := cache.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Len())

	rec, ok := snap.LookupByMAC("aa:bb:cc:00:11:22")
	require.True(t, ok)
	assert.Equal(t, "wkstn-42.corp", rec.Hostname)
	assert.Equal(t, "10.0.0.4", rec.PreferredIP())

	userRec, ok := snap.LookupByHostname("lt-alice")
	require.True(t, ok)
	assert.Equal(t, "u1", userRec.ID)
}

func TestCacheRefreshFailureKeepsPriorSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{
		discoverySucceeded: true,
		devices: []map[string]any{
			{axonID: "a1", axonMACsPreferred: []any{"aa:bb:cc:00:11:22"}},
		},
	}
	cache := NewCache(fetcher, nil, nil, testLogger())
	require.NoError(t, cache.Refresh(context.Background()))
	prior := cache.Snapshot()

	fetcher.fetchErr = errors.New("connection refused")
	err := cache.Refresh(context.Background())
	require.Error(t, err)

	assert.Same(t, prior, cache.Snapshot(), "failed refresh must not replace the snapshot")
}

func TestCacheRefreshRequiresDiscovery(t *testing.T) {
	fetcher := &fakeFetcher{discoverySucceeded: false}
	cache := NewCache(fetcher, nil, nil, testLogger())

	err := cache.Refresh(context.Background())
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.Nil(t, cache.Snapshot())
}

func TestCacheRefreshDiscoveryError(t *testing.T) {
	fetcher := &fakeFetcher{discoveryErr: ErrDirectoryUnavailable}
	cache := NewCache(fetcher, nil, nil, testLogger())

	err := cache.Refresh(context.Background())
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
}
