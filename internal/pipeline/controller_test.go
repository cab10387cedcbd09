package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelworks/ise-enrich/internal/assetdir"
	"github.com/sentinelworks/ise-enrich/internal/eventsource"
	"github.com/sentinelworks/ise-enrich/internal/models"
)

type fakeFetcher struct {
	mu       sync.Mutex
	events   []models.AuthEvent
	err      error
	failures int // fail this many calls before succeeding

	calls      int
	maxRecords int
}

func (f *fakeFetcher) FetchBatch(_ context.Context, _, _ time.Time, maxRecords int) ([]models.AuthEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.maxRecords = maxRecords
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return nil, f.err
	}
	return f.events, nil
}

type fakeDirectory struct {
	refreshErr error
	snap       *assetdir.Snapshot
	refreshes  int
}

func (d *fakeDirectory) Refresh(_ context.Context) error {
	d.refreshes++
	if d.refreshErr != nil {
		return d.refreshErr
	}
	if d.snap == nil {
		d.snap = assetdir.BuildSnapshot([]models.AssetRecord{
			{ID: "a1", Hostname: "wkstn-42.corp", MACs: []string{"aa:bb:cc:00:11:22"}, IPs: []string{"10.0.0.4"}},
		})
	}
	return nil
}

func (d *fakeDirectory) Snapshot() *assetdir.Snapshot { return d.snap }

type fakeBatcher struct {
	err      error
	truncate bool
	ran      bool
}

func (b *fakeBatcher) Run(_ context.Context, events []models.AuthEvent, _ *assetdir.Snapshot, report *models.PipelineRunReport) error {
	b.ran = true
	report.EventsRead = int64(len(events))
	report.Matched = int64(len(events))
	report.Written = int64(len(events))
	report.Truncated = b.truncate
	return b.err
}

type fakeCheckpoint struct {
	watermark time.Time
	set       bool
	stored    time.Time
	readErr   error
}

func (c *fakeCheckpoint) LastWindowEnd(_ context.Context) (time.Time, bool, error) {
	if c.readErr != nil {
		return time.Time{}, false, c.readErr
	}
	return c.watermark, !c.watermark.IsZero(), nil
}

func (c *fakeCheckpoint) SetLastWindowEnd(_ context.Context, t time.Time) error {
	c.set = true
	c.stored = t
	return nil
}

type captureSink struct {
	reports []*models.PipelineRunReport
}

func (s *captureSink) Publish(_ context.Context, report *models.PipelineRunReport) error {
	s.reports = append(s.reports, report)
	return nil
}

func (s *captureSink) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Window:         15 * time.Minute,
		MaxRecords:     1000,
		RequestTimeout: time.Second,
		RetryAttempts:  1,
		RetryBackoff:   time.Millisecond,
	}
}

func someEvents(n int) []models.AuthEvent {
	events := make([]models.AuthEvent, n)
	for i := range events {
		events[i] = models.AuthEvent{ID: "e", CallingStationID: "aa:bb:cc:00:11:22"}
	}
	return events
}

func TestRunCycleHappyPath(t *testing.T) {
	fetcher := &fakeFetcher{events: someEvents(3)}
	dir := &fakeDirectory{}
	batcher := &fakeBatcher{}
	sink := &captureSink{}

	ctl := New(fetcher, dir, batcher, nil, []ReportSink{sink}, testConfig(), testLogger())
	report := ctl.RunCycle(context.Background())

	require.NotNil(t, report)
	assert.False(t, report.Fatal)
	assert.Equal(t, int64(3), report.EventsRead)
	assert.Equal(t, 1, report.SnapshotAssets)
	assert.Equal(t, 1, dir.refreshes)
	assert.True(t, batcher.ran)
	assert.False(t, report.CompletedAt.IsZero())

	// The fetch ceiling is one past the cap so truncation stays
	// detectable.
	assert.Equal(t, 1001, fetcher.maxRecords)

	require.Len(t, sink.reports, 1)
	assert.Same(t, report, sink.reports[0])
	assert.Same(t, report, ctl.LastReport())
	assert.Equal(t, StateIdle, ctl.State())
}

func TestRunCycleDirectoryRefreshFatal(t *testing.T) {
	fetcher := &fakeFetcher{events: someEvents(3)}
	dir := &fakeDirectory{refreshErr: assetdir.ErrDirectoryUnavailable}
	batcher := &fakeBatcher{}
	sink := &captureSink{}

	ctl := New(fetcher, dir, batcher, nil, []ReportSink{sink}, testConfig(), testLogger())
	report := ctl.RunCycle(context.Background())

	assert.True(t, report.Fatal)
	assert.Contains(t, report.FatalReason, "asset directory refresh failed")
	assert.Zero(t, report.EventsRead, "no events may be processed without a fresh snapshot")
	assert.False(t, batcher.ran)
	assert.Equal(t, 0, fetcher.calls)

	// The fatal report still reaches the sinks.
	require.Len(t, sink.reports, 1)
}

func TestRunCycleQueryErrorFatal(t *testing.T) {
	fetcher := &fakeFetcher{err: eventsource.ErrQueryError}
	ctl := New(fetcher, &fakeDirectory{}, &fakeBatcher{}, nil, nil, testConfig(), testLogger())

	report := ctl.RunCycle(context.Background())
	assert.True(t, report.Fatal)
	assert.Contains(t, report.FatalReason, "event query rejected")
}

func TestRunCycleSourceUnavailableFatal(t *testing.T) {
	fetcher := &fakeFetcher{err: eventsource.ErrSourceUnavailable}
	ctl := New(fetcher, &fakeDirectory{}, &fakeBatcher{}, nil, nil, testConfig(), testLogger())

	report := ctl.RunCycle(context.Background())
	assert.True(t, report.Fatal)
	assert.Contains(t, report.FatalReason, "event source unreachable")
}

func TestRunCycleRetriesFetch(t *testing.T) {
	fetcher := &fakeFetcher{events: someEvents(2), err: eventsource.ErrSourceUnavailable, failures: 2}

	cfg := testConfig()
	cfg.RetryAttempts = 3
	ctl := New(fetcher, &fakeDirectory{}, &fakeBatcher{}, nil, nil, cfg, testLogger())

	report := ctl.RunCycle(context.Background())
	assert.False(t, report.Fatal)
	assert.Equal(t, 3, fetcher.calls)
	assert.Equal(t, int64(2), report.EventsRead)
}

func TestRunCycleAdvancesWatermark(t *testing.T) {
	cp := &fakeCheckpoint{}
	ctl := New(&fakeFetcher{events: someEvents(1)}, &fakeDirectory{}, &fakeBatcher{}, cp, nil, testConfig(), testLogger())

	report := ctl.RunCycle(context.Background())
	require.False(t, report.Fatal)
	assert.True(t, cp.set)
	assert.True(t, cp.stored.Equal(report.WindowEnd))
}

func TestRunCycleTruncatedHoldsWatermark(t *testing.T) {
	cp := &fakeCheckpoint{}
	batcher := &fakeBatcher{truncate: true}
	ctl := New(&fakeFetcher{events: someEvents(5)}, &fakeDirectory{}, batcher, cp, nil, testConfig(), testLogger())

	report := ctl.RunCycle(context.Background())
	assert.True(t, report.Truncated)
	assert.False(t, cp.set, "a truncated cycle must not advance the watermark")
}

func TestRunCycleCancelledHoldsWatermark(t *testing.T) {
	cp := &fakeCheckpoint{}
	batcher := &fakeBatcher{err: context.Canceled}
	ctl := New(&fakeFetcher{events: someEvents(5)}, &fakeDirectory{}, batcher, cp, nil, testConfig(), testLogger())

	_ = ctl.RunCycle(context.Background())
	assert.False(t, cp.set)
}

func TestRunCycleResumesFromWatermark(t *testing.T) {
	mark := time.Now().UTC().Add(-5 * time.Minute).Truncate(time.Second)
	cp := &fakeCheckpoint{watermark: mark}
	ctl := New(&fakeFetcher{}, &fakeDirectory{}, &fakeBatcher{}, cp, nil, testConfig(), testLogger())

	report := ctl.RunCycle(context.Background())
	assert.True(t, mark.Equal(report.WindowStart), "window must resume at the watermark")
}

func TestRunCycleWatermarkReadFailureFallsBack(t *testing.T) {
	cp := &fakeCheckpoint{readErr: errors.New("redis down")}
	cfg := testConfig()
	ctl := New(&fakeFetcher{}, &fakeDirectory{}, &fakeBatcher{}, cp, nil, cfg, testLogger())

	report := ctl.RunCycle(context.Background())
	assert.False(t, report.Fatal, "an unreadable watermark degrades to the lookback window")
	lookback := report.WindowEnd.Sub(report.WindowStart)
	assert.Equal(t, cfg.Window, lookback)
}

func TestLastReportNilBeforeFirstRun(t *testing.T) {
	ctl := New(&fakeFetcher{}, &fakeDirectory{}, &fakeBatcher{}, nil, nil, testConfig(), testLogger())
	assert.Nil(t, ctl.LastReport())
	assert.Equal(t, StateIdle, ctl.State())
}
