// Package pipeline drives one enrichment cycle end to end: refresh the
// asset directory, fetch the event window, correlate and write, then
// report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelworks/ise-enrich/internal/assetdir"
	"github.com/sentinelworks/ise-enrich/internal/eventsource"
	"github.com/sentinelworks/ise-enrich/internal/logging"
	"github.com/sentinelworks/ise-enrich/internal/models"
)

// State names the controller's position in the cycle state machine.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateCorrelating State = "correlating"
	StateReporting   State = "reporting"
)

// EventFetcher reads a bounded window of events from the event source.
type EventFetcher interface {
	FetchBatch(ctx context.Context, windowStart, windowEnd time.Time, maxRecords int) ([]models.AuthEvent, error)
}

// Directory refreshes and exposes the asset snapshot.
type Directory interface {
	Refresh(ctx context.Context) error
	Snapshot() *assetdir.Snapshot
}

// BatchRunner processes fetched events against a snapshot.
type BatchRunner interface {
	Run(ctx context.Context, events []models.AuthEvent, snap *assetdir.Snapshot, report *models.PipelineRunReport) error
}

// Checkpoint persists the end of the last successfully processed window.
type Checkpoint interface {
	LastWindowEnd(ctx context.Context) (time.Time, bool, error)
	SetLastWindowEnd(ctx context.Context, t time.Time) error
}

// Config bounds one controller cycle.
type Config struct {
	Window         time.Duration
	MaxRecords     int
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration
}

// Controller runs pipeline cycles. Safe for use by a scheduler that
// guarantees one cycle at a time.
type Controller struct {
	fetcher    EventFetcher
	directory  Directory
	batcher    BatchRunner
	checkpoint Checkpoint // nil when checkpointing is disabled
	sinks      []ReportSink
	cfg        Config
	log        *slog.Logger

	mu         sync.RWMutex
	state      State
	lastReport atomic.Pointer[models.PipelineRunReport]
}

// New creates a Controller. checkpoint may be nil.
func New(fetcher EventFetcher, directory Directory, batcher BatchRunner, checkpoint Checkpoint, sinks []ReportSink, cfg Config, log *slog.Logger) *Controller {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &Controller{
		fetcher:    fetcher,
		directory:  directory,
		batcher:    batcher,
		checkpoint: checkpoint,
		sinks:      sinks,
		cfg:        cfg,
		log:        log,
		state:      StateIdle,
	}
}

// State returns the controller's current cycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// LastReport returns the most recent run report, or nil before the first
// run.
func (c *Controller) LastReport() *models.PipelineRunReport {
	return c.lastReport.Load()
}

// RunCycle executes one full pipeline cycle. It always returns a report,
// even when the cycle is fatal; a completely unreachable dependency
// yields a report with zero processed events and the fatal flag set.
func (c *Controller) RunCycle(ctx context.Context) *models.PipelineRunReport {
	report := models.NewRunReport(uuid.NewString())
	log := c.log.With(logging.RunID(report.RunID))

	report.WindowStart, report.WindowEnd = c.window(ctx)
	log.Info("pipeline cycle starting",
		slog.Time("window_start", report.WindowStart),
		slog.Time("window_end", report.WindowEnd),
	)

	c.setState(StateFetching)

	// One snapshot refresh per cycle; never mid-cycle. A failed refresh
	// is fatal but leaves the prior snapshot intact for the next attempt.
	if err := c.retry(ctx, "directory refresh", func(cctx context.Context) error {
		return c.directory.Refresh(cctx)
	}); err != nil {
		report.MarkFatal(fmt.Sprintf("asset directory refresh failed: %v", err))
		return c.finish(ctx, report, log)
	}

	snap := c.directory.Snapshot()
	report.SnapshotAssets = snap.Len()

	var events []models.AuthEvent
	// Fetch one past the cap so a truncated cycle is distinguishable
	// from one that exactly filled it.
	if err := c.retry(ctx, "event fetch", func(cctx context.Context) error {
		var ferr error
		events, ferr = c.fetcher.FetchBatch(cctx, report.WindowStart, report.WindowEnd, c.cfg.MaxRecords+1)
		return ferr
	}); err != nil {
		if errors.Is(err, eventsource.ErrQueryError) {
			report.MarkFatal(fmt.Sprintf("event query rejected: %v", err))
		} else {
			report.MarkFatal(fmt.Sprintf("event source unreachable: %v", err))
		}
		return c.finish(ctx, report, log)
	}

	c.setState(StateCorrelating)

	cancelled := c.batcher.Run(ctx, events, snap, report)
	if cancelled != nil {
		log.Warn("pipeline cycle cancelled between batches", logging.Error(cancelled))
	}

	// Advance the watermark only after a complete, uncancelled pass over
	// the window.
	if c.checkpoint != nil && cancelled == nil && !report.Truncated {
		if err := c.checkpoint.SetLastWindowEnd(ctx, report.WindowEnd); err != nil {
			log.Warn("failed to advance watermark", logging.Error(err))
		}
	}

	return c.finish(ctx, report, log)
}

// window derives the cycle's time window. With a checkpoint, the window
// resumes at the stored watermark; otherwise it is a wall-clock lookback.
func (c *Controller) window(ctx context.Context) (time.Time, time.Time) {
	end := time.Now().UTC()
	start := end.Add(-c.cfg.Window)

	if c.checkpoint == nil {
		return start, end
	}

	watermark, ok, err := c.checkpoint.LastWindowEnd(ctx)
	if err != nil {
		c.log.Warn("failed to read watermark, using lookback window", logging.Error(err))
		return start, end
	}
	if ok && watermark.Before(end) {
		return watermark, end
	}
	return start, end
}

// finish finalizes the report, records metrics, publishes to all sinks
// and stores the report for the HTTP surface. Reporting always completes.
func (c *Controller) finish(ctx context.Context, report *models.PipelineRunReport, log *slog.Logger) *models.PipelineRunReport {
	c.setState(StateReporting)
	report.Finalize()

	observeRun(report)

	for _, sink := range c.sinks {
		if err := sink.Publish(ctx, report); err != nil {
			log.Warn("report sink failed", logging.Error(err))
		}
	}

	c.lastReport.Store(report)
	c.setState(StateIdle)
	return report
}

func observeRun(report *models.PipelineRunReport) {
	status := "ok"
	switch {
	case report.Fatal:
		status = "fatal"
	case report.WriteErrors > 0:
		status = "degraded"
	case report.Truncated:
		status = "truncated"
	}
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(report.Elapsed().Seconds())

	eventsRead.Add(float64(report.EventsRead))
	eventsMatched.Add(float64(report.Matched))
	eventsUnmatched.Add(float64(report.Unmatched))
	eventsWritten.Add(float64(report.Written))
	writeErrors.Add(float64(report.WriteErrors))
	snapshotAssets.Set(float64(report.SnapshotAssets))
}

// retry runs fn with a per-attempt timeout and exponential backoff.
// Gives up early when the parent context is done.
func (c *Controller) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		err = fn(cctx)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt == c.cfg.RetryAttempts {
			break
		}

		backoff := c.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
		c.log.Warn("retrying after failure",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			logging.Error(err),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
	}
	return err
}
