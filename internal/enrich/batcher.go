// Package enrich orchestrates one run's worth of correlation and
// write-back: bounded batches, a bounded worker pool per batch, and a
// result-collecting accumulator so per-event failures never abort the
// run.
package enrich

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sentinelworks/ise-enrich/internal/assetdir"
	"github.com/sentinelworks/ise-enrich/internal/correlate"
	"github.com/sentinelworks/ise-enrich/internal/logging"
	"github.com/sentinelworks/ise-enrich/internal/models"
)

// Writer submits one event's enrichment fields back to the event source.
type Writer interface {
	WriteEnrichment(ctx context.Context, eventID string, fields map[string]any) error
}

// Limits bounds one run of the batcher.
type Limits struct {
	// BatchSize is the number of events handed to the worker pool at
	// once. Cancellation is only honored between batches.
	BatchSize int

	// MaxRecords caps total processed events per run. Reaching it is a
	// truncated cycle, not an error.
	MaxRecords int

	// Workers bounds concurrent writes within a batch.
	Workers int
}

func (l Limits) withDefaults() Limits {
	if l.BatchSize <= 0 {
		l.BatchSize = 100
	}
	if l.MaxRecords <= 0 {
		l.MaxRecords = 1000
	}
	if l.Workers <= 0 {
		l.Workers = 1
	}
	return l
}

// Batcher drives events through the correlator and writer.
type Batcher struct {
	writer Writer
	limits Limits
	log    *slog.Logger
}

// NewBatcher creates a Batcher. Non-positive limits fall back to
// defaults.
func NewBatcher(writer Writer, limits Limits, log *slog.Logger) *Batcher {
	return &Batcher{
		writer: writer,
		limits: limits.withDefaults(),
		log:    log,
	}
}

// counters accumulates batch results. Workers update it with atomic
// increments; it is folded into the report once the run ends.
type counters struct {
	matched     atomic.Int64
	unmatched   atomic.Int64
	written     atomic.Int64
	writeErrors atomic.Int64
}

// Run processes events against the directory snapshot, merging counts
// into report. Events beyond MaxRecords are not processed and mark the
// report truncated. Returns ctx.Err() when cancelled at a batch boundary;
// counts accumulated so far are still merged.
func (b *Batcher) Run(ctx context.Context, events []models.AuthEvent, snap *assetdir.Snapshot, report *models.PipelineRunReport) error {
	acc := &counters{}
	processed := 0
	var runErr error

	for start := 0; start < len(events); start += b.limits.BatchSize {
		// Cooperative cancellation checkpoint. Never mid-batch, so no
		// write is abandoned half-attributed.
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		if processed >= b.limits.MaxRecords {
			break
		}

		end := min(start+b.limits.BatchSize, len(events))
		if end-start > b.limits.MaxRecords-processed {
			end = start + (b.limits.MaxRecords - processed)
		}

		b.runBatch(ctx, events[start:end], snap, acc)
		processed += end - start
	}

	report.EventsRead += int64(processed)
	report.Matched += acc.matched.Load()
	report.Unmatched += acc.unmatched.Load()
	report.Written += acc.written.Load()
	report.WriteErrors += acc.writeErrors.Load()
	if processed < len(events) && runErr == nil {
		report.Truncated = true
	}

	return runErr
}

// runBatch fans the batch out over the worker pool. Each event is owned
// by exactly one worker for its write; workers never return errors, so
// one failed write cannot cancel its siblings.
func (b *Batcher) runBatch(ctx context.Context, batch []models.AuthEvent, snap *assetdir.Snapshot, acc *counters) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.limits.Workers)

	for i := range batch {
		event := batch[i]
		g.Go(func() error {
			result := correlate.Correlate(event, snap)
			if !result.Matched() {
				acc.unmatched.Add(1)
				return nil
			}
			acc.matched.Add(1)

			fields := correlate.Enrichment(event, result.Record)
			if err := b.writer.WriteEnrichment(gctx, event.ID, fields); err != nil {
				acc.writeErrors.Add(1)
				b.log.Warn("enrichment write failed",
					logging.EventID(event.ID),
					logging.Basis(string(result.Basis)),
					logging.Error(err),
				)
				return nil
			}
			acc.written.Add(1)
			return nil
		})
	}

	// Workers swallow their errors into the accumulator.
	_ = g.Wait()
}
