// Package scheduler runs pipeline cycles on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelworks/ise-enrich/internal/models"
)

// CycleRunner executes one pipeline cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) *models.PipelineRunReport
}

// Config configures the cycle scheduler.
type Config struct {
	Interval time.Duration
}

// Scheduler triggers one cycle immediately on start and then on every
// interval tick. A tick that arrives while a cycle is still running is
// skipped; cycles never overlap.
type Scheduler struct {
	mu       sync.Mutex
	runner   CycleRunner
	interval time.Duration
	running  bool
	inCycle  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	log      *slog.Logger

	cycles  int64
	skipped int64
	lastRun time.Time
}

// NewScheduler creates a scheduler for the given runner.
func NewScheduler(runner CycleRunner, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: cfg.Interval,
		log:      log,
	}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("pipeline scheduler starting", slog.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-flight cycle.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("pipeline scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	s.mu.Lock()
	if s.inCycle {
		s.skipped++
		s.mu.Unlock()
		s.log.Warn("previous cycle still running, skipping tick")
		return
	}
	s.inCycle = true
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inCycle = false
		s.cycles++
		s.mu.Unlock()
	}()

	s.runner.RunCycle(ctx)
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"cycles":        s.cycles,
		"skipped_ticks": s.skipped,
		"last_run_time": s.lastRun.Format(time.RFC3339),
		"interval":      s.interval.String(),
	}
}
