package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sentinelworks/ise-enrich/internal/config"
	"github.com/sentinelworks/ise-enrich/internal/logging"
	"github.com/sentinelworks/ise-enrich/internal/models"
)

// ReportSink receives the finished report of every pipeline run.
type ReportSink interface {
	Publish(ctx context.Context, report *models.PipelineRunReport) error
}

// LogSink writes a summary line per run.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a sink logging through the given logger.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Publish logs the run report. Fatal runs log at error level.
func (s *LogSink) Publish(_ context.Context, report *models.PipelineRunReport) error {
	attrs := []any{
		logging.RunID(report.RunID),
		slog.Int64("events_read", report.EventsRead),
		slog.Int64("matched", report.Matched),
		slog.Int64("unmatched", report.Unmatched),
		slog.Int64("written", report.Written),
		slog.Int64("write_errors", report.WriteErrors),
		slog.Bool("truncated", report.Truncated),
		logging.Duration(report.Elapsed()),
	}

	if report.Fatal {
		attrs = append(attrs, slog.String("reason", report.FatalReason))
		s.log.Error("pipeline run failed", attrs...)
		return nil
	}
	s.log.Info("pipeline run completed", attrs...)
	return nil
}

// NATSSink publishes run reports as JSON to a NATS subject so downstream
// consumers can watch pipeline health.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to NATS and returns a sink for the configured
// subject.
func NewNATSSink(cfg config.NATSConfig) (*NATSSink, error) {
	opts := []nats.Option{
		nats.Name("ise-enrich"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWaitDuration()),
		nats.Timeout(5 * time.Second),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSSink{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends the report to the configured subject.
func (s *NATSSink) Publish(ctx context.Context, report *models.PipelineRunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return s.conn.Publish(s.subject, data)
}

// Close drains the NATS connection.
func (s *NATSSink) Close() {
	s.conn.Close()
}
