package cli

import (
	"context"

	"github.com/sentinelworks/ise-enrich/internal/assetdir"
	"github.com/sentinelworks/ise-enrich/internal/checkpoint"
	"github.com/sentinelworks/ise-enrich/internal/enrich"
	"github.com/sentinelworks/ise-enrich/internal/eventsource"
	"github.com/sentinelworks/ise-enrich/internal/pipeline"
)

// app bundles the wired pipeline and the resources that need closing on
// shutdown.
type app struct {
	controller *pipeline.Controller
	cache      *assetdir.Cache
	cleanups   []func()
}

func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

// buildApp wires the pipeline from the loaded config: event source
// client, asset directory cache, batcher, optional NATS report sink and
// optional Redis watermark checkpoint.
func buildApp(ctx context.Context) (*app, error) {
	a := &app{}

	esClient, err := eventsource.New(cfg.Elasticsearch, logger.Logger)
	if err != nil {
		return nil, err
	}

	axClient := assetdir.NewClient(cfg.Axonius, cfg.Pipeline.RequestTimeout(), logger.Logger)
	a.cache = assetdir.NewCache(axClient, cfg.Axonius.DeviceFields, cfg.Axonius.UserFields, logger.Logger)

	batcher := enrich.NewBatcher(esClient, enrich.Limits{
		BatchSize:  cfg.Pipeline.BatchSize,
		MaxRecords: cfg.Pipeline.MaxRecords,
		Workers:    cfg.Pipeline.Workers,
	}, logger.Logger)

	sinks := []pipeline.ReportSink{pipeline.NewLogSink(logger.Logger)}
	if cfg.NATS.Enabled {
		natsSink, err := pipeline.NewNATSSink(cfg.NATS)
		if err != nil {
			a.close()
			return nil, err
		}
		a.cleanups = append(a.cleanups, natsSink.Close)
		sinks = append(sinks, natsSink)
	}

	var cp pipeline.Checkpoint
	if cfg.Redis.Enabled {
		store, err := checkpoint.New(ctx, cfg.Redis)
		if err != nil {
			a.close()
			return nil, err
		}
		a.cleanups = append(a.cleanups, func() { _ = store.Close() })
		cp = store
	}

	a.controller = pipeline.New(
		esClient,
		a.cache,
		batcher,
		cp,
		sinks,
		pipeline.Config{
			Window:         cfg.Pipeline.Window(),
			MaxRecords:     cfg.Pipeline.MaxRecords,
			RequestTimeout: cfg.Pipeline.RequestTimeout(),
			RetryAttempts:  cfg.Pipeline.RetryAttempts,
			RetryBackoff:   cfg.Pipeline.RetryBackoff(),
		},
		logger.Logger,
	)

	return a, nil
}
