// Package main implements the uplink ingestion loop.
//
// This file contains the Ingestor type which drives the configured uplink
// sources:
//
//	collect → dispatch (heartbeats → telemetry store, images → archive index)
//
// The Ingestor runs continuously via Run(), executing Tick() at regular
// intervals. Each tick collects the new deliveries from every source and
// applies them to the station. A failing source or delivery is logged and
// counted; it never aborts the tick, so one bad payload cannot stall the
// rest of the downlink.
package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nunatak-io/icewatch/cmd/icewatch/metrics"
	"github.com/nunatak-io/icewatch/pkg/archive"
	"github.com/nunatak-io/icewatch/pkg/heartbeat"
	"github.com/nunatak-io/icewatch/pkg/station"
	"github.com/nunatak-io/icewatch/pkg/uplink"
)

// Ingestor feeds uplink deliveries into the station.
type Ingestor struct {
	station *station.Station
	sources []uplink.Source
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewIngestor creates a new Ingestor over the given sources.
func NewIngestor(st *station.Station, sources []uplink.Source, logger *slog.Logger, m *metrics.Metrics) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Ingestor{
		station: st,
		sources: sources,
		logger:  logger,
		metrics: m,
	}
}

// Run executes the ingestion loop at regular intervals.
// Blocks until context is canceled.
func (in *Ingestor) Run(ctx context.Context, interval time.Duration) error {
	in.logger.Info("starting ingestion loop", "interval", interval, "sources", len(in.sources))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := in.Tick(ctx); err != nil {
		in.logger.Error("initial ingestion tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			in.logger.Info("ingestion loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := in.Tick(ctx); err != nil {
				in.logger.Error("ingestion tick failed", "error", err)
			}
		}
	}
}

// Tick performs one collection cycle over all sources.
// Exported for testing purposes.
func (in *Ingestor) Tick(ctx context.Context) error {
	for _, src := range in.sources {
		deliveries, err := src.Collect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			in.logger.Error("uplink collect failed", "source", src.Name(), "error", err)
			if in.metrics != nil {
				in.metrics.RecordError(src.Name(), "collect_failed")
			}
			continue
		}

		for _, d := range deliveries {
			in.dispatch(ctx, d)
		}

		if len(deliveries) > 0 {
			in.logger.Debug("uplink deliveries applied", "source", src.Name(), "count", len(deliveries))
		}
	}

	return ctx.Err()
}

func (in *Ingestor) dispatch(ctx context.Context, d uplink.Delivery) {
	switch {
	case d.Image != nil:
		in.recordImage(ctx, d)
	case d.Heartbeat != nil:
		in.ingestHeartbeat(ctx, d)
	}
}

func (in *Ingestor) ingestHeartbeat(ctx context.Context, d uplink.Delivery) {
	start := time.Now()

	res, err := in.station.IngestHeartbeat(ctx, d.Heartbeat)
	if err != nil {
		if errors.Is(err, heartbeat.ErrMalformedRecord) {
			if in.metrics != nil {
				in.metrics.RecordMalformed()
			}
			return
		}
		in.logger.Error("heartbeat ingestion failed", "source", d.Source, "error", err)
		if in.metrics != nil {
			in.metrics.RecordError("storage", "append_failed")
		}
		return
	}

	if in.metrics != nil {
		in.metrics.RecordIngest(time.Since(start).Seconds())
		in.metrics.RecordHeartbeat(len(res.Accepted))
		for _, k := range res.Dropped {
			in.metrics.RecordDropped(string(k.Kind))
		}
		if len(res.Accepted) > 0 {
			in.metrics.SetLastHeartbeat(res.Timestamp)
		}
	}
}

func (in *Ingestor) recordImage(ctx context.Context, d uplink.Delivery) {
	err := in.station.RecordImage(ctx, d.Image.Camera, d.Image.CapturedAt, d.Image.URL)
	if err != nil {
		if errors.Is(err, archive.ErrUnknownCamera) {
			in.logger.Warn("image for unregistered camera skipped",
				"source", d.Source,
				"camera", d.Image.Camera,
			)
			if in.metrics != nil {
				in.metrics.RecordError("archive", "unknown_camera")
			}
			return
		}
		in.logger.Error("image record failed", "source", d.Source, "camera", d.Image.Camera, "error", err)
		if in.metrics != nil {
			in.metrics.RecordError("storage", "put_image_failed")
		}
		return
	}

	if in.metrics != nil {
		in.metrics.RecordImage()
	}
}
