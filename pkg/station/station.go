// Package station composes the heartbeat parser, telemetry series, camera
// registry, and image archive into the single service object the transport
// layers talk to. One Station is constructed at process start, restored
// from durable storage, and shared by reference between the uplink ingest
// path and the HTTP query path.
package station

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nunatak-io/icewatch/pkg/archive"
	"github.com/nunatak-io/icewatch/pkg/heartbeat"
	"github.com/nunatak-io/icewatch/pkg/timeseries"
)

// Log is the durable write side the station's components write through.
type Log interface {
	timeseries.Log
	archive.Log
}

// Loader is the durable read side used once at cold start.
type Loader interface {
	LoadSeries(ctx context.Context) (map[timeseries.Key][]timeseries.Point, error)
	LoadCameras(ctx context.Context) ([]archive.Camera, error)
	LoadImages(ctx context.Context) ([]archive.ImageRecord, error)
}

// Station is the live state of one field installation: its instrument
// telemetry and its camera archives. All methods are safe for concurrent
// use.
type Station struct {
	logger    *slog.Logger
	telemetry *timeseries.Store
	registry  *archive.Registry
	images    *archive.Index
}

// New creates a Station whose mutations are written through log. log may be
// nil for ephemeral use. If logger is nil, slog.Default() is used.
func New(log Log, logger *slog.Logger) *Station {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		seriesLog  timeseries.Log
		archiveLog archive.Log
	)
	if log != nil {
		seriesLog = log
		archiveLog = log
	}

	registry := archive.NewRegistry(archiveLog)
	return &Station{
		logger:    logger,
		telemetry: timeseries.NewStore(seriesLog),
		registry:  registry,
		images:    archive.NewIndex(registry, archiveLog),
	}
}

// Restore rebuilds the station from durably persisted state: cameras first
// (images reference them), then image records, then telemetry series. It
// must complete before the station is shared with other goroutines.
func (s *Station) Restore(ctx context.Context, loader Loader) error {
	cams, err := loader.LoadCameras(ctx)
	if err != nil {
		return fmt.Errorf("load cameras: %w", err)
	}
	s.registry.Restore(cams)

	recs, err := loader.LoadImages(ctx)
	if err != nil {
		return fmt.Errorf("load images: %w", err)
	}
	images, imagesSkipped := s.images.Restore(recs)

	seed, err := loader.LoadSeries(ctx)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	points, pointsDiscarded := s.telemetry.Restore(seed)

	s.logger.Info("station state restored",
		"cameras", len(cams),
		"images", images,
		"images_skipped", imagesSkipped,
		"points", points,
		"points_discarded", pointsDiscarded,
	)
	return nil
}

// IngestHeartbeat parses one raw status transmission and applies it to the
// telemetry series. Points rejected by the per-sub-key ordering gate are
// reported in the result, not as an error; a parse failure or a storage
// failure is an error and leaves previously ingested state untouched.
func (s *Station) IngestHeartbeat(ctx context.Context, payload []byte) (timeseries.IngestResult, error) {
	snap, err := heartbeat.Parse(payload)
	if err != nil {
		s.logger.Warn("discarding malformed heartbeat", "error", err)
		return timeseries.IngestResult{}, err
	}

	res, err := s.telemetry.Ingest(ctx, snap)
	if err != nil {
		s.logger.Error("heartbeat ingestion failed", "error", err, "timestamp", snap.Timestamp)
		return res, err
	}

	s.logger.Info("heartbeat ingested",
		"timestamp", snap.Timestamp,
		"accepted", len(res.Accepted),
		"dropped", len(res.Dropped),
	)
	return res, nil
}

// RegisterCamera adds or updates a camera in the registry.
func (s *Station) RegisterCamera(ctx context.Context, cam archive.Camera) error {
	return s.registry.Register(ctx, cam)
}

// RecordImage records one captured image in the camera's archive.
// Retransmissions of the same capture refresh the locator.
func (s *Station) RecordImage(ctx context.Context, camera string, capturedAt time.Time, url string) error {
	return s.images.RecordImage(ctx, archive.ImageRecord{
		Camera:     camera,
		CapturedAt: capturedAt,
		Locator:    url,
	})
}

// Cameras returns all registered cameras ordered by name.
func (s *Station) Cameras() []archive.Camera {
	return s.registry.List()
}

// CameraImages returns one page of the camera's archive, newest first.
func (s *Station) CameraImages(name string, page, perPage int) ([]archive.ImageRecord, error) {
	return s.images.List(name, page, perPage)
}

// LatestImage returns the camera's most recent image record.
func (s *Station) LatestImage(name string) (archive.ImageRecord, error) {
	return s.images.Latest(name)
}

// DroppedPoints returns how many telemetry points the ordering gate has
// rejected since start.
func (s *Station) DroppedPoints() uint64 {
	return s.telemetry.DroppedTotal()
}

// CameraSummary is a camera joined with its archive state. LatestImage is
// nil while the archive is empty; that is an expected condition, not an
// error.
type CameraSummary struct {
	Camera      archive.Camera
	ImageCount  int
	LatestImage *archive.ImageRecord
}

// Summary returns the camera's registry entry joined with its archive
// state. Only an unknown camera is an error; an empty archive reports a
// nil LatestImage.
func (s *Station) Summary(name string) (CameraSummary, error) {
	cam, ok := s.registry.Get(name)
	if !ok {
		return CameraSummary{}, fmt.Errorf("camera summary for %q: %w", name, archive.ErrUnknownCamera)
	}

	sum := CameraSummary{Camera: cam}
	if n, err := s.images.Count(name); err == nil {
		sum.ImageCount = n
	}
	latest, err := s.images.Latest(name)
	if err == nil {
		sum.LatestImage = &latest
	}
	return sum, nil
}

// Summaries returns a summary for every registered camera, ordered by name.
func (s *Station) Summaries() []CameraSummary {
	cams := s.registry.List()
	out := make([]CameraSummary, 0, len(cams))
	for _, cam := range cams {
		sum, err := s.Summary(cam.Name)
		if err != nil {
			continue
		}
		out = append(out, sum)
	}
	return out
}
