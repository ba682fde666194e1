// Package storage provides durable persistence for telemetry series, the
// camera registry, and image archive records. Every mutation the live state
// accepts is written through one of these stores first, and the Load methods
// hand the full persisted state back for a cold-start rebuild.
package storage

import (
	"context"

	"github.com/nunatak-io/icewatch/pkg/archive"
	"github.com/nunatak-io/icewatch/pkg/timeseries"
)

// Store is the durable persistence contract. Appends and puts must be
// visible to a subsequent Load even across process restarts; a store that
// cannot guarantee that returns an error instead, and callers fail closed.
//
// Store satisfies both timeseries.Log and archive.Log.
type Store interface {
	// AppendPoint durably appends one accepted series point.
	AppendPoint(ctx context.Context, key timeseries.Key, pt timeseries.Point) error

	// PutCamera durably upserts one camera, keyed by name.
	PutCamera(ctx context.Context, cam archive.Camera) error

	// PutImage durably upserts one image record, keyed by
	// (camera, capture time). Retransmissions overwrite the locator.
	PutImage(ctx context.Context, rec archive.ImageRecord) error

	// LoadSeries returns every persisted point grouped by series key, in
	// append order within each series.
	LoadSeries(ctx context.Context) (map[timeseries.Key][]timeseries.Point, error)

	// LoadCameras returns every persisted camera.
	LoadCameras(ctx context.Context) ([]archive.Camera, error)

	// LoadImages returns every persisted image record, ordered by camera
	// and then capture time.
	LoadImages(ctx context.Context) ([]archive.ImageRecord, error)
}
