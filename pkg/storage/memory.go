package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nunatak-io/icewatch/pkg/archive"
	"github.com/nunatak-io/icewatch/pkg/timeseries"
)

// MemoryStore implements the Store interface in process memory.
// It is safe for concurrent use by multiple goroutines.
//
// MemoryStore offers the Store contract without actual durability: state
// survives a Restore round-trip within one process but not a restart. It is
// the default for development and tests; production deployments use
// RedisStore or PostgresStore instead.
type MemoryStore struct {
	mu      sync.RWMutex
	series  map[timeseries.Key][]timeseries.Point
	cameras map[string]archive.Camera
	images  map[string]map[string]archive.ImageRecord // camera -> RFC3339Nano capture time -> record
}

// NewMemoryStore creates an empty in-memory store, ready to use with no
// additional configuration.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series:  make(map[timeseries.Key][]timeseries.Point),
		cameras: make(map[string]archive.Camera),
		images:  make(map[string]map[string]archive.ImageRecord),
	}
}

// AppendPoint appends a point to the key's persisted series.
//
// Returns an error if the key has no kind or if the context is canceled.
// This operation is safe for concurrent use.
func (s *MemoryStore) AppendPoint(ctx context.Context, key timeseries.Key, pt timeseries.Point) error {
	if key.Kind == "" {
		return fmt.Errorf("series kind cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.series[key] = append(s.series[key], pt)
	return nil
}

// PutCamera stores a camera, replacing any existing camera with the same
// name.
//
// Returns an error if the camera's Name field is empty or if the context is
// canceled. This operation is safe for concurrent use.
func (s *MemoryStore) PutCamera(ctx context.Context, cam archive.Camera) error {
	if cam.Name == "" {
		return fmt.Errorf("camera name cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cameras[cam.Name] = cam
	return nil
}

// PutImage stores an image record, replacing any existing record with the
// same camera and capture time.
//
// Returns an error if the record has no camera or no capture time, or if
// the context is canceled. This operation is safe for concurrent use.
func (s *MemoryStore) PutImage(ctx context.Context, rec archive.ImageRecord) error {
	if rec.Camera == "" {
		return fmt.Errorf("image camera cannot be empty")
	}
	if rec.CapturedAt.IsZero() {
		return fmt.Errorf("image capture time cannot be zero")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byTime, ok := s.images[rec.Camera]
	if !ok {
		byTime = make(map[string]archive.ImageRecord)
		s.images[rec.Camera] = byTime
	}
	byTime[rec.CapturedAt.UTC().Format(time.RFC3339Nano)] = rec
	return nil
}

// LoadSeries returns a copy of every persisted series in append order.
//
// This operation is safe for concurrent use.
func (s *MemoryStore) LoadSeries(ctx context.Context) (map[timeseries.Key][]timeseries.Point, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[timeseries.Key][]timeseries.Point, len(s.series))
	for key, pts := range s.series {
		cp := make([]timeseries.Point, len(pts))
		copy(cp, pts)
		out[key] = cp
	}
	return out, nil
}

// LoadCameras returns every persisted camera, ordered by name.
//
// This operation is safe for concurrent use.
func (s *MemoryStore) LoadCameras(ctx context.Context) ([]archive.Camera, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]archive.Camera, 0, len(s.cameras))
	for _, cam := range s.cameras {
		out = append(out, cam)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadImages returns every persisted image record, ordered by camera and
// then capture time.
//
// This operation is safe for concurrent use.
func (s *MemoryStore) LoadImages(ctx context.Context) ([]archive.ImageRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []archive.ImageRecord
	for _, byTime := range s.images {
		for _, rec := range byTime {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Camera != out[j].Camera {
			return out[i].Camera < out[j].Camera
		}
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out, nil
}

// Len returns the total number of persisted points, cameras, and image
// records. This method is primarily useful for testing and metrics.
//
// This operation is safe for concurrent use.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.cameras)
	for _, pts := range s.series {
		n += len(pts)
	}
	for _, byTime := range s.images {
		n += len(byTime)
	}
	return n
}
