package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// Pagination bounds applied by List. Requests outside these bounds are
// normalized, never rejected.
const (
	DefaultPerPage = 30
	MaxPerPage     = 100
)

// Index maintains one ordered image archive per registered camera.
// It is safe for concurrent use by multiple goroutines.
//
// Per-camera archives are independent: recording an image for one camera
// never contends with reads or writes on another. Within one camera,
// mutations are serialized and readers proceed concurrently.
type Index struct {
	registry *Registry
	log      Log

	mu       sync.RWMutex
	archives map[string]*cameraArchive
}

// cameraArchive holds one camera's records ordered newest-first, so page 1
// starts at position 0 and retrieval costs O(log n + perPage). The tree's
// own locking is disabled; the archive mutex covers it and the latest
// pointer together.
type cameraArchive struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[ImageRecord]
	latest ImageRecord
}

func newCameraArchive() *cameraArchive {
	return &cameraArchive{
		tree: btree.NewBTreeGOptions(func(a, b ImageRecord) bool {
			return a.CapturedAt.After(b.CapturedAt)
		}, btree.Options{NoLocks: true}),
	}
}

// NewIndex creates an empty index over the cameras in registry. log may be
// nil, in which case records are held in memory only.
func NewIndex(registry *Registry, log Log) *Index {
	return &Index{
		registry: registry,
		log:      log,
		archives: make(map[string]*cameraArchive),
	}
}

// RecordImage inserts rec into its camera's archive, or refreshes the
// locator when the (camera, capture time) pair was already recorded: the
// uplink retries transmissions, so inserts must be idempotent. The record
// is persisted before it becomes visible. The latest-image pointer is
// updated in the same critical section when the capture time is the new
// maximum.
//
// Returns ErrUnknownCamera when rec.Camera is not registered.
func (ix *Index) RecordImage(ctx context.Context, rec ImageRecord) error {
	if !ix.registry.Has(rec.Camera) {
		return fmt.Errorf("record image for %q: %w", rec.Camera, ErrUnknownCamera)
	}

	arch := ix.bucket(rec.Camera)
	arch.mu.Lock()
	defer arch.mu.Unlock()

	if ix.log != nil {
		if err := ix.log.PutImage(ctx, rec); err != nil {
			return fmt.Errorf("persist image %s at %s: %w",
				rec.Camera, rec.CapturedAt.Format(time.RFC3339), err)
		}
	}

	arch.tree.Set(rec)
	if arch.latest.CapturedAt.IsZero() || !rec.CapturedAt.Before(arch.latest.CapturedAt) {
		arch.latest = rec
	}
	return nil
}

// List returns up to perPage records for the camera in descending capture
// order. Pages are 1-indexed: page p starts at offset (p-1)*perPage. Pages
// beyond the data return an empty slice, not an error. page and perPage are
// normalized first (page < 1 becomes 1; perPage < 1 becomes DefaultPerPage,
// values above MaxPerPage are capped).
//
// Returns ErrUnknownCamera when the camera is not registered.
func (ix *Index) List(camera string, page, perPage int) ([]ImageRecord, error) {
	if !ix.registry.Has(camera) {
		return nil, fmt.Errorf("list images for %q: %w", camera, ErrUnknownCamera)
	}
	page, perPage = normalizePage(page, perPage)

	arch := ix.archive(camera)
	if arch == nil {
		return nil, nil
	}

	arch.mu.RLock()
	defer arch.mu.RUnlock()

	pivot, ok := arch.tree.GetAt((page - 1) * perPage)
	if !ok {
		return nil, nil
	}
	out := make([]ImageRecord, 0, perPage)
	arch.tree.Ascend(pivot, func(rec ImageRecord) bool {
		out = append(out, rec)
		return len(out) < perPage
	})
	return out, nil
}

// Latest returns the camera's most recent record via the maintained
// pointer, without touching the tree.
//
// Returns ErrUnknownCamera when the camera is not registered and
// ErrNoImages when it is registered but has no records yet.
func (ix *Index) Latest(camera string) (ImageRecord, error) {
	if !ix.registry.Has(camera) {
		return ImageRecord{}, fmt.Errorf("latest image for %q: %w", camera, ErrUnknownCamera)
	}

	arch := ix.archive(camera)
	if arch == nil {
		return ImageRecord{}, fmt.Errorf("latest image for %q: %w", camera, ErrNoImages)
	}

	arch.mu.RLock()
	defer arch.mu.RUnlock()
	if arch.latest.CapturedAt.IsZero() {
		return ImageRecord{}, fmt.Errorf("latest image for %q: %w", camera, ErrNoImages)
	}
	return arch.latest, nil
}

// Count returns the number of records in the camera's archive.
//
// Returns ErrUnknownCamera when the camera is not registered.
func (ix *Index) Count(camera string) (int, error) {
	if !ix.registry.Has(camera) {
		return 0, fmt.Errorf("count images for %q: %w", camera, ErrUnknownCamera)
	}
	arch := ix.archive(camera)
	if arch == nil {
		return 0, nil
	}
	arch.mu.RLock()
	defer arch.mu.RUnlock()
	return arch.tree.Len(), nil
}

// Restore replaces the index contents from durably persisted records,
// typically at cold start, without writing back to the log. Duplicate
// (camera, capture time) pairs collapse to the last locator seen; records
// for cameras that are no longer registered are skipped. Latest pointers
// are derived from the rebuilt trees, the one place they are not maintained
// incrementally. Restore must complete before the index is shared with
// other goroutines.
//
// Returns the number of records loaded and the number skipped.
func (ix *Index) Restore(records []ImageRecord) (loaded, skipped int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.archives = make(map[string]*cameraArchive)
	for _, rec := range records {
		if !ix.registry.Has(rec.Camera) {
			skipped++
			continue
		}
		arch, ok := ix.archives[rec.Camera]
		if !ok {
			arch = newCameraArchive()
			ix.archives[rec.Camera] = arch
		}
		if _, replaced := arch.tree.Set(rec); replaced {
			skipped++
		} else {
			loaded++
		}
	}
	for _, arch := range ix.archives {
		if newest, ok := arch.tree.GetAt(0); ok {
			arch.latest = newest
		}
	}
	return loaded, skipped
}

// bucket returns the archive for camera, creating it if needed.
func (ix *Index) bucket(camera string) *cameraArchive {
	ix.mu.RLock()
	arch, ok := ix.archives[camera]
	ix.mu.RUnlock()
	if ok {
		return arch
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if arch, ok = ix.archives[camera]; ok {
		return arch
	}
	arch = newCameraArchive()
	ix.archives[camera] = arch
	return arch
}

// archive returns the camera's archive or nil when no image has ever been
// recorded for it.
func (ix *Index) archive(camera string) *cameraArchive {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.archives[camera]
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}
