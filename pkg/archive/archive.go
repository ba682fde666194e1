// Package archive tracks the configured time-lapse cameras and an
// append-only, capture-time-ordered index of every image each one has
// transmitted. Archives grow without bound and are read recency-first, so
// the index is kept in descending capture order and the newest image is a
// maintained pointer rather than a scan.
package archive

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownCamera is returned when an operation names a camera that is not
// in the registry.
var ErrUnknownCamera = errors.New("unknown camera")

// ErrNoImages is returned by Latest for a registered camera whose archive is
// still empty. It is deliberately distinct from ErrUnknownCamera: the camera
// exists, it just has not transmitted anything yet.
var ErrNoImages = errors.New("no images recorded")

// Camera describes one configured time-lapse camera. Name is the immutable
// primary key; Description and Interval may be changed by re-registering.
type Camera struct {
	Name        string
	Description string
	Interval    time.Duration // nominal capture cadence
}

// ImageRecord locates one captured image. Records are unique per
// (Camera, CapturedAt); a retransmission of the same capture refreshes the
// locator instead of duplicating the record.
type ImageRecord struct {
	Camera     string    `json:"camera"`
	CapturedAt time.Time `json:"captured_at"`
	Locator    string    `json:"locator"`
}

// Log is the durable sink for registry and archive mutations. Mutations are
// written through before they become visible, so a reloaded index can never
// be ahead of what was durably written.
type Log interface {
	PutCamera(ctx context.Context, cam Camera) error
	PutImage(ctx context.Context, rec ImageRecord) error
}
