// Package uplink provides icewatch ground-station connectors that pick up
// what the satellite link has dropped on disk and normalize it into a
// common Delivery structure.
//
// Each source implements the Source interface and is driven by the
// ingestor's polling loop. Available sources include:
//   - HeartbeatSpool — collects raw heartbeat payloads from a drop directory
//   - ImageScan      — discovers camera images under a per-camera file tree
//
// Sources are intentionally lightweight. They focus on finding newly
// arrived files, shaping them into [Delivery] values, and leaving parsing,
// ordering, and deduplication to the station core. The transport is
// at-least-once: a source may hand back a payload it already delivered in a
// previous process, and the core is expected to neutralize the repeat.
package uplink

import (
	"context"
	"fmt"
	"time"
)

// ImageNotice announces one image observed on the ground station.
type ImageNotice struct {
	Camera     string
	CapturedAt time.Time
	URL        string
}

// Delivery is one item retrieved from the ground station: either a raw
// heartbeat payload or an image notice, never both.
type Delivery struct {
	Source    string
	Heartbeat []byte       // raw payload, nil for image deliveries
	Image     *ImageNotice // nil for heartbeat deliveries
}

// Source is the interface all uplink connectors implement.
//
// Collect is synchronous, should respect context cancellation, and must
// never panic. It is called from a single polling goroutine; sources keep
// in-process state about what they have already delivered and need no
// locking of their own.
type Source interface {
	// Collect returns the deliveries that have arrived since the previous
	// call (or since process start).
	Collect(ctx context.Context) ([]Delivery, error)

	// Name returns a short, unique identifier for the source.
	// Example: "heartbeat-spool", "image-scan".
	Name() string
}

// New creates a source based on kind and generic configuration map.
// This is the central extension point for adding new source types.
//
// Supported kinds:
//   - "heartbeat-spool": drop-directory heartbeat collector
//   - "image-scan": per-camera image tree scanner
//
// Returns an error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string) (Source, error) {
	switch kind {
	case "heartbeat-spool":
		dir := config["dir"]
		if dir == "" {
			return nil, fmt.Errorf("heartbeat-spool source requires 'dir' config")
		}
		return NewHeartbeatSpool(dir), nil
	case "image-scan":
		root := config["root"]
		if root == "" {
			return nil, fmt.Errorf("image-scan source requires 'root' config")
		}
		baseURL := config["baseURL"]
		if baseURL == "" {
			return nil, fmt.Errorf("image-scan source requires 'baseURL' config")
		}
		return NewImageScan(root, baseURL), nil
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be heartbeat-spool or image-scan)", kind)
	}
}
