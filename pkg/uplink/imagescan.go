package uplink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// captureTimeLayout is the trailing timestamp the camera firmware puts in
// every image file name, e.g. ATLAS_CAM2_20170801_001155.jpg.
const captureTimeLayout = "20060102_150405"

// ImageScan discovers camera images under a file tree of per-camera
// subdirectories. Each image's capture time is parsed from its file name
// and its locator is built as <baseURL>/<camera>/<filename>, pointing at
// wherever the tree is served from. Files whose names carry no parseable
// capture time are skipped and counted, once.
type ImageScan struct {
	root    string
	baseURL string
	seen    map[string]struct{}
	skipped uint64
}

// NewImageScan creates a scanner over root. The root does not need to
// exist yet; an empty or missing tree collects nothing.
func NewImageScan(root, baseURL string) *ImageScan {
	return &ImageScan{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		seen:    make(map[string]struct{}),
	}
}

// Name implements Source.
func (s *ImageScan) Name() string { return "image-scan" }

// Skipped returns how many files have been skipped for unparseable names.
func (s *ImageScan) Skipped() uint64 { return s.skipped }

// Collect walks every camera subdirectory and returns a notice for each
// not-yet-collected image file, in name order per camera.
func (s *ImageScan) Collect(ctx context.Context) ([]Delivery, error) {
	cameras, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read image root %s: %w", s.root, err)
	}

	var out []Delivery
	for _, camDir := range cameras {
		if !camDir.IsDir() {
			continue
		}
		camera := camDir.Name()

		files, err := os.ReadDir(filepath.Join(s.root, camera))
		if err != nil {
			return out, fmt.Errorf("read camera directory %s: %w", camera, err)
		}
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			name := file.Name()
			if file.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			rel := camera + "/" + name
			if _, ok := s.seen[rel]; ok {
				continue
			}
			s.seen[rel] = struct{}{}

			capturedAt, err := ParseCaptureTime(name)
			if err != nil {
				s.skipped++
				continue
			}
			out = append(out, Delivery{
				Source: s.Name(),
				Image: &ImageNotice{
					Camera:     camera,
					CapturedAt: capturedAt,
					URL:        s.baseURL + "/" + rel,
				},
			})
		}
	}
	return out, nil
}

// ParseCaptureTime extracts the capture instant from a camera image file
// name. The firmware names files <camera>_<YYYYMMDD>_<HHMMSS>.<ext>; the
// trailing fifteen characters of the stem carry the instant, read as UTC.
func ParseCaptureTime(filename string) (time.Time, error) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if len(stem) < len(captureTimeLayout) {
		return time.Time{}, fmt.Errorf("image name %q too short for a capture time", filename)
	}
	ts, err := time.Parse(captureTimeLayout, stem[len(stem)-len(captureTimeLayout):])
	if err != nil {
		return time.Time{}, fmt.Errorf("image name %q has no capture time: %w", filename, err)
	}
	return ts, nil
}
