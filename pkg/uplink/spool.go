package uplink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HeartbeatSpool collects raw heartbeat payloads from a drop directory.
// The satellite downlink writes each transmission as one regular file;
// the spool reads every file it has not seen this process and returns the
// contents verbatim. Files are never deleted by the spool: after a
// restart everything is re-collected, and the station's ordering gate
// discards the repeats.
type HeartbeatSpool struct {
	dir  string
	seen map[string]struct{}
}

// NewHeartbeatSpool creates a spool over dir. The directory does not need
// to exist yet; an empty or missing directory collects nothing.
func NewHeartbeatSpool(dir string) *HeartbeatSpool {
	return &HeartbeatSpool{
		dir:  dir,
		seen: make(map[string]struct{}),
	}
}

// Name implements Source.
func (s *HeartbeatSpool) Name() string { return "heartbeat-spool" }

// Collect reads every not-yet-collected regular file in the spool
// directory, in name order. Dotfiles are skipped; the downlink writes
// under a dotted temporary name and renames when complete.
func (s *HeartbeatSpool) Collect(ctx context.Context) ([]Delivery, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read heartbeat spool %s: %w", s.dir, err)
	}

	var out []Delivery
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := s.seen[name]; ok {
			continue
		}

		payload, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return out, fmt.Errorf("read heartbeat %s: %w", name, err)
		}
		s.seen[name] = struct{}{}
		out = append(out, Delivery{Source: s.Name(), Heartbeat: payload})
	}
	return out, nil
}
