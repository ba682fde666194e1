package timeseries

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nunatak-io/icewatch/pkg/heartbeat"
)

// Log is the durable append sink for accepted points. Accepted points are
// written through before they become visible to readers, so a reloaded
// store can never be ahead of what was durably written.
type Log interface {
	AppendPoint(ctx context.Context, key Key, pt Point) error
}

// Store holds the live telemetry series for one instrument.
// It is safe for concurrent use by multiple goroutines.
//
// Locking is two-level: an RWMutex over the series map (taken briefly to
// locate or create a series) and an RWMutex per series. Ingestion of
// independent sub-keys therefore proceeds without contention, while reads
// never block other reads.
type Store struct {
	log Log

	mu     sync.RWMutex
	series map[Key]*series

	dropped atomic.Uint64
}

type series struct {
	mu     sync.RWMutex
	points []Point // ascending by Time, unique
}

func (s *series) last() (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// NewStore creates an empty store. log may be nil, in which case accepted
// points are held in memory only.
func NewStore(log Log) *Store {
	return &Store{
		log:    log,
		series: make(map[Key]*series),
	}
}

// IngestResult reports the per-sub-key outcome of one Ingest call.
// Timestamp is the snapshot's own timestamp, whether or not any point
// was accepted.
type IngestResult struct {
	Timestamp time.Time
	Accepted  []Key
	Dropped   []Key
}

// Ingest appends the snapshot's readings to their series. Each sub-key is
// evaluated independently: a point whose timestamp is not strictly greater
// than its series' last recorded timestamp is silently dropped (duplicate
// or out-of-order retransmission) and counted, while the remaining sub-keys
// are still applied. One heartbeat can be partially accepted.
//
// Accepted points are appended to the durable log before they become
// visible. A log error aborts the call with a wrapped error; sub-keys
// already applied remain both durable and visible.
func (s *Store) Ingest(ctx context.Context, snap heartbeat.Snapshot) (IngestResult, error) {
	res := IngestResult{Timestamp: snap.Timestamp}

	for _, sp := range Explode(snap) {
		ser := s.bucket(sp.Key)

		ser.mu.Lock()
		if n := len(ser.points); n > 0 && !sp.Point.Time.After(ser.points[n-1].Time) {
			ser.mu.Unlock()
			s.dropped.Add(1)
			res.Dropped = append(res.Dropped, sp.Key)
			continue
		}

		if s.log != nil {
			if err := s.log.AppendPoint(ctx, sp.Key, sp.Point); err != nil {
				ser.mu.Unlock()
				return res, fmt.Errorf("append point %s: %w", sp.Key, err)
			}
		}

		ser.points = append(ser.points, sp.Point)
		ser.mu.Unlock()
		res.Accepted = append(res.Accepted, sp.Key)
	}

	return res, nil
}

// bucket returns the series for key, creating it if needed.
func (s *Store) bucket(key Key) *series {
	s.mu.RLock()
	ser, ok := s.series[key]
	s.mu.RUnlock()
	if ok {
		return ser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ser, ok = s.series[key]; ok {
		return ser
	}
	ser = &series{}
	s.series[key] = ser
	return ser
}

// Current is the instrument's present state, re-materialized from the
// latest point of every tracked sub-key. LastHeartbeat is the maximum
// timestamp across all accepted points and is the zero time if nothing has
// been ingested yet. Sub-keys updated by different heartbeats may coexist;
// fields within one sub-key always come from a single snapshot.
type Current struct {
	LastHeartbeat time.Time
	Batteries     []heartbeat.BatteryReading
	FuelCells     []heartbeat.FuelCellReading
	Flags         map[string]bool
	Scan          *heartbeat.ScanReading
}

// Current re-materializes the instrument status from the latest point of
// every series.
func (s *Store) Current() Current {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cur Current
	for key, ser := range s.series {
		pt, ok := ser.last()
		if !ok {
			continue
		}
		if pt.Time.After(cur.LastHeartbeat) {
			cur.LastHeartbeat = pt.Time
		}

		switch key.Kind {
		case KindBattery:
			cur.Batteries = append(cur.Batteries, *pt.Value.Battery)
		case KindFuelCell:
			cur.FuelCells = append(cur.FuelCells, *pt.Value.FuelCell)
		case KindFlag:
			if cur.Flags == nil {
				cur.Flags = make(map[string]bool)
			}
			cur.Flags[key.Sub] = *pt.Value.Flag
		case KindScan:
			scan := *pt.Value.Scan
			cur.Scan = &scan
		}
	}

	sort.Slice(cur.Batteries, func(i, j int) bool { return cur.Batteries[i].ID < cur.Batteries[j].ID })
	sort.Slice(cur.FuelCells, func(i, j int) bool { return cur.FuelCells[i].ID < cur.FuelCells[j].ID })
	return cur
}

// History returns the series points with timestamps in the inclusive range
// [from, to], in ascending time order. A zero from or to leaves that side
// unbounded. The sequence is finite, restartable, and detached from the
// live series: it may be ranged over repeatedly without side effects, and
// later ingestion does not alter it. An unknown sub-key yields an empty
// sequence.
func (s *Store) History(key Key, from, to time.Time) iter.Seq[Point] {
	pts := s.rangeCopy(key, from, to)
	return func(yield func(Point) bool) {
		for _, pt := range pts {
			if !yield(pt) {
				return
			}
		}
	}
}

func (s *Store) rangeCopy(key Key, from, to time.Time) []Point {
	s.mu.RLock()
	ser, ok := s.series[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	ser.mu.RLock()
	defer ser.mu.RUnlock()

	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(ser.points), func(i int) bool {
			return !ser.points[i].Time.Before(from)
		})
	}
	hi := len(ser.points)
	if !to.IsZero() {
		hi = sort.Search(len(ser.points), func(i int) bool {
			return ser.points[i].Time.After(to)
		})
	}
	if lo >= hi {
		return nil
	}

	out := make([]Point, hi-lo)
	copy(out, ser.points[lo:hi])
	return out
}

// Keys returns every tracked series key, ordered by kind and then by
// sub-key (numerically where sub-keys are numeric ids).
func (s *Store) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.series))
	for key := range s.series {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return lessSub(keys[i].Sub, keys[j].Sub)
	})
	return keys
}

func lessSub(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

// PointCount returns the number of points recorded for key.
func (s *Store) PointCount(key Key) int {
	s.mu.RLock()
	ser, ok := s.series[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	ser.mu.RLock()
	defer ser.mu.RUnlock()
	return len(ser.points)
}

// DroppedTotal returns how many points have been rejected by the
// monotonicity gate since the store was created (restores excluded).
func (s *Store) DroppedTotal() uint64 {
	return s.dropped.Load()
}

// Restore replaces the store's contents from durably persisted points,
// typically at cold start. Points are sorted per series and passed through
// the same strictly-increasing gate as live ingestion, so a log containing
// retransmitted duplicates reloads to the identical series. Restore does
// not write to the durable log and must complete before the store is
// shared with other goroutines.
//
// Returns the number of points loaded and the number discarded by the gate.
func (s *Store) Restore(seed map[Key][]Point) (loaded, discarded int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.series = make(map[Key]*series, len(seed))
	for key, pts := range seed {
		sorted := make([]Point, len(pts))
		copy(sorted, pts)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

		ser := &series{points: make([]Point, 0, len(sorted))}
		for _, pt := range sorted {
			if n := len(ser.points); n > 0 && !pt.Time.After(ser.points[n-1].Time) {
				discarded++
				continue
			}
			ser.points = append(ser.points, pt)
			loaded++
		}
		if len(ser.points) > 0 {
			s.series[key] = ser
		}
	}
	return loaded, discarded
}
