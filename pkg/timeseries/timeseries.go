// Package timeseries accumulates parsed heartbeat snapshots into
// per-metric, append-only series and answers current-status and history
// queries over them.
//
// Series are keyed by (metric kind, sub-key): one series per battery id,
// one per fuel-cell unit, one per named flag, one for the scan window.
// Within a series, timestamps are unique and strictly increasing at
// insertion; a point that does not advance its series is a duplicate or
// out-of-order retransmission from the lossy uplink and is silently
// dropped. Independent sub-keys never contend: one heartbeat can be
// partially accepted.
package timeseries

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/nunatak-io/icewatch/pkg/heartbeat"
)

// Kind identifies the metric type of a series. Dispatch over point values
// is always by Kind; Value carries exactly one member per kind.
type Kind string

const (
	KindBattery  Kind = "battery"
	KindFuelCell Kind = "efoy"
	KindFlag     Kind = "flag"
	KindScan     Kind = "scan"
)

// Key addresses one series: a metric kind plus the sub-key distinguishing
// independent series within the kind (battery id, fuel-cell id, flag name).
// The scan series is a singleton with an empty sub-key.
type Key struct {
	Kind Kind   `json:"kind"`
	Sub  string `json:"sub"`
}

func (k Key) String() string {
	if k.Sub == "" {
		return string(k.Kind)
	}
	return fmt.Sprintf("%s/%s", k.Kind, k.Sub)
}

// Value is the tagged union of metric readings a point can carry. Exactly
// one member is set, matching the Kind of the series the point belongs to.
type Value struct {
	Battery  *heartbeat.BatteryReading  `json:"battery,omitempty"`
	FuelCell *heartbeat.FuelCellReading `json:"efoy,omitempty"`
	Flag     *bool                      `json:"flag,omitempty"`
	Scan     *heartbeat.ScanReading     `json:"scan,omitempty"`
}

// Kind returns the union member's kind, or "" for an empty value.
func (v Value) Kind() Kind {
	switch {
	case v.Battery != nil:
		return KindBattery
	case v.FuelCell != nil:
		return KindFuelCell
	case v.Flag != nil:
		return KindFlag
	case v.Scan != nil:
		return KindScan
	default:
		return ""
	}
}

// BatteryValue wraps a battery reading as a point value.
func BatteryValue(b heartbeat.BatteryReading) Value {
	return Value{Battery: &b}
}

// FuelCellValue wraps a fuel-cell reading as a point value.
func FuelCellValue(f heartbeat.FuelCellReading) Value {
	return Value{FuelCell: &f}
}

// FlagValue wraps a boolean flag as a point value.
func FlagValue(on bool) Value {
	return Value{Flag: &on}
}

// ScanValue wraps a scan window as a point value.
func ScanValue(sc heartbeat.ScanReading) Value {
	return Value{Scan: &sc}
}

// Point is one (timestamp, value) observation within a series.
type Point struct {
	Time  time.Time `json:"t"`
	Value Value     `json:"v"`
}

// Explode decomposes a snapshot into the per-series points it contributes.
// The snapshot's timestamp is stamped on every point.
func Explode(snap heartbeat.Snapshot) []SeriesPoint {
	var out []SeriesPoint

	for _, b := range snap.Batteries {
		out = append(out, SeriesPoint{
			Key:   Key{Kind: KindBattery, Sub: strconv.Itoa(b.ID)},
			Point: Point{Time: snap.Timestamp, Value: BatteryValue(b)},
		})
	}
	for _, f := range snap.FuelCells {
		out = append(out, SeriesPoint{
			Key:   Key{Kind: KindFuelCell, Sub: strconv.Itoa(f.ID)},
			Point: Point{Time: snap.Timestamp, Value: FuelCellValue(f)},
		})
	}
	for _, name := range sortedFlagNames(snap.Flags) {
		out = append(out, SeriesPoint{
			Key:   Key{Kind: KindFlag, Sub: name},
			Point: Point{Time: snap.Timestamp, Value: FlagValue(snap.Flags[name])},
		})
	}
	if snap.Scan != nil {
		out = append(out, SeriesPoint{
			Key:   Key{Kind: KindScan},
			Point: Point{Time: snap.Timestamp, Value: ScanValue(*snap.Scan)},
		})
	}

	return out
}

// SeriesPoint pairs a point with the series it belongs to.
type SeriesPoint struct {
	Key   Key
	Point Point
}

func sortedFlagNames(flags map[string]bool) []string {
	if len(flags) == 0 {
		return nil
	}
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
