package station

import (
	"sort"
	"time"

	"github.com/nunatak-io/icewatch/pkg/heartbeat"
	"github.com/nunatak-io/icewatch/pkg/timeseries"
)

// StatusReport is the externally documented instrument status: the current
// state re-materialized from the latest point of every sub-key, plus the
// full aligned history needed for plotting. Timestamps serialize as RFC
// 3339 with explicit offset.
type StatusReport struct {
	LastHeartbeat *time.Time       `json:"last_heartbeat_received"`
	Batteries     []BatteryStatus  `json:"batteries"`
	FuelCells     []FuelCellStatus `json:"efoys"`
	Flags         map[string]bool  `json:"flags"`
	LastScan      *ScanStatus      `json:"last_scan"`
	Timeseries    Timeseries       `json:"timeseries"`
}

// BatteryStatus is one battery's latest reading.
type BatteryStatus struct {
	ID            int     `json:"id"`
	StateOfCharge float64 `json:"state_of_charge"`
}

// FuelCellStatus is one EFOY unit's latest reading.
type FuelCellStatus struct {
	ID                      int                         `json:"id"`
	State                   string                      `json:"state"`
	ActiveCartridge         string                      `json:"active_cartridge"`
	ActiveCartridgeConsumed float64                     `json:"active_cartridge_consumed"`
	Voltage                 float64                     `json:"voltage"`
	Current                 float64                     `json:"current"`
	Cartridges              []heartbeat.CartridgeStatus `json:"cartridges"`
}

// ScanStatus is the most recent LiDAR scan window. End is null while a scan
// is still in progress.
type ScanStatus struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end"`
}

// Timeseries holds the plottable history: one sorted datetimes axis (the
// union of all battery and EFOY point timestamps) and per-sub-key value
// arrays of exactly the same length, null-padded at instants where a
// sub-key has no point.
type Timeseries struct {
	Datetimes       []time.Time           `json:"datetimes"`
	StatesOfCharge  map[string][]*float64 `json:"states_of_charge"`
	FuelCellCurrent map[string][]*float64 `json:"efoy_current"`
	FuelCellVoltage map[string][]*float64 `json:"efoy_voltage"`
	FuelCellFuel    map[string][]*float64 `json:"efoy_fuel_percentage"`
}

// Status reshapes the telemetry store's current state and history into the
// externally documented structure.
func (s *Station) Status() StatusReport {
	cur := s.telemetry.Current()

	rep := StatusReport{
		Batteries: make([]BatteryStatus, 0, len(cur.Batteries)),
		FuelCells: make([]FuelCellStatus, 0, len(cur.FuelCells)),
		Flags:     map[string]bool{},
	}
	if !cur.LastHeartbeat.IsZero() {
		ts := cur.LastHeartbeat
		rep.LastHeartbeat = &ts
	}
	for _, b := range cur.Batteries {
		rep.Batteries = append(rep.Batteries, BatteryStatus{ID: b.ID, StateOfCharge: b.StateOfCharge})
	}
	for _, f := range cur.FuelCells {
		cartridges := f.Cartridges
		if cartridges == nil {
			cartridges = []heartbeat.CartridgeStatus{}
		}
		rep.FuelCells = append(rep.FuelCells, FuelCellStatus{
			ID:                      f.ID,
			State:                   string(f.State),
			ActiveCartridge:         f.Cartridge,
			ActiveCartridgeConsumed: f.Consumed,
			Voltage:                 f.Voltage,
			Current:                 f.Current,
			Cartridges:              cartridges,
		})
	}
	for name, on := range cur.Flags {
		rep.Flags[name] = on
	}
	if cur.Scan != nil {
		scan := ScanStatus{Start: cur.Scan.Start}
		if !cur.Scan.InProgress() {
			end := cur.Scan.Stop
			scan.End = &end
		}
		rep.LastScan = &scan
	}

	rep.Timeseries = s.buildTimeseries()
	return rep
}

// buildTimeseries aligns every numeric series onto one shared datetime
// axis. Flag and scan series carry no plottable value and are excluded.
func (s *Station) buildTimeseries() Timeseries {
	ts := Timeseries{
		Datetimes:       []time.Time{},
		StatesOfCharge:  map[string][]*float64{},
		FuelCellCurrent: map[string][]*float64{},
		FuelCellVoltage: map[string][]*float64{},
		FuelCellFuel:    map[string][]*float64{},
	}

	series := make(map[timeseries.Key][]timeseries.Point)
	var all []time.Time
	for _, key := range s.telemetry.Keys() {
		if key.Kind != timeseries.KindBattery && key.Kind != timeseries.KindFuelCell {
			continue
		}
		var pts []timeseries.Point
		for pt := range s.telemetry.History(key, time.Time{}, time.Time{}) {
			pts = append(pts, pt)
			all = append(all, pt.Time)
		}
		if len(pts) > 0 {
			series[key] = pts
		}
	}
	if len(all) == 0 {
		return ts
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })
	for _, t := range all {
		if n := len(ts.Datetimes); n > 0 && ts.Datetimes[n-1].Equal(t) {
			continue
		}
		ts.Datetimes = append(ts.Datetimes, t)
	}

	for key, pts := range series {
		switch key.Kind {
		case timeseries.KindBattery:
			ts.StatesOfCharge[key.Sub] = align(ts.Datetimes, pts, func(pt timeseries.Point) (float64, bool) {
				return pt.Value.Battery.StateOfCharge, true
			})
		case timeseries.KindFuelCell:
			ts.FuelCellCurrent[key.Sub] = align(ts.Datetimes, pts, func(pt timeseries.Point) (float64, bool) {
				return pt.Value.FuelCell.Current, true
			})
			ts.FuelCellVoltage[key.Sub] = align(ts.Datetimes, pts, func(pt timeseries.Point) (float64, bool) {
				return pt.Value.FuelCell.Voltage, true
			})
			ts.FuelCellFuel[key.Sub] = align(ts.Datetimes, pts, func(pt timeseries.Point) (float64, bool) {
				return pt.Value.FuelCell.TotalFuelPercentage()
			})
		}
	}
	return ts
}

// align projects one ascending point series onto the shared datetime axis,
// leaving nil where the series has no point at that instant or the value
// extractor reports none.
func align(datetimes []time.Time, pts []timeseries.Point, value func(timeseries.Point) (float64, bool)) []*float64 {
	out := make([]*float64, len(datetimes))
	i := 0
	for j, dt := range datetimes {
		for i < len(pts) && pts[i].Time.Before(dt) {
			i++
		}
		if i < len(pts) && pts[i].Time.Equal(dt) {
			if v, ok := value(pts[i]); ok {
				out[j] = &v
			}
			i++
		}
	}
	return out
}
