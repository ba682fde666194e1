// Package heartbeat parses raw ATLAS status transmissions into structured
// snapshots.
//
// An ATLAS heartbeat is a small JSON document produced by the station
// firmware (report format version 3) and relayed over the satellite uplink.
// One payload describes the station at a single instant: battery state of
// charge, EFOY fuel-cell readings with per-cartridge fuel levels, boolean
// subsystem flags, and optionally the most recent LiDAR scan window.
//
// Parsing is a pure transformation: no I/O, no shared state. Values are
// taken exactly as transmitted. Out-of-range percentages from noisy
// sensors are preserved, never clamped, so downstream analysis sees what
// the instrument actually reported.
package heartbeat

import (
	"fmt"
	"time"
)

// State is the operating state reported by an EFOY fuel-cell unit.
// The set of states is fixed by the unit's firmware.
type State string

const (
	StateAutoOff          State = "auto off"
	StateAutoOn           State = "auto on"
	StateError            State = "error"
	StateFreezeProtection State = "freeze protection"
)

// ParseState converts a raw state string into a State.
// Returns an error if the string is not one of the known states.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateAutoOff, StateAutoOn, StateError, StateFreezeProtection:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown efoy state %q", s)
	}
}

// BatteryReading is the state of charge of one station battery at the
// snapshot instant. IDs are small positive integers assigned by the
// charge controller and are unique within a snapshot.
type BatteryReading struct {
	ID            int     `json:"id"`
	StateOfCharge float64 `json:"state_of_charge"`
}

// CartridgeStatus is the remaining fuel of one EFOY cartridge.
// FuelPercentage is reported as received: values slightly above 100 occur
// on fresh cartridges due to sensor noise and are deliberately not clamped.
type CartridgeStatus struct {
	Name           string  `json:"name"`
	FuelPercentage float64 `json:"fuel_percentage"`
}

// FuelCellReading is the full report of one EFOY fuel-cell unit:
// operating state, the cartridge currently feeding the unit and how much
// of it has been consumed, the electrical output, and the remaining fuel
// of every installed cartridge in slot order.
type FuelCellReading struct {
	ID         int               `json:"id"`
	State      State             `json:"state"`
	Cartridge  string            `json:"cartridge"`
	Consumed   float64           `json:"consumed"`
	Voltage    float64           `json:"voltage"`
	Current    float64           `json:"current"`
	Cartridges []CartridgeStatus `json:"cartridges,omitempty"`
}

// TotalFuelPercentage returns the unit's overall remaining fuel as the mean
// of its cartridge percentages (cartridges share one physical capacity).
// The second return is false when the reading carries no cartridge data.
func (f FuelCellReading) TotalFuelPercentage() (float64, bool) {
	if len(f.Cartridges) == 0 {
		return 0, false
	}
	var sum float64
	for _, c := range f.Cartridges {
		sum += c.FuelPercentage
	}
	return sum / float64(len(f.Cartridges)), true
}

// ScanReading is the most recent LiDAR scan window reported by the station.
// Stop is the zero time while a scan is still in progress.
type ScanReading struct {
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
}

// InProgress reports whether the scan had not finished when the heartbeat
// was generated.
func (s ScanReading) InProgress() bool {
	return s.Stop.IsZero() || !s.Stop.After(s.Start)
}

// Snapshot is one parsed heartbeat: every metric reading the station
// reported at a single instant. Snapshots are immutable once returned by
// Parse; the time-series store decomposes them into per-metric points.
//
// A snapshot is not required to report every metric. Batteries, fuel cells,
// flags, and the scan window are each optional, and their absence means
// "not reported", not "zero".
type Snapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Batteries []BatteryReading  `json:"batteries,omitempty"`
	FuelCells []FuelCellReading `json:"efoys,omitempty"`
	Flags     map[string]bool   `json:"flags,omitempty"`
	Scan      *ScanReading      `json:"scan,omitempty"`
}

// Empty reports whether the snapshot carries no metric readings at all.
func (s Snapshot) Empty() bool {
	return len(s.Batteries) == 0 && len(s.FuelCells) == 0 && len(s.Flags) == 0 && s.Scan == nil
}
