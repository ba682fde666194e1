package heartbeat

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// ErrMalformedRecord indicates a heartbeat payload that could not be turned
// into a Snapshot: invalid structure, a missing or unparseable timestamp,
// duplicate battery or fuel-cell ids within one payload, or a field outside
// its enumerated set. Callers discard the payload; existing state is never
// affected by a malformed record.
var ErrMalformedRecord = errors.New("malformed heartbeat record")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...))
}

// Parse converts one raw heartbeat payload into a Snapshot.
//
// The payload is the station's JSON report (format version 3). A mandatory
// "timestamp" carries the report instant as an RFC 3339 string or unix
// seconds; byte-constrained uplinks prefer the numeric form. The metric
// members ("batteries", "efoys", "flags", "scan") are all optional.
//
// Numeric values are taken verbatim. Out-of-range percentages are expected
// sensor noise and pass through unclamped. Structural problems return an
// error wrapping ErrMalformedRecord.
func Parse(payload []byte) (Snapshot, error) {
	if !gjson.ValidBytes(payload) {
		return Snapshot{}, malformed("payload is not valid JSON")
	}

	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return Snapshot{}, malformed("payload is not a JSON object")
	}

	ts, err := parseInstant(root.Get("timestamp"))
	if err != nil {
		return Snapshot{}, malformed("timestamp: %v", err)
	}

	snap := Snapshot{Timestamp: ts}

	if batteries := root.Get("batteries"); batteries.Exists() {
		snap.Batteries, err = parseBatteries(batteries)
		if err != nil {
			return Snapshot{}, err
		}
	}

	if efoys := root.Get("efoys"); efoys.Exists() {
		snap.FuelCells, err = parseFuelCells(efoys)
		if err != nil {
			return Snapshot{}, err
		}
	}

	if flags := root.Get("flags"); flags.Exists() {
		if !flags.IsObject() {
			return Snapshot{}, malformed("flags must be an object")
		}
		snap.Flags = make(map[string]bool)
		flags.ForEach(func(key, value gjson.Result) bool {
			snap.Flags[key.String()] = value.Bool()
			return true
		})
	}

	if scan := root.Get("scan"); scan.Exists() {
		start, err := parseInstant(scan.Get("start"))
		if err != nil {
			return Snapshot{}, malformed("scan start: %v", err)
		}
		reading := ScanReading{Start: start}
		if stop := scan.Get("stop"); stop.Exists() && stop.Type != gjson.Null {
			reading.Stop, err = parseInstant(stop)
			if err != nil {
				return Snapshot{}, malformed("scan stop: %v", err)
			}
		}
		snap.Scan = &reading
	}

	return snap, nil
}

func parseBatteries(batteries gjson.Result) ([]BatteryReading, error) {
	if !batteries.IsArray() {
		return nil, malformed("batteries must be an array")
	}

	var out []BatteryReading
	seen := make(map[int]struct{})
	for _, el := range batteries.Array() {
		id := el.Get("id")
		if !id.Exists() {
			return nil, malformed("battery entry missing id")
		}
		bid := int(id.Int())
		if bid <= 0 {
			return nil, malformed("battery id %d must be positive", bid)
		}
		if _, dup := seen[bid]; dup {
			return nil, malformed("duplicate battery id %d", bid)
		}
		seen[bid] = struct{}{}

		soc := el.Get("state_of_charge")
		if !soc.Exists() {
			return nil, malformed("battery %d missing state_of_charge", bid)
		}

		out = append(out, BatteryReading{ID: bid, StateOfCharge: soc.Float()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func parseFuelCells(efoys gjson.Result) ([]FuelCellReading, error) {
	if !efoys.IsArray() {
		return nil, malformed("efoys must be an array")
	}

	var out []FuelCellReading
	seen := make(map[int]struct{})
	for _, el := range efoys.Array() {
		id := el.Get("id")
		if !id.Exists() {
			return nil, malformed("efoy entry missing id")
		}
		eid := int(id.Int())
		if eid <= 0 {
			return nil, malformed("efoy id %d must be positive", eid)
		}
		if _, dup := seen[eid]; dup {
			return nil, malformed("duplicate efoy id %d", eid)
		}
		seen[eid] = struct{}{}

		state, err := ParseState(el.Get("state").String())
		if err != nil {
			return nil, malformed("efoy %d: %v", eid, err)
		}

		reading := FuelCellReading{
			ID:        eid,
			State:     state,
			Cartridge: el.Get("cartridge").String(),
			Consumed:  el.Get("consumed").Float(),
			Voltage:   el.Get("voltage").Float(),
			Current:   el.Get("current").Float(),
		}

		for _, cart := range el.Get("cartridges").Array() {
			name := cart.Get("name")
			if !name.Exists() || name.String() == "" {
				return nil, malformed("efoy %d cartridge missing name", eid)
			}
			reading.Cartridges = append(reading.Cartridges, CartridgeStatus{
				Name:           name.String(),
				FuelPercentage: cart.Get("fuel_percentage").Float(),
			})
		}

		out = append(out, reading)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// parseInstant accepts an RFC 3339 string or unix seconds and returns the
// instant in UTC.
func parseInstant(res gjson.Result) (time.Time, error) {
	switch {
	case !res.Exists():
		return time.Time{}, errors.New("missing")
	case res.Type == gjson.Number:
		return time.Unix(res.Int(), 0).UTC(), nil
	case res.Type == gjson.String:
		t, err := time.Parse(time.RFC3339, res.String())
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid value %q", res.String())
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported value %s", res.Raw)
	}
}
