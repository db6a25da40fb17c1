package harness

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/tether/internal/model"
)

// AssertionError is returned when an assertion fails. It carries the device
// state so a failure can be read without rerunning the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Devices  []DeviceState
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nDevices:\n")
	for _, d := range e.Devices {
		fmt.Fprintf(&buf, "  %s peers=%v backups=%v\n", d.Name, d.Peers, d.Backups)
		for _, r := range d.Records {
			fmt.Fprintf(&buf, "    %s v%d %s\n", r.ID, r.Version, r.Data)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	if a.Type == AssertConverged {
		return assertConverged(result)
	}

	dev, ok := result.Device(a.Device)
	if !ok {
		return fail(result, a.Type, "device "+a.Device, "unknown device")
	}

	switch a.Type {
	case AssertRecord:
		return assertRecord(result, dev, a)
	case AssertVersion:
		return assertVersion(result, dev, a)
	case AssertPeers:
		if len(dev.Peers) != *a.Count {
			return fail(result, a.Type,
				fmt.Sprintf("%s has %d peers", dev.Name, *a.Count),
				fmt.Sprintf("%d peers %v", len(dev.Peers), dev.Peers))
		}
	case AssertBackups:
		if len(dev.Backups) != *a.Count {
			return fail(result, a.Type,
				fmt.Sprintf("%s has %d backups", dev.Name, *a.Count),
				fmt.Sprintf("%d backups %v", len(dev.Backups), dev.Backups))
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func fail(result *Result, typ, expected, actual string) error {
	return &AssertionError{Type: typ, Expected: expected, Actual: actual, Devices: result.Devices}
}

// assertRecord checks the record's top-level fields against a.Expect. Values
// compare by canonical JSON, so 3 and 3.0 are equal.
func assertRecord(result *Result, dev DeviceState, a Assertion) error {
	id := cmp.Or(a.ID, model.PlayerKey)
	rec, found := dev.Record(id)

	if a.Absent {
		if found {
			return fail(result, a.Type, fmt.Sprintf("no record %q on %s", id, dev.Name), string(rec.Data))
		}
		return nil
	}
	if !found {
		return fail(result, a.Type, fmt.Sprintf("record %q on %s", id, dev.Name), "not found")
	}

	var fields map[string]any
	if err := json.Unmarshal(rec.Data, &fields); err != nil {
		return fail(result, a.Type, "an object record", string(rec.Data))
	}

	for _, key := range slices.Sorted(maps.Keys(a.Expect)) {
		want, err := model.MarshalCanonical(a.Expect[key])
		if err != nil {
			return fmt.Errorf("expect[%q]: %w", key, err)
		}
		got, ok := fields[key]
		if !ok {
			return fail(result, a.Type, fmt.Sprintf("%s.%s = %s", id, key, want), "field missing")
		}
		gotJSON, err := model.MarshalCanonical(got)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", id, key, err)
		}
		if string(gotJSON) != string(want) {
			return fail(result, a.Type,
				fmt.Sprintf("%s.%s = %s on %s", id, key, want, dev.Name),
				string(gotJSON))
		}
	}
	return nil
}

func assertVersion(result *Result, dev DeviceState, a Assertion) error {
	id := cmp.Or(a.ID, model.PlayerKey)
	rec, found := dev.Record(id)
	if !found {
		return fail(result, a.Type, fmt.Sprintf("record %q on %s", id, dev.Name), "not found")
	}
	if rec.Version != a.Version {
		return fail(result, a.Type,
			fmt.Sprintf("%s at version %d on %s", id, a.Version, dev.Name),
			fmt.Sprintf("version %d", rec.Version))
	}
	return nil
}

// assertConverged checks that every device stores the same records, at the
// same versions, as the first device.
func assertConverged(result *Result) error {
	if len(result.Devices) < 2 {
		return nil
	}
	first := result.Devices[0]
	want, err := recordsKey(first.Records)
	if err != nil {
		return err
	}
	for _, d := range result.Devices[1:] {
		got, err := recordsKey(d.Records)
		if err != nil {
			return err
		}
		if got != want {
			return fail(result, AssertConverged,
				fmt.Sprintf("%s matches %s: %s", d.Name, first.Name, want),
				got)
		}
	}
	return nil
}

func recordsKey(records []RecordState) (string, error) {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		data, err := model.Canonicalize(r.Data)
		if err != nil {
			return "", fmt.Errorf("record %s: %w", r.ID, err)
		}
		parts = append(parts, fmt.Sprintf("%s@%d=%s", r.ID, r.Version, data))
	}
	return strings.Join(parts, " "), nil
}
