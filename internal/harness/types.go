package harness

import (
	"encoding/json"
	"slices"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Scenario is the name of the scenario that produced this result.
	Scenario string `json:"scenario"`

	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Devices holds the final state of each device, in scenario order.
	Devices []DeviceState `json:"devices"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// DeviceState is what one device holds after the last step. Peer ids are
// replaced by device names so states compare across runs.
type DeviceState struct {
	Name       string        `json:"name"`
	Strategy   string        `json:"strategy"`
	Peers      []string      `json:"peers"`
	SyncedWith []string      `json:"syncedWith"`
	Records    []RecordState `json:"records"`
	Sessions   int           `json:"sessions"`
	Backups    []string      `json:"backups"` // backup types, newest first
}

// RecordState is one stored player record.
type RecordState struct {
	ID      string          `json:"id"`
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// NewResult creates a passing result over the captured device states.
func NewResult(scenario string, devices []DeviceState) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Devices:  devices,
		Errors:   []string{},
	}
}

// AddError records an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Device returns the state of the named device.
func (r *Result) Device(name string) (DeviceState, bool) {
	i := slices.IndexFunc(r.Devices, func(d DeviceState) bool { return d.Name == name })
	if i < 0 {
		return DeviceState{}, false
	}
	return r.Devices[i], true
}

// Record returns the record with the given id.
func (d DeviceState) Record(id string) (RecordState, bool) {
	i := slices.IndexFunc(d.Records, func(r RecordState) bool { return r.ID == id })
	if i < 0 {
		return RecordState{}, false
	}
	return d.Records[i], true
}
