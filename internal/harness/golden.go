package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tether/internal/model"
)

// Snapshot is the golden-file form of a result: the final device states
// without assertion outcomes.
type Snapshot struct {
	Scenario string        `json:"scenario"`
	Devices  []DeviceState `json:"devices"`
}

// Snapshot renders the result's device states as canonical JSON.
func (r *Result) Snapshot() ([]byte, error) {
	return model.MarshalCanonical(Snapshot{Scenario: r.Scenario, Devices: r.Devices})
}

// RunWithGolden executes a scenario and compares the final device states
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check assertions too. Mismatches fail t
// through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the golden file name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := result.Snapshot()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
