package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tether/internal/peersync"
)

// Scenario is a scripted run across several devices.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Devices are created in order before the first step.
	Devices []Device `yaml:"devices"`

	// Steps run one at a time; each waits for sync traffic to settle.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Device describes one simulated installation.
type Device struct {
	Name string `yaml:"name"`

	// Strategy is the conflict strategy: newest (default), local, remote or
	// merge. Merge combines payloads with peersync.MergeBest.
	Strategy string `yaml:"strategy,omitempty"`
}

// Step is one action. Exactly one action field must be set.
type Step struct {
	// Device runs the action. Not used by connect and disconnect.
	Device string `yaml:"device,omitempty"`

	Save       *SaveStep      `yaml:"save,omitempty"`
	Session    map[string]any `yaml:"session,omitempty"`
	Connect    []string       `yaml:"connect,omitempty"`
	Disconnect []string       `yaml:"disconnect,omitempty"`
	Transfer   *TransferStep  `yaml:"transfer,omitempty"`
	Backup     string         `yaml:"backup,omitempty"`
	Restore    string         `yaml:"restore,omitempty"`
}

// SaveStep writes a player record.
type SaveStep struct {
	ID   string         `yaml:"id,omitempty"` // defaults to "current"
	Data map[string]any `yaml:"data"`
}

// TransferStep moves an export from Step.Device to To.
type TransferStep struct {
	To       string `yaml:"to"`
	Password string `yaml:"password,omitempty"`
}

// Step action names, as reported by Step.Action.
const (
	ActionSave       = "save"
	ActionSession    = "session"
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
	ActionTransfer   = "transfer"
	ActionBackup     = "backup"
	ActionRestore    = "restore"
)

// Action returns the names of the actions set on s, in declaration order.
func (s *Step) Action() []string {
	var set []string
	if s.Save != nil {
		set = append(set, ActionSave)
	}
	if s.Session != nil {
		set = append(set, ActionSession)
	}
	if s.Connect != nil {
		set = append(set, ActionConnect)
	}
	if s.Disconnect != nil {
		set = append(set, ActionDisconnect)
	}
	if s.Transfer != nil {
		set = append(set, ActionTransfer)
	}
	if s.Backup != "" {
		set = append(set, ActionBackup)
	}
	if s.Restore != "" {
		set = append(set, ActionRestore)
	}
	return set
}

// Assertion checks the final state.
type Assertion struct {
	// Type is one of record, version, peers, backups or converged.
	Type string `yaml:"type"`

	// Device the assertion inspects. Not used by converged.
	Device string `yaml:"device,omitempty"`

	// ID is the record id for record and version; defaults to "current".
	ID string `yaml:"id,omitempty"`

	// Expect holds fields the record's data must contain (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that the record does not exist.
	Absent bool `yaml:"absent,omitempty"`

	// Version is the expected record version.
	Version int64 `yaml:"version,omitempty"`

	// Count is the expected number for peers and backups.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertRecord    = "record"
	AssertVersion   = "version"
	AssertPeers     = "peers"
	AssertBackups   = "backups"
	AssertConverged = "converged"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Devices) == 0 {
		return fmt.Errorf("devices list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	names := make([]string, 0, len(s.Devices))
	for i, d := range s.Devices {
		if d.Name == "" {
			return fmt.Errorf("devices[%d]: name is required", i)
		}
		if slices.Contains(names, d.Name) {
			return fmt.Errorf("devices[%d]: duplicate name %q", i, d.Name)
		}
		if d.Strategy != "" {
			if _, err := peersync.ParseStrategy(d.Strategy); err != nil {
				return fmt.Errorf("devices[%d]: %w", i, err)
			}
		}
		names = append(names, d.Name)
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i], names); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], names); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step, devices []string) error {
	actions := step.Action()
	if len(actions) != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %v", index, actions)
	}

	switch actions[0] {
	case ActionConnect, ActionDisconnect:
		pair := step.Connect
		if actions[0] == ActionDisconnect {
			pair = step.Disconnect
		}
		if len(pair) != 2 || pair[0] == pair[1] {
			return fmt.Errorf("steps[%d]: %s needs two different devices", index, actions[0])
		}
		for _, name := range pair {
			if !slices.Contains(devices, name) {
				return fmt.Errorf("steps[%d]: unknown device %q", index, name)
			}
		}
		return nil
	}

	if !slices.Contains(devices, step.Device) {
		return fmt.Errorf("steps[%d]: %s needs a known device, got %q", index, actions[0], step.Device)
	}
	switch actions[0] {
	case ActionSave:
		if step.Save.Data == nil {
			return fmt.Errorf("steps[%d]: save data is required", index)
		}
	case ActionTransfer:
		if !slices.Contains(devices, step.Transfer.To) || step.Transfer.To == step.Device {
			return fmt.Errorf("steps[%d]: transfer needs another known device, got %q", index, step.Transfer.To)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, devices []string) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Type != AssertConverged && !slices.Contains(devices, a.Device) {
		return fmt.Errorf("assertions[%d]: %s needs a known device, got %q", index, a.Type, a.Device)
	}

	switch a.Type {
	case AssertRecord:
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for record", index)
		}
	case AssertVersion:
		if a.Version <= 0 {
			return fmt.Errorf("assertions[%d]: version must be positive", index)
		}
	case AssertPeers, AssertBackups:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertConverged:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
