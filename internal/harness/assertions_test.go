package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func count(n int) *int { return &n }

func testResult() *Result {
	record := func(version int64, data string) []RecordState {
		return []RecordState{{ID: "current", Version: version, Data: json.RawMessage(data)}}
	}
	return NewResult("test", []DeviceState{
		{
			Name:    "laptop",
			Peers:   []string{"phone"},
			Records: record(2, `{"name":"Ada","level":3.0,"tags":["a","b"]}`),
			Backups: []string{"player"},
		},
		{
			Name:    "phone",
			Peers:   []string{"laptop"},
			Records: record(2, `{ "tags": ["a","b"], "level": 3, "name": "Ada" }`),
			Backups: []string{},
		},
	})
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	failures := EvaluateAssertions(testResult(), []Assertion{
		{Type: AssertConverged},
		{Type: AssertRecord, Device: "laptop", Expect: map[string]any{"level": 3, "tags": []any{"a", "b"}}},
		{Type: AssertRecord, Device: "phone", ID: "profile", Absent: true},
		{Type: AssertVersion, Device: "phone", Version: 2},
		{Type: AssertPeers, Device: "laptop", Count: count(1)},
		{Type: AssertBackups, Device: "phone", Count: count(0)},
	})
	assert.Empty(t, failures)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "field differs",
			assertion: Assertion{Type: AssertRecord, Device: "laptop", Expect: map[string]any{"level": 4}},
			want:      "current.level = 4 on laptop",
		},
		{
			name:      "field missing",
			assertion: Assertion{Type: AssertRecord, Device: "laptop", Expect: map[string]any{"xp": 1}},
			want:      "field missing",
		},
		{
			name:      "record missing",
			assertion: Assertion{Type: AssertRecord, Device: "laptop", ID: "profile", Expect: map[string]any{"x": 1}},
			want:      `record "profile" on laptop`,
		},
		{
			name:      "version differs",
			assertion: Assertion{Type: AssertVersion, Device: "laptop", Version: 5},
			want:      "Actual: version 2",
		},
		{
			name:      "backups differ",
			assertion: Assertion{Type: AssertBackups, Device: "laptop", Count: count(0)},
			want:      "1 backups [player]",
		},
		{
			name:      "unknown device",
			assertion: Assertion{Type: AssertPeers, Device: "tablet", Count: count(0)},
			want:      "unknown device",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := EvaluateAssertions(testResult(), []Assertion{tt.assertion})
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0], "assertions[0]")
			assert.Contains(t, failures[0], tt.want)
		})
	}
}

func TestAssertConverged_VersionMismatch(t *testing.T) {
	result := testResult()
	result.Devices[1].Records[0].Version = 1

	err := assertConverged(result)
	require.Error(t, err)

	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, AssertConverged, assertErr.Type)
	assert.Contains(t, assertErr.Actual, "current@1=")
	assert.Contains(t, err.Error(), "Devices:\n  laptop")
}

func TestResultAddError(t *testing.T) {
	result := NewResult("test", nil)
	assert.True(t, result.Pass)

	result.AddError("boom")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}

func TestResultSnapshotIsCanonical(t *testing.T) {
	data, err := testResult().Snapshot()
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"data":{"level":3,"name":"Ada","tags":["a","b"]},"id":"current","version":2}`)
	assert.True(t, json.Valid(data))
}
