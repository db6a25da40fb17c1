package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/model"
	"github.com/roach88/tether/internal/orchestrator"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(saveResult{ID: "current", Bytes: 11}))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"id": "current", "bytes": float64(11)}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONRawData(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(json.RawMessage(`{"level":3}`)))
	assert.JSONEq(t, `{"status":"ok","data":{"level":3}}`, buf.String())
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("FAILURE", "import failed", []string{orchestrator.MsgInvalidPlayer}))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FAILURE", resp.Error.Code)
	assert.Equal(t, "import failed", resp.Error.Message)
	assert.Equal(t, []any{orchestrator.MsgInvalidPlayer}, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"texter", backupCreated{ID: "backup_full_1"}, "Created backup backup_full_1\n"},
		{"raw json", json.RawMessage(`{"a":1}`), "{\"a\":1}\n"},
		{"string", "done", "done\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf}
			require.NoError(t, formatter.Success(tt.data))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("COMMAND_ERROR", "bad flags", map[string]string{"flag": "x"}))
	assert.Equal(t, "Error [COMMAND_ERROR]: bad flags\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("COMMAND_ERROR", "bad flags", map[string]string{"flag": "x"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: tt.verbose}

			formatter.VerboseLog("opened %s", "tether.db")

			assert.Empty(t, out.String(), "diagnostics never go to the result writer")
			if tt.wantLog {
				assert.Equal(t, "opened tether.db\n", diag.String())
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("cause")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: inner: cause", wrapped.Error())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"model error", WrapExitError(ExitFailure, "connect", model.ConnectionFailure("op", errors.New("x"))), "CONNECTION_FAILURE"},
		{"disabled", WrapExitError(ExitFailure, "share", orchestrator.ErrPeerSyncDisabled), "FEATURE_DISABLED"},
		{"command error", NewExitError(ExitCommandError, "bad"), "COMMAND_ERROR"},
		{"plain", errors.New("boom"), "FAILURE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}
