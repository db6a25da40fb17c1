package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/orchestrator"
)

// memoryConfig keeps tests off the network and stops timers from running.
const memoryConfig = `
sync:
  transport: memory
  auto_sync: false
`

type cliResult struct {
	stdout string
	stderr string
	code   int
}

// newHome returns a data directory holding memoryConfig as config.yaml.
func newHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(memoryConfig), 0o600))
	return home
}

func runCLI(t *testing.T, home, stdin string, args ...string) cliResult {
	t.Helper()
	return runCLIContext(t.Context(), t, home, stdin, args...)
}

func runCLIContext(ctx context.Context, t *testing.T, home, stdin string, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(ctx, append([]string{"--home", home}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

// decodeResponse parses a --format json envelope.
func decodeResponse(t *testing.T, out string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestSaveAndLoad(t *testing.T) {
	home := newHome(t)

	res := runCLI(t, home, "", "save", "--data", `{"name":"Ada","level":3}`)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "Saved current (24 bytes)\n", res.stdout)

	res = runCLI(t, home, "", "load")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.JSONEq(t, `{"name":"Ada","level":3}`, res.stdout)

	res = runCLI(t, home, "", "--format", "json", "load")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.JSONEq(t, `{"status":"ok","data":{"name":"Ada","level":3}}`, res.stdout)
}

func TestSaveFromStdin(t *testing.T) {
	home := newHome(t)

	res := runCLI(t, home, "{\"level\":9}\n", "save", "profile")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = runCLI(t, home, "", "load", "profile")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.JSONEq(t, `{"level":9}`, res.stdout)
}

func TestSaveRejectsInvalidJSON(t *testing.T) {
	res := runCLI(t, newHome(t), "", "save", "--data", "{nope")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "not valid JSON")
}

func TestLoadMissing(t *testing.T) {
	res := runCLI(t, newHome(t), "", "load")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, `no record "current"`)
}

func TestExportImportAcrossHomes(t *testing.T) {
	src := newHome(t)
	dst := newHome(t)
	file := filepath.Join(t.TempDir(), "export.json")

	require.Equal(t, ExitSuccess, runCLI(t, src, "", "save", "--data", `{"level":5}`).code)

	res := runCLI(t, src, "", "export", "--output", file)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "(plain)")

	res = runCLI(t, dst, "", "import", file)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "Imported 1 records\n", res.stdout)

	res = runCLI(t, dst, "", "load")
	assert.JSONEq(t, `{"level":5}`, res.stdout)
}

func TestExportToStdout(t *testing.T) {
	home := newHome(t)
	require.Equal(t, ExitSuccess, runCLI(t, home, "", "save", "--data", `{"level":5}`).code)

	res := runCLI(t, home, "", "export", "--no-sessions", "--no-achievements")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	assert.JSONEq(t, `{"level":5}`, string(doc["player"]))
	assert.NotContains(t, doc, "sessions")
}

func TestEncryptedExportImport(t *testing.T) {
	src := newHome(t)
	dst := newHome(t)
	file := filepath.Join(t.TempDir(), "export.enc")

	require.Equal(t, ExitSuccess, runCLI(t, src, "", "save", "--data", `{"level":5}`).code)

	res := runCLI(t, src, "", "export", "--encrypt", "--output", file)
	assert.Equal(t, ExitFailure, res.code, "encryption without a password fails")

	t.Setenv(PasswordEnv, "correct horse")
	res = runCLI(t, src, "", "export", "--encrypt", "--output", file)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "(encrypted)")

	res = runCLI(t, dst, "", "--format", "json", "import", "--password", "wrong", file)
	assert.Equal(t, ExitFailure, res.code)
	resp := decodeResponse(t, res.stdout)
	require.NotNil(t, resp.Error)
	assert.Equal(t, []any{orchestrator.MsgDecryptFailed}, resp.Error.Details)
	assert.Equal(t, ExitFailure, runCLI(t, dst, "", "load").code, "failed import writes nothing")

	res = runCLI(t, dst, "", "import", file)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.JSONEq(t, `{"level":5}`, runCLI(t, dst, "", "load").stdout)
}

func TestImportRejectsMissingPlayer(t *testing.T) {
	res := runCLI(t, newHome(t), `{"version":"1","sessions":[]}`, "import")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, orchestrator.MsgInvalidPlayer)
}

func TestBackupCommands(t *testing.T) {
	home := newHome(t)
	require.Equal(t, ExitSuccess, runCLI(t, home, "", "save", "--data", `{"level":1}`).code)
	require.Equal(t, ExitSuccess, runCLI(t, home, "", "save", "--data", `{"level":2}`).code)

	res := runCLI(t, home, "", "--format", "json", "backup", "list", "--type", "player")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var list struct {
		Data []backupEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "player", list.Data[0].Type)

	res = runCLI(t, home, "", "backup", "restore", list.Data[0].ID)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.JSONEq(t, `{"level":1}`, runCLI(t, home, "", "load").stdout)

	res = runCLI(t, home, "", "--format", "json", "backup", "create")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	created := decodeResponse(t, res.stdout)
	assert.Contains(t, created.Data.(map[string]any)["id"], "backup_full_")

	res = runCLI(t, home, "", "backup", "restore", "backup_full_0")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "not found")
}

func TestBackupListEmpty(t *testing.T) {
	res := runCLI(t, newHome(t), "", "backup", "list")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "No backups\n", res.stdout)
}

func TestStats(t *testing.T) {
	home := newHome(t)
	require.Equal(t, ExitSuccess, runCLI(t, home, "", "save", "--data", `{"level":1}`).code)

	res := runCLI(t, home, "", "stats")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "player_data")
	assert.Contains(t, res.stdout, "auto_sync=false")

	res = runCLI(t, home, "", "--format", "json", "stats")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var stats struct {
		Data orchestrator.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &stats))
	require.NotNil(t, stats.Data.Store)
	assert.Equal(t, 1, stats.Data.Store.Records("player_data"))
}

func TestPeersNeverSynced(t *testing.T) {
	res := runCLI(t, newHome(t), "", "peers")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "Never synced\n", res.stdout)
}

func TestAnchorPutGet(t *testing.T) {
	home := newHome(t)
	require.Equal(t, ExitSuccess, runCLI(t, home, "", "save", "--data", `{"level":4}`).code)

	res := runCLI(t, home, "", "--format", "json", "anchor", "put")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var put struct {
		Data struct {
			CID string `json:"cid"`
			URL string `json:"url"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &put))
	assert.True(t, strings.HasPrefix(put.Data.CID, "sha256-"))
	assert.True(t, strings.HasPrefix(put.Data.URL, "bolt://"))

	res = runCLI(t, home, "", "anchor", "get", put.Data.CID)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"level": 4`)

	require.Equal(t, ExitSuccess, runCLI(t, home, "", "save", "--data", `{"level":9}`).code)
	res = runCLI(t, home, "", "anchor", "get", "--restore", put.Data.CID)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.JSONEq(t, `{"level":4}`, runCLI(t, home, "", "load").stdout)
}

func TestAnchorGetMalformedCID(t *testing.T) {
	res := runCLI(t, newHome(t), "", "anchor", "get", "sha256-xyz")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "malformed content id")
}

func TestShareWithoutAnswer(t *testing.T) {
	res := runCLI(t, newHome(t), "", "share")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stdout, "Share this code")
	assert.Contains(t, res.stderr, "no code given")
}

func TestConnectRejectsBadCode(t *testing.T) {
	res := runCLI(t, newHome(t), "", "--format", "json", "connect", "not-a-code")
	assert.Equal(t, ExitFailure, res.code)
	resp := decodeResponse(t, res.stdout)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONNECTION_FAILURE", resp.Error.Code)
}

func TestPeerSyncDisabled(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("sync:\n  enabled: false\n"), 0o600))

	res := runCLI(t, home, "", "--format", "json", "share")
	assert.Equal(t, ExitFailure, res.code)
	resp := decodeResponse(t, res.stdout)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FEATURE_DISABLED", resp.Error.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res := runCLIContext(ctx, t, newHome(t), "", "serve")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Serving as peer_")
}

func TestExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "tether.toml")
	require.NoError(t, os.WriteFile(bad, []byte(""), 0o600))
	res := runCLI(t, dir, "", "--config", bad, "stats")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "unsupported config format")

	cue := filepath.Join(dir, "tether.cue")
	require.NoError(t, os.WriteFile(cue, []byte(`
storage: path: "custom.db"
sync: {
	transport: "memory"
	auto_sync: false
}
`), 0o600))
	res = runCLI(t, dir, "", "--config", cue, "save", "--data", `{"level":1}`)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.FileExists(t, filepath.Join(dir, "custom.db"))
}
