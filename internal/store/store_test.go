package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/model"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, c := range model.Collections {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			string(c),
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", c)
	}
}

func TestOpen_KeepsDataAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := t.Context()

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.Save(ctx, model.CollectionCurriculum, "go", raw(`{"title":"Go"}`))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	rec, err := s2.Get(ctx, model.CollectionCurriculum, "go")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.JSONEq(t, `{"title":"Go"}`, string(rec.Data))
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	require.Error(t, err)
	assert.True(t, model.IsStorageUnavailable(err), "got %v", err)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1")) // NORMAL
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestMigrations_CreateDomainIndexes(t *testing.T) {
	s := createTestStore(t)

	for _, idx := range []string{
		"idx_achievements_unlocked_at",
		"idx_sessions_start_time",
		"idx_sessions_skill_id",
		"idx_backup_type",
	} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx,
		).Scan(&name)
		assert.NoError(t, err, "index %q missing", idx)
	}
}

func TestWithBackupRetention_IgnoresNonPositive(t *testing.T) {
	s := createTestStore(t, WithBackupRetention(0))
	assert.Equal(t, DefaultBackupRetention, s.retention)

	s = createTestStore(t, WithBackupRetention(3))
	assert.Equal(t, 3, s.retention)
}
