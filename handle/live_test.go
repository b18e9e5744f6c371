package handle

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.keystonedb.dev/core/engine"
	"go.keystonedb.dev/core/engine/sqlite"
)

func TestLiveRoundTrip(t *testing.T) {
	var h = New(sqlite.NewOpener(sqlite.Options{}), Config{Tag: "live"})
	require.NoError(t, h.SetPath(filepath.Join(t.TempDir(), "live.db")))
	require.NoError(t, h.Open())

	require.NoError(t, h.ExecuteSQL(
		"CREATE TABLE kv (k TEXT PRIMARY KEY NOT NULL, v INTEGER NOT NULL DEFAULT 0)"))

	require.NoError(t, h.RunTransaction(func(h *Handle) error {
		var s = h.GetStatement()
		defer h.ReturnStatement(s)

		if err := s.Prepare("INSERT INTO kv (k, v) VALUES (?, ?)"); err != nil {
			return err
		}
		for i, k := range []string{"a", "b", "c"} {
			if err := s.BindText(1, k); err != nil {
				return err
			} else if err = s.BindInt64(2, int64(i)); err != nil {
				return err
			} else if err = s.Execute(); err != nil {
				return err
			} else if err = s.Reset(); err != nil {
				return err
			}
		}
		return nil
	}))
	assert.EqualValues(t, 3, h.TotalChanges())

	// A rolled-back nested scope leaves committed rows in place.
	require.NoError(t, h.BeginTransaction())
	require.NoError(t, h.BeginNestedTransaction())
	require.NoError(t, h.ExecuteSQL("DELETE FROM kv"))
	require.NoError(t, h.RollbackNestedTransaction())
	require.NoError(t, h.CommitOrRollbackTransaction())

	var s = h.GetStatement()
	require.NoError(t, s.Prepare("SELECT COUNT(*), MAX(v) FROM kv"))
	var row, err = s.Step()
	require.NoError(t, err)
	require.True(t, row)
	assert.EqualValues(t, 3, s.ColumnInt64(0))
	assert.EqualValues(t, 2, s.ColumnInt64(1))
	h.ReturnStatement(s)

	var exists, exErr = h.TableExists("kv")
	require.NoError(t, exErr)
	assert.True(t, exists)

	exists, exErr = h.TableExists("absent")
	require.NoError(t, exErr)
	assert.False(t, exists)

	var cols, colErr = h.TableColumns("kv")
	require.NoError(t, colErr)
	assert.Equal(t, []string{"k", "v"}, cols)

	require.NoError(t, h.Close())
	assert.False(t, h.IsOpened())
}

func TestLiveIgnorableConstraint(t *testing.T) {
	var h = New(sqlite.NewOpener(sqlite.Options{}), Config{Tag: "live"})
	require.NoError(t, h.SetPath(filepath.Join(t.TempDir(), "live.db")))
	require.NoError(t, h.Open())

	require.NoError(t, h.ExecuteSQL("CREATE TABLE kv (k TEXT PRIMARY KEY NOT NULL)"))
	require.NoError(t, h.ExecuteSQL("INSERT INTO kv (k) VALUES ('a')"))

	h.MarkErrorAsIgnorable(engine.CodeConstraint)
	var err = h.ExecuteSQL("INSERT INTO kv (k) VALUES ('a')")
	h.MarkErrorAsUnignorable()

	require.Error(t, err)
	assert.Equal(t, engine.CodeConstraint, engine.ErrCode(err))
	require.NotNil(t, h.LastError())
	assert.Equal(t, engine.CodeConstraint, h.LastError().Code.Primary())

	require.NoError(t, h.Close())
}
