package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.keystonedb.dev/core/engine"
	"go.keystonedb.dev/core/engine/enginetest"
)

func TestTableExists(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	var reported = counterVal(engineErrorsTotal.WithLabelValues("reported"))

	var exists, err = h.TableExists("posts")
	require.NoError(t, err)
	assert.True(t, exists)

	// A missing table reports (false, nil) and is not a reportable failure.
	eng.FailNext(`SELECT 1 FROM "missing" LIMIT 0`, engine.CodeError, "no such table: missing")
	exists, err = h.TableExists("missing")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, reported, counterVal(engineErrorsTotal.WithLabelValues("reported")))

	// Other failures surface as errors.
	eng.FailNext(`SELECT 1 FROM "posts" LIMIT 0`, engine.CodeIOErr, "disk I/O error")
	exists, err = h.TableExists("posts")
	require.Error(t, err)
	assert.False(t, exists)
	assert.Equal(t, engine.CodeIOErr, engine.ErrCode(err))

	require.NoError(t, h.Close())
}

func TestTableExistsQuotesTheName(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	var _, err = h.TableExists(`weird"name`)
	require.NoError(t, err)
	assert.True(t, logContains(eng.Conn().Log(), `SELECT 1 FROM "weird""name" LIMIT 0`))

	require.NoError(t, h.Close())
}

func TestTableMeta(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	eng.Result(`PRAGMA table_info("posts")`,
		enginetest.Row{int64(0), "id", "INTEGER", int64(1), nil, int64(1)},
		enginetest.Row{int64(1), "title", "TEXT", int64(0), "''", int64(0)},
		enginetest.Row{int64(2), "body", "TEXT", int64(0), nil, int64(0)},
	)

	var meta, err = h.TableMeta("posts")
	require.NoError(t, err)
	assert.Equal(t, []ColumnMeta{
		{Name: "id", Type: "INTEGER", NotNull: true, PrimaryKey: 1},
		{Name: "title", Type: "TEXT", DefaultValue: "''"},
		{Name: "body", Type: "TEXT"},
	}, meta)

	var cols, colsErr = h.TableColumns("posts")
	require.NoError(t, colsErr)
	assert.Equal(t, []string{"id", "title", "body"}, cols)

	require.NoError(t, h.Close())
}

func TestTableMetaOfAMissingTableIsEmpty(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	var meta, err = h.TableMeta("missing")
	require.NoError(t, err)
	assert.Empty(t, meta)

	require.NoError(t, h.Close())
}

func TestFTS3TokenizerExists(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	var reported = counterVal(engineErrorsTotal.WithLabelValues("reported"))

	var ok, err = h.FTS3TokenizerExists("simple")
	require.NoError(t, err)
	assert.True(t, ok)

	// An unknown tokenizer errors inside the probe, and reports (false, nil).
	eng.FailNext("SELECT fts3_tokenizer(?)", engine.CodeError, "unknown tokenizer: nope")
	ok, err = h.FTS3TokenizerExists("nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, reported, counterVal(engineErrorsTotal.WithLabelValues("reported")))

	require.NoError(t, h.Close())
}

func TestMetaQueriesRequireAnOpenHandle(t *testing.T) {
	var h = New(enginetest.NewEngine().Opener(), Config{Tag: "closed"})

	var _, err = h.TableExists("posts")
	assert.Equal(t, engine.CodeMisuse, engine.ErrCode(err))

	_, err = h.FTS3TokenizerExists("simple")
	assert.Equal(t, engine.CodeMisuse, engine.ErrCode(err))
}
