package enginetest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keystonedb.dev/core/engine"
)

func TestScriptedRowsReplay(t *testing.T) {
	var eng = NewEngine()
	var conn = mustOpen(t, eng)

	eng.Result("SELECT name FROM sqlite_master",
		Row{"albums"}, Row{"tracks"})

	var stmt, code = conn.Prepare("SELECT name FROM sqlite_master WHERE type = 'table'")
	require.Equal(t, engine.CodeOK, code)

	assert.Equal(t, engine.CodeRow, stmt.Step())
	assert.Equal(t, "albums", stmt.ColumnText(0))
	assert.Equal(t, engine.Text, stmt.ColumnType(0))
	assert.Equal(t, engine.CodeRow, stmt.Step())
	assert.Equal(t, "tracks", stmt.ColumnText(0))
	assert.Equal(t, engine.CodeDone, stmt.Step())

	// Reset replays the script from the start.
	assert.Equal(t, engine.CodeOK, stmt.Reset())
	assert.Equal(t, engine.CodeRow, stmt.Step())
	assert.Equal(t, "albums", stmt.ColumnText(0))

	stmt.Reset()
	assert.Equal(t, engine.CodeOK, stmt.Finalize())
	assert.Equal(t, engine.CodeOK, conn.Close())
}

func TestTransactionDepthTracking(t *testing.T) {
	var eng = NewEngine()
	var conn = mustOpen(t, eng)

	require.True(t, conn.AutoCommit())
	conn.Exec("BEGIN IMMEDIATE")
	assert.False(t, conn.AutoCommit())
	assert.Equal(t, 1, conn.TxnDepth())

	conn.Exec("SAVEPOINT sp_1")
	assert.Equal(t, 2, conn.TxnDepth())
	assert.Equal(t, []string{"sp_1"}, conn.Savepoints())

	conn.Exec("ROLLBACK TO SAVEPOINT sp_1")
	assert.Equal(t, 2, conn.TxnDepth())

	conn.Exec("RELEASE SAVEPOINT sp_1")
	assert.Equal(t, 1, conn.TxnDepth())

	conn.Exec("COMMIT")
	assert.True(t, conn.AutoCommit())
	assert.Equal(t, 0, conn.TxnDepth())
}

func TestInsertBookkeeping(t *testing.T) {
	var eng = NewEngine()
	var conn = mustOpen(t, eng)

	conn.SetNextInsertRowID(42)
	conn.Exec("INSERT INTO t (x) VALUES (1)")

	var id, _ = conn.LastInsertRowID()
	assert.Equal(t, int64(42), id)
	var n, _ = conn.Changes()
	assert.Equal(t, int64(1), n)
	var pages, _ = conn.DirtyPageCount()
	assert.Equal(t, 1, pages)

	// Checkpoint drains pending frames.
	var logged, ckpt, code = conn.Checkpoint(engine.CheckpointTruncate)
	assert.Equal(t, engine.CodeOK, code)
	assert.Equal(t, 1, logged)
	assert.Equal(t, 1, ckpt)
	pages, _ = conn.DirtyPageCount()
	assert.Equal(t, 0, pages)
}

func TestScriptedFailuresAreOneShot(t *testing.T) {
	var eng = NewEngine()
	var conn = mustOpen(t, eng)

	eng.FailNext("INSERT", engine.CodeConstraintUnique, "UNIQUE constraint failed")

	assert.Equal(t, engine.CodeConstraintUnique, conn.Exec("INSERT INTO t VALUES (1)"))
	assert.Equal(t, engine.CodeConstraint, conn.ErrCode())
	assert.Equal(t, "UNIQUE constraint failed", conn.ErrMsg())

	// The failure was consumed; the same SQL now succeeds.
	assert.Equal(t, engine.CodeOK, conn.Exec("INSERT INTO t VALUES (1)"))
}

func TestBusyScriptAndRetry(t *testing.T) {
	var eng = NewEngine()
	var conn = mustOpen(t, eng)

	eng.BusyFor("COMMIT", 2)
	var stmt, _ = conn.Prepare("COMMIT")

	assert.Equal(t, engine.CodeBusy, stmt.Step())
	assert.Equal(t, engine.CodeBusy, stmt.Step())
	assert.Equal(t, engine.CodeDone, stmt.Step())

	stmt.Finalize()
}

func TestBlockedStepInterruptsFromAnotherGoroutine(t *testing.T) {
	var eng = NewEngine()
	var conn = mustOpen(t, eng)

	var release = eng.BlockOn("SELECT slow")
	defer release()

	var stmt, _ = conn.Prepare("SELECT slow FROM t")
	var stepped = make(chan engine.Code, 1)
	go func() { stepped <- stmt.Step() }()

	// The step is parked; interrupt it from this goroutine.
	time.Sleep(10 * time.Millisecond)
	conn.Interrupt()

	select {
	case code := <-stepped:
		assert.Equal(t, engine.CodeInterrupt, code)
	case <-time.After(5 * time.Second):
		t.Fatal("step was not interrupted")
	}
	stmt.Finalize()
}

func TestCloseRequiresFinalizedStatements(t *testing.T) {
	var eng = NewEngine()
	var conn = mustOpen(t, eng)

	var stmt, _ = conn.Prepare("SELECT 1")
	assert.Equal(t, engine.CodeBusy, conn.Close())
	assert.False(t, conn.Closed())

	stmt.Finalize()
	assert.Equal(t, engine.CodeOK, conn.Close())
	assert.True(t, conn.Closed())
}

func TestFailNextOpen(t *testing.T) {
	var eng = NewEngine()
	eng.FailNextOpen(engine.CodeCantOpen)

	var _, err = eng.Opener()("/tmp/nope.db")
	require.Error(t, err)
	assert.Equal(t, engine.CodeCantOpen, engine.AsError(err).Code)

	// One-shot: the next open succeeds.
	var conn = mustOpen(t, eng)
	assert.NotNil(t, conn)
}

func mustOpen(t *testing.T, eng *Engine) *Conn {
	var conn, err = eng.Opener()("/tmp/scripted.db")
	require.NoError(t, err)
	return conn.(*Conn)
}
