package handle

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.keystonedb.dev/core/engine"
	"go.keystonedb.dev/core/engine/enginetest"
)

func TestStepIteratesScriptedRows(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	eng.Result("SELECT name, age FROM people",
		enginetest.Row{"ada", int64(36)},
		enginetest.Row{"linus", int64(55)},
	)

	var s = h.GetStatement()
	require.NoError(t, s.Prepare("SELECT name, age FROM people"))

	var row, err = s.Step()
	require.NoError(t, err)
	require.True(t, row)
	assert.Equal(t, 2, s.ColumnCount())
	assert.Equal(t, "c0", s.ColumnName(0))
	assert.Equal(t, engine.Text, s.ColumnType(0))
	assert.Equal(t, "ada", s.ColumnText(0))
	assert.Equal(t, int64(36), s.ColumnInt64(1))

	row, err = s.Step()
	require.NoError(t, err)
	require.True(t, row)
	assert.Equal(t, "linus", s.ColumnText(0))

	row, err = s.Step()
	require.NoError(t, err)
	assert.False(t, row)
	assert.True(t, s.Done())

	// Reset rewinds the cycle and replays.
	require.NoError(t, s.Reset())
	assert.False(t, s.Done())
	row, err = s.Step()
	require.NoError(t, err)
	require.True(t, row)
	assert.Equal(t, "ada", s.ColumnText(0))

	h.ReturnStatement(s)
	require.NoError(t, h.Close())
}

func TestPrepareReusesIdenticalSQL(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	var s = h.GetStatement()
	require.NoError(t, s.Prepare("SELECT 1"))
	assert.Equal(t, 1, eng.Conn().OpenStmts())

	// Identical text re-uses the prepared form.
	require.NoError(t, s.Prepare("SELECT 1"))
	assert.Equal(t, 1, eng.Conn().OpenStmts())

	// Different text finalizes and re-prepares.
	require.NoError(t, s.Prepare("SELECT 2"))
	assert.Equal(t, 1, eng.Conn().OpenStmts())
	assert.Equal(t, "SELECT 2", s.SQL())

	h.ReturnStatement(s)
	require.NoError(t, h.Close())
}

func TestBindsReachTheEngine(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	var s = h.GetStatement()
	require.NoError(t, s.Prepare("INSERT INTO kv (k, f, t, b, n) VALUES (?, ?, ?, ?, ?)"))
	assert.Equal(t, 5, s.BindCount())

	require.NoError(t, s.BindInt64(1, 7))
	require.NoError(t, s.BindDouble(2, 2.5))
	require.NoError(t, s.BindText(3, "seven"))
	require.NoError(t, s.BindBlob(4, []byte{0xde, 0xad}))
	require.NoError(t, s.BindNull(5))

	var binds = s.es.(*enginetest.Stmt).Binds()
	assert.Equal(t, int64(7), binds[1])
	assert.Equal(t, 2.5, binds[2])
	assert.Equal(t, "seven", binds[3])
	assert.Equal(t, []byte{0xde, 0xad}, binds[4])
	assert.Nil(t, binds[5])

	require.NoError(t, s.ClearBindings())
	assert.Empty(t, s.es.(*enginetest.Stmt).Binds())

	h.ReturnStatement(s)
	require.NoError(t, h.Close())
}

func TestWillStepVetoAbortsTheStep(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	h.SetWillStepNotification("quota", func(s *Statement) error {
		return errors.New("write quota exhausted")
	})
	var didStepErrs []error
	h.SetDidStepNotification("audit", func(s *Statement, err error) {
		didStepErrs = append(didStepErrs, err)
	})

	var err = h.ExecuteSQL("INSERT INTO big (v) VALUES (1)")
	require.Error(t, err)
	assert.Equal(t, engine.CodeAbort, engine.ErrCode(err))

	// The vetoed statement never reached the engine.
	assert.NotContains(t, eng.Conn().Log(), "INSERT INTO big (v) VALUES (1)")
	require.Len(t, didStepErrs, 1)
	assert.Error(t, didStepErrs[0])

	// Removing the veto lets the statement through.
	h.SetWillStepNotification("quota", nil)
	require.NoError(t, h.ExecuteSQL("INSERT INTO big (v) VALUES (1)"))

	require.NoError(t, h.Close())
}

func TestBusyRetryNotificationDrivesRetries(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	var before = counterVal(busyRetriesTotal)
	var attempts []int
	h.SetBusyRetryNotification("backoff", func(path string, n int) bool {
		attempts = append(attempts, n)
		return true
	})

	eng.BusyFor("UPDATE contended", 2)
	require.NoError(t, h.ExecuteSQL("UPDATE contended SET v = v + 1"))

	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, before+2, counterVal(busyRetriesTotal))

	require.NoError(t, h.Close())
}

func TestBusyWithoutRetryHookSurfaces(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	eng.BusyFor("UPDATE contended", 1)
	var err = h.ExecuteSQL("UPDATE contended SET v = v + 1")
	require.Error(t, err)
	assert.Equal(t, engine.CodeBusy, engine.ErrCode(err))

	require.NoError(t, h.Close())
}

func TestTracesBracketTheExecutionCycle(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	eng.Result("SELECT v FROM seq", enginetest.Row{int64(1)}, enginetest.Row{int64(2)})

	var traced []string
	var perf []time.Duration
	var steps int
	h.SetSQLTraceNotification("sql", func(sql string) { traced = append(traced, sql) })
	h.SetPerformanceTraceNotification("perf", func(sql string, elapsed time.Duration) {
		perf = append(perf, elapsed)
	})
	h.SetDidStepNotification("steps", func(s *Statement, err error) { steps++ })

	var s = h.GetStatement()
	require.NoError(t, s.Prepare("SELECT v FROM seq"))
	require.NoError(t, s.Execute())

	// One SQL trace and one performance trace per cycle; one did-step per row
	// plus one for completion.
	assert.Equal(t, []string{"SELECT v FROM seq"}, traced)
	require.Len(t, perf, 1)
	assert.GreaterOrEqual(t, perf[0], time.Duration(0))
	assert.Equal(t, 3, steps)

	// A second cycle traces again.
	require.NoError(t, s.Reset())
	require.NoError(t, s.Execute())
	assert.Len(t, traced, 2)
	assert.Len(t, perf, 2)

	h.ReturnStatement(s)
	require.NoError(t, h.Close())
}

func TestStepWithoutPrepareIsMisuse(t *testing.T) {
	var eng = enginetest.NewEngine()
	var h = mustOpenTestHandle(t, eng)

	var s = h.GetStatement()
	var _, err = s.Step()
	require.Error(t, err)
	assert.Equal(t, engine.CodeMisuse, engine.ErrCode(err))

	require.Error(t, s.BindInt64(1, 1))

	h.ReturnStatement(s)
	require.NoError(t, h.Close())
}
