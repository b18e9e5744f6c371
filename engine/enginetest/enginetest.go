// Package enginetest provides a scripted, in-memory implementation of the
// engine interfaces for hermetic tests of the handle layer. Tests queue
// result rows, failures, busy signals, and blocking steps against SQL
// prefixes, then assert over the log of SQL the code under test issued.
package enginetest

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"go.keystonedb.dev/core/engine"
)

// Engine fabricates scripted Conns. Scripting is configured on the Engine
// and consulted by every Conn it opens, so behaviors may be queued before
// the connection under test exists.
type Engine struct {
	mu sync.Mutex

	openErr  engine.Code
	conns    []*Conn
	rows     map[string][]Row
	failures []*failure
	busy     map[string]int
	blocks   map[string]chan struct{}
}

// Row is one scripted result row.
type Row []interface{}

type failure struct {
	prefix string
	code   engine.Code
	msg    string
}

// NewEngine returns an empty scripted Engine.
func NewEngine() *Engine {
	return &Engine{
		rows:   make(map[string][]Row),
		busy:   make(map[string]int),
		blocks: make(map[string]chan struct{}),
	}
}

// Opener returns an engine.Opener backed by this Engine.
func (e *Engine) Opener() engine.Opener {
	return func(path string) (engine.Conn, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.openErr != engine.CodeOK {
			var c = e.openErr
			e.openErr = engine.CodeOK
			return nil, &engine.Error{Code: c, Message: "scripted open failure", Path: path}
		}
		engine.NotifyVFSOpened(path)

		var conn = &Conn{eng: e, path: path}
		conn.stepGate = sync.NewCond(&conn.mu)
		e.conns = append(e.conns, conn)
		return conn, nil
	}
}

// FailNextOpen scripts the next Open to fail with code.
func (e *Engine) FailNextOpen(code engine.Code) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openErr = code
}

// Result scripts rows to be returned by statements whose SQL begins with
// prefix. Rows are replayed from the start on each execution cycle.
func (e *Engine) Result(prefix string, rows ...Row) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows[prefix] = rows
}

// FailNext scripts a one-shot failure for the next prepare, exec, or step
// of SQL beginning with prefix.
func (e *Engine) FailNext(prefix string, code engine.Code, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, &failure{prefix: prefix, code: code, msg: msg})
}

// BusyFor scripts steps of SQL beginning with prefix to return CodeBusy
// for the next |times| executions.
func (e *Engine) BusyFor(prefix string, times int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy[prefix] = times
}

// BlockOn causes steps of SQL beginning with prefix to block until the
// returned release is called or the connection is interrupted.
func (e *Engine) BlockOn(prefix string) (release func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ch = make(chan struct{})
	e.blocks[prefix] = ch
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.blocks[prefix] == ch {
			delete(e.blocks, prefix)
		}
		close(ch)
		for _, c := range e.conns {
			c.stepGate.Broadcast()
		}
	}
}

// Conn returns the most recently opened connection.
func (e *Engine) Conn() *Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.conns) == 0 {
		return nil
	}
	return e.conns[len(e.conns)-1]
}

func (e *Engine) takeFailure(sql string) *failure {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, f := range e.failures {
		if strings.HasPrefix(sql, f.prefix) {
			e.failures = append(e.failures[:i], e.failures[i+1:]...)
			return f
		}
	}
	return nil
}

func (e *Engine) takeBusy(sql string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for prefix, n := range e.busy {
		if strings.HasPrefix(sql, prefix) && n > 0 {
			e.busy[prefix] = n - 1
			return true
		}
	}
	return false
}

func (e *Engine) lookupRows(sql string) ([]Row, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rows, ok := e.rows[sql]; ok {
		return rows, true
	}
	for prefix, rows := range e.rows {
		if strings.HasPrefix(sql, prefix) {
			return rows, true
		}
	}
	return nil, false
}

func (e *Engine) blockFor(sql string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	for prefix, ch := range e.blocks {
		if strings.HasPrefix(sql, prefix) {
			return ch
		}
	}
	return nil
}

// Conn is a scripted engine connection. Beyond implementing engine.Conn,
// it exposes inspection helpers for test assertions.
type Conn struct {
	eng  *Engine
	path string

	mu       sync.Mutex
	stepGate *sync.Cond

	log          []string
	txnDepth     int
	savepoints   []string
	openStmts    int
	closed       bool
	interrupted  bool
	readonly     bool
	dirtyPages   int
	lastRowID    int64
	changes      int64
	totalChanges int64
	busyTimeout  time.Duration
	cipherKey    []byte

	errMsg  string
	errCode engine.Code
	extCode engine.Code
}

var _ engine.Conn = new(Conn)

func (c *Conn) setErr(code engine.Code, msg string) engine.Code {
	c.errCode, c.extCode, c.errMsg = code.Primary(), code, msg
	return code
}

func (c *Conn) clearErr() {
	c.errCode, c.extCode, c.errMsg = engine.CodeOK, engine.CodeOK, ""
}

// applyTxnSQL tracks transaction depth from the SQL the handle issues.
func (c *Conn) applyTxnSQL(sql string) {
	var upper = strings.ToUpper(sql)
	switch {
	case strings.HasPrefix(upper, "BEGIN"):
		c.txnDepth = 1
	case strings.HasPrefix(upper, "COMMIT"), strings.HasPrefix(upper, "END"):
		c.txnDepth = 0
		c.savepoints = nil
	case strings.HasPrefix(upper, "ROLLBACK TO"):
		// Depth is unchanged; the savepoint survives a rollback-to.
	case strings.HasPrefix(upper, "ROLLBACK"):
		c.txnDepth = 0
		c.savepoints = nil
	case strings.HasPrefix(upper, "SAVEPOINT"):
		if c.txnDepth == 0 {
			c.txnDepth = 1
		} else {
			c.txnDepth++
		}
		c.savepoints = append(c.savepoints, strings.TrimSpace(sql[len("SAVEPOINT"):]))
	case strings.HasPrefix(upper, "RELEASE"):
		if c.txnDepth > 0 {
			c.txnDepth--
		}
		if n := len(c.savepoints); n != 0 {
			c.savepoints = c.savepoints[:n-1]
		}
	}
}

// applyDML tracks row-change bookkeeping from the SQL the handle issues.
func (c *Conn) applyDML(sql string) {
	var upper = strings.ToUpper(sql)
	switch {
	case strings.HasPrefix(upper, "INSERT"):
		c.lastRowID++
		c.changes = 1
		c.totalChanges++
		c.dirtyPages++
	case strings.HasPrefix(upper, "UPDATE"), strings.HasPrefix(upper, "DELETE"):
		c.changes = 1
		c.totalChanges++
		c.dirtyPages++
	}
}

func (c *Conn) Exec(sql string) engine.Code {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log = append(c.log, sql)
	if f := c.eng.takeFailure(sql); f != nil {
		return c.setErr(f.code, f.msg)
	}
	c.clearErr()
	c.applyTxnSQL(sql)
	c.applyDML(sql)
	return engine.CodeOK
}

func (c *Conn) Prepare(sql string) (engine.Stmt, engine.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f := c.eng.takeFailure(sql); f != nil {
		return nil, c.setErr(f.code, f.msg)
	}
	c.clearErr()
	c.openStmts++
	return &Stmt{conn: c, sql: sql}, engine.CodeOK
}

func (c *Conn) LastInsertRowID() (int64, engine.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRowID, engine.CodeOK
}

func (c *Conn) Changes() (int64, engine.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changes, engine.CodeOK
}

func (c *Conn) TotalChanges() (int64, engine.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalChanges, engine.CodeOK
}

func (c *Conn) ErrMsg() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

func (c *Conn) ErrCode() engine.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errCode
}

func (c *Conn) ExtendedErrCode() engine.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extCode
}

func (c *Conn) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txnDepth == 0
}

func (c *Conn) Readonly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readonly
}

func (c *Conn) DirtyPageCount() (int, engine.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyPages, engine.CodeOK
}

func (c *Conn) Checkpoint(mode engine.CheckpointMode) (int, int, engine.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sql = "CHECKPOINT(" + mode.String() + ")"
	c.log = append(c.log, sql)
	if f := c.eng.takeFailure(sql); f != nil {
		return 0, 0, c.setErr(f.code, f.msg)
	}
	c.clearErr()
	var frames = c.dirtyPages
	c.dirtyPages = 0
	return frames, frames, engine.CodeOK
}

func (c *Conn) SetCipherKey(key []byte) engine.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cipherKey = append([]byte(nil), key...)
	return engine.CodeOK
}

func (c *Conn) SetBusyTimeout(d time.Duration) engine.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busyTimeout = d
	return engine.CodeOK
}

// Interrupt marks the connection interrupted and releases any step blocked
// by a scripted BlockOn. The mark is sticky and consumed by the next Step,
// which fails with CodeInterrupt, keeping cross-goroutine tests
// deterministic.
func (c *Conn) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupted = true
	c.stepGate.Broadcast()
}

func (c *Conn) Close() engine.Code {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.openStmts != 0 {
		return c.setErr(engine.CodeBusy, "unfinalized statements")
	}
	c.closed = true
	return engine.CodeOK
}

// Log returns a copy of all SQL and checkpoint operations issued to the
// connection, in order.
func (c *Conn) Log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// TxnDepth returns the connection's tracked transaction nesting depth.
func (c *Conn) TxnDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txnDepth
}

// Savepoints returns the names of currently active savepoints.
func (c *Conn) Savepoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.savepoints...)
}

// OpenStmts returns the count of prepared statements not yet finalized.
func (c *Conn) OpenStmts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openStmts
}

// Closed reports whether Close has completed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CipherKey returns the key material applied with SetCipherKey.
func (c *Conn) CipherKey() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.cipherKey...)
}

// SetReadonly scripts the connection's read-only state.
func (c *Conn) SetReadonly(ro bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readonly = ro
}

// SetDirtyPages scripts the count of pending write-ahead-log frames.
func (c *Conn) SetDirtyPages(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirtyPages = n
}

// SetNextInsertRowID scripts the row ID assigned by the next INSERT.
func (c *Conn) SetNextInsertRowID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRowID = id - 1
}

// Stmt is a scripted prepared statement.
type Stmt struct {
	conn *Conn
	sql  string

	logged    bool
	stepped   bool
	row       int
	rows      []Row
	finalized bool

	binds map[int]interface{}
}

var _ engine.Stmt = new(Stmt)

func (s *Stmt) Step() engine.Code {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.finalized {
		return c.setErr(engine.CodeMisuse, "stepped a finalized statement")
	}
	if !s.logged {
		s.logged = true
		c.log = append(c.log, s.sql)
	}

	// A scripted block parks the step until released or interrupted.
	for {
		var ch = c.eng.blockFor(s.sql)
		if ch == nil {
			break
		}
		if c.interrupted {
			c.interrupted = false
			return c.setErr(engine.CodeInterrupt, "interrupted")
		}
		c.stepGate.Wait()
	}
	if c.interrupted {
		c.interrupted = false
		return c.setErr(engine.CodeInterrupt, "interrupted")
	}

	if c.eng.takeBusy(s.sql) {
		return c.setErr(engine.CodeBusy, "database is locked")
	}
	if f := c.eng.takeFailure(s.sql); f != nil {
		return c.setErr(f.code, f.msg)
	}

	if !s.stepped {
		s.stepped = true
		s.rows, _ = c.eng.lookupRows(s.sql)
		s.row = 0
		c.clearErr()
		c.applyTxnSQL(s.sql)
		c.applyDML(s.sql)
	}

	if s.row < len(s.rows) {
		s.row++
		return engine.CodeRow
	}
	return engine.CodeDone
}

func (s *Stmt) Reset() engine.Code {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	s.logged, s.stepped, s.row, s.rows = false, false, 0, nil
	return engine.CodeOK
}

func (s *Stmt) ClearBindings() engine.Code {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	s.binds = nil
	return engine.CodeOK
}

func (s *Stmt) Finalize() engine.Code {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.finalized {
		return c.setErr(engine.CodeMisuse, "double finalize")
	}
	s.finalized = true
	c.openStmts--
	return engine.CodeOK
}

func (s *Stmt) SQL() string { return s.sql }

func (s *Stmt) BindCount() int {
	return strings.Count(s.sql, "?")
}

func (s *Stmt) bind(i int, v interface{}) engine.Code {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.binds == nil {
		s.binds = make(map[int]interface{})
	}
	s.binds[i] = v
	return engine.CodeOK
}

func (s *Stmt) BindInt64(i int, v int64) engine.Code { return s.bind(i, v) }

func (s *Stmt) BindDouble(i int, v float64) engine.Code { return s.bind(i, v) }

func (s *Stmt) BindText(i int, v string) engine.Code { return s.bind(i, v) }

func (s *Stmt) BindBlob(i int, v []byte) engine.Code { return s.bind(i, v) }

func (s *Stmt) BindNull(i int) engine.Code { return s.bind(i, nil) }

// Binds returns the statement's current parameter bindings by 1-based index.
func (s *Stmt) Binds() map[int]interface{} {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	var out = make(map[int]interface{}, len(s.binds))
	for k, v := range s.binds {
		out[k] = v
	}
	return out
}

func (s *Stmt) current() Row {
	if s.row == 0 || s.row > len(s.rows) {
		return nil
	}
	return s.rows[s.row-1]
}

func (s *Stmt) ColumnCount() int {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if r := s.current(); r != nil {
		return len(r)
	}
	return 0
}

func (s *Stmt) ColumnName(i int) string {
	return "c" + strconv.Itoa(i)
}

func (s *Stmt) ColumnType(i int) engine.ColumnType {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	var r = s.current()
	if r == nil || i >= len(r) || r[i] == nil {
		return engine.Null
	}
	switch r[i].(type) {
	case int64, int:
		return engine.Integer
	case float64:
		return engine.Float
	case string:
		return engine.Text
	case []byte:
		return engine.Blob
	default:
		return engine.Null
	}
}

func (s *Stmt) ColumnInt64(i int) int64 {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	var r = s.current()
	if r == nil || i >= len(r) {
		return 0
	}
	switch v := r[i].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (s *Stmt) ColumnDouble(i int) float64 {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	var r = s.current()
	if r == nil || i >= len(r) {
		return 0
	}
	switch v := r[i].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func (s *Stmt) ColumnText(i int) string {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	var r = s.current()
	if r == nil || i >= len(r) {
		return ""
	}
	switch v := r[i].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (s *Stmt) ColumnBlob(i int) []byte {
	var c = s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	var r = s.current()
	if r == nil || i >= len(r) {
		return nil
	}
	switch v := r[i].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}
