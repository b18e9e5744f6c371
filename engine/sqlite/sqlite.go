// Package sqlite binds the engine interfaces to SQLite through the
// mattn/go-sqlite3 driver. The binding stays at the driver level (no
// database/sql pooling): each engine.Conn owns exactly one SQLiteConn, and
// statement stepping maps onto driver row iteration. Cancellation via
// Conn.Interrupt is implemented with per-operation contexts, which the
// driver translates into an engine-level interrupt of the in-flight call.
//
// Process-wide configuration (engine.Configure) is consumed at open:
// the memory-map bound becomes a pragma, and the VFS-open hook fires for
// each opened database. Thread-mode and memory-status toggles are accepted
// but inert, as the bundled engine is compiled thread-safe with accounting
// on.
package sqlite

import (
	"context"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.keystonedb.dev/core/engine"
)

// Options configure how a database is opened. The zero value opens
// read-write with write-ahead logging and NORMAL synchronous mode, and
// leaves lock contention to the handle layer (no engine busy timeout).
type Options struct {
	// JournalMode sets the journal pragma. Defaults to WAL.
	JournalMode string
	// Synchronous sets the synchronous pragma. Defaults to NORMAL.
	Synchronous string
	// BusyTimeout enables the engine's internal busy handler. Leave zero
	// to surface contention to the caller.
	BusyTimeout time.Duration
	// ForeignKeys enables foreign-key enforcement.
	ForeignKeys bool
	// Readonly opens the database in read-only mode.
	Readonly bool
	// VFS names an alternate VFS implementation.
	VFS string
	// Extra merges additional URI parameters into the data source name.
	Extra url.Values
}

// DSN builds the driver data source name for path.
func (o Options) DSN(path string) string {
	var v = make(url.Values)
	for key, vals := range o.Extra {
		v[key] = vals
	}

	var journal = o.JournalMode
	if journal == "" {
		journal = "WAL"
	}
	var synchronous = o.Synchronous
	if synchronous == "" {
		synchronous = "NORMAL"
	}
	v.Set("_journal_mode", journal)
	v.Set("_synchronous", synchronous)
	v.Set("_busy_timeout", strconv.FormatInt(o.BusyTimeout.Milliseconds(), 10))
	if o.ForeignKeys {
		v.Set("_foreign_keys", "on")
	}
	if o.Readonly {
		v.Set("mode", "ro")
	}
	if o.VFS != "" {
		v.Set("vfs", o.VFS)
	}
	return "file:" + path + "?" + v.Encode()
}

// NewOpener returns an engine.Opener applying opts to each open.
func NewOpener(opts Options) engine.Opener {
	return func(path string) (engine.Conn, error) { return Open(path, opts) }
}

// Open establishes an engine connection to the database at path.
func Open(path string, opts Options) (engine.Conn, error) {
	var d = &sqlite3.SQLiteDriver{}
	var dc, err = d.Open(opts.DSN(path))
	if err != nil {
		return nil, openError(err, path)
	}
	engine.NotifyVFSOpened(path)

	var c = &conn{
		sc:       dc.(*sqlite3.SQLiteConn),
		path:     path,
		readonly: opts.Readonly,
		cancels:  make(map[int64]context.CancelFunc),
	}

	if mmap := engine.GlobalConfig().MemoryMapSize; mmap > 0 {
		if code := c.Exec(fmt.Sprintf("PRAGMA mmap_size = %d", mmap)); !code.OK() {
			c.Close()
			return nil, c.errState.toError("", path)
		}
	}
	return c, nil
}

func openError(err error, path string) error {
	if se, ok := err.(sqlite3.Error); ok {
		return &engine.Error{
			Code:    engine.Code(se.Code),
			ExtCode: engine.Code(se.ExtendedCode),
			Message: se.Error(),
			Path:    path,
		}
	}
	return errors.Wrapf(err, "opening %s", path)
}

// errState is the last failure recorded against a connection.
type errState struct {
	code engine.Code
	ext  engine.Code
	msg  string
}

func (s errState) toError(sql, path string) *engine.Error {
	return &engine.Error{Code: s.code, ExtCode: s.ext, Message: s.msg, SQL: sql, Path: path}
}

type conn struct {
	sc       *sqlite3.SQLiteConn
	path     string
	readonly bool
	pageSize int64

	errState errState

	// cancels tracks contexts of in-flight operations, so that Interrupt
	// can abort them from another goroutine.
	cancelMu sync.Mutex
	cancels  map[int64]context.CancelFunc
	nextOp   int64
}

var _ engine.Conn = new(conn)

// beginOp registers a cancelable context for an engine call. The returned
// end both unregisters and releases it.
func (c *conn) beginOp() (context.Context, func()) {
	var ctx, cancel = context.WithCancel(context.Background())

	c.cancelMu.Lock()
	var id = c.nextOp
	c.nextOp++
	c.cancels[id] = cancel
	c.cancelMu.Unlock()

	return ctx, func() {
		c.cancelMu.Lock()
		delete(c.cancels, id)
		c.cancelMu.Unlock()
		cancel()
	}
}

func (c *conn) Interrupt() {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	for _, cancel := range c.cancels {
		cancel()
	}
}

// recordErr maps a driver error into engine code space and records it as
// the connection's error state.
func (c *conn) recordErr(err error) engine.Code {
	switch e := err.(type) {
	case nil:
		c.errState = errState{}
		return engine.CodeOK
	case sqlite3.Error:
		var ext = engine.Code(e.ExtendedCode)
		if ext == 0 {
			ext = engine.Code(e.Code)
		}
		c.errState = errState{code: engine.Code(e.Code), ext: ext, msg: e.Error()}
		return ext
	default:
		if err == context.Canceled || err == context.DeadlineExceeded {
			c.errState = errState{code: engine.CodeInterrupt, ext: engine.CodeInterrupt, msg: "interrupted"}
			return engine.CodeInterrupt
		}
		c.errState = errState{code: engine.CodeError, ext: engine.CodeError, msg: err.Error()}
		return engine.CodeError
	}
}

func (c *conn) Exec(sql string) engine.Code {
	var ctx, end = c.beginOp()
	defer end()

	var _, err = c.sc.ExecContext(ctx, sql, nil)
	return c.recordErr(err)
}

func (c *conn) Prepare(sql string) (engine.Stmt, engine.Code) {
	var ds, err = c.sc.Prepare(sql)
	if code := c.recordErr(err); !code.OK() {
		return nil, code
	}
	return &stmt{c: c, sql: sql, ds: ds}, engine.CodeOK
}

// queryRow runs an internal one-row query outside of interrupt scope,
// scanning its first row into dest.
func (c *conn) queryRow(q string, dest []driver.Value) engine.Code {
	var rows, err = c.sc.Query(q, nil)
	if err != nil {
		return c.recordErr(err)
	}
	err = rows.Next(dest)
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return c.recordErr(err)
}

func (c *conn) queryInt64(q string) (int64, engine.Code) {
	var dest = make([]driver.Value, 1)
	if code := c.queryRow(q, dest); !code.OK() {
		return 0, code
	}
	if v, ok := dest[0].(int64); ok {
		return v, engine.CodeOK
	}
	return 0, engine.CodeOK
}

func (c *conn) LastInsertRowID() (int64, engine.Code) {
	return c.queryInt64("SELECT last_insert_rowid()")
}

func (c *conn) Changes() (int64, engine.Code) {
	return c.queryInt64("SELECT changes()")
}

func (c *conn) TotalChanges() (int64, engine.Code) {
	return c.queryInt64("SELECT total_changes()")
}

func (c *conn) ErrMsg() string { return c.errState.msg }

func (c *conn) ErrCode() engine.Code { return c.errState.code.Primary() }

func (c *conn) ExtendedErrCode() engine.Code { return c.errState.ext }

func (c *conn) AutoCommit() bool { return c.sc.AutoCommit() }

func (c *conn) Readonly() bool { return c.readonly }

// DirtyPageCount derives the count of write-ahead-log frames pending
// checkpoint from the log's size on disk: a 32-byte header followed by
// frames of 24-byte header plus one page each.
func (c *conn) DirtyPageCount() (int, engine.Code) {
	var file = c.sc.GetFilename("main")
	if file == "" {
		return 0, engine.CodeOK // In-memory database.
	}

	if c.pageSize == 0 {
		var ps, code = c.queryInt64("PRAGMA page_size")
		if !code.OK() {
			return 0, code
		}
		c.pageSize = ps
	}

	var fi, err = os.Stat(file + "-wal")
	if os.IsNotExist(err) {
		return 0, engine.CodeOK
	} else if err != nil {
		c.errState = errState{code: engine.CodeIOErr, ext: engine.CodeIOErr, msg: err.Error()}
		return 0, engine.CodeIOErr
	}

	const walHeader, frameHeader = 32, 24
	if fi.Size() <= walHeader {
		return 0, engine.CodeOK
	}
	return int((fi.Size() - walHeader) / (c.pageSize + frameHeader)), engine.CodeOK
}

func (c *conn) Checkpoint(mode engine.CheckpointMode) (int, int, engine.Code) {
	var dest = make([]driver.Value, 3)
	var code = c.queryRow(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode), dest)
	if !code.OK() {
		return 0, 0, code
	}

	var busy, logFrames, ckpt int64
	if v, ok := dest[0].(int64); ok {
		busy = v
	}
	if v, ok := dest[1].(int64); ok {
		logFrames = v
	}
	if v, ok := dest[2].(int64); ok {
		ckpt = v
	}
	if busy != 0 {
		c.errState = errState{code: engine.CodeBusy, ext: engine.CodeBusy, msg: "checkpoint blocked by a reader"}
		return int(logFrames), int(ckpt), engine.CodeBusy
	}
	return int(logFrames), int(ckpt), engine.CodeOK
}

// SetCipherKey applies hex-encoded key material. On builds without an
// encryption extension the pragma is silently ignored by the engine.
func (c *conn) SetCipherKey(key []byte) engine.Code {
	return c.Exec(fmt.Sprintf("PRAGMA hexkey = '%s'", hex.EncodeToString(key)))
}

func (c *conn) SetBusyTimeout(d time.Duration) engine.Code {
	return c.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds()))
}

func (c *conn) Close() engine.Code {
	c.Interrupt()
	return c.recordErr(c.sc.Close())
}
