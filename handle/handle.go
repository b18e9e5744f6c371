package handle

import (
	"sync"

	petname "github.com/dustinkirkland/golang-petname"
	log "github.com/sirupsen/logrus"

	"go.keystonedb.dev/core/engine"
)

// Config configures a Handle.
type Config struct {
	// Tag identifies the handle in logs. Auto-generated if not set.
	Tag string
	// StatementCacheSize bounds the prepared statements retained by
	// ExecuteSQL and the handle's internal queries. Defaults to 64.
	StatementCacheSize int
}

// Handle is one logical connection to the storage engine. It owns the
// connection and its statements, tracks the transaction nesting level,
// dispatches notifications, and funnels every engine failure through its
// error gate. A Handle serves a single goroutine; of its methods only
// Interrupt may be called from others.
type Handle struct {
	opener engine.Opener
	tag    string
	path   string

	conn   engine.Conn
	connMu sync.Mutex // Guards conn against concurrent Interrupt.

	pool  statementPool
	cache *cachedStmts
	notes notifier
	gate  errorGate

	txnLevel   int
	pending    []int // Levels of savepoints deferred by lazy nesting.
	lazyNested bool

	cipherKey     []byte
	skipCloseCkpt bool
}

// New returns a Handle which opens its database through |opener|.
func New(opener engine.Opener, cfg Config) *Handle {
	if cfg.Tag == "" {
		cfg.Tag = petname.Generate(2, "-")
	}
	if cfg.StatementCacheSize == 0 {
		cfg.StatementCacheSize = 64
	}
	var h = &Handle{
		opener: opener,
		tag:    cfg.Tag,
		pool:   newStatementPool(),
	}
	h.cache = newCachedStmts(h, cfg.StatementCacheSize)
	return h
}

// Tag returns the handle's log identity.
func (h *Handle) Tag() string { return h.tag }

// Path returns the primary database path.
func (h *Handle) Path() string { return h.path }

// Paths returns the handle's database file paths.
func (h *Handle) Paths() Paths { return DerivePaths(h.path) }

// SetPath sets the database path the handle will open. Re-pathing an open
// handle is a misuse; close it first.
func (h *Handle) SetPath(path string) error {
	if h.conn != nil {
		return h.misuse("handle is open; close it before re-pathing", "")
	}
	h.path = path
	return nil
}

// Open opens the handle's database. Opening an already-open handle is a
// no-op. A cipher key set beforehand is applied before any other statement
// executes on the connection.
func (h *Handle) Open() error {
	if h.conn != nil {
		return nil
	}
	if h.path == "" {
		return h.misuse("no database path is set", "")
	}
	var conn, err = h.opener(h.path)
	if err != nil {
		var e = engine.AsError(err)
		if e == nil {
			e = &engine.Error{
				Code:    engine.CodeCantOpen,
				ExtCode: engine.CodeCantOpen,
				Message: err.Error(),
				Path:    h.path,
			}
		}
		return h.fail(e)
	}
	h.connMu.Lock()
	h.conn = conn
	h.connMu.Unlock()

	if len(h.cipherKey) != 0 {
		if err = h.finish(conn.SetCipherKey(h.cipherKey), ""); err != nil {
			h.connMu.Lock()
			h.conn = nil
			h.connMu.Unlock()
			conn.Close()
			return err
		}
	}
	log.WithFields(log.Fields{"handle": h.tag, "path": h.path}).Debug("opened database")
	return nil
}

// IsOpened reports whether the handle holds an open connection.
func (h *Handle) IsOpened() bool { return h.conn != nil }

// Close finalizes every statement the handle owns, checkpoints the database
// unless disabled, and releases the connection. Closing a closed handle is
// a no-op.
func (h *Handle) Close() error {
	if h.conn == nil {
		return nil
	}
	h.cache.purge()
	h.pool.finalizeAll()

	if !h.skipCloseCkpt && !h.conn.Readonly() && !IsMemory(h.path) {
		if _, _, code := h.conn.Checkpoint(engine.CheckpointTruncate); code.OK() {
			checkpointsTotal.WithLabelValues(engine.CheckpointTruncate.String()).Inc()
			h.notes.fireCheckpointed(h.path, engine.CheckpointTruncate)
		} else {
			log.WithFields(log.Fields{"handle": h.tag, "code": code}).
				Debug("checkpoint on close did not complete")
		}
	}
	var err = h.finish(h.conn.Close(), "")

	h.connMu.Lock()
	h.conn = nil
	h.connMu.Unlock()
	h.txnLevel, h.pending = 0, nil

	log.WithFields(log.Fields{"handle": h.tag, "path": h.path}).Debug("closed database")
	return err
}

// DisableCheckpointOnClose skips the truncating checkpoint which Close
// otherwise performs.
func (h *Handle) DisableCheckpointOnClose(disable bool) {
	h.skipCloseCkpt = disable
}

// RawConn exposes the engine connection, or nil if the handle is closed.
// Callers must not retain it beyond the handle's lifetime.
func (h *Handle) RawConn() engine.Conn { return h.conn }

// SetCipherKey supplies the database encryption key. On an open handle the
// key applies immediately; otherwise it's retained and applied by Open
// before any other statement executes.
func (h *Handle) SetCipherKey(key []byte) error {
	h.cipherKey = append([]byte(nil), key...)
	if h.conn == nil {
		return nil
	}
	return h.finish(h.conn.SetCipherKey(h.cipherKey), "")
}

// Interrupt requests cancellation of any in-flight operation on the
// connection. It may be called from any goroutine at any time: a stepping
// statement fails with an interrupted code. Interrupt requests only; it
// never mutates handle state itself.
func (h *Handle) Interrupt() {
	h.connMu.Lock()
	var c = h.conn
	h.connMu.Unlock()

	if c != nil {
		c.Interrupt()
	}
}

// ExecuteSQL executes |sql| through the handle's statement cache, which
// retains its prepared form for later reuse.
func (h *Handle) ExecuteSQL(sql string) error {
	var s, err = h.cache.get(sql)
	if err != nil {
		return err
	}
	defer s.Reset()
	return s.Execute()
}

// Checkpoint folds write-ahead log content back into the main database
// file using |mode|. It returns the engine's reported log frame total and
// the count of frames checkpointed.
func (h *Handle) Checkpoint(mode engine.CheckpointMode) (logFrames, checkpointed int, err error) {
	if h.conn == nil {
		return 0, 0, h.misuse("handle is not open", "")
	}
	var lf, ck, code = h.conn.Checkpoint(mode)
	if !code.OK() {
		return lf, ck, h.finish(code, "")
	}
	checkpointsTotal.WithLabelValues(mode.String()).Inc()
	h.notes.fireCheckpointed(h.path, mode)
	return lf, ck, nil
}

// LastInsertedRowID returns the row id of the connection's most recent
// successful insert, or 0 if the handle is closed.
func (h *Handle) LastInsertedRowID() int64 {
	if h.conn == nil {
		return 0
	}
	var v, _ = h.conn.LastInsertRowID()
	return v
}

// Changes returns the number of rows changed by the most recent statement,
// or 0 if the handle is closed.
func (h *Handle) Changes() int64 {
	if h.conn == nil {
		return 0
	}
	var v, _ = h.conn.Changes()
	return v
}

// TotalChanges returns the number of rows changed over the connection's
// lifetime, or 0 if the handle is closed.
func (h *Handle) TotalChanges() int64 {
	if h.conn == nil {
		return 0
	}
	var v, _ = h.conn.TotalChanges()
	return v
}

// ErrorMessage returns the engine's message for its most recent failure.
func (h *Handle) ErrorMessage() string {
	if h.conn == nil {
		return ""
	}
	return h.conn.ErrMsg()
}

// ResultCode returns the engine's code for its most recent operation.
func (h *Handle) ResultCode() engine.Code {
	if h.conn == nil {
		return engine.CodeOK
	}
	return h.conn.ErrCode()
}

// ExtendedErrorCode returns the engine's extended code for its most recent
// operation.
func (h *Handle) ExtendedErrorCode() engine.Code {
	if h.conn == nil {
		return engine.CodeOK
	}
	return h.conn.ExtendedErrCode()
}

// IsReadonly reports whether the database was opened read-only.
func (h *Handle) IsReadonly() bool {
	return h.conn != nil && h.conn.Readonly()
}

// DirtyPageCount returns the count of write-ahead log frames not yet
// checkpointed into the main database file.
func (h *Handle) DirtyPageCount() int {
	if h.conn == nil {
		return 0
	}
	var n, _ = h.conn.DirtyPageCount()
	return n
}
