// Package engine defines the narrow, C-shaped contract between the handle
// layer and an underlying SQL storage engine. Implementations adapt a real
// engine (see package sqlite) or script one for tests (see package
// enginetest). Calls return a Code rather than an error: the handle layer
// owns the policy of turning codes into rich, reportable errors.
//
// With the exception of Conn.Interrupt, implementations may assume all
// methods of a Conn and its Stmts are invoked from a single goroutine.
package engine

import "time"

// Opener establishes a Conn to the database at path. An Opener is how a
// handle reaches its engine; bindings provide concrete Openers.
type Opener func(path string) (Conn, error)

// Conn is one open connection to the storage engine.
type Conn interface {
	// Exec runs SQL directly, without a prepared statement. The SQL may
	// contain multiple statements.
	Exec(sql string) Code
	// Prepare compiles SQL into a Stmt. On failure the returned Stmt is nil.
	Prepare(sql string) (Stmt, Code)

	// LastInsertRowID returns the row ID of the most recent successful
	// INSERT on this connection.
	LastInsertRowID() (int64, Code)
	// Changes returns the number of rows modified by the most recently
	// completed statement.
	Changes() (int64, Code)
	// TotalChanges returns the number of rows modified since the
	// connection opened.
	TotalChanges() (int64, Code)

	// ErrMsg returns the engine's current error message.
	ErrMsg() string
	// ErrCode returns the engine's current primary result code.
	ErrCode() Code
	// ExtendedErrCode returns the engine's current extended result code.
	ExtendedErrCode() Code

	// AutoCommit reports whether the connection is outside of an explicit
	// transaction.
	AutoCommit() bool
	// Readonly reports whether the connection was opened read-only.
	Readonly() bool
	// DirtyPageCount returns the number of write-ahead-log frames not yet
	// folded back into the main database file.
	DirtyPageCount() (int, Code)

	// Checkpoint folds write-ahead-log content into the main database
	// file, returning the total and checkpointed frame counts.
	Checkpoint(mode CheckpointMode) (logFrames, checkpointed int, c Code)

	// SetCipherKey applies binary key material to an encrypted database.
	// It must run before any other statement touches the database.
	SetCipherKey(key []byte) Code
	// SetBusyTimeout configures the engine's internal busy handler. The
	// handle layer keeps this at zero and drives retry itself.
	SetBusyTimeout(d time.Duration) Code

	// Interrupt asks the engine to abort the connection's in-flight
	// operation at its next internal check interval. It is the only
	// method safe to call from a goroutine other than the connection's
	// owner.
	Interrupt()

	// Close releases the connection. All Stmts must be finalized first.
	Close() Code
}

// Stmt is one prepared statement owned by a Conn.
//
// Bind indices are 1-based and column indices are 0-based, following the
// engine's own conventions. Column accessors are valid once stepping has
// begun and before the statement is reset.
type Stmt interface {
	// Step advances the statement, returning Row when a result row is
	// available, Done when execution has completed, and an error code
	// otherwise.
	Step() Code
	// Reset rewinds the statement so it may be stepped again. Bindings
	// are retained.
	Reset() Code
	// ClearBindings unbinds all parameters.
	ClearBindings() Code
	// Finalize destroys the statement. The Stmt must not be used again.
	Finalize() Code

	// SQL returns the text the statement was prepared from.
	SQL() string
	// BindCount returns the number of bindable parameters.
	BindCount() int

	BindInt64(i int, v int64) Code
	BindDouble(i int, v float64) Code
	BindText(i int, v string) Code
	BindBlob(i int, v []byte) Code
	BindNull(i int) Code

	ColumnCount() int
	ColumnName(i int) string
	ColumnType(i int) ColumnType
	ColumnInt64(i int) int64
	ColumnDouble(i int) float64
	ColumnText(i int) string
	ColumnBlob(i int) []byte
}

// CheckpointMode selects the blocking behavior of a Checkpoint.
type CheckpointMode int

const (
	CheckpointPassive  CheckpointMode = 0
	CheckpointFull     CheckpointMode = 1
	CheckpointRestart  CheckpointMode = 2
	CheckpointTruncate CheckpointMode = 3
)

// String returns the mode's engine keyword.
func (m CheckpointMode) String() string {
	switch m {
	case CheckpointPassive:
		return "PASSIVE"
	case CheckpointFull:
		return "FULL"
	case CheckpointRestart:
		return "RESTART"
	case CheckpointTruncate:
		return "TRUNCATE"
	default:
		return "INVALID"
	}
}

// ColumnType enumerates the engine's fundamental value types.
type ColumnType int

const (
	Integer ColumnType = 1
	Float   ColumnType = 2
	Text    ColumnType = 3
	Blob    ColumnType = 4
	Null    ColumnType = 5
)

// String returns the type's engine keyword.
func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	case Null:
		return "NULL"
	default:
		return "INVALID"
	}
}
