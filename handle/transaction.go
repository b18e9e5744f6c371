package handle

import (
	"strconv"
	"strings"
)

// savepointPrefix prefixes savepoints created for nested transactions,
// suffixed with the nesting level each one guards.
const savepointPrefix = "keystone_sp_"

func savepointName(level int) string {
	return savepointPrefix + strconv.Itoa(level)
}

// BeginTransaction begins a flat transaction, taking the engine's write
// lock eagerly. The nesting level moves from 0 to 1.
func (h *Handle) BeginTransaction() error {
	if h.txnLevel != 0 {
		return h.misuse("a transaction is already active", "BEGIN")
	}
	var err = h.execTxn("BEGIN IMMEDIATE")
	if err == nil {
		h.txnLevel = 1
		transactionsTotal.WithLabelValues("begin").Inc()
	}
	return err
}

// CommitOrRollbackTransaction commits the flat transaction, or rolls it
// back if the commit itself fails. A nil return means the transaction
// committed; otherwise the commit failure is returned and the transaction
// was rolled back where possible. Commit hooks fire only on commit.
func (h *Handle) CommitOrRollbackTransaction() error {
	if h.txnLevel == 0 {
		return h.misuse("no transaction is active", "COMMIT")
	}
	var err = h.execTxn("COMMIT")
	if err == nil {
		h.txnLevel, h.pending = 0, nil
		transactionsTotal.WithLabelValues("commit").Inc()
		h.fireCommitted()
		return nil
	}
	if rbErr := h.execTxn("ROLLBACK"); rbErr == nil {
		h.txnLevel, h.pending = 0, nil
		transactionsTotal.WithLabelValues("rollback").Inc()
	} else {
		h.syncTxnLevel()
	}
	return err
}

// RollbackTransaction rolls back the flat transaction, discarding all of
// its writes. The nesting level returns to 0.
func (h *Handle) RollbackTransaction() error {
	if h.txnLevel == 0 {
		return h.misuse("no transaction is active", "ROLLBACK")
	}
	var err = h.execTxn("ROLLBACK")
	if err == nil {
		h.txnLevel, h.pending = 0, nil
		transactionsTotal.WithLabelValues("rollback").Inc()
	} else {
		h.syncTxnLevel()
	}
	return err
}

// BeginNestedTransaction begins a nested transaction scope. At level 0 it
// is a flat begin. At level >= 1 it creates a savepoint guarding the new
// level, or defers the savepoint when lazy nesting is enabled.
func (h *Handle) BeginNestedTransaction() error {
	if h.txnLevel == 0 {
		return h.BeginTransaction()
	}
	var next = h.txnLevel + 1

	if h.lazyNested {
		h.pending = append(h.pending, next)
		h.txnLevel = next
		transactionsTotal.WithLabelValues("begin_nested").Inc()
		return nil
	}
	var err = h.execTxn("SAVEPOINT " + savepointName(next))
	if err == nil {
		h.txnLevel = next
		transactionsTotal.WithLabelValues("begin_nested").Inc()
	}
	return err
}

// CommitOrRollbackNestedTransaction releases the current nested scope's
// savepoint, folding its writes into the enclosing transaction. If the
// release fails the scope is rolled back instead, and the release failure
// is returned. At level 1 it degrades to the flat form.
func (h *Handle) CommitOrRollbackNestedTransaction() error {
	if h.txnLevel <= 1 {
		return h.CommitOrRollbackTransaction()
	}
	if h.popPending(h.txnLevel) {
		// The scope never materialized its savepoint, and commits trivially.
		h.txnLevel--
		transactionsTotal.WithLabelValues("release").Inc()
		return nil
	}
	var name = savepointName(h.txnLevel)
	var err = h.execTxn("RELEASE SAVEPOINT " + name)
	if err == nil {
		h.txnLevel--
		transactionsTotal.WithLabelValues("release").Inc()
		return nil
	}
	var rbErr = h.execTxn("ROLLBACK TO SAVEPOINT " + name)
	if rbErr == nil {
		rbErr = h.execTxn("RELEASE SAVEPOINT " + name)
	}
	if rbErr == nil {
		h.txnLevel--
		transactionsTotal.WithLabelValues("rollback_nested").Inc()
	}
	return err
}

// RollbackNestedTransaction rolls back the current nested scope, restoring
// the enclosing transaction to its state at the scope's begin. At level 1
// it degrades to the flat form.
func (h *Handle) RollbackNestedTransaction() error {
	if h.txnLevel <= 1 {
		return h.RollbackTransaction()
	}
	if h.popPending(h.txnLevel) {
		// The scope never materialized its savepoint; there's nothing to undo.
		h.txnLevel--
		transactionsTotal.WithLabelValues("rollback_nested").Inc()
		return nil
	}
	var name = savepointName(h.txnLevel)
	var err = h.execTxn("ROLLBACK TO SAVEPOINT " + name)
	if err == nil {
		err = h.execTxn("RELEASE SAVEPOINT " + name)
	}
	if err == nil {
		h.txnLevel--
		transactionsTotal.WithLabelValues("rollback_nested").Inc()
	}
	return err
}

// RunTransaction runs |fn| inside a flat transaction. If |fn| returns nil
// the transaction commits; otherwise it rolls back and |fn|'s error is
// returned unchanged.
func (h *Handle) RunTransaction(fn func(h *Handle) error) error {
	if err := h.BeginTransaction(); err != nil {
		return err
	}
	if err := fn(h); err != nil {
		_ = h.RollbackTransaction()
		return err
	}
	return h.CommitOrRollbackTransaction()
}

// RunNestedTransaction runs |fn| inside a nested transaction scope, with
// commit and rollback behavior matching RunTransaction.
func (h *Handle) RunNestedTransaction(fn func(h *Handle) error) error {
	if err := h.BeginNestedTransaction(); err != nil {
		return err
	}
	if err := fn(h); err != nil {
		_ = h.RollbackNestedTransaction()
		return err
	}
	return h.CommitOrRollbackNestedTransaction()
}

// EnableLazyNestedTransaction defers the savepoints of subsequently begun
// nested scopes until a mutating statement first executes within them. A
// nested scope which never writes then commits or rolls back as a no-op,
// skipping its savepoint statements entirely.
func (h *Handle) EnableLazyNestedTransaction(enable bool) {
	h.lazyNested = enable
}

// IsInTransaction reports whether a transaction is active on this handle.
func (h *Handle) IsInTransaction() bool { return h.txnLevel > 0 }

// execTxn executes transaction-control SQL directly on the connection,
// bypassing the statement pool.
func (h *Handle) execTxn(sql string) error {
	if h.conn == nil {
		return h.misuse("handle is not open", sql)
	}
	h.notes.fireSQLTrace(sql)
	return h.finish(h.conn.Exec(sql), sql)
}

// flushPendingSavepoints materializes savepoints deferred by lazy nested
// scopes, oldest first. Statement execution calls it before any mutating
// statement first steps.
func (h *Handle) flushPendingSavepoints() error {
	for len(h.pending) != 0 {
		if err := h.execTxn("SAVEPOINT " + savepointName(h.pending[0])); err != nil {
			return err
		}
		h.pending = h.pending[1:]
	}
	return nil
}

// popPending discards the deepest deferred savepoint if it guards |level|,
// returning true if that scope was never materialized.
func (h *Handle) popPending(level int) bool {
	if n := len(h.pending); n != 0 && h.pending[n-1] == level {
		h.pending = h.pending[:n-1]
		return true
	}
	return false
}

// syncTxnLevel realigns the tracked nesting level with the engine's actual
// transaction state, after a commit or rollback failure leaves it in doubt.
func (h *Handle) syncTxnLevel() {
	if h.conn != nil && h.conn.AutoCommit() {
		h.txnLevel, h.pending = 0, nil
	}
}

// fireCommitted reports a successful commit to registered commit hooks,
// along with the count of write-ahead log frames pending after it.
func (h *Handle) fireCommitted() {
	if len(h.notes.committed) == 0 {
		return
	}
	var frames, _ = h.conn.DirtyPageCount()
	h.notes.fireCommitted(h.path, frames)
}

// readonlySQL classifies statements which cannot mutate the database, used
// to defer savepoint materialization in lazy nested scopes. Unknown or
// compound statements classify as writes.
func readonlySQL(sql string) bool {
	var t = strings.TrimSpace(sql)
	var end = len(t)
	for i := 0; i != len(t); i++ {
		if c := t[i]; !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
			end = i
			break
		}
	}
	switch kw := t[:end]; {
	case kw == "":
		return true
	case strings.EqualFold(kw, "SELECT"),
		strings.EqualFold(kw, "PRAGMA"),
		strings.EqualFold(kw, "EXPLAIN"),
		strings.EqualFold(kw, "VALUES"):
		return true
	}
	return false
}
