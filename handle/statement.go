package handle

import (
	"time"

	"go.keystonedb.dev/core/engine"
)

// Statement is a prepared statement owned by its Handle. Statements are
// obtained with GetStatement and given back with ReturnStatement; the handle
// retains ownership and finalizes every outstanding statement when it
// closes. A Statement must be used only from the handle's goroutine.
type Statement struct {
	h  *Handle
	es engine.Stmt

	sql     string
	stepped bool
	done    bool
	began   time.Time
}

// Prepare readies the statement to execute |sql|. If the statement already
// holds a prepared form of the identical text, that form is reset and
// reused rather than re-prepared.
func (s *Statement) Prepare(sql string) error {
	if s.h.conn == nil {
		return s.h.misuse("handle is not open", sql)
	}
	if s.es != nil && s.sql == sql {
		return s.Reset()
	}
	if err := s.Finalize(); err != nil {
		return err
	}
	var es, code = s.h.conn.Prepare(sql)
	if !code.OK() {
		return s.h.finish(code, sql)
	}
	s.es, s.sql = es, sql
	s.stepped, s.done = false, false
	return nil
}

// Step advances the statement's execution by one row. It returns true with
// a row ready for column reads, or false once execution has completed.
// Before the first step of a mutating statement, savepoints deferred by a
// lazy nested transaction are issued.
func (s *Statement) Step() (bool, error) {
	if s.es == nil {
		return false, s.h.misuse("statement is not prepared", s.sql)
	}
	if !s.stepped {
		if !readonlySQL(s.sql) {
			if err := s.h.flushPendingSavepoints(); err != nil {
				return false, err
			}
		}
		s.stepped = true
		s.began = time.Now()
		s.h.notes.fireSQLTrace(s.sql)
	}

	var attempts int
	for {
		if err := s.h.notes.fireWillStep(s); err != nil {
			var e = s.h.abort(err, s.sql)
			stepsTotal.WithLabelValues("error").Inc()
			s.h.notes.fireDidStep(s, e)
			return false, e
		}

		var code = s.es.Step()

		if code == engine.CodeRow {
			stepsTotal.WithLabelValues("row").Inc()
			s.h.notes.fireDidStep(s, nil)
			return true, nil
		} else if code == engine.CodeDone {
			s.done = true
			stepsTotal.WithLabelValues("done").Inc()

			var elapsed = time.Since(s.began)
			statementDurationSeconds.Observe(elapsed.Seconds())
			s.h.notes.firePerformanceTrace(s.sql, elapsed)
			s.h.notes.fireDidStep(s, nil)
			return false, nil
		} else if code.Busy() {
			attempts++
			busyRetriesTotal.Inc()
			if s.h.notes.fireBusy(s.h.path, attempts) {
				continue
			}
		}

		var err = s.h.finish(code, s.sql)
		stepsTotal.WithLabelValues("error").Inc()

		var elapsed = time.Since(s.began)
		statementDurationSeconds.Observe(elapsed.Seconds())
		s.h.notes.firePerformanceTrace(s.sql, elapsed)
		s.h.notes.fireDidStep(s, err)
		return false, err
	}
}

// Execute steps the statement through to completion, discarding any rows it
// produces.
func (s *Statement) Execute() error {
	for {
		var row, err = s.Step()
		if err != nil {
			return err
		} else if !row {
			return nil
		}
	}
}

// Reset rewinds the statement to the start of its execution cycle. Its
// prepared form and bindings are retained.
func (s *Statement) Reset() error {
	if s.es == nil {
		return nil
	}
	var code = s.es.Reset()
	s.stepped, s.done = false, false
	return s.h.finish(code, s.sql)
}

// ClearBindings unbinds all statement parameters.
func (s *Statement) ClearBindings() error {
	if s.es == nil {
		return nil
	}
	return s.h.finish(s.es.ClearBindings(), s.sql)
}

// Finalize releases the statement's prepared form. The statement may be
// prepared again afterward.
func (s *Statement) Finalize() error {
	if s.es == nil {
		return nil
	}
	var code = s.es.Finalize()
	s.es = nil
	s.stepped, s.done = false, false
	return s.h.finish(code, s.sql)
}

// Done reports whether the current execution cycle ran to completion.
func (s *Statement) Done() bool { return s.done }

// SQL returns the statement's prepared text.
func (s *Statement) SQL() string { return s.sql }

// BindCount returns the number of statement parameters.
func (s *Statement) BindCount() int {
	if s.es == nil {
		return 0
	}
	return s.es.BindCount()
}

// BindInt64 binds |v| at 1-based parameter |index|.
func (s *Statement) BindInt64(index int, v int64) error {
	if s.es == nil {
		return s.h.misuse("statement is not prepared", s.sql)
	}
	return s.h.finish(s.es.BindInt64(index, v), s.sql)
}

// BindDouble binds |v| at 1-based parameter |index|.
func (s *Statement) BindDouble(index int, v float64) error {
	if s.es == nil {
		return s.h.misuse("statement is not prepared", s.sql)
	}
	return s.h.finish(s.es.BindDouble(index, v), s.sql)
}

// BindText binds |v| at 1-based parameter |index|.
func (s *Statement) BindText(index int, v string) error {
	if s.es == nil {
		return s.h.misuse("statement is not prepared", s.sql)
	}
	return s.h.finish(s.es.BindText(index, v), s.sql)
}

// BindBlob binds |v| at 1-based parameter |index|.
func (s *Statement) BindBlob(index int, v []byte) error {
	if s.es == nil {
		return s.h.misuse("statement is not prepared", s.sql)
	}
	return s.h.finish(s.es.BindBlob(index, v), s.sql)
}

// BindNull binds NULL at 1-based parameter |index|.
func (s *Statement) BindNull(index int) error {
	if s.es == nil {
		return s.h.misuse("statement is not prepared", s.sql)
	}
	return s.h.finish(s.es.BindNull(index), s.sql)
}

// ColumnCount returns the number of result columns.
func (s *Statement) ColumnCount() int {
	if s.es == nil {
		return 0
	}
	return s.es.ColumnCount()
}

// ColumnName returns the name of 0-based result column |index|.
func (s *Statement) ColumnName(index int) string {
	if s.es == nil {
		return ""
	}
	return s.es.ColumnName(index)
}

// ColumnType returns the storage class of column |index| in the current row.
func (s *Statement) ColumnType(index int) engine.ColumnType {
	if s.es == nil {
		return engine.Null
	}
	return s.es.ColumnType(index)
}

// ColumnInt64 reads column |index| of the current row as an integer.
func (s *Statement) ColumnInt64(index int) int64 {
	if s.es == nil {
		return 0
	}
	return s.es.ColumnInt64(index)
}

// ColumnDouble reads column |index| of the current row as a float.
func (s *Statement) ColumnDouble(index int) float64 {
	if s.es == nil {
		return 0
	}
	return s.es.ColumnDouble(index)
}

// ColumnText reads column |index| of the current row as text.
func (s *Statement) ColumnText(index int) string {
	if s.es == nil {
		return ""
	}
	return s.es.ColumnText(index)
}

// ColumnBlob reads column |index| of the current row as a blob.
func (s *Statement) ColumnBlob(index int) []byte {
	if s.es == nil {
		return nil
	}
	return s.es.ColumnBlob(index)
}
