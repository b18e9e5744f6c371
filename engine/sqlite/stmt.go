package sqlite

import (
	"database/sql/driver"
	"io"
	"time"

	"go.keystonedb.dev/core/engine"
)

// stmt maps engine statement stepping onto driver row iteration. A step
// cycle begins at the first Step, which starts a query carrying the
// operation context, and ends at Reset or Finalize. Each Step advances one
// row; completion surfaces as the driver's EOF.
type stmt struct {
	c   *conn
	sql string
	ds  driver.Stmt

	binds []driver.Value
	rows  driver.Rows
	cols  []string
	row   []driver.Value
	valid bool
	endOp func()
}

var _ engine.Stmt = new(stmt)

func (s *stmt) Step() engine.Code {
	if s.rows == nil {
		var ctx, end = s.c.beginOp()

		var args = make([]driver.NamedValue, s.ds.NumInput())
		for i := range args {
			args[i] = driver.NamedValue{Ordinal: i + 1}
			if i < len(s.binds) {
				args[i].Value = s.binds[i]
			}
		}

		var rows, err = s.ds.(driver.StmtQueryContext).QueryContext(ctx, args)
		if err != nil {
			end()
			return s.c.recordErr(err)
		}
		s.rows, s.cols, s.endOp = rows, rows.Columns(), end
		s.row = make([]driver.Value, len(s.cols))
	}

	var err = s.rows.Next(s.row)
	switch err {
	case nil:
		s.valid = true
		return engine.CodeRow
	case io.EOF:
		s.valid = false
		return engine.CodeDone
	default:
		s.valid = false
		return s.c.recordErr(err)
	}
}

func (s *stmt) Reset() engine.Code {
	var err error
	if s.rows != nil {
		err = s.rows.Close()
		s.rows, s.cols, s.row, s.valid = nil, nil, nil, false
	}
	if s.endOp != nil {
		s.endOp()
		s.endOp = nil
	}
	return s.c.recordErr(err)
}

func (s *stmt) ClearBindings() engine.Code {
	s.binds = nil
	return engine.CodeOK
}

func (s *stmt) Finalize() engine.Code {
	if code := s.Reset(); !code.OK() {
		s.ds.Close()
		return code
	}
	return s.c.recordErr(s.ds.Close())
}

func (s *stmt) SQL() string { return s.sql }

func (s *stmt) BindCount() int { return s.ds.NumInput() }

func (s *stmt) setBind(i int, v driver.Value) engine.Code {
	if i < 1 {
		return engine.CodeRange
	}
	for len(s.binds) < i {
		s.binds = append(s.binds, nil)
	}
	s.binds[i-1] = v
	return engine.CodeOK
}

func (s *stmt) BindInt64(i int, v int64) engine.Code { return s.setBind(i, v) }

func (s *stmt) BindDouble(i int, v float64) engine.Code { return s.setBind(i, v) }

func (s *stmt) BindText(i int, v string) engine.Code { return s.setBind(i, v) }

func (s *stmt) BindBlob(i int, v []byte) engine.Code { return s.setBind(i, v) }

func (s *stmt) BindNull(i int) engine.Code { return s.setBind(i, nil) }

func (s *stmt) ColumnCount() int { return len(s.cols) }

func (s *stmt) ColumnName(i int) string {
	if i < 0 || i >= len(s.cols) {
		return ""
	}
	return s.cols[i]
}

func (s *stmt) column(i int) driver.Value {
	if !s.valid || i < 0 || i >= len(s.row) {
		return nil
	}
	return s.row[i]
}

func (s *stmt) ColumnType(i int) engine.ColumnType {
	switch s.column(i).(type) {
	case int64, bool:
		return engine.Integer
	case float64:
		return engine.Float
	case string, time.Time:
		return engine.Text
	case []byte:
		return engine.Blob
	default:
		return engine.Null
	}
}

func (s *stmt) ColumnInt64(i int) int64 {
	switch v := s.column(i).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func (s *stmt) ColumnDouble(i int) float64 {
	switch v := s.column(i).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func (s *stmt) ColumnText(i int) string {
	switch v := s.column(i).(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

func (s *stmt) ColumnBlob(i int) []byte {
	switch v := s.column(i).(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}
