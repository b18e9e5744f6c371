package handle

import (
	"strings"

	"go.keystonedb.dev/core/engine"
)

// ColumnMeta describes one column of a table, as reported by the engine's
// table_info pragma.
type ColumnMeta struct {
	Name         string
	Type         string
	NotNull      bool
	DefaultValue string
	// PrimaryKey is the column's 1-based position within the primary key,
	// or 0 if it's not part of the key.
	PrimaryKey int
}

// TableExists probes for |table| in the connected database. A missing
// table is not an error: the probe reports (false, nil) and records no
// reportable failure.
func (h *Handle) TableExists(table string) (bool, error) {
	if h.conn == nil {
		return false, h.misuse("handle is not open", "")
	}
	var sql = "SELECT 1 FROM " + quoteIdent(table) + " LIMIT 0"

	h.gate.push(engine.CodeError)
	defer h.gate.pop()

	var es, code = h.conn.Prepare(sql)
	if code.OK() {
		es.Finalize()
		return true, nil
	}
	var err = h.finish(code, sql)
	if code.Primary() == engine.CodeError {
		// The probe failed to compile, which is how a missing table reports.
		return false, nil
	}
	return false, err
}

// TableMeta returns schema metadata for each column of |table|, in schema
// order. A missing table yields an empty result.
func (h *Handle) TableMeta(table string) ([]ColumnMeta, error) {
	var s, err = h.cache.get("PRAGMA table_info(" + quoteIdent(table) + ")")
	if err != nil {
		return nil, err
	}
	defer s.Reset()

	var out []ColumnMeta
	for {
		var row, err = s.Step()
		if err != nil {
			return nil, err
		} else if !row {
			return out, nil
		}
		out = append(out, ColumnMeta{
			Name:         s.ColumnText(1),
			Type:         s.ColumnText(2),
			NotNull:      s.ColumnInt64(3) != 0,
			DefaultValue: s.ColumnText(4),
			PrimaryKey:   int(s.ColumnInt64(5)),
		})
	}
}

// TableColumns returns the names of |table|'s columns in schema order.
func (h *Handle) TableColumns(table string) ([]string, error) {
	var meta, err = h.TableMeta(table)
	if err != nil {
		return nil, err
	}
	var names = make([]string, len(meta))
	for i := range meta {
		names[i] = meta[i].Name
	}
	return names, nil
}

// FTS3TokenizerExists probes for a registered FTS3 tokenizer module named
// |name|. Engines built without full-text support report (false, nil).
func (h *Handle) FTS3TokenizerExists(name string) (bool, error) {
	if h.conn == nil {
		return false, h.misuse("handle is not open", "")
	}
	h.gate.push(engine.CodeError)
	defer h.gate.pop()

	var s = h.GetStatement()
	defer h.ReturnStatement(s)

	if err := s.Prepare("SELECT fts3_tokenizer(?)"); err != nil {
		if engine.ErrCode(err) == engine.CodeError {
			return false, nil
		}
		return false, err
	}
	if err := s.BindText(1, name); err != nil {
		return false, err
	}
	if _, err := s.Step(); err != nil {
		if engine.ErrCode(err) == engine.CodeError {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// quoteIdent quotes |name| for safe interpolation as a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
