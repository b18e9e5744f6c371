// Package ctlcmd implements the sub-commands of keystonectl.
package ctlcmd

import (
	"fmt"
	"strconv"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"go.keystonedb.dev/core/engine"
	"go.keystonedb.dev/core/engine/sqlite"
	"go.keystonedb.dev/core/handle"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"warn" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// BaseCfg is the top-level keystonectl configuration, shared by every
// sub-command.
var BaseCfg = new(struct {
	Database string    `long:"db" env:"KEYSTONE_DB" description:"Path of the primary database file"`
	Log      LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

// InitLog configures the logger.
func InitLog(cfg LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else if cfg.Format == "text" {
		log.SetFormatter(&log.TextFormatter{})
	} else if cfg.Format == "color" {
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	}

	if lvl, err := log.ParseLevel(cfg.Level); err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	} else {
		log.SetLevel(lvl)
	}
}

// Must logs |msg| with structured |extra| context and exits, if |err| is
// non-nil.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Fatal(msg)
}

func startup() {
	InitLog(BaseCfg.Log)
}

// openHandle opens a handle to the configured database.
func openHandle() *handle.Handle {
	if BaseCfg.Database == "" {
		Must(errors.New("--db is required"), "no database configured")
	}
	var h = handle.New(sqlite.NewOpener(sqlite.Options{}), handle.Config{Tag: "keystonectl"})
	Must(h.SetPath(BaseCfg.Database), "failed to set database path")
	Must(h.Open(), "failed to open database", "path", BaseCfg.Database)
	return h
}

// queryText runs |sql| and returns the first column of its first row as
// text, or "" if the query yields no rows.
func queryText(h *handle.Handle, sql string) (string, error) {
	var s = h.GetStatement()
	defer h.ReturnStatement(s)

	if err := s.Prepare(sql); err != nil {
		return "", err
	}
	if row, err := s.Step(); err != nil {
		return "", err
	} else if !row {
		return "", nil
	}
	return s.ColumnText(0), nil
}

// queryInt64 runs |sql| and returns the first column of its first row.
func queryInt64(h *handle.Handle, sql string) (int64, error) {
	var s = h.GetStatement()
	defer h.ReturnStatement(s)

	if err := s.Prepare(sql); err != nil {
		return 0, err
	}
	if row, err := s.Step(); err != nil {
		return 0, err
	} else if !row {
		return 0, nil
	}
	return s.ColumnInt64(0), nil
}

// renderColumn renders column |i| of the statement's current row for
// display.
func renderColumn(s *handle.Statement, i int) string {
	switch s.ColumnType(i) {
	case engine.Integer:
		return strconv.FormatInt(s.ColumnInt64(i), 10)
	case engine.Float:
		return strconv.FormatFloat(s.ColumnDouble(i), 'g', -1, 64)
	case engine.Text:
		return s.ColumnText(i)
	case engine.Blob:
		return fmt.Sprintf("<blob %s>", humanize.IBytes(uint64(len(s.ColumnBlob(i)))))
	default:
		return "NULL"
	}
}
