package ctlcmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
)

type cmdExec struct {
	Trace bool `long:"trace" description:"Log statements and their timings as they execute"`
	Args  struct {
		SQL string `positional-arg-name:"SQL" description:"Statement to execute"`
	} `positional-args:"true" required:"true"`
}

// AddCmdExec registers the exec sub-command.
func AddCmdExec(cmd *flags.Command) error {
	_, err := cmd.AddCommand("exec", "Execute a SQL statement", `
Execute a single SQL statement against the database.

Rows produced by the statement are printed as a table. For mutating
statements, the count of changed rows and the last inserted row ID are
printed on completion.

Examples:

# Query rows:
keystonectl --db app.db exec "SELECT * FROM users LIMIT 10"

# Apply a mutation, logging the statement as it runs:
keystonectl --db app.db exec --trace "DELETE FROM sessions WHERE expires_at < 1700000000"
`, &cmdExec{})
	return err
}

func (cmd *cmdExec) Execute([]string) error {
	startup()

	if cmd.Trace && log.GetLevel() < log.InfoLevel {
		log.SetLevel(log.InfoLevel)
	}

	var h = openHandle()
	defer h.Close()

	if cmd.Trace {
		h.SetSQLTraceNotification("trace", func(sql string) {
			log.WithField("sql", sql).Info("executing statement")
		})
		h.SetPerformanceTraceNotification("trace", func(sql string, elapsed time.Duration) {
			log.WithFields(log.Fields{"sql": sql, "elapsed": elapsed}).Info("statement completed")
		})
	}

	var s = h.GetStatement()
	defer h.ReturnStatement(s)

	if err := s.Prepare(cmd.Args.SQL); err != nil {
		return err
	}

	var table *tablewriter.Table
	var rows int
	for {
		var row, err = s.Step()
		if err != nil {
			return err
		} else if !row {
			break
		}

		if table == nil {
			var headers = make([]string, s.ColumnCount())
			for i := range headers {
				headers[i] = s.ColumnName(i)
			}
			table = tablewriter.NewWriter(os.Stdout)
			table.SetHeader(headers)
		}
		var out = make([]string, s.ColumnCount())
		for i := range out {
			out[i] = renderColumn(s, i)
		}
		table.Append(out)
		rows++
	}

	if table != nil {
		table.Render()
		fmt.Printf("%d rows\n", rows)
	} else {
		fmt.Printf("%d changes, last row ID %d\n", h.Changes(), h.LastInsertedRowID())
	}
	return nil
}
