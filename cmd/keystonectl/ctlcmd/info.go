package ctlcmd

import (
	"fmt"
	"os"
	"strconv"

	humanize "github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
)

type cmdInfo struct{}

// AddCmdInfo registers the info sub-command.
func AddCmdInfo(cmd *flags.Command) error {
	_, err := cmd.AddCommand("info", "Show a database summary", `
Show a summary of the database: its file set and sizes, page geometry,
journal mode, and write-ahead log backlog.

Examples:

# Summarize a database:
keystonectl --db app.db info
`, &cmdInfo{})
	return err
}

func (cmd *cmdInfo) Execute([]string) error {
	startup()

	var h = openHandle()
	defer h.Close()

	var table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Property", "Value"})

	var paths = h.Paths()
	for _, f := range []struct{ role, path string }{
		{"primary", paths.Primary},
		{"wal", paths.WAL},
		{"shm", paths.SHM},
		{"journal", paths.Journal},
	} {
		var fi, err = os.Stat(f.path)
		if err != nil {
			continue
		}
		table.Append([]string{"File (" + f.role + ")", fmt.Sprintf("%s, %s, modified %s",
			f.path, humanize.IBytes(uint64(fi.Size())), humanize.Time(fi.ModTime()))})
	}

	var pageSize, err = queryInt64(h, "PRAGMA page_size")
	Must(err, "failed to query page size")
	var pageCount int64
	pageCount, err = queryInt64(h, "PRAGMA page_count")
	Must(err, "failed to query page count")
	var freePages int64
	freePages, err = queryInt64(h, "PRAGMA freelist_count")
	Must(err, "failed to query freelist")
	var journalMode string
	journalMode, err = queryText(h, "PRAGMA journal_mode")
	Must(err, "failed to query journal mode")
	var encoding string
	encoding, err = queryText(h, "PRAGMA encoding")
	Must(err, "failed to query encoding")
	var userVersion int64
	userVersion, err = queryInt64(h, "PRAGMA user_version")
	Must(err, "failed to query user version")

	table.Append([]string{"Page size", humanize.IBytes(uint64(pageSize))})
	table.Append([]string{"Page count", strconv.FormatInt(pageCount, 10)})
	table.Append([]string{"Database size", humanize.IBytes(uint64(pageSize * pageCount))})
	table.Append([]string{"Freelist pages", strconv.FormatInt(freePages, 10)})
	table.Append([]string{"Journal mode", journalMode})
	table.Append([]string{"Encoding", encoding})
	table.Append([]string{"User version", strconv.FormatInt(userVersion, 10)})
	table.Append([]string{"Log frames pending checkpoint", strconv.Itoa(h.DirtyPageCount())})
	table.Append([]string{"Read-only", strconv.FormatBool(h.IsReadonly())})

	table.Render()
	return nil
}
