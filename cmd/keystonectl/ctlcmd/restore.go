package ctlcmd

import (
	"fmt"
	"os"

	humanize "github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"go.keystonedb.dev/core/backup"
	"go.keystonedb.dev/core/codecs"
)

type cmdRestore struct {
	Input string `long:"input" short:"i" required:"true" description:"Path of the backup archive to read. Use '-' for stdin"`
	Codec string `long:"codec" choice:"NONE" choice:"GZIP" choice:"SNAPPY" choice:"ZSTANDARD" default:"GZIP" description:"Compression codec the archive was written with"`
	Force bool   `long:"force" description:"Overwrite an existing database file set"`
}

// AddCmdRestore registers the restore sub-command.
func AddCmdRestore(cmd *flags.Command) error {
	_, err := cmd.AddCommand("restore", "Restore from a backup archive", `
Restore a database file set from a backup archive.

Files are placed at the path set derived from --db. An existing database
at that path is not overwritten unless --force. Stale sidecar files of a
prior database are removed, as the engine would otherwise replay them
against the restored database.

Examples:

# Restore from a file:
keystonectl --db app.db restore -i app.backup

# Restore from a streamed archive:
keystonectl --db app.db restore -i - --codec SNAPPY < app.backup
`, &cmdRestore{})
	return err
}

func (cmd *cmdRestore) Execute([]string) error {
	startup()

	if BaseCfg.Database == "" {
		Must(errors.New("--db is required"), "no database configured")
	}
	var codec, err = codecs.Parse(cmd.Codec)
	if err != nil {
		return err
	}

	var fs = afero.NewOsFs()
	if !cmd.Force {
		if exists, _ := afero.Exists(fs, BaseCfg.Database); exists {
			return errors.Errorf("%s already exists (use --force to overwrite)", BaseCfg.Database)
		}
	}

	var in = os.Stdin
	if cmd.Input != "-" {
		if in, err = os.Open(cmd.Input); err != nil {
			return err
		}
		defer in.Close()
	}

	var manifest, rerr = backup.Restore(fs, in, codec, BaseCfg.Database)
	if rerr != nil {
		return rerr
	}

	var table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Role", "Size"})
	for _, f := range manifest.Files {
		table.Append([]string{string(f.Role), humanize.IBytes(uint64(f.Size))})
	}
	table.Render()

	fmt.Printf("Restored backup %s, captured %s.\n", manifest.ID, humanize.Time(manifest.CreatedAt))
	return nil
}
