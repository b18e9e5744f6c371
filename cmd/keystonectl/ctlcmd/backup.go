package ctlcmd

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"go.keystonedb.dev/core/backup"
	"go.keystonedb.dev/core/codecs"
	"go.keystonedb.dev/core/engine"
	"go.keystonedb.dev/core/handle"
)

type cmdBackup struct {
	Output         string `long:"output" short:"f" required:"true" description:"Path of the backup archive to write. Use '-' for stdout"`
	Codec          string `long:"codec" choice:"NONE" choice:"GZIP" choice:"SNAPPY" choice:"ZSTANDARD" default:"GZIP" description:"Compression codec"`
	SkipCheckpoint bool   `long:"skip-checkpoint" description:"Capture the file set as-is, without first checkpointing the log"`
}

// AddCmdBackup registers the backup sub-command.
func AddCmdBackup(cmd *flags.Command) error {
	_, err := cmd.AddCommand("backup", "Capture a backup archive", `
Capture the database file set into a compressed archive.

Unless --skip-checkpoint, the write-ahead log is first drained into the
primary database file so the archive captures a single, self-contained
file. The database must not have other active writers while the capture
runs.

Examples:

# Capture to a file:
keystonectl --db app.db backup -f app.backup

# Stream a snappy-compressed archive to stdout:
keystonectl --db app.db backup -f - --codec SNAPPY > app.backup
`, &cmdBackup{})
	return err
}

func (cmd *cmdBackup) Execute([]string) error {
	startup()

	if BaseCfg.Database == "" {
		Must(errors.New("--db is required"), "no database configured")
	}
	var codec, err = codecs.Parse(cmd.Codec)
	if err != nil {
		return err
	}

	if !cmd.SkipCheckpoint {
		var h = openHandle()
		if _, _, err = h.Checkpoint(engine.CheckpointTruncate); err != nil {
			h.Close()
			return err
		}
		Must(h.Close(), "failed to close database")
	}

	var out = os.Stdout
	if cmd.Output != "-" {
		if out, err = os.Create(cmd.Output); err != nil {
			return err
		}
	}

	var manifest, snapErr = backup.Snapshot(
		afero.NewOsFs(), handle.DerivePaths(BaseCfg.Database), out, codec)
	if snapErr != nil {
		return snapErr
	}
	if out != os.Stdout {
		if err = out.Close(); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"id":    manifest.ID,
		"codec": manifest.Codec,
		"files": len(manifest.Files),
	}).Info("captured backup")
	return nil
}
