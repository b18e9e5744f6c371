package ctlcmd

import (
	"fmt"

	"github.com/jessevdk/go-flags"

	"go.keystonedb.dev/core/engine"
)

type cmdCheckpoint struct {
	Mode string `long:"mode" choice:"passive" choice:"full" choice:"restart" choice:"truncate" default:"truncate" description:"Checkpoint mode"`
}

// AddCmdCheckpoint registers the checkpoint sub-command.
func AddCmdCheckpoint(cmd *flags.Command) error {
	_, err := cmd.AddCommand("checkpoint", "Checkpoint the write-ahead log", `
Checkpoint the database's write-ahead log, transferring committed frames
into the primary database file.

Modes escalate in strength: passive copies what it can without blocking,
full waits for writers, restart additionally waits until no reader
requires the prior log, and truncate further resets the log to zero
length.

Examples:

# Fully drain and truncate the log:
keystonectl --db app.db checkpoint

# Opportunistically copy frames without blocking:
keystonectl --db app.db checkpoint --mode passive
`, &cmdCheckpoint{})
	return err
}

func (cmd *cmdCheckpoint) Execute([]string) error {
	startup()

	var mode engine.CheckpointMode
	switch cmd.Mode {
	case "passive":
		mode = engine.CheckpointPassive
	case "full":
		mode = engine.CheckpointFull
	case "restart":
		mode = engine.CheckpointRestart
	default:
		mode = engine.CheckpointTruncate
	}

	var h = openHandle()
	h.DisableCheckpointOnClose(true)
	defer h.Close()

	var logFrames, checkpointed, err = h.Checkpoint(mode)
	if err != nil {
		return err
	}
	fmt.Printf("checkpointed %d of %d log frames (%s)\n", checkpointed, logFrames, mode)
	return nil
}
