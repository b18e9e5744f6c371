package main

import (
	"github.com/jessevdk/go-flags"

	"go.keystonedb.dev/core/cmd/keystonectl/ctlcmd"
)

const iniFilename = "keystonectl.ini"

func main() {
	var parser = flags.NewParser(ctlcmd.BaseCfg, flags.Default)

	parser.LongDescription = `keystonectl is a tool for inspecting and managing keystone databases.

	See --help pages of each sub-command for documentation and usage examples.
	Optionally configure keystonectl with a '` + iniFilename + `' file in the current working directory,
	or with '~/.config/keystonedb/` + iniFilename + `'. Use the 'print-config' sub-command to inspect
	the tool's current configuration.
	`

	ctlcmd.AddPrintConfigCmd(parser, iniFilename)
	ctlcmd.Must(ctlcmd.AddCmdInfo(parser.Command), "could not add info subcommand")
	ctlcmd.Must(ctlcmd.AddCmdTables(parser.Command), "could not add tables subcommand")
	ctlcmd.Must(ctlcmd.AddCmdExec(parser.Command), "could not add exec subcommand")
	ctlcmd.Must(ctlcmd.AddCmdCheckpoint(parser.Command), "could not add checkpoint subcommand")
	ctlcmd.Must(ctlcmd.AddCmdBackup(parser.Command), "could not add backup subcommand")
	ctlcmd.Must(ctlcmd.AddCmdRestore(parser.Command), "could not add restore subcommand")

	ctlcmd.MustParseConfig(parser, iniFilename)
}
