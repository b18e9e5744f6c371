package ctlcmd

import (
	"os"
	"strconv"

	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	yaml "gopkg.in/yaml.v2"
)

type cmdTables struct {
	Format string `long:"format" short:"o" choice:"table" choice:"yaml" default:"table" description:"Output format"`
}

// AddCmdTables registers the tables sub-command.
func AddCmdTables(cmd *flags.Command) error {
	_, err := cmd.AddCommand("tables", "List tables and their columns", `
List user tables of the database, with per-column schema detail.

Results can be output in a variety of --format options:
table: Prints as a humanized table.
yaml: Prints tables and their columns as YAML.

Examples:

# List tables of a database:
keystonectl --db app.db tables

# Export the schema as YAML:
keystonectl --db app.db tables -o yaml
`, &cmdTables{})
	return err
}

type tableDoc struct {
	Name    string      `yaml:"name"`
	Columns []columnDoc `yaml:"columns"`
}

type columnDoc struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type,omitempty"`
	NotNull    bool   `yaml:"not_null,omitempty"`
	Default    string `yaml:"default,omitempty"`
	PrimaryKey int    `yaml:"primary_key,omitempty"`
}

func (cmd *cmdTables) Execute([]string) error {
	startup()

	var h = openHandle()
	defer h.Close()

	var names []string
	var s = h.GetStatement()
	var err = s.Prepare(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	for err == nil {
		var row bool
		if row, err = s.Step(); !row {
			break
		}
		names = append(names, s.ColumnText(0))
	}
	h.ReturnStatement(s)
	if err != nil {
		return err
	}

	var docs []tableDoc
	for _, n := range names {
		var meta, err = h.TableMeta(n)
		if err != nil {
			return err
		}
		var doc = tableDoc{Name: n}
		for _, m := range meta {
			doc.Columns = append(doc.Columns, columnDoc{
				Name:       m.Name,
				Type:       m.Type,
				NotNull:    m.NotNull,
				Default:    m.DefaultValue,
				PrimaryKey: m.PrimaryKey,
			})
		}
		docs = append(docs, doc)
	}

	if cmd.Format == "yaml" {
		var b, err = yaml.Marshal(docs)
		if err != nil {
			return err
		}
		os.Stdout.Write(b)
		return nil
	}

	var table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Table", "Column", "Type", "Not Null", "Default", "PK"})

	for _, doc := range docs {
		for _, col := range doc.Columns {
			var notNull, pk string
			if col.NotNull {
				notNull = "yes"
			}
			if col.PrimaryKey != 0 {
				pk = strconv.Itoa(col.PrimaryKey)
			}
			table.Append([]string{doc.Name, col.Name, col.Type, notNull, col.Default, pk})
		}
	}
	table.Render()
	return nil
}
