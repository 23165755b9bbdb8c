package executor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var headingStyle = lipgloss.NewStyle().Bold(true)

var helpSections = []struct {
	title string
	lines []string
}{
	{"Tables", []string{
		"create <name> <attr>...            create a table",
		"drop <name>                        delete a table and its files",
		"tables                             list tables",
		"describe <name>                    columns, shards, records, size",
		"checksum <name>                    blake3 digest per shard",
	}},
	{"Records", []string{
		"insert <name> <attr:val>...        append a record",
		"read <name> [id:<n>]...            print all or selected records",
		"update <name> id:<n> <attr:val>... overwrite fields of one record",
		"delete <name>                      delete every record",
		"delete <name> id:<n>               delete one record",
		"delete <name> id:<n> <attr>...     set fields of one record to NULL",
		"delete <name> <attr:val>...        delete records matching all pairs",
	}},
	{"Joins", []string{
		"join <t1>.<a1> <t2>.<a2> [...]     inner equi-join, chained left to right",
	}},
	{"Shell", []string{
		"help                               this text",
		"history                            last 50 commands",
		"exit | quit                        leave the shell",
	}},
}

// HelpText renders the command reference with bold section headings.
func HelpText() string {
	var b strings.Builder
	for i, sec := range helpSections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(headingStyle.Render(sec.title))
		b.WriteString("\n")
		for _, l := range sec.lines {
			b.WriteString("  ")
			b.WriteString(l)
			b.WriteString("\n")
		}
	}
	return b.String()
}
