package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// runListCommands prints the visible command tree in a two-column layout.
func runListCommands(out io.Writer, root *cobra.Command) {
	rows := collectCommands(root, "", "")

	width := 0
	for _, r := range rows {
		width = max(width, len(r.path))
	}

	fmt.Fprintln(out, "Commands and Subcommands:")
	for _, r := range rows {
		fmt.Fprintf(out, "  %s%s%s\n", r.path, strings.Repeat(" ", width-len(r.path)+2), r.short)
	}
}

type commandRow struct {
	path  string
	short string
}

// collectCommands flattens the tree under cmd, skipping hidden commands and
// cobra's generated completion and help commands.
func collectCommands(cmd *cobra.Command, parent, indent string) []commandRow {
	path := cmd.Name()
	if parent != "" {
		path = parent + " " + cmd.Name()
	}
	rows := []commandRow{{path: indent + path, short: cmd.Short}}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "completion" || sub.Name() == "help" {
			continue
		}
		rows = append(rows, collectCommands(sub, path, indent+"  ")...)
	}
	return rows
}
