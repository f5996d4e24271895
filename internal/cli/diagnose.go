package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/mwiater/codeintel/internal/codeintel"
	"github.com/spf13/cobra"
)

var severityColors = map[codeintel.Severity]*color.Color{
	codeintel.SeverityNote:       color.New(color.FgCyan),
	codeintel.SeverityDeprecated: color.New(color.FgMagenta),
	codeintel.SeverityWarning:    color.New(color.FgYellow),
	codeintel.SeverityError:      color.New(color.FgRed, color.Bold),
	codeintel.SeverityFatal:      color.New(color.FgRed, color.Bold),
}

// errDiagnosticsFound makes 'diagnose' exit non-zero when errors were reported.
var errDiagnosticsFound = errors.New("errors found")

// diagnoseCmd implements 'diagnose', which reports problems in one or more files.
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose FILE...",
	Short: "Report diagnostics for source files",
	Long:  `The 'diagnose' command asks the analysis worker for the diagnostics of each FILE and prints them as file:line:column: severity: message.
With watch enabled in the config it keeps running like 'watch'.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := make([]string, 0, len(args))
		for _, arg := range args {
			loc, err := parseLocation(arg)
			if err != nil {
				return err
			}
			paths = append(paths, loc.Path)
		}

		s, err := openSession(config())
		if err != nil {
			return err
		}
		defer s.Close()

		if config().Watch {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), s, args)
		}
		results, err := s.client.DiagnoseAll(cmd.Context(), paths)
		if err != nil {
			return err
		}
		if printDiagnostics(cmd.OutOrStdout(), paths, results) {
			return errDiagnosticsFound
		}
		return nil
	},
}

// printDiagnostics writes results in argument order and reports whether any
// error or fatal diagnostic was seen.
func printDiagnostics(out io.Writer, paths []string, results map[string][]codeintel.Diagnostic) bool {
	failed := false
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if seen[path] {
			continue
		}
		seen[path] = true
		for _, d := range results[path] {
			if d.Severity == codeintel.SeverityIgnored {
				continue
			}
			label := d.Severity.String()
			if c, ok := severityColors[d.Severity]; ok {
				label = c.Sprint(label)
			}
			fmt.Fprintf(out, "%s:%d:%d: %s: %s\n", path, d.Location.Line+1, d.Location.Column+1, label, d.Message)
			if d.Severity >= codeintel.SeverityError {
				failed = true
			}
		}
	}
	return failed
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}
