package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mwiater/codeintel/internal/bufsync"
	"github.com/spf13/cobra"
)

// watchCmd implements 'watch', which keeps a worker session open and
// re-diagnoses files whenever they are saved.
var watchCmd = &cobra.Command{
	Use:   "watch FILE...",
	Short: "Re-diagnose files every time they are saved",
	Long:  `The 'watch' command diagnoses each FILE once, then forwards every save to the worker and prints the fresh diagnostics until interrupted.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(config())
		if err != nil {
			return err
		}
		defer s.Close()
		return runWatch(cmd.Context(), cmd.OutOrStdout(), s, args)
	},
}

func runWatch(ctx context.Context, out io.Writer, s *session, args []string) error {
	w, err := bufsync.NewWatcher(s.sync)
	if err != nil {
		return err
	}
	defer w.Close()

	paths := make([]string, 0, len(args))
	for _, arg := range args {
		loc, err := parseLocation(arg)
		if err != nil {
			return err
		}
		if err := w.Add(loc.Path); err != nil {
			return err
		}
		paths = append(paths, loc.Path)
	}

	report := func(paths ...string) {
		results, err := s.client.DiagnoseAll(ctx, paths)
		if err != nil {
			fmt.Fprintf(out, "diagnose: %v\n", err)
			return
		}
		printDiagnostics(out, paths, results)
	}
	report(paths...)

	w.OnSaved = func(path string, err error) {
		if err != nil {
			return
		}
		fmt.Fprintf(out, "-- %s saved\n", path)
		report(path)
	}

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
