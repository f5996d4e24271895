package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mwiater/codeintel/internal/codeintel"
	"github.com/spf13/cobra"
)

// indexCmd implements 'index', which prints the index entries of a file.
var indexCmd = &cobra.Command{
	Use:   "index FILE",
	Short: "Print the code-index entries of a file",
	Long:  `The 'index' command prints one row per declaration in FILE: its index key, name, kind, flags and position.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := parseLocation(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(config())
		if err != nil {
			return err
		}
		defer s.Close()

		entries, err := s.client.IndexFile(cmd.Context(), loc.Path)
		if err != nil {
			return err
		}
		return printIndex(cmd.OutOrStdout(), entries)
	},
}

func printIndex(out io.Writer, entries []codeintel.IndexEntry) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		name := strings.ReplaceAll(e.Name, "\x1f", "|")
		flags := strings.Join(e.Flags, ",")
		if flags == "" {
			flags = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d:%d\n", e.Key, name, e.Kind, flags, e.Location.Line+1, e.Location.Column+1)
	}
	return tw.Flush()
}

// keyCmd implements 'key', which prints the cross-file index key of the
// declaration referenced at a position.
var keyCmd = &cobra.Command{
	Use:   "key FILE:LINE:COLUMN",
	Short: "Print the index key of the symbol at a position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := requirePosition(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(config())
		if err != nil {
			return err
		}
		defer s.Close()

		key, err := s.client.GetIndexKey(cmd.Context(), loc)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var errNoSymbol = errors.New("no symbol at position")

// symbolAtCmd builds the 'scope' and 'locate' commands, which differ only in
// the query they run.
func symbolAtCmd(use, short string, query func(*codeintel.Client, context.Context, codeintel.Location) (*codeintel.Symbol, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " FILE:LINE:COLUMN",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := requirePosition(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(config())
			if err != nil {
				return err
			}
			defer s.Close()

			sym, err := query(s.client, cmd.Context(), loc)
			if err != nil {
				return err
			}
			if sym == nil {
				return errNoSymbol
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s:%d:%d\n", kindColor(sym.Kind), sym.Name, sym.Location.Path, sym.Location.Line+1, sym.Location.Column+1)
			return nil
		},
	}
}

var (
	scopeCmd  = symbolAtCmd("scope", "Print the innermost declaration enclosing a position", (*codeintel.Client).FindNearestScope)
	locateCmd = symbolAtCmd("locate", "Print the declaration referenced at a position", (*codeintel.Client).LocateSymbol)
)

func init() {
	rootCmd.AddCommand(indexCmd, keyCmd, scopeCmd, locateCmd)
}
