package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/k0kubun/pp"
	"github.com/mwiater/codeintel/internal/proposals"
	"github.com/mwiater/codeintel/internal/rpc"
	"github.com/mwiater/codeintel/internal/tui"
	"github.com/spf13/cobra"
)

// proposalDump is the printable form of one candidate for --dump.
type proposalDump struct {
	Keyword      string
	Kind         string
	Availability int32
	Detail       string
	Chunks       []chunkDump
	Priority     int
	Rank         int
}

type chunkDump struct {
	Text string
	Kind int32
}

// completeCmd implements 'complete', which lists completion candidates at a
// position, optionally narrowed by a filter, or opens the interactive surface.
var completeCmd = &cobra.Command{
	Use:   "complete FILE:LINE:COLUMN",
	Short: "List completion candidates at a position",
	Long: `The 'complete' command queries the analysis worker at FILE:LINE:COLUMN (1-based) and prints the candidates that match --filter, best first.
With --interactive a terminal surface opens at that position and refilters as you type.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := requirePosition(args[0])
		if err != nil {
			return err
		}
		filter, _ := cmd.Flags().GetString("filter")
		limit, _ := cmd.Flags().GetInt("limit")
		dump, _ := cmd.Flags().GetBool("dump")
		interactive, _ := cmd.Flags().GetBool("interactive")

		s, err := openSession(config())
		if err != nil {
			return err
		}
		defer s.Close()

		anchor := proposals.Anchor{Path: loc.Path, Line: loc.Line, Column: loc.Column}
		cache := proposals.NewCache(s.client, s.telemetry)

		if interactive {
			base, err := os.ReadFile(loc.Path)
			if err != nil {
				return fmt.Errorf("read %s: %w", loc.Path, err)
			}
			return tui.Run(cmd.Context(), tui.Options{
				Cache:  cache,
				Store:  s.sync.Store(),
				Path:   loc.Path,
				Base:   base,
				Line:   loc.Line,
				Column: loc.Column,
			})
		}
		return runComplete(cmd.Context(), cmd.OutOrStdout(), cache, anchor, filter, limit, dump)
	},
}

func runComplete(ctx context.Context, out io.Writer, cache *proposals.Cache, anchor proposals.Anchor, filter string, limit int, dump bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cache.Populate(ctx, anchor, filter).Wait(); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	snap := cache.Snapshot()
	n := snap.Len()
	if limit > 0 {
		n = min(n, limit)
	}

	if dump {
		dumps := make([]proposalDump, 0, n)
		for i := 0; i < n; i++ {
			c, err := snap.At(i)
			if err != nil {
				return err
			}
			dumps = append(dumps, dumpOf(c))
		}
		_, err := pp.Fprintln(out, dumps)
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i := 0; i < n; i++ {
		c, err := snap.At(i)
		if err != nil {
			return err
		}
		p := c.Proposal
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Keyword(), rpc.CompletionKindName(p.Kind()), p.Detail())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if rest := snap.Len() - n; rest > 0 {
		fmt.Fprintf(out, "... %d more\n", rest)
	}
	return nil
}

// dumpOf copies a candidate out of the cache's buffer.
func dumpOf(c proposals.Candidate) proposalDump {
	p := c.Proposal.Duplicate()
	d := proposalDump{
		Keyword:      p.Keyword(),
		Kind:         rpc.CompletionKindName(p.Kind()),
		Availability: p.Availability(),
		Detail:       p.Detail(),
		Priority:     c.Priority,
		Rank:         c.Rank,
	}
	chunks := p.Chunks()
	for i := 0; i < chunks.Len(); i++ {
		ch, err := chunks.At(i)
		if err != nil {
			break
		}
		d.Chunks = append(d.Chunks, chunkDump{Text: ch.Text(), Kind: ch.Kind()})
	}
	return d
}

func init() {
	completeCmd.Flags().String("filter", "", "typed prefix to match candidates against")
	completeCmd.Flags().Int("limit", 0, "print at most this many candidates (0 = all)")
	completeCmd.Flags().Bool("dump", false, "pretty-print full proposal payloads")
	completeCmd.Flags().BoolP("interactive", "i", false, "open the interactive completion surface")
	rootCmd.AddCommand(completeCmd)
}
