package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mwiater/codeintel/internal/codeintel"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
)

var kindColor = color.New(color.FgCyan).SprintFunc()

// symbolsCmd implements 'symbols', which prints the symbol tree of a file.
var symbolsCmd = &cobra.Command{
	Use:   "symbols FILE",
	Short: "Print the symbol tree of a file",
	Long: `The 'symbols' command prints the declarations of FILE as an indented tree.
With --filter the tree is flattened and symbols are ranked by how well their qualified name matches.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := parseLocation(args[0])
		if err != nil {
			return err
		}
		filter, _ := cmd.Flags().GetString("filter")

		s, err := openSession(config())
		if err != nil {
			return err
		}
		defer s.Close()

		tree, err := s.client.GetSymbolTree(cmd.Context(), loc.Path)
		if err != nil {
			return err
		}
		if filter != "" {
			printMatches(cmd.OutOrStdout(), tree, filter)
			return nil
		}
		printTree(cmd.OutOrStdout(), tree, 0)
		return nil
	},
}

func printTree(out io.Writer, nodes []codeintel.SymbolNode, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		fmt.Fprintf(out, "%s%s %s %d:%d\n", indent, kindColor(n.Kind), n.Name, n.Location.Line+1, n.Location.Column+1)
		printTree(out, n.Children, depth+1)
	}
}

// flatSymbol is a tree node with its qualified name.
type flatSymbol struct {
	qualified string
	symbol    codeintel.Symbol
}

func flatten(nodes []codeintel.SymbolNode, prefix string, out []flatSymbol) []flatSymbol {
	for _, n := range nodes {
		name := n.Name
		if prefix != "" {
			name = prefix + "::" + n.Name
		}
		out = append(out, flatSymbol{qualified: name, symbol: n.Symbol})
		out = flatten(n.Children, name, out)
	}
	return out
}

type flatSymbols []flatSymbol

func (f flatSymbols) String(i int) string { return f[i].qualified }
func (f flatSymbols) Len() int            { return len(f) }

// printMatches prints the symbols whose qualified name fuzzily matches
// pattern, best match first.
func printMatches(out io.Writer, tree []codeintel.SymbolNode, pattern string) {
	symbols := flatSymbols(flatten(tree, "", nil))
	for _, m := range fuzzy.FindFrom(pattern, symbols) {
		s := symbols[m.Index]
		fmt.Fprintf(out, "%s %s %d:%d\n", kindColor(s.symbol.Kind), s.qualified, s.symbol.Location.Line+1, s.symbol.Location.Column+1)
	}
}

func init() {
	symbolsCmd.Flags().String("filter", "", "fuzzy pattern matched against qualified names")
	rootCmd.AddCommand(symbolsCmd)
}
