package cli

import (
	"os"

	"github.com/mwiater/codeintel/internal/analysis"
	"github.com/mwiater/codeintel/internal/logging"
	"github.com/spf13/cobra"
)

// workerCmd implements 'worker', the analysis worker process. It speaks the
// framed JSON-RPC protocol on stdin and stdout and is normally spawned by
// the other commands rather than run by hand.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run the analysis worker on stdin/stdout",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := analysis.NewAnalysisTable(analysis.NewAnalyzer(analysis.NewBuffers()))
		if err != nil {
			return err
		}
		logging.LogEvent("worker %d serving %d methods", os.Getpid(), len(table.Methods()))
		err = analysis.NewServer(os.Stdin, os.Stdout, table).Serve(cmd.Context())
		if err != nil && cmd.Context().Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
