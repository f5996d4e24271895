// internal/cli/show.go
package cli

import (
	"github.com/mwiater/codeintel/internal/appconfig"
	"github.com/spf13/cobra"
)

// showCmd represents the 'show' command group for displaying resources.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Group commands for displaying resources",
	Long:  `The 'show' command groups subcommands that display information about codeintel itself.`,
}

// showConfigCmd implements 'show config', which prints the merged
// configuration after the file and flags are applied.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON config is loaded properly and overridden by flags accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := GetConfig()
		file := ""
		if cfg != nil {
			file = cfg.ConfigPath
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), file, cfg, appconfig.Config{})
	},
}

// showCommandsCmd implements 'show commands', which prints the available
// commands and subcommands in a hierarchical, indented, two-column format.
var showCommandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List all commands and subcommands in two columns",
	Run: func(cmd *cobra.Command, args []string) {
		runListCommands(cmd.OutOrStdout(), rootCmd)
	},
}

func init() {
	showCmd.AddCommand(showConfigCmd, showCommandsCmd)
	rootCmd.AddCommand(showCmd)
}
