// internal/cli/root.go
// Package cli implements the codeintel command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwiater/codeintel/internal/appconfig"
	"github.com/mwiater/codeintel/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "codeintel",
	Short:        "C/C++ completion, diagnostics and symbols from an out-of-process analysis worker",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, err := ensureConfigLoaded()
		if err != nil {
			return err
		}

		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ConfigPath = cfgPath
		if err := cfg.Validate(); err != nil {
			return err
		}
		currentConfig = &cfg
		logging.SetDebug(cfg.Debug)

		// The worker's stdout is the wire, so its console log goes to stderr.
		initLog := logging.Init
		if cmd == workerCmd {
			initLog = logging.InitWorker
		}
		if err := initLog(currentConfig.LogFilePath()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logging.Close()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	rootCmd.PersistentFlags().Bool("debug", false, "log every worker frame")
	rootCmd.PersistentFlags().String("logFile", "", "path to the log file")
	rootCmd.PersistentFlags().String("workerBinary", "", "analysis worker binary (defaults to this executable)")
	rootCmd.PersistentFlags().Bool("inProcess", false, "run the analysis worker inside this process")
	rootCmd.PersistentFlags().StringSlice("compileFlags", nil, "compile flags passed with every query")
	rootCmd.PersistentFlags().String("rootPath", "", "project root sent in the worker handshake")
	rootCmd.PersistentFlags().String("telemetry", "none", "telemetry exporter: none or stdout")

	for _, name := range []string{"debug", "logFile", "workerBinary", "inProcess", "compileFlags", "rootPath", "telemetry"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// ensureConfigLoaded resolves and validates the config file, then has viper
// read it beneath the flags, returning the path read. A missing file leaves
// flags and defaults in charge.
func ensureConfigLoaded() (string, error) {
	cfg, err := appconfig.Load(cfgFile)
	if errors.Is(err, appconfig.ErrNoConfig) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	viper.SetConfigFile(cfg.ConfigPath)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.ConfigPath, nil
}

// GetConfig returns the loaded application configuration.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
