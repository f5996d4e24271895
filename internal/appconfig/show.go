package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config, fallback Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	fmt.Fprintln(out, "Current configuration:")
	if cfg == nil {
		cfg = &fallback
	}

	binary, args, err := cfg.WorkerCommand()
	if cfg.InProcess {
		fmt.Fprintln(out, "  Worker:            in-process")
	} else if err != nil {
		fmt.Fprintf(out, "  Worker:            unresolved (%v)\n", err)
	} else {
		fmt.Fprintf(out, "  Worker:            %s %v\n", binary, args)
	}
	fmt.Fprintf(out, "  Init Timeout:      %s\n", cfg.InitTimeoutDuration())
	fmt.Fprintf(out, "  Respawn Interval:  %s\n", cfg.RespawnIntervalDuration())
	fmt.Fprintf(out, "  Respawn Burst:     %d\n", cfg.RespawnBurstSize())
	fmt.Fprintf(out, "  Spawn Failures:    %d\n", cfg.SpawnFailureLimit())
	fmt.Fprintf(out, "  Compile Flags:     %v\n", cfg.CompileFlags)
	if len(cfg.SourceExtensions) > 0 {
		fmt.Fprintf(out, "  Source Extensions: %v\n", cfg.SourceExtensions)
	}
	if cfg.RootPath != "" {
		fmt.Fprintf(out, "  Root Path:         %s\n", cfg.RootPath)
	}
	fmt.Fprintf(out, "  Log File:          %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Debug:             %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Watch:             %v\n", cfg.Watch)
	telemetry := cfg.Telemetry
	if telemetry == "" {
		telemetry = "none"
	}
	fmt.Fprintf(out, "  Telemetry:         %s\n", telemetry)
}
