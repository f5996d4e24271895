// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// legacyConfigPath is the path to the configuration file used in previous versions.
	legacyConfigPath = "codeintel.json"
	// defaultInitTimeout bounds the worker's initialize handshake.
	defaultInitTimeout = 10 * time.Second
	// defaultRespawnInterval is the refill period of the respawn token bucket.
	defaultRespawnInterval = time.Second
	defaultRespawnBurst    = 3
	defaultMaxSpawnFailure = 5
)

// ErrNoConfig is returned by Resolve and Load when no configuration file exists.
var ErrNoConfig = errors.New("no configuration file found")

// Config represents the top-level application configuration.
type Config struct {
	WorkerBinary     string   `json:"workerBinary,omitempty" mapstructure:"workerBinary"`
	WorkerArgs       []string `json:"workerArgs,omitempty" mapstructure:"workerArgs"`
	InProcess        bool     `json:"inProcess" mapstructure:"inProcess"`
	InitTimeout      int      `json:"initTimeout,omitempty" mapstructure:"initTimeout"`
	RespawnInterval  int      `json:"respawnInterval,omitempty" mapstructure:"respawnInterval"`
	RespawnBurst     int      `json:"respawnBurst,omitempty" mapstructure:"respawnBurst"`
	MaxSpawnFailures int      `json:"maxSpawnFailures,omitempty" mapstructure:"maxSpawnFailures"`
	CompileFlags     []string `json:"compileFlags,omitempty" mapstructure:"compileFlags"`
	SourceExtensions []string `json:"sourceExtensions,omitempty" mapstructure:"sourceExtensions"`
	RootPath         string   `json:"rootPath,omitempty" mapstructure:"rootPath"`
	LogFile          string   `json:"logFile,omitempty" mapstructure:"logFile"`
	Debug            bool     `json:"debug" mapstructure:"debug"`
	Watch            bool     `json:"watch" mapstructure:"watch"`
	Telemetry        string   `json:"telemetry,omitempty" mapstructure:"telemetry"`
	ConfigPath       string   `json:"-" mapstructure:"-"`
}

// InitTimeoutDuration returns the initialize handshake timeout (seconds in the file).
func (c Config) InitTimeoutDuration() time.Duration {
	if c.InitTimeout <= 0 {
		return defaultInitTimeout
	}
	return time.Duration(c.InitTimeout) * time.Second
}

// RespawnIntervalDuration returns the respawn refill period (milliseconds in the file).
func (c Config) RespawnIntervalDuration() time.Duration {
	if c.RespawnInterval <= 0 {
		return defaultRespawnInterval
	}
	return time.Duration(c.RespawnInterval) * time.Millisecond
}

// RespawnBurstSize returns how many spawns may happen back to back.
func (c Config) RespawnBurstSize() int {
	if c.RespawnBurst <= 0 {
		return defaultRespawnBurst
	}
	return c.RespawnBurst
}

// SpawnFailureLimit returns how many consecutive spawn failures fail the queue.
func (c Config) SpawnFailureLimit() int {
	if c.MaxSpawnFailures <= 0 {
		return defaultMaxSpawnFailure
	}
	return c.MaxSpawnFailures
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "codeintel.log"
}

// WorkerCommand returns the binary and arguments used to spawn the analysis
// worker. Without a configured binary the running executable is re-executed
// with the worker subcommand.
func (c Config) WorkerCommand() (string, []string, error) {
	if b := strings.TrimSpace(c.WorkerBinary); b != "" {
		return b, c.WorkerArgs, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("resolve worker binary: %w", err)
	}
	args := c.WorkerArgs
	if len(args) == 0 {
		args = []string{"worker"}
	}
	return self, args, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch c.Telemetry {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("invalid configuration: telemetry must be \"none\" or \"stdout\", got %q", c.Telemetry)
	}
	for _, ext := range c.SourceExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("invalid configuration: source extension %q must start with a dot", ext)
		}
	}
	if c.InitTimeout < 0 || c.RespawnInterval < 0 || c.RespawnBurst < 0 || c.MaxSpawnFailures < 0 {
		return errors.New("invalid configuration: worker limits must not be negative")
	}
	return nil
}

// Resolve returns the config file to read for path. A missing default file
// falls back to the legacy file; when neither exists the error wraps
// ErrNoConfig.
func Resolve(path string) (string, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return path, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("could not read config file %q: %w", path, err)
	case path != DefaultConfigPath:
		return "", fmt.Errorf("%w at %q", ErrNoConfig, path)
	}

	if _, err := os.Stat(legacyConfigPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w (searched %q and %q)", ErrNoConfig, DefaultConfigPath, legacyConfigPath)
		}
		return "", fmt.Errorf("could not read config file %q: %w", legacyConfigPath, err)
	}
	return legacyConfigPath, nil
}

// Load reads the application configuration from the specified path, with fallback to a legacy path.
func Load(path string) (Config, error) {
	resolved, err := Resolve(path)
	if err != nil {
		return Config{}, err
	}
	config, err := loadFromPath(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file %q: %w", resolved, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	config.ConfigPath = resolved
	return config, nil
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	if config.InitTimeout == 0 {
		config.InitTimeout = int(defaultInitTimeout.Seconds())
	}

	return config, nil
}
