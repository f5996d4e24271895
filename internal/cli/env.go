package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mwiater/codeintel/internal/analysis"
	"github.com/mwiater/codeintel/internal/appconfig"
	"github.com/mwiater/codeintel/internal/bufsync"
	"github.com/mwiater/codeintel/internal/codeintel"
	"github.com/mwiater/codeintel/internal/telemetry"
	"github.com/mwiater/codeintel/internal/worker"
)

const shutdownGrace = 5 * time.Second

// session is the client side of one command run: the supervised worker,
// the buffer synchronizer and the typed client on top.
type session struct {
	worker    *worker.Client
	sync      *bufsync.Synchronizer
	client    *codeintel.Client
	telemetry *telemetry.Recorder
	stopTel   func(context.Context) error
}

func launcherFor(cfg appconfig.Config) (worker.Launcher, error) {
	if cfg.InProcess {
		return analysis.InProcessLauncher{Analyzer: analysis.NewAnalyzer(analysis.NewBuffers())}, nil
	}
	bin, args, err := cfg.WorkerCommand()
	if err != nil {
		return nil, err
	}
	return worker.ExecLauncher{Binary: bin, Args: args}, nil
}

// openSession wires the client stack from cfg. Nothing is spawned until
// the first call.
func openSession(cfg appconfig.Config) (*session, error) {
	stopTel, err := telemetry.Setup(cfg.Telemetry, appVersion, os.Stderr)
	if err != nil {
		return nil, err
	}
	launcher, err := launcherFor(cfg)
	if err != nil {
		_ = stopTel(context.Background())
		return nil, err
	}
	rec := telemetry.Global()
	wc := worker.New(worker.Options{
		Launcher:         launcher,
		RootPath:         cfg.RootPath,
		InitTimeout:      cfg.InitTimeoutDuration(),
		RespawnInterval:  cfg.RespawnIntervalDuration(),
		RespawnBurst:     cfg.RespawnBurstSize(),
		MaxSpawnFailures: cfg.SpawnFailureLimit(),
		Telemetry:        rec,
	})
	s := bufsync.New(bufsync.NewStore(), wc, cfg.SourceExtensions)
	return &session{
		worker:    wc,
		sync:      s,
		client:    codeintel.New(wc, s, codeintel.StaticFlags(cfg.CompileFlags)),
		telemetry: rec,
		stopTel:   stopTel,
	}, nil
}

// Close shuts the worker down and flushes telemetry.
func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return errors.Join(s.worker.Shutdown(ctx), s.stopTel(ctx))
}

// config returns the loaded configuration, or defaults when the root
// command did not run (as in tests that call RunE directly).
func config() appconfig.Config {
	if currentConfig == nil {
		return appconfig.Config{}
	}
	return *currentConfig
}

// parseLocation reads FILE[:LINE[:COLUMN]] with 1-based numbers and returns
// a 0-based location with an absolute path.
func parseLocation(arg string) (codeintel.Location, error) {
	var nums []int
	path := arg
	for len(nums) < 2 {
		i := strings.LastIndexByte(path, ':')
		if i < 0 {
			break
		}
		n, err := strconv.Atoi(path[i+1:])
		if err != nil {
			break
		}
		if n < 1 {
			return codeintel.Location{}, fmt.Errorf("%q: line and column start at 1", arg)
		}
		nums = append([]int{n}, nums...)
		path = path[:i]
	}
	if path == "" {
		return codeintel.Location{}, fmt.Errorf("%q: missing file", arg)
	}
	if !strings.Contains(path, "://") {
		abs, err := filepath.Abs(path)
		if err != nil {
			return codeintel.Location{}, err
		}
		path = abs
	}
	loc := codeintel.Location{Path: path}
	if len(nums) > 0 {
		loc.Line = nums[0] - 1
	}
	if len(nums) > 1 {
		loc.Column = nums[1] - 1
	}
	return loc, nil
}

// requirePosition is parseLocation for commands that need a line and column.
func requirePosition(arg string) (codeintel.Location, error) {
	if strings.Count(arg, ":") < 2 {
		return codeintel.Location{}, fmt.Errorf("%q: expected FILE:LINE:COLUMN", arg)
	}
	return parseLocation(arg)
}
