package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/mwiater/codeintel/internal/logging"
)

// closeGrace is how long a worker may take to exit after its stdin closes
// before it is killed.
const closeGrace = 2 * time.Second

// Process is a running worker: its stdio pipes plus lifecycle control.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	// Wait blocks until the process has exited.
	Wait() error
	Kill() error
	Pid() int
}

// Launcher starts worker processes. The client calls Launch once per spawn.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// ExecLauncher runs the worker as a subprocess.
type ExecLauncher struct {
	Binary string
	Args   []string
	Env    []string
	// Stderr receives the worker's log output. Defaults to os.Stderr.
	Stderr io.Writer
}

// Launch starts the configured binary with piped stdin and stdout.
func (l ExecLauncher) Launch(ctx context.Context) (Process, error) {
	if _, err := os.Stat(l.Binary); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.LogEvent("worker start aborted: binary %q missing", l.Binary)
			return nil, fmt.Errorf("worker binary not found at %q", l.Binary)
		}
		logging.LogEvent("worker start aborted: binary %q not accessible (%v)", l.Binary, err)
		return nil, fmt.Errorf("worker binary %q not accessible: %w", l.Binary, err)
	}

	cmd := exec.CommandContext(ctx, l.Binary, l.Args...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		logging.LogEvent("worker failed to start: %v", err)
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Wait() error           { return p.cmd.Wait() }
func (p *execProcess) Kill() error           { return p.cmd.Process.Kill() }
func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
