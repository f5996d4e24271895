package analysis

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/mwiater/codeintel/internal/logging"
	"github.com/mwiater/codeintel/internal/worker"
)

// InProcessLauncher runs a worker Server on a goroutine instead of a
// subprocess. Launches share Analyzer, and so its buffer overlay, when it
// is set; otherwise each launch starts with empty buffers.
type InProcessLauncher struct {
	Analyzer *Analyzer
}

// Launch implements worker.Launcher.
func (l InProcessLauncher) Launch(ctx context.Context) (worker.Process, error) {
	a := l.Analyzer
	if a == nil {
		a = NewAnalyzer(nil)
	}
	table, err := NewAnalysisTable(a)
	if err != nil {
		return nil, err
	}
	p := &pipeProcess{exited: make(chan struct{})}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	srv := NewServer(p.stdinR, p.stdoutW, table)
	go func() {
		err := srv.Serve(context.WithoutCancel(ctx))
		if err != nil {
			logging.LogEvent("in-process worker stopped: %v", err)
		}
		p.stop(err)
	}()
	return p, nil
}

type pipeProcess struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	once   sync.Once
	err    error
	exited chan struct{}
}

func (p *pipeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *pipeProcess) Stdout() io.Reader     { return p.stdoutR }
func (p *pipeProcess) Pid() int              { return os.Getpid() }

func (p *pipeProcess) Wait() error {
	<-p.exited
	return p.err
}

func (p *pipeProcess) Kill() error {
	p.stop(nil)
	return nil
}

func (p *pipeProcess) stop(err error) {
	p.once.Do(func() {
		p.err = err
		_ = p.stdinR.CloseWithError(io.ErrClosedPipe)
		_ = p.stdoutW.Close()
		close(p.exited)
	})
}
