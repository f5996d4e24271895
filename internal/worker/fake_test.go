package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mwiater/codeintel/internal/rpc"
)

// fakeProcess is a worker process made of two pipes.
type fakeProcess struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	exited chan struct{}
	once   sync.Once
	pid    int
}

func newFakeProcess(pid int) *fakeProcess {
	p := &fakeProcess{pid: pid, exited: make(chan struct{})}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	return p
}

func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *fakeProcess) Stdout() io.Reader     { return p.stdoutR }
func (p *fakeProcess) Pid() int              { return p.pid }

func (p *fakeProcess) Wait() error {
	<-p.exited
	return nil
}

// Kill simulates the process dying: both pipes break.
func (p *fakeProcess) Kill() error {
	p.once.Do(func() {
		_ = p.stdinR.CloseWithError(io.ErrClosedPipe)
		_ = p.stdoutW.Close()
		close(p.exited)
	})
	return nil
}

// fakeWorker answers frames on a fakeProcess. Methods listed in hold are
// never answered. Every non-initialize frame is reported on seen.
type fakeWorker struct {
	proc     *fakeProcess
	initGate chan struct{}
	hold     map[string]bool
	fail     map[string]*rpc.WorkerError
	seen     chan *rpc.Message
}

func (w *fakeWorker) serve() {
	conn := rpc.NewConn(w.proc.stdinR, w.proc.stdoutW, "worker", "client")
	defer w.proc.Kill()
	for {
		msg, err := conn.Read()
		if err != nil {
			return
		}
		if msg.Method == rpc.MethodInitialize {
			if w.initGate != nil {
				select {
				case <-w.initGate:
				case <-w.proc.exited:
					return
				}
			}
			resp, _ := rpc.NewResponse(*msg.ID, map[string]string{"name": "fake"}, nil)
			if conn.Write(resp) != nil {
				return
			}
			continue
		}
		w.seen <- msg
		if msg.IsNotification() || w.hold[msg.Method] {
			continue
		}
		var resp *rpc.Message
		if we := w.fail[msg.Method]; we != nil {
			resp = rpc.NewErrorResponse(*msg.ID, we)
		} else {
			resp, _ = rpc.NewResponse(*msg.ID, map[string]string{"method": msg.Method}, []byte(msg.Method))
		}
		if conn.Write(resp) != nil {
			return
		}
	}
}

// fakeLauncher starts one fakeWorker per Launch. configure, when set, may
// adjust each worker before it serves; n counts launches from zero.
type fakeLauncher struct {
	mu        sync.Mutex
	workers   []*fakeWorker
	seen      chan *rpc.Message
	configure func(n int, w *fakeWorker)
	err       error
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{seen: make(chan *rpc.Message, 256)}
}

func (l *fakeLauncher) Launch(ctx context.Context) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	n := len(l.workers)
	w := &fakeWorker{
		proc: newFakeProcess(1000 + n),
		hold: map[string]bool{},
		fail: map[string]*rpc.WorkerError{},
		seen: l.seen,
	}
	if l.configure != nil {
		l.configure(n, w)
	}
	l.workers = append(l.workers, w)
	go w.serve()
	return w.proc, nil
}

func (l *fakeLauncher) worker(n int) *fakeWorker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers[n]
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.workers)
}

func newTestClient(t *testing.T, l Launcher) *Client {
	t.Helper()
	c := New(Options{
		Launcher:        l,
		InitTimeout:     5 * time.Second,
		RespawnInterval: time.Millisecond,
		RespawnBurst:    100,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

func waitCall(t *testing.T, call *Call) (Reply, error) {
	t.Helper()
	select {
	case <-call.Done():
		return call.Wait()
	case <-time.After(5 * time.Second):
		t.Fatalf("call %s did not resolve", call.Method)
		return Reply{}, nil
	}
}

func nextSeen(t *testing.T, l *fakeLauncher) *rpc.Message {
	t.Helper()
	select {
	case msg := <-l.seen:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatalf("worker received nothing")
		return nil
	}
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", c.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

var errLaunch = errors.New("launch failed")
