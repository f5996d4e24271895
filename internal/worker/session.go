package worker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mwiater/codeintel/internal/rpc"
)

// session is one worker process and the goroutines serving its channel.
// inflight is guarded by the client lock.
type session struct {
	id     string
	client *Client
	proc   Process
	conn   *rpc.Conn

	inflight map[int64]*Call

	outMu  sync.Mutex
	outbox []outgoing
	wake   chan struct{}

	exited    chan struct{}
	closeOnce sync.Once
}

// outgoing is a frame waiting for the writer. call is nil for
// notifications.
type outgoing struct {
	msg  *rpc.Message
	call *Call
}

func newSession(c *Client, proc Process) *session {
	return &session{
		id:       uuid.NewString(),
		client:   c,
		proc:     proc,
		conn:     rpc.NewConn(proc.Stdout(), proc.Stdin(), "client", "worker"),
		inflight: make(map[int64]*Call),
		wake:     make(chan struct{}, 1),
		exited:   make(chan struct{}),
	}
}

// enqueue appends msg to the outbox without blocking.
func (s *session) enqueue(msg *rpc.Message, call *Call) {
	s.outMu.Lock()
	s.outbox = append(s.outbox, outgoing{msg: msg, call: call})
	s.outMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// unqueue removes the frame of call if the writer has not taken it yet.
func (s *session) unqueue(call *Call) bool {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	i := slices.IndexFunc(s.outbox, func(o outgoing) bool { return o.call == call })
	if i < 0 {
		return false
	}
	s.outbox = slices.Delete(s.outbox, i, i+1)
	return true
}

func (s *session) drain() []outgoing {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	out := s.outbox
	s.outbox = nil
	return out
}

// run serves the session until the worker's stdout closes, then reaps the
// process and reports the loss to the client.
func (s *session) run() {
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return s.readLoop() })
	g.Go(func() error { return s.writeLoop(ctx) })
	cause := g.Wait()

	_ = s.proc.Kill()
	_ = s.proc.Wait()
	close(s.exited)
	if cause == nil || errors.Is(cause, io.EOF) {
		cause = errors.New("worker exited")
	}
	s.client.lost(s, cause)
}

func (s *session) readLoop() error {
	for {
		msg, err := s.conn.Read()
		if err != nil {
			return err
		}
		s.client.deliver(s, msg)
	}
}

func (s *session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		}
		for _, out := range s.drain() {
			if err := s.conn.Write(out.msg); err != nil {
				// Unblock the reader.
				_ = s.proc.Kill()
				return fmt.Errorf("write %s: %w", out.msg.Method, err)
			}
			if out.call != nil {
				s.client.markWritten(out.call)
			}
		}
	}
}

// failAllLocked resolves every in-flight call with err. The client lock must
// be held.
func (s *session) failAllLocked(err error) {
	for id, call := range s.inflight {
		call.finish(Reply{}, err)
		delete(s.inflight, id)
	}
}

// takeUnwrittenLocked removes the calls whose frames never reached the
// worker and returns them in submission order, ready to be queued again.
// The client lock must be held.
func (s *session) takeUnwrittenLocked() []*Call {
	var out []*Call
	for id, call := range s.inflight {
		if call.dispatched {
			continue
		}
		delete(s.inflight, id)
		out = append(out, call)
	}
	slices.SortFunc(out, func(a, b *Call) int { return cmp.Compare(a.id, b.id) })
	for _, call := range out {
		call.id = 0
		call.sess = nil
	}
	return out
}

// close asks the worker to exit by closing its stdin and kills it after a
// grace period.
func (s *session) close() {
	s.closeOnce.Do(func() {
		_ = s.proc.Stdin().Close()
		select {
		case <-s.exited:
		case <-time.After(closeGrace):
			_ = s.proc.Kill()
		}
	})
}

func (s *session) kill() {
	_ = s.proc.Kill()
}
