// Package worker supervises the analysis worker process and multiplexes
// asynchronous calls over its stdio channel.
//
// A Client starts in StateInitial. The first submitted call spawns the
// worker (StateSpawning); calls submitted meanwhile wait in a FIFO dispatch
// queue that is flushed, in order, once the initialize handshake completes
// (StateRunning). If the worker exits, calls already written to it fail with
// rpc.ErrDisconnected while queued calls wait for the respawned worker.
// Shutdown is terminal.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mwiater/codeintel/internal/logging"
	"github.com/mwiater/codeintel/internal/rpc"
	"github.com/mwiater/codeintel/internal/telemetry"
)

// State is the lifecycle state of the worker session.
type State int

const (
	StateInitial State = iota
	StateSpawning
	StateRunning
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateShutDown:
		return "shutdown"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	defaultInitTimeout      = 10 * time.Second
	defaultRespawnInterval  = time.Second
	defaultRespawnBurst     = 3
	defaultMaxSpawnFailures = 5
)

// Options configures a Client.
type Options struct {
	Launcher Launcher
	// RootPath is sent to the worker in the initialize handshake.
	RootPath string
	// InitTimeout bounds the initialize handshake of each spawn.
	InitTimeout time.Duration
	// RespawnInterval and RespawnBurst shape the spawn token bucket.
	RespawnInterval time.Duration
	RespawnBurst    int
	// MaxSpawnFailures consecutive failed spawns fail the queued calls with
	// rpc.ErrDisconnected and return the client to StateInitial.
	MaxSpawnFailures int
	Telemetry        *telemetry.Recorder
}

// InitializeParams is the payload of the initialize handshake.
type InitializeParams struct {
	ProcessID int    `json:"processId"`
	RootPath  string `json:"rootPath,omitempty"`
}

// Client owns the worker session and every call routed through it.
type Client struct {
	opts    Options
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	queue    []*Call
	session  *session
	nextID   int64
	failures int
	onReset  []func()

	wg sync.WaitGroup
}

// New returns a Client in StateInitial. No process is started until the
// first call.
func New(opts Options) *Client {
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = defaultInitTimeout
	}
	if opts.RespawnInterval <= 0 {
		opts.RespawnInterval = defaultRespawnInterval
	}
	if opts.RespawnBurst <= 0 {
		opts.RespawnBurst = defaultRespawnBurst
	}
	if opts.MaxSpawnFailures <= 0 {
		opts.MaxSpawnFailures = defaultMaxSpawnFailures
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.RespawnInterval), opts.RespawnBurst),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID identifies the running worker session, or "" if none.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.id
}

// OnReset registers fn to run whenever a worker session is lost. Per-session
// bookkeeping, such as which buffers the worker has seen, hooks in here.
func (c *Client) OnReset(fn func()) {
	c.mu.Lock()
	c.onReset = append(c.onReset, fn)
	c.mu.Unlock()
}

// SubmitCall enqueues method and returns immediately. The call is cancelled
// when ctx is done. params must marshal to JSON; a json.RawMessage is sent
// as is.
func (c *Client) SubmitCall(ctx context.Context, method string, params any) *Call {
	call := newCall(method, params)
	call.client = c
	call.traceCtx, call.endSpan = c.opts.Telemetry.StartCall(ctx, method)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateShutDown:
		call.finish(Reply{}, rpc.ErrClosed)
		return call
	case StateRunning:
		c.dispatchLocked(call)
	default:
		c.queue = append(c.queue, call)
		if c.state == StateInitial {
			c.state = StateSpawning
			c.startSpawnLocked()
		}
	}
	if !call.finished {
		call.watch(ctx)
	}
	return call
}

// Call submits method and waits for its reply.
func (c *Client) Call(ctx context.Context, method string, params any) (Reply, error) {
	return c.SubmitCall(ctx, method, params).Wait()
}

// Notify sends a notification to a running worker. It is dropped when no
// session is running.
func (c *Client) Notify(method string, params any) error {
	msg, err := rpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning || c.session == nil {
		return nil
	}
	c.session.enqueue(msg, nil)
	return nil
}

// Shutdown fails every queued and in-flight call with rpc.ErrClosed and
// stops the worker. It waits for the session goroutines until ctx is done.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateShutDown {
		c.mu.Unlock()
		return nil
	}
	c.state = StateShutDown
	for _, call := range c.queue {
		call.finish(Reply{}, rpc.ErrClosed)
	}
	c.queue = nil
	sess := c.session
	c.session = nil
	if sess != nil {
		sess.failAllLocked(rpc.ErrClosed)
	}
	c.mu.Unlock()

	c.cancel()
	if sess != nil {
		sess.close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchLocked assigns call an id on the running session and hands its
// frame to the writer. The call counts as dispatched once the frame is
// written.
func (c *Client) dispatchLocked(call *Call) {
	c.nextID++
	msg, err := rpc.NewRequest(c.nextID, call.Method, call.Params)
	if err != nil {
		call.finish(Reply{}, fmt.Errorf("%w: %v", rpc.ErrProtocol, err))
		return
	}
	call.id = c.nextID
	call.sess = c.session
	c.session.inflight[call.id] = call
	c.session.enqueue(msg, call)
}

// markWritten records that the frame of call reached the worker.
func (c *Client) markWritten(call *Call) {
	c.mu.Lock()
	call.dispatched = true
	c.mu.Unlock()
}

// cancelCall resolves call with ErrCancelled. A call whose frame already
// left the outbox also tells the worker to stop; its reply, if one still
// arrives, is dropped.
func (c *Client) cancelCall(call *Call, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if call.finished {
		return
	}
	sess := call.sess
	switch {
	case sess == nil:
		if i := slices.Index(c.queue, call); i >= 0 {
			c.queue = slices.Delete(c.queue, i, i+1)
		}
	case !call.dispatched && sess.unqueue(call):
		delete(sess.inflight, call.id)
	default:
		delete(sess.inflight, call.id)
		if note, err := rpc.NewNotification(rpc.MethodCancelRequest, rpc.CancelParams{ID: call.id}); err == nil {
			sess.enqueue(note, nil)
			c.opts.Telemetry.CancelSent(call.traceCtx, call.id)
		}
	}
	call.finish(Reply{}, rpc.Cancelled(cause))
}

// traceCtxLocked returns the span context of the oldest queued call, which
// is the call a spawn is serving.
func (c *Client) traceCtxLocked() context.Context {
	if len(c.queue) > 0 && c.queue[0].traceCtx != nil {
		return c.queue[0].traceCtx
	}
	return c.ctx
}

func (c *Client) startSpawnLocked() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.spawnLoop()
	}()
}

// spawnLoop starts workers until one completes the handshake, the client is
// shut down, or too many consecutive spawns fail.
func (c *Client) spawnLoop() {
	for {
		if err := c.limiter.Wait(c.ctx); err != nil {
			return
		}
		sess, err := c.spawn()

		c.mu.Lock()
		if c.state == StateShutDown {
			c.mu.Unlock()
			if sess != nil {
				sess.close()
			}
			return
		}
		if err == nil {
			select {
			case <-sess.exited:
				err = errors.New("worker exited after initialize")
			default:
			}
		}
		c.opts.Telemetry.Spawn(c.traceCtxLocked(), sessionID(sess), err == nil)
		if err != nil {
			c.failures++
			logging.LogEvent("worker spawn failed (%d/%d): %v", c.failures, c.opts.MaxSpawnFailures, err)
			if sess != nil {
				sess.kill()
			}
			if c.failures >= c.opts.MaxSpawnFailures {
				logging.LogEvent("worker unavailable; failing %d queued calls", len(c.queue))
				for _, call := range c.queue {
					call.finish(Reply{}, fmt.Errorf("%w: %v", rpc.ErrDisconnected, err))
				}
				c.queue = nil
				c.failures = 0
				c.state = StateInitial
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
			continue
		}

		c.failures = 0
		c.session = sess
		c.state = StateRunning
		queued := c.queue
		c.queue = nil
		for _, call := range queued {
			c.dispatchLocked(call)
		}
		logging.LogEvent("worker session %s running (pid=%d, flushed %d queued calls)", sess.id, sess.proc.Pid(), len(queued))
		c.mu.Unlock()
		return
	}
}

// spawn launches a worker and performs the initialize handshake.
func (c *Client) spawn() (*session, error) {
	proc, err := c.opts.Launcher.Launch(c.ctx)
	if err != nil {
		return nil, err
	}
	sess := newSession(c, proc)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		sess.run()
	}()

	hello := newCall(rpc.MethodInitialize, InitializeParams{ProcessID: os.Getpid(), RootPath: c.opts.RootPath})
	hello.client = c
	c.mu.Lock()
	c.nextID++
	msg, err := rpc.NewRequest(c.nextID, hello.Method, hello.Params)
	if err != nil {
		c.mu.Unlock()
		return sess, err
	}
	hello.id = c.nextID
	hello.sess = sess
	sess.inflight[hello.id] = hello
	sess.enqueue(msg, hello)
	c.mu.Unlock()

	timer := time.NewTimer(c.opts.InitTimeout)
	defer timer.Stop()
	select {
	case <-hello.Done():
		if err := hello.Err(); err != nil {
			return sess, fmt.Errorf("initialize: %w", err)
		}
		return sess, nil
	case <-timer.C:
		c.cancelCall(hello, nil)
		return sess, fmt.Errorf("initialize: timed out after %s", c.opts.InitTimeout)
	case <-c.ctx.Done():
		return sess, rpc.ErrClosed
	}
}

// deliver routes a frame read from sess.
func (c *Client) deliver(sess *session, msg *rpc.Message) {
	if !msg.IsResponse() {
		logging.LogEvent("worker session %s: ignoring unsolicited %q", sess.id, msg.Method)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := sess.inflight[*msg.ID]
	if !ok {
		// Cancelled or already failed.
		return
	}
	delete(sess.inflight, *msg.ID)
	if msg.Error != nil {
		call.finish(Reply{}, msg.Error.Err())
		return
	}
	call.finish(Reply{Result: msg.Result, Binary: msg.Binary}, nil)
}

// lost is called once per session after its goroutines have stopped. Calls
// the worker received fail with ErrDisconnected. Calls whose frames were
// never written go back to the front of the queue for the next worker.
func (c *Client) lost(sess *session, cause error) {
	disconnected := fmt.Errorf("%w: %v", rpc.ErrDisconnected, cause)
	c.mu.Lock()
	if c.session != sess {
		sess.failAllLocked(disconnected)
		c.mu.Unlock()
		return
	}
	c.session = nil
	unsent := sess.takeUnwrittenLocked()
	sess.failAllLocked(disconnected)
	logging.LogEvent("worker session %s exited: %v (%d unsent calls requeued)", sess.id, cause, len(unsent))
	hooks := append([]func(){}, c.onReset...)
	if c.state == StateRunning {
		c.queue = append(unsent, c.queue...)
		c.state = StateSpawning
		c.startSpawnLocked()
	} else {
		for _, call := range unsent {
			call.finish(Reply{}, disconnected)
		}
	}
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

func sessionID(s *session) string {
	if s == nil {
		return ""
	}
	return s.id
}

// Decode unmarshals the JSON result of a reply into v.
func (r Reply) Decode(v any) error {
	if len(r.Result) == 0 {
		return rpc.Protocolf("empty result")
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return rpc.Protocolf("decode result: %v", err)
	}
	return nil
}
