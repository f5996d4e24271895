package worker

import (
	"context"
	"encoding/json"
	"time"
)

// Reply is the successful result of a call.
type Reply struct {
	Result json.RawMessage
	// Binary is the attachment that followed the reply frame, if any. The
	// caller owns it.
	Binary []byte
}

// Call is one pending worker call. It resolves exactly once; Done is closed
// at that point and Reply/Err are stable afterwards.
type Call struct {
	Method string
	Params any

	id   int64
	sess *session

	// dispatched is set once the request frame has been written to the
	// worker. A call assigned to a session but not yet written is requeued
	// if that session is lost.
	dispatched bool
	finished   bool
	submitted  time.Time

	reply Reply
	err   error
	done  chan struct{}

	client    *Client
	stopWatch func() bool
	// traceCtx carries the call's span.
	traceCtx context.Context
	endSpan  func(error)
}

func newCall(method string, params any) *Call {
	return &Call{
		Method:    method,
		Params:    params,
		submitted: time.Now(),
		done:      make(chan struct{}),
	}
}

// Done is closed when the call resolves.
func (c *Call) Done() <-chan struct{} { return c.done }

// Err returns the failure of a resolved call, or nil while it is pending or
// after success.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the call resolves.
func (c *Call) Wait() (Reply, error) {
	<-c.done
	return c.reply, c.err
}

// Cancel resolves the call with ErrCancelled if it has not resolved yet.
func (c *Call) Cancel() {
	if c.client != nil {
		c.client.cancelCall(c, nil)
	}
}

// ID returns the wire id, or 0 if the call was never dispatched.
func (c *Call) ID() int64 {
	if c.client == nil {
		return c.id
	}
	c.client.mu.Lock()
	defer c.client.mu.Unlock()
	return c.id
}

// finish resolves the call. The client lock must be held.
func (c *Call) finish(reply Reply, err error) {
	if c.finished {
		return
	}
	c.finished = true
	c.reply = reply
	c.err = err
	if c.stopWatch != nil {
		c.stopWatch()
	}
	if c.endSpan != nil {
		c.endSpan(err)
	}
	close(c.done)
}

func (c *Call) watch(ctx context.Context) {
	if ctx.Done() == nil {
		return
	}
	c.stopWatch = context.AfterFunc(ctx, func() {
		c.client.cancelCall(c, context.Cause(ctx))
	})
}
