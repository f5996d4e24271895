package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mwiater/codeintel/internal/rpc"
)

func TestQueuedCallsFlushInSubmissionOrder(t *testing.T) {
	gate := make(chan struct{})
	l := newFakeLauncher()
	l.configure = func(n int, w *fakeWorker) { w.initGate = gate }
	c := newTestClient(t, l)

	if c.State() != StateInitial {
		t.Fatalf("new client state = %s", c.State())
	}
	var calls []*Call
	for i := 0; i < 5; i++ {
		calls = append(calls, c.SubmitCall(context.Background(), fmt.Sprintf("test/m%d", i), map[string]int{"i": i}))
	}
	if c.State() != StateSpawning {
		t.Fatalf("state after submit = %s, want spawning", c.State())
	}
	close(gate)

	for i, call := range calls {
		reply, err := waitCall(t, call)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		var res map[string]string
		if err := reply.Decode(&res); err != nil || res["method"] != call.Method {
			t.Fatalf("call %d result = %v err=%v", i, res, err)
		}
		if string(reply.Binary) != call.Method {
			t.Fatalf("call %d attachment = %q", i, reply.Binary)
		}
	}
	for i := 0; i < 5; i++ {
		if msg := nextSeen(t, l); msg.Method != fmt.Sprintf("test/m%d", i) {
			t.Fatalf("dispatch %d = %s", i, msg.Method)
		}
	}
	if c.State() != StateRunning {
		t.Fatalf("state = %s, want running", c.State())
	}
}

func TestCrashFailsInFlightAndRedispatchesQueued(t *testing.T) {
	gates := []chan struct{}{nil, make(chan struct{}), make(chan struct{}), make(chan struct{})}
	l := newFakeLauncher()
	l.configure = func(n int, w *fakeWorker) {
		w.hold["test/slow"] = true
		if n < len(gates) {
			w.initGate = gates[n]
		}
	}
	c := newTestClient(t, l)
	resets := make(chan struct{}, 8)
	c.OnReset(func() { resets <- struct{}{} })

	for round := 0; round < 3; round++ {
		slow := c.SubmitCall(context.Background(), "test/slow", nil)
		if msg := nextSeen(t, l); msg.Method != "test/slow" {
			t.Fatalf("round %d: first dispatch = %s", round, msg.Method)
		}

		l.worker(round).proc.Kill()
		if _, err := waitCall(t, slow); !errors.Is(err, rpc.ErrDisconnected) {
			t.Fatalf("round %d: in-flight err = %v, want ErrDisconnected", round, err)
		}
		select {
		case <-resets:
		case <-time.After(5 * time.Second):
			t.Fatalf("round %d: reset hook not run", round)
		}

		var queued []*Call
		for i := 0; i < 3; i++ {
			queued = append(queued, c.SubmitCall(context.Background(), fmt.Sprintf("test/q%d", i), nil))
		}
		if st := c.State(); st != StateSpawning {
			t.Fatalf("round %d: state = %s, want spawning", round, st)
		}
		close(gates[round+1])

		for i, call := range queued {
			if _, err := waitCall(t, call); err != nil {
				t.Fatalf("round %d: queued %d: %v", round, i, err)
			}
			if msg := nextSeen(t, l); msg.Method != fmt.Sprintf("test/q%d", i) {
				t.Fatalf("round %d: dispatch %d = %s", round, i, msg.Method)
			}
		}
		select {
		case msg := <-l.seen:
			t.Fatalf("round %d: unexpected extra dispatch %s", round, msg.Method)
		default:
		}
	}
	if got := l.launches(); got != 4 {
		t.Fatalf("launches = %d, want 4", got)
	}
}

func TestCallsSubmittedAsWorkerDiesWaitForRespawn(t *testing.T) {
	l := newFakeLauncher()
	c := newTestClient(t, l)
	if _, err := c.Call(context.Background(), "test/warmup", nil); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	nextSeen(t, l)

	const rounds = 50
	for round := 0; round < rounds; round++ {
		l.worker(round).proc.Kill()
		call := c.SubmitCall(context.Background(), "test/after-exit", nil)
		if _, err := waitCall(t, call); err != nil {
			t.Fatalf("round %d: call sent to a dead worker failed: %v", round, err)
		}
		if msg := nextSeen(t, l); msg.Method != "test/after-exit" {
			t.Fatalf("round %d: worker saw %s", round, msg.Method)
		}
	}
	if got := l.launches(); got != rounds+1 {
		t.Fatalf("launches = %d, want %d", got, rounds+1)
	}
}

func TestUnsentCallsKeepSubmissionOrderAcrossRespawn(t *testing.T) {
	l := newFakeLauncher()
	c := newTestClient(t, l)
	if _, err := c.Call(context.Background(), "test/warmup", nil); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	nextSeen(t, l)

	l.worker(0).proc.Kill()
	var calls []*Call
	for i := 0; i < 4; i++ {
		calls = append(calls, c.SubmitCall(context.Background(), fmt.Sprintf("test/u%d", i), nil))
	}
	for i, call := range calls {
		if _, err := waitCall(t, call); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	for i := 0; i < 4; i++ {
		if msg := nextSeen(t, l); msg.Method != fmt.Sprintf("test/u%d", i) {
			t.Fatalf("dispatch %d = %s", i, msg.Method)
		}
	}
}

func TestCancelQueuedCall(t *testing.T) {
	gate := make(chan struct{})
	l := newFakeLauncher()
	l.configure = func(n int, w *fakeWorker) { w.initGate = gate }
	c := newTestClient(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	dropped := c.SubmitCall(ctx, "test/dropped", nil)
	kept := c.SubmitCall(context.Background(), "test/kept", nil)
	cancel()

	_, err := waitCall(t, dropped)
	if !errors.Is(err, rpc.ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled err = %v", err)
	}
	if dropped.ID() != 0 {
		t.Fatalf("cancelled queued call was dispatched as %d", dropped.ID())
	}

	close(gate)
	if _, err := waitCall(t, kept); err != nil {
		t.Fatalf("kept: %v", err)
	}
	if msg := nextSeen(t, l); msg.Method != "test/kept" {
		t.Fatalf("worker saw %s", msg.Method)
	}
}

func TestCancelDispatchedCallDoesNotWaitForWorker(t *testing.T) {
	l := newFakeLauncher()
	l.configure = func(n int, w *fakeWorker) { w.hold["test/slow"] = true }
	c := newTestClient(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	call := c.SubmitCall(ctx, "test/slow", nil)
	msg := nextSeen(t, l)
	if msg.Method != "test/slow" {
		t.Fatalf("worker saw %s", msg.Method)
	}

	cancel()
	select {
	case <-call.Done():
	case <-time.After(time.Second):
		t.Fatalf("cancel waited on the worker")
	}
	if !errors.Is(call.Err(), rpc.ErrCancelled) {
		t.Fatalf("err = %v", call.Err())
	}

	note := nextSeen(t, l)
	if note.Method != rpc.MethodCancelRequest {
		t.Fatalf("expected cancel notification, got %s", note.Method)
	}
	var p rpc.CancelParams
	if err := decodeParams(note, &p); err != nil || p.ID != *msg.ID || p.ID != call.ID() {
		t.Fatalf("cancel params = %+v err=%v (call id %d)", p, err, call.ID())
	}

	if _, err := c.Call(context.Background(), "test/after", nil); err != nil {
		t.Fatalf("client unusable after cancel: %v", err)
	}
}

func TestExplicitCancel(t *testing.T) {
	l := newFakeLauncher()
	l.configure = func(n int, w *fakeWorker) { w.hold["test/slow"] = true }
	c := newTestClient(t, l)

	call := c.SubmitCall(context.Background(), "test/slow", nil)
	nextSeen(t, l)
	call.Cancel()
	if _, err := waitCall(t, call); !errors.Is(err, rpc.ErrCancelled) {
		t.Fatalf("err = %v", err)
	}
	call.Cancel()
}

func TestWorkerErrorPropagates(t *testing.T) {
	l := newFakeLauncher()
	l.configure = func(n int, w *fakeWorker) {
		w.fail["clang/diagnose"] = &rpc.WorkerError{Code: rpc.CodeRequestFailed, Message: "no translation unit"}
		w.fail["clang/complete"] = &rpc.WorkerError{Code: rpc.CodeNotSupported, Message: "virtual file"}
	}
	c := newTestClient(t, l)

	_, err := c.Call(context.Background(), "clang/diagnose", nil)
	var we *rpc.WorkerError
	if !errors.As(err, &we) || we.Message != "no translation unit" {
		t.Fatalf("err = %v", err)
	}
	if _, err := c.Call(context.Background(), "clang/complete", nil); !errors.Is(err, rpc.ErrNotSupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestShutdownFailsEverything(t *testing.T) {
	l := newFakeLauncher()
	l.configure = func(n int, w *fakeWorker) { w.hold["test/slow"] = true }
	c := newTestClient(t, l)

	inflight := c.SubmitCall(context.Background(), "test/slow", nil)
	nextSeen(t, l)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := waitCall(t, inflight); !errors.Is(err, rpc.ErrClosed) {
		t.Fatalf("in-flight err = %v", err)
	}
	late := c.SubmitCall(context.Background(), "test/late", nil)
	if _, err := waitCall(t, late); !errors.Is(err, rpc.ErrClosed) {
		t.Fatalf("late err = %v", err)
	}
	if c.State() != StateShutDown {
		t.Fatalf("state = %s", c.State())
	}
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestShutdownWhileSpawning(t *testing.T) {
	gate := make(chan struct{})
	l := newFakeLauncher()
	l.configure = func(n int, w *fakeWorker) { w.initGate = gate }
	c := newTestClient(t, l)

	queued := c.SubmitCall(context.Background(), "test/queued", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := waitCall(t, queued); !errors.Is(err, rpc.ErrClosed) {
		t.Fatalf("queued err = %v", err)
	}
}

func TestPersistentSpawnFailure(t *testing.T) {
	l := newFakeLauncher()
	l.err = errLaunch
	c := New(Options{
		Launcher:         l,
		RespawnInterval:  time.Millisecond,
		RespawnBurst:     10,
		MaxSpawnFailures: 3,
	})
	defer c.Shutdown(context.Background())

	_, err := waitCall(t, c.SubmitCall(context.Background(), "test/m", nil))
	if !errors.Is(err, rpc.ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}
	waitState(t, c, StateInitial)

	l.mu.Lock()
	l.err = nil
	l.mu.Unlock()
	if _, err := c.Call(context.Background(), "test/m", nil); err != nil {
		t.Fatalf("recovered call: %v", err)
	}
}

func TestNotifyDroppedWithoutSession(t *testing.T) {
	l := newFakeLauncher()
	c := newTestClient(t, l)
	if err := c.Notify("test/note", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if l.launches() != 0 {
		t.Fatalf("Notify must not spawn")
	}
	if _, err := c.Call(context.Background(), "test/m", nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	nextSeen(t, l)
	if err := c.Notify("test/note", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if msg := nextSeen(t, l); msg.Method != "test/note" || !msg.IsNotification() {
		t.Fatalf("worker saw %+v", msg)
	}
	if c.SessionID() == "" {
		t.Fatalf("running client has no session id")
	}
}

func decodeParams(msg *rpc.Message, v any) error {
	return Reply{Result: msg.Params}.Decode(v)
}
