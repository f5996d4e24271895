// Package analysis is the worker side of the channel: a stdio server that
// dispatches clang/* requests to a tree-sitter based C and C++ analyzer.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/mwiater/codeintel/internal/logging"
	"github.com/mwiater/codeintel/internal/rpc"
)

// Server reads requests from one connection and answers them. Requests run
// concurrently except buffer updates and the handshake, which run in the
// order they arrive.
type Server struct {
	conn  *rpc.Conn
	table *Table

	mu       sync.Mutex
	inflight map[int64]context.CancelFunc
	wg       sync.WaitGroup
}

var inline = map[string]bool{
	rpc.MethodInitialize: true,
	rpc.MethodSetBuffer:  true,
}

func NewServer(r io.Reader, w io.Writer, table *Table) *Server {
	return &Server{
		conn:     rpc.NewConn(r, w, "worker", "client"),
		table:    table,
		inflight: make(map[int64]context.CancelFunc),
	}
}

// Serve answers requests until the peer closes its end. A clean end of
// input returns nil. Requests still running are cancelled before Serve
// returns.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()
	for {
		msg, err := s.conn.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch {
		case msg.IsNotification():
			s.notify(msg)
		case msg.IsRequest():
			if inline[msg.Method] {
				s.handle(ctx, *msg.ID, msg.Method, msg.Params)
				continue
			}
			id := *msg.ID
			rctx, rcancel := context.WithCancel(ctx)
			s.mu.Lock()
			s.inflight[id] = rcancel
			s.mu.Unlock()
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.forget(id)
				s.handle(rctx, id, msg.Method, msg.Params)
			}()
		default:
			logging.LogEvent("worker: ignoring unexpected frame")
		}
	}
}

func (s *Server) forget(id int64) {
	s.mu.Lock()
	cancel, ok := s.inflight[id]
	delete(s.inflight, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Server) notify(msg *rpc.Message) {
	if msg.Method != rpc.MethodCancelRequest {
		logging.LogEvent("worker: ignoring notification %s", msg.Method)
		return
	}
	var p rpc.CancelParams
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		logging.LogEvent("worker: bad cancel params: %v", err)
		return
	}
	s.mu.Lock()
	cancel, ok := s.inflight[p.ID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Server) handle(ctx context.Context, id int64, method string, params json.RawMessage) {
	res, err := s.table.Dispatch(ctx, method, params)
	if err == nil && ctx.Err() != nil {
		err = rpc.Cancelled(ctx.Err())
	}
	var reply *rpc.Message
	if err != nil {
		reply = rpc.NewErrorResponse(id, err)
	} else if reply, err = rpc.NewResponse(id, res.Value, res.Binary); err != nil {
		reply = rpc.NewErrorResponse(id, &rpc.WorkerError{Code: rpc.CodeInternalError, Message: err.Error()})
	}
	if err := s.conn.Write(reply); err != nil {
		logging.LogEvent("worker: write reply %d: %v", id, err)
	}
}
