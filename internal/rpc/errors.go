package rpc

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the client, the cache and the worker.
var (
	// ErrNotSupported is returned for files the worker cannot analyze, such
	// as non-local paths.
	ErrNotSupported = errors.New("operation not supported")
	// ErrDisconnected is returned for calls in flight when the worker exited.
	ErrDisconnected = errors.New("worker disconnected")
	// ErrCancelled is returned for calls cancelled by their caller.
	ErrCancelled = errors.New("call cancelled")
	// ErrClosed is returned for calls issued to, or pending in, a client
	// that has been shut down.
	ErrClosed = errors.New("client closed")
	// ErrProtocol is returned for malformed frames or replies.
	ErrProtocol = errors.New("protocol error")
)

// JSON-RPC error codes used on the wire.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotSupported   = -32001
	CodeRequestFailed  = -32002
	CodeCancelled      = -32800
)

// WorkerError is an analysis failure reported by the worker itself.
type WorkerError struct {
	Code    int
	Message string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker error %d: %s", e.Code, e.Message)
}

// Cancelled returns an error matching ErrCancelled that also wraps cause,
// typically the context's cancellation cause.
func Cancelled(cause error) error {
	if cause == nil || errors.Is(cause, ErrCancelled) {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// Protocolf builds an error matching ErrProtocol.
func Protocolf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// codeFor maps an error to the wire code a worker reports it with.
func codeFor(err error) int {
	var we *WorkerError
	switch {
	case errors.As(err, &we):
		return we.Code
	case errors.Is(err, ErrNotSupported):
		return CodeNotSupported
	case errors.Is(err, ErrCancelled):
		return CodeCancelled
	case errors.Is(err, ErrProtocol):
		return CodeInvalidParams
	default:
		return CodeRequestFailed
	}
}
