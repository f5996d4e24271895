package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the JSON-RPC version carried by every message.
const Version = "2.0"

// Well known methods.
const (
	MethodInitialize    = "initialize"
	MethodCancelRequest = "$/cancelRequest"
)

// Message is one JSON-RPC frame: a request, a notification or a response.
// Binary carries the optional attachment that follows the JSON body.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`

	Binary []byte `json:"-"`
}

// ErrorObject is the error member of a response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Err converts the wire error into the client's taxonomy.
func (e *ErrorObject) Err() error {
	if e == nil {
		return nil
	}
	switch e.Code {
	case CodeNotSupported:
		return fmt.Errorf("%w: %s", ErrNotSupported, e.Message)
	case CodeCancelled:
		return ErrCancelled
	default:
		return &WorkerError{Code: e.Code, Message: e.Message}
	}
}

// CancelParams is the payload of $/cancelRequest.
type CancelParams struct {
	ID int64 `json:"id"`
}

// IsRequest reports whether m expects a reply.
func (m *Message) IsRequest() bool { return m.Method != "" && m.ID != nil }

// IsNotification reports whether m is a request without an id.
func (m *Message) IsNotification() bool { return m.Method != "" && m.ID == nil }

// IsResponse reports whether m answers an earlier request.
func (m *Message) IsResponse() bool { return m.Method == "" && m.ID != nil }

// NewRequest builds a request. params may be nil.
func NewRequest(id int64, method string, params any) (*Message, error) {
	raw, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	return &Message{JSONRPC: Version, ID: &id, Method: method, Params: raw}, nil
}

// NewNotification builds a request that expects no reply.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	return &Message{JSONRPC: Version, Method: method, Params: raw}, nil
}

// NewResponse builds a successful reply. A nil result is sent as null.
func NewResponse(id int64, result any, binary []byte) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Message{JSONRPC: Version, ID: &id, Result: raw, Binary: binary}, nil
}

// NewErrorResponse builds a failed reply for err.
func NewErrorResponse(id int64, err error) *Message {
	var we *WorkerError
	msg := err.Error()
	if errors.As(err, &we) {
		msg = we.Message
	}
	return &Message{
		JSONRPC: Version,
		ID:      &id,
		Error:   &ErrorObject{Code: codeFor(err), Message: msg},
	}
}

func marshalOptional(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
