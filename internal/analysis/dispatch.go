package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mwiater/codeintel/internal/rpc"
	"github.com/mwiater/codeintel/internal/variant"
)

// Result is a handler's reply: a JSON value and an optional binary
// attachment.
type Result struct {
	Value  any
	Binary []byte
}

// Handler serves one method. params has been validated against the
// method's schema.
type Handler func(ctx context.Context, params json.RawMessage) (Result, error)

type route struct {
	schema *gojsonschema.Schema
	handle Handler
}

// Table maps method names to handlers. It is built explicitly and handed
// to the server; there is no global registry.
type Table struct {
	routes map[string]route
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{routes: make(map[string]route)}
}

// Register adds method. A nil schema accepts any params.
func (t *Table) Register(method string, schema map[string]any, h Handler) error {
	if _, dup := t.routes[method]; dup {
		return fmt.Errorf("method %s registered twice", method)
	}
	r := route{handle: h}
	if schema != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
		if err != nil {
			return fmt.Errorf("schema for %s: %w", method, err)
		}
		r.schema = compiled
	}
	t.routes[method] = r
	return nil
}

// Methods lists the registered methods in order.
func (t *Table) Methods() []string {
	out := make([]string, 0, len(t.routes))
	for m := range t.routes {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Dispatch validates params and runs the handler for method.
func (t *Table) Dispatch(ctx context.Context, method string, params json.RawMessage) (Result, error) {
	r, ok := t.routes[method]
	if !ok {
		return Result{}, &rpc.WorkerError{Code: rpc.CodeMethodNotFound, Message: "method not found: " + method}
	}
	if r.schema != nil {
		if err := validate(r.schema, params); err != nil {
			return Result{}, err
		}
	}
	return r.handle(ctx, params)
}

func validate(schema *gojsonschema.Schema, params json.RawMessage) error {
	doc := params
	if len(doc) == 0 {
		doc = json.RawMessage("null")
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &rpc.WorkerError{Code: rpc.CodeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	if result.Valid() {
		return nil
	}
	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return &rpc.WorkerError{Code: rpc.CodeInvalidParams, Message: "invalid params: " + strings.Join(errs, ", ")}
}

func decode[T any](params json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(params, &v); err != nil {
		return v, &rpc.WorkerError{Code: rpc.CodeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return v, nil
}

// Parameter schemas.
var (
	flagsSchema = map[string]any{
		"type":  []string{"array", "null"},
		"items": map[string]any{"type": "string"},
	}

	fileSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string", "minLength": 1},
			"flags": flagsSchema,
		},
		"required": []string{"path"},
	}

	positionSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string", "minLength": 1},
			"flags":  flagsSchema,
			"line":   map[string]any{"type": "integer", "minimum": 1},
			"column": map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"path", "line", "column"},
	}

	setBufferSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "minLength": 1},
			"content": map[string]any{"type": []string{"string", "null"}},
		},
		"required": []string{"path"},
	}

	initializeSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"processId": map[string]any{"type": "integer"},
			"rootPath":  map[string]any{"type": "string"},
		},
	}
)

// InitializeResult is the reply of the initialize handshake.
type InitializeResult struct {
	ServerInfo ServerInfo `json:"serverInfo"`
	Methods    []string   `json:"methods"`
}

// ServerInfo names the worker in the handshake reply.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Version is reported in the handshake.
const Version = "0.1.0"

// NewAnalysisTable returns the table serving every clang/* method from a.
func NewAnalysisTable(a *Analyzer) (*Table, error) {
	t := NewTable()
	regs := []struct {
		method string
		schema map[string]any
		h      Handler
	}{
		{rpc.MethodInitialize, initializeSchema, func(ctx context.Context, _ json.RawMessage) (Result, error) {
			return Result{Value: InitializeResult{
				ServerInfo: ServerInfo{Name: "codeintel-worker", Version: Version},
				Methods:    t.Methods(),
			}}, nil
		}},
		{rpc.MethodSetBuffer, setBufferSchema, func(ctx context.Context, raw json.RawMessage) (Result, error) {
			p, err := decode[rpc.SetBufferParams](raw)
			if err != nil {
				return Result{}, err
			}
			a.Buffers().Set(p.Path, p.Content)
			return Result{Value: struct{}{}}, nil
		}},
		{rpc.MethodComplete, positionSchema, func(ctx context.Context, raw json.RawMessage) (Result, error) {
			p, err := decode[rpc.PositionParams](raw)
			if err != nil {
				return Result{}, err
			}
			props, err := a.Complete(ctx, p.Path, p.Flags, p.Line, p.Column)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: rpc.CountResult{Count: len(props)}, Binary: variant.EncodeResults(props)}, nil
		}},
		{rpc.MethodDiagnose, fileSchema, func(ctx context.Context, raw json.RawMessage) (Result, error) {
			p, err := decode[rpc.FileParams](raw)
			if err != nil {
				return Result{}, err
			}
			diags, err := a.Diagnose(ctx, p.Path, p.Flags)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: rpc.DiagnoseResult{Diagnostics: diags}}, nil
		}},
		{rpc.MethodGetSymbolTree, fileSchema, func(ctx context.Context, raw json.RawMessage) (Result, error) {
			p, err := decode[rpc.FileParams](raw)
			if err != nil {
				return Result{}, err
			}
			tree, err := a.SymbolTree(ctx, p.Path, p.Flags)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: rpc.CountResult{Count: len(tree)}, Binary: variant.EncodeResults(tree)}, nil
		}},
		{rpc.MethodGetIndexKey, positionSchema, func(ctx context.Context, raw json.RawMessage) (Result, error) {
			p, err := decode[rpc.PositionParams](raw)
			if err != nil {
				return Result{}, err
			}
			key, err := a.IndexKey(ctx, p.Path, p.Flags, p.Line, p.Column)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: rpc.IndexKeyResult{Key: key}}, nil
		}},
		{rpc.MethodFindNearestScope, positionSchema, func(ctx context.Context, raw json.RawMessage) (Result, error) {
			p, err := decode[rpc.PositionParams](raw)
			if err != nil {
				return Result{}, err
			}
			sym, err := a.NearestScope(ctx, p.Path, p.Flags, p.Line, p.Column)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: rpc.SymbolResult{Symbol: sym}}, nil
		}},
		{rpc.MethodLocateSymbol, positionSchema, func(ctx context.Context, raw json.RawMessage) (Result, error) {
			p, err := decode[rpc.PositionParams](raw)
			if err != nil {
				return Result{}, err
			}
			sym, err := a.Locate(ctx, p.Path, p.Flags, p.Line, p.Column)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: rpc.SymbolResult{Symbol: sym}}, nil
		}},
		{rpc.MethodIndexFile, fileSchema, func(ctx context.Context, raw json.RawMessage) (Result, error) {
			p, err := decode[rpc.FileParams](raw)
			if err != nil {
				return Result{}, err
			}
			entries, err := a.IndexFile(ctx, p.Path, p.Flags)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: rpc.IndexFileResult{Entries: entries}}, nil
		}},
	}
	for _, r := range regs {
		if err := t.Register(r.method, r.schema, r.h); err != nil {
			return nil, err
		}
	}
	return t, nil
}
