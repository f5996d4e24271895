package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/mwiater/codeintel/internal/rpc"
)

func TestDispatchValidatesParams(t *testing.T) {
	table, err := NewAnalysisTable(newShapes(t))
	if err != nil {
		t.Fatalf("NewAnalysisTable: %v", err)
	}
	cases := []struct {
		name   string
		method string
		params string
		code   int
	}{
		{"missing position", rpc.MethodComplete, `{"path":"/src/shapes.c"}`, rpc.CodeInvalidParams},
		{"zero line", rpc.MethodComplete, `{"path":"/src/shapes.c","line":0,"column":1}`, rpc.CodeInvalidParams},
		{"empty path", rpc.MethodDiagnose, `{"path":""}`, rpc.CodeInvalidParams},
		{"flags not strings", rpc.MethodDiagnose, `{"path":"/a.c","flags":[1]}`, rpc.CodeInvalidParams},
		{"no params", rpc.MethodIndexFile, ``, rpc.CodeInvalidParams},
		{"unknown method", "clang/reformat", `{}`, rpc.CodeMethodNotFound},
	}
	for _, tc := range cases {
		_, err := table.Dispatch(context.Background(), tc.method, json.RawMessage(tc.params))
		var we *rpc.WorkerError
		if !errors.As(err, &we) || we.Code != tc.code {
			t.Fatalf("%s: err = %v, want code %d", tc.name, err, tc.code)
		}
	}
}

func TestDispatchRunsHandlers(t *testing.T) {
	table, err := NewAnalysisTable(newShapes(t))
	if err != nil {
		t.Fatalf("NewAnalysisTable: %v", err)
	}
	res, err := table.Dispatch(context.Background(), rpc.MethodComplete,
		json.RawMessage(`{"path":"/src/shapes.c","flags":null,"line":23,"column":9}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	count, ok := res.Value.(rpc.CountResult)
	if !ok || count.Count == 0 || len(res.Binary) == 0 {
		t.Fatalf("result = %#v with %d bytes", res.Value, len(res.Binary))
	}

	res, err = table.Dispatch(context.Background(), rpc.MethodInitialize, json.RawMessage(`{"processId":1}`))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	info := res.Value.(InitializeResult)
	if !slices.Contains(info.Methods, rpc.MethodGetSymbolTree) {
		t.Fatalf("methods = %v", info.Methods)
	}
}

func TestSetBufferOverlaysAndClears(t *testing.T) {
	a := NewAnalyzer(nil)
	table, err := NewAnalysisTable(a)
	if err != nil {
		t.Fatalf("NewAnalysisTable: %v", err)
	}
	ctx := context.Background()
	if _, err := table.Dispatch(ctx, rpc.MethodSetBuffer, json.RawMessage(`{"path":"/x.c","content":"int x;"}`)); err != nil {
		t.Fatalf("setBuffer: %v", err)
	}
	if !a.Buffers().Overlaid("/x.c") {
		t.Fatalf("overlay not recorded")
	}
	if _, err := table.Dispatch(ctx, rpc.MethodSetBuffer, json.RawMessage(`{"path":"/x.c"}`)); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if a.Buffers().Overlaid("/x.c") {
		t.Fatalf("overlay not cleared")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	table := NewTable()
	h := func(ctx context.Context, _ json.RawMessage) (Result, error) { return Result{}, nil }
	if err := table.Register("m", nil, h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := table.Register("m", nil, h); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
}
