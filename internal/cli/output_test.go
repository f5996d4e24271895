package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mwiater/codeintel/internal/codeintel"
)

func TestPrintDiagnostics(t *testing.T) {
	results := map[string][]codeintel.Diagnostic{
		"/a.c": {
			{Severity: codeintel.SeverityWarning, Message: "unused", Location: codeintel.Location{Line: 0, Column: 4}},
			{Severity: codeintel.SeverityIgnored, Message: "hidden"},
		},
		"/b.c": {
			{Severity: codeintel.SeverityError, Message: "expected ';'", Location: codeintel.Location{Line: 9, Column: 0}},
		},
	}
	var b bytes.Buffer
	failed := printDiagnostics(&b, []string{"/a.c", "/b.c", "/a.c"}, results)
	if !failed {
		t.Fatal("an error diagnostic should report failure")
	}
	out := b.String()
	if strings.Count(out, "unused") != 1 {
		t.Fatalf("duplicate path printed twice:\n%s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("ignored diagnostic printed:\n%s", out)
	}
	if !strings.Contains(out, "/a.c:1:5:") || !strings.Contains(out, "/b.c:10:1:") {
		t.Fatalf("positions not 1-based:\n%s", out)
	}
	if strings.Index(out, "/a.c") > strings.Index(out, "/b.c") {
		t.Fatalf("argument order not kept:\n%s", out)
	}

	b.Reset()
	if printDiagnostics(&b, []string{"/a.c"}, results) {
		t.Fatal("warnings alone should not report failure")
	}
}

func TestPrintMatches(t *testing.T) {
	tree := []codeintel.SymbolNode{
		{
			Symbol: codeintel.Symbol{Name: "point", Kind: "struct"},
			Children: []codeintel.SymbolNode{
				{Symbol: codeintel.Symbol{Name: "x", Kind: "field", Location: codeintel.Location{Line: 1, Column: 6}}},
				{Symbol: codeintel.Symbol{Name: "y", Kind: "field", Location: codeintel.Location{Line: 2, Column: 6}}},
			},
		},
		{Symbol: codeintel.Symbol{Name: "area", Kind: "function"}},
	}
	var b bytes.Buffer
	printMatches(&b, tree, "pty")
	out := b.String()
	if !strings.Contains(out, "point::y 3:7") {
		t.Fatalf("expected qualified match:\n%s", out)
	}
	if strings.Contains(out, "area") || strings.Contains(out, "point::x") {
		t.Fatalf("unexpected matches:\n%s", out)
	}

	b.Reset()
	printTree(&b, tree, 0)
	if !strings.Contains(b.String(), "  ") || !strings.Contains(b.String(), "area 1:1") {
		t.Fatalf("unexpected tree:\n%s", b.String())
	}
}

func TestPrintIndex(t *testing.T) {
	var b bytes.Buffer
	err := printIndex(&b, []codeintel.IndexEntry{
		{Key: "c:@F@add", Name: "f\x1fadd", Kind: "function", Flags: []string{"definition"}, Location: codeintel.Location{Line: 4, Column: 4}},
	})
	if err != nil {
		t.Fatalf("printIndex: %v", err)
	}
	out := b.String()
	if !strings.Contains(out, "c:@F@add") || !strings.Contains(out, "f|add") || !strings.Contains(out, "definition") || !strings.Contains(out, "5:5") {
		t.Fatalf("unexpected index row:\n%s", out)
	}
}
