package analysis

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/mwiater/codeintel/internal/rpc"
	"github.com/mwiater/codeintel/internal/variant"
)

const shapesPath = "/src/shapes.c"

var shapesSource = strings.Join([]string{
	"#include <stdio.h>",
	"#define MAX_POINTS 16",
	"",
	"struct point {",
	"\tint x;",
	"\tint y;",
	"};",
	"",
	"typedef struct {",
	"\tdouble w, h;",
	"} size;",
	"",
	"enum color { RED, GREEN = 2 };",
	"",
	"static int counter;",
	"int total = 0;",
	"",
	"int add(int a, int b);",
	"",
	"int add(int a, int b)",
	"{",
	"\tint sum = a + b;",
	"\treturn sum;",
	"}",
	"",
	"static void helper(void)",
	"{",
	"\tchar buf[8];",
	"\tgets(buf);",
	"}",
	"",
}, "\n")

func newShapes(t *testing.T) *Analyzer {
	t.Helper()
	b := NewBuffers()
	src := shapesSource
	b.Set(shapesPath, &src)
	return NewAnalyzer(b)
}

func keywords(maps []variant.Map) []string {
	res := variant.NewResults(variant.EncodeResults(maps))
	out := make([]string, 0, res.Len())
	for i := 0; i < res.Len(); i++ {
		p, _ := res.At(i)
		out = append(out, p.Keyword())
	}
	return out
}

func TestSymbolTreeNestsMembers(t *testing.T) {
	a := newShapes(t)
	maps, err := a.SymbolTree(context.Background(), shapesPath, nil)
	if err != nil {
		t.Fatalf("SymbolTree: %v", err)
	}
	nodes := variant.NewNodes(variant.EncodeResults(maps))
	var top []string
	for i := 0; i < nodes.Len(); i++ {
		n, err := nodes.At(i)
		if err != nil {
			t.Fatalf("At(%d): %v", i, err)
		}
		top = append(top, n.Name())
	}
	want := []string{"point", "size", "color", "counter", "total", "add", "helper"}
	if !slices.Equal(top, want) {
		t.Fatalf("top level = %v, want %v", top, want)
	}

	point, _ := nodes.At(0)
	if point.Kind() != KindStruct || point.Line() != 4 || point.Column() != 8 {
		t.Fatalf("point = %s %d:%d", point.Kind(), point.Line(), point.Column())
	}
	var fields []string
	for i := 0; i < point.Children().Len(); i++ {
		f, _ := point.Children().At(i)
		fields = append(fields, f.Name())
	}
	if !slices.Equal(fields, []string{"x", "y"}) {
		t.Fatalf("point fields = %v", fields)
	}

	size, _ := nodes.At(1)
	if size.Kind() != KindTypedef || size.Children().Len() != 2 {
		t.Fatalf("size = %s with %d children", size.Kind(), size.Children().Len())
	}
	color, _ := nodes.At(2)
	if color.Children().Len() != 2 {
		t.Fatalf("color has %d enumerators", color.Children().Len())
	}
}

func TestCompleteOrdersLocalsFirst(t *testing.T) {
	a := newShapes(t)
	maps, err := a.Complete(context.Background(), shapesPath, []string{"-DDEBUG=1"}, 23, 9)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got := keywords(maps)
	if len(got) < 3 || !slices.Equal(got[:3], []string{"sum", "b", "a"}) {
		t.Fatalf("first proposals = %v", got[:min(len(got), 5)])
	}
	for _, want := range []string{"add", "total", "counter", "RED", "MAX_POINTS", "DEBUG", "while", "point"} {
		if !slices.Contains(got, want) {
			t.Fatalf("missing %q in %v", want, got)
		}
	}
	for _, absent := range []string{"buf", "x", "w"} {
		if slices.Contains(got, absent) {
			t.Fatalf("%q should not be proposed", absent)
		}
	}
	seen := map[string]int{}
	for _, n := range got {
		seen[n]++
		if seen[n] > 1 {
			t.Fatalf("%q proposed twice", n)
		}
	}

	res := variant.NewResults(variant.EncodeResults(maps))
	for i := 0; i < res.Len(); i++ {
		p, err := res.At(i)
		if err != nil {
			t.Fatalf("At(%d): %v", i, err)
		}
		if p.Keyword() != "add" {
			continue
		}
		if p.Kind() != rpc.CompletionFunction || p.Detail() != "int add(int a, int b)" {
			t.Fatalf("add = kind %d detail %q", p.Kind(), p.Detail())
		}
		var texts []string
		for j := 0; j < p.Chunks().Len(); j++ {
			c, _ := p.Chunks().At(j)
			texts = append(texts, c.Text())
		}
		if !slices.Equal(texts, []string{"add", "(", "int a", ", ", "int b", ")"}) {
			t.Fatalf("add chunks = %q", texts)
		}
		return
	}
	t.Fatalf("add not found")
}

func TestCompleteCXXAddsKeywords(t *testing.T) {
	a := NewAnalyzer(nil)
	src := "int main() { return 0; }\n"
	a.Buffers().Set("/src/main.cpp", &src)
	maps, err := a.Complete(context.Background(), "/src/main.cpp", nil, 1, 14)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got := keywords(maps)
	if !slices.Contains(got, "nullptr") || !slices.Contains(got, "main") {
		t.Fatalf("proposals = %v", got)
	}
}

func TestDiagnoseReportsDeprecatedCalls(t *testing.T) {
	a := newShapes(t)
	diags, err := a.Diagnose(context.Background(), shapesPath, nil)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %+v", diags)
	}
	d := diags[0]
	if d.Severity != "warning" || !strings.Contains(d.Message, "deprecated") || d.Location.Line != 29 || d.Location.Column != 2 {
		t.Fatalf("diagnostic = %+v", d)
	}
	if d.Location.Path != shapesPath {
		t.Fatalf("path = %q", d.Location.Path)
	}
}

func TestDiagnoseReportsSyntaxErrors(t *testing.T) {
	a := NewAnalyzer(nil)
	src := "int main(void)\n{\n\tint x = 1\n\treturn x;\n}\n"
	a.Buffers().Set("/src/bad.c", &src)
	diags, err := a.Diagnose(context.Background(), "/src/bad.c", nil)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if len(diags) == 0 {
		t.Fatalf("no diagnostics for broken source")
	}
	for _, d := range diags {
		if d.Severity != "error" {
			t.Fatalf("diagnostic = %+v", d)
		}
		if d.Location.Line < 2 || d.Location.Line > 5 {
			t.Fatalf("diagnostic on line %d", d.Location.Line)
		}
	}
}

func TestNearestScope(t *testing.T) {
	a := newShapes(t)
	ctx := context.Background()
	cases := []struct {
		line, column int
		want         string
	}{
		{22, 3, "add"},
		{5, 6, "point"},
		{29, 3, "helper"},
		{3, 1, ""},
	}
	for _, tc := range cases {
		sym, err := a.NearestScope(ctx, shapesPath, nil, tc.line, tc.column)
		if err != nil {
			t.Fatalf("NearestScope(%d:%d): %v", tc.line, tc.column, err)
		}
		got := ""
		if sym != nil {
			got = sym.Name
		}
		if got != tc.want {
			t.Fatalf("NearestScope(%d:%d) = %q, want %q", tc.line, tc.column, got, tc.want)
		}
	}
	sym, _ := a.NearestScope(ctx, shapesPath, nil, 22, 3)
	if sym.Location.Line != 20 || sym.Location.Column != 5 || sym.Kind != KindFunction {
		t.Fatalf("add scope = %+v", sym)
	}
}

func TestLocateFindsDeclaration(t *testing.T) {
	a := newShapes(t)
	sym, err := a.Locate(context.Background(), shapesPath, nil, 23, 10)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if sym == nil || sym.Name != "sum" || sym.Location.Line != 22 || sym.Location.Column != 6 {
		t.Fatalf("sum = %+v", sym)
	}
	sym, err = a.Locate(context.Background(), shapesPath, nil, 3, 1)
	if err != nil || sym != nil {
		t.Fatalf("blank line = %+v, %v", sym, err)
	}
}

func TestIndexKeyLinkage(t *testing.T) {
	a := newShapes(t)
	ctx := context.Background()
	key, err := a.IndexKey(ctx, shapesPath, nil, 20, 5)
	if err != nil || key != "c:@F@add" {
		t.Fatalf("add key = %q, %v", key, err)
	}
	for _, pos := range [][2]int{{15, 12}, {23, 10}} {
		_, err := a.IndexKey(ctx, shapesPath, nil, pos[0], pos[1])
		var we *rpc.WorkerError
		if !errors.As(err, &we) {
			t.Fatalf("IndexKey(%v) err = %v, want WorkerError", pos, err)
		}
	}
}

func TestIndexFileEntries(t *testing.T) {
	a := newShapes(t)
	entries, err := a.IndexFile(context.Background(), shapesPath, nil)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	byName := map[string]rpc.IndexEntry{}
	for _, e := range entries {
		if _, ok := byName[e.Name]; !ok || slices.Contains(e.Flags, FlagDefinition) {
			byName[e.Name] = e
		}
	}
	check := func(name, key string, flags ...string) {
		t.Helper()
		e, ok := byName[name]
		if !ok {
			t.Fatalf("no entry %q", name)
		}
		if e.Key != key {
			t.Fatalf("%q key = %q, want %q", name, e.Key, key)
		}
		for _, f := range flags {
			if !slices.Contains(e.Flags, f) {
				t.Fatalf("%q flags = %v, want %s", name, e.Flags, f)
			}
		}
	}
	check("f\x1Fadd", "c:@F@add", FlagDefinition)
	check("s\x1Fpoint", "c:@S@point", FlagDefinition)
	check("s\x1Fsize", "c:@T@size")
	check("e\x1Fcolor", "c:@E@color")
	check("a\x1FRED", "", FlagMember)
	check("v\x1Fcounter", "", FlagStatic)
	check("v\x1Ftotal", "c:@total", FlagDefinition)
	check("m\x1FMAX_POINTS", "c:@macro@MAX_POINTS")
	check("f\x1Fhelper", "", FlagStatic)
	if _, ok := byName["v\x1Fsum"]; ok {
		t.Fatalf("local variable indexed")
	}
}

func TestCXXNamespacesAndMethods(t *testing.T) {
	src := strings.Join([]string{
		"namespace geo {",
		"class shape {",
		"public:",
		"\tint area() const { return 0; }",
		"\tint sides;",
		"};",
		"}",
		"",
	}, "\n")
	a := NewAnalyzer(nil)
	a.Buffers().Set("/src/shape.hpp", &src)
	ctx := context.Background()

	maps, err := a.SymbolTree(ctx, "/src/shape.hpp", nil)
	if err != nil {
		t.Fatalf("SymbolTree: %v", err)
	}
	nodes := variant.NewNodes(variant.EncodeResults(maps))
	geo, err := nodes.At(0)
	if err != nil || geo.Name() != "geo" || geo.Kind() != KindNamespace {
		t.Fatalf("geo = %q %q %v", geo.Name(), geo.Kind(), err)
	}
	shape, err := geo.Children().At(0)
	if err != nil || shape.Name() != "shape" || shape.Kind() != KindClass {
		t.Fatalf("shape = %q %q %v", shape.Name(), shape.Kind(), err)
	}
	var members []string
	for i := 0; i < shape.Children().Len(); i++ {
		m, _ := shape.Children().At(i)
		members = append(members, m.Kind()+" "+m.Name())
	}
	if !slices.Equal(members, []string{"method area", "field sides"}) {
		t.Fatalf("members = %v", members)
	}

	key, err := a.IndexKey(ctx, "/src/shape.hpp", nil, 4, 6)
	if err != nil || key != "c:@N@geo@S@shape@F@area" {
		t.Fatalf("area key = %q, %v", key, err)
	}
}

func TestLanguageFor(t *testing.T) {
	cases := []struct {
		path  string
		flags []string
		want  Language
	}{
		{"/a.c", nil, LangC},
		{"/a.h", nil, LangC},
		{"/a.cpp", nil, LangCXX},
		{"/a.HPP", nil, LangCXX},
		{"/a.h", []string{"-x", "c++"}, LangCXX},
		{"/a.h", []string{"-xc++-header"}, LangCXX},
		{"/a.cpp", []string{"-x", "c"}, LangC},
		{"/a.h", []string{"-std=gnu++17"}, LangCXX},
	}
	for _, tc := range cases {
		if got := LanguageFor(tc.path, tc.flags); got != tc.want {
			t.Fatalf("LanguageFor(%s, %v) = %d, want %d", tc.path, tc.flags, got, tc.want)
		}
	}
}

func TestMissingFileIsWorkerError(t *testing.T) {
	a := NewAnalyzer(nil)
	_, err := a.Diagnose(context.Background(), "/definitely/not/here.c", nil)
	var we *rpc.WorkerError
	if !errors.As(err, &we) || we.Code != rpc.CodeRequestFailed {
		t.Fatalf("err = %v", err)
	}
}
