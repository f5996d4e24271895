package analysis

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mwiater/codeintel/internal/rpc"
	"github.com/mwiater/codeintel/internal/variant"
)

// Analyzer answers clang/* queries from tree-sitter syntax trees. Every
// query parses the current content of the file, overlay first.
type Analyzer struct {
	buffers *Buffers
}

func NewAnalyzer(b *Buffers) *Analyzer {
	if b == nil {
		b = NewBuffers()
	}
	return &Analyzer{buffers: b}
}

// Buffers returns the unsaved content overlay.
func (a *Analyzer) Buffers() *Buffers { return a.buffers }

func (a *Analyzer) open(ctx context.Context, path string, flags []string) (*Unit, error) {
	src, err := a.buffers.Read(path)
	if err != nil {
		return nil, &rpc.WorkerError{Code: rpc.CodeRequestFailed, Message: err.Error()}
	}
	u, err := parseUnit(ctx, path, src, flags)
	if err != nil {
		if ctx.Err() != nil {
			return nil, rpc.Cancelled(ctx.Err())
		}
		return nil, &rpc.WorkerError{Code: rpc.CodeRequestFailed, Message: err.Error()}
	}
	return u, nil
}

var cKeywords = []string{
	"auto", "break", "case", "char", "const", "continue", "default", "do",
	"double", "else", "enum", "extern", "float", "for", "goto", "if",
	"inline", "int", "long", "register", "restrict", "return", "short",
	"signed", "sizeof", "static", "struct", "switch", "typedef", "union",
	"unsigned", "void", "volatile", "while", "_Bool",
}

var cxxKeywords = []string{
	"bool", "catch", "class", "const_cast", "constexpr", "decltype", "delete",
	"dynamic_cast", "explicit", "false", "friend", "mutable", "namespace",
	"new", "noexcept", "nullptr", "operator", "private", "protected",
	"public", "reinterpret_cast", "static_cast", "template", "this", "throw",
	"true", "try", "typename", "using", "virtual",
}

// deprecatedCalls are libc functions reported when called.
var deprecatedCalls = map[string]string{
	"gets":    "fgets",
	"getwd":   "getcwd",
	"mktemp":  "mkstemp",
	"tmpnam":  "mkstemp",
	"tempnam": "mkstemp",
	"bcopy":   "memmove",
	"bzero":   "memset",
	"bcmp":    "memcmp",
	"usleep":  "nanosleep",
}

var completionKinds = map[string]int32{
	KindFunction:     rpc.CompletionFunction,
	KindMethod:       rpc.CompletionMethod,
	KindVariable:     rpc.CompletionVariable,
	KindParameter:    rpc.CompletionParameter,
	KindField:        rpc.CompletionField,
	KindStruct:       rpc.CompletionType,
	KindUnion:        rpc.CompletionType,
	KindEnum:         rpc.CompletionType,
	KindClass:        rpc.CompletionType,
	KindTypedef:      rpc.CompletionType,
	KindEnumConstant: rpc.CompletionEnumConstant,
	KindMacro:        rpc.CompletionMacro,
	KindNamespace:    rpc.CompletionNamespace,
}

// Complete returns the proposals visible at line:column, nearest locals
// first, then file scope declarations, macros and keywords.
func (a *Analyzer) Complete(ctx context.Context, path string, flags []string, line, column int) ([]variant.Map, error) {
	u, err := a.open(ctx, path, flags)
	if err != nil {
		return nil, err
	}
	defer u.Close()
	decls := collectDecls(u)
	p := point(line, column)

	seen := make(map[string]bool)
	var out []variant.Map
	for _, d := range decls.visible(p) {
		if d.kind == KindField || d.kind == KindMethod {
			continue
		}
		if seen[d.name] || d.name == "" {
			continue
		}
		seen[d.name] = true
		out = append(out, proposal(d))
	}
	for _, name := range u.Defines {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, keywordProposal(name, rpc.CompletionMacro))
	}
	keywords := cKeywords
	if u.Lang == LangCXX {
		keywords = append(append([]string(nil), cKeywords...), cxxKeywords...)
	}
	for _, kw := range keywords {
		if seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, keywordProposal(kw, rpc.CompletionKeyword))
	}
	if err := ctx.Err(); err != nil {
		return nil, rpc.Cancelled(err)
	}
	return out, nil
}

func keywordProposal(name string, kind int32) variant.Map {
	return variant.Map{
		{Key: variant.KeyKeyword, Value: variant.String(name)},
		{Key: variant.KeyKind, Value: variant.Int32(kind)},
		{Key: variant.KeyAvailability, Value: variant.Int32(rpc.Available)},
		{Key: variant.KeyChunks, Value: variant.Maps{chunk(name, rpc.ChunkTypedText)}},
	}
}

func chunk(text string, kind int32) variant.Map {
	return variant.Map{
		{Key: variant.KeyText, Value: variant.String(text)},
		{Key: variant.KeyKind, Value: variant.Int32(kind)},
	}
}

func proposal(d *decl) variant.Map {
	availability := rpc.Available
	if _, ok := deprecatedCalls[d.name]; ok && d.kind == KindFunction {
		availability = rpc.Deprecated
	}
	chunks := variant.Maps{chunk(d.name, rpc.ChunkTypedText)}
	if d.kind == KindFunction || d.kind == KindMethod {
		chunks = append(chunks, chunk("(", rpc.ChunkLeftParen))
		for i, param := range d.params {
			if i > 0 {
				chunks = append(chunks, chunk(", ", rpc.ChunkText))
			}
			chunks = append(chunks, chunk(param, rpc.ChunkPlaceholder))
		}
		chunks = append(chunks, chunk(")", rpc.ChunkRightParen))
	}
	m := variant.Map{
		{Key: variant.KeyKeyword, Value: variant.String(d.name)},
		{Key: variant.KeyKind, Value: variant.Int32(completionKinds[d.kind])},
		{Key: variant.KeyAvailability, Value: variant.Int32(availability)},
		{Key: variant.KeyChunks, Value: chunks},
	}
	if d.detail != "" {
		m = append(m, variant.Entry{Key: variant.KeyDetail, Value: variant.String(d.detail)})
	}
	return m
}

func wireLocation(n *sitter.Node) rpc.Location {
	p := n.StartPoint()
	return rpc.Location{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func wireRange(n *sitter.Node) rpc.Range {
	end := n.EndPoint()
	return rpc.Range{Begin: wireLocation(n), End: rpc.Location{Line: int(end.Row) + 1, Column: int(end.Column) + 1}}
}

const maxSnippet = 32

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxSnippet {
		s = s[:maxSnippet] + "..."
	}
	return s
}

// Diagnose reports syntax errors, missing tokens and calls to deprecated
// functions, ordered by position.
func (a *Analyzer) Diagnose(ctx context.Context, path string, flags []string) ([]rpc.Diagnostic, error) {
	u, err := a.open(ctx, path, flags)
	if err != nil {
		return nil, err
	}
	defer u.Close()

	var out []rpc.Diagnostic
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch {
		case n.IsMissing():
			loc := wireLocation(n)
			loc.Path = path
			out = append(out, rpc.Diagnostic{
				Severity: "error",
				Message:  "expected '" + n.Type() + "'",
				Location: loc,
			})
			return
		case n.IsError():
			loc := wireLocation(n)
			loc.Path = path
			msg := "syntax error"
			if text := snippet(u.Text(n)); text != "" {
				msg = "unexpected '" + text + "'"
			}
			out = append(out, rpc.Diagnostic{
				Severity: "error",
				Message:  msg,
				Location: loc,
				Ranges:   []rpc.Range{wireRange(n)},
			})
			return
		case n.Type() == "call_expression":
			fn := n.ChildByFieldName("function")
			if fn != nil && fn.Type() == "identifier" {
				if repl, ok := deprecatedCalls[u.Text(fn)]; ok {
					loc := wireLocation(fn)
					loc.Path = path
					out = append(out, rpc.Diagnostic{
						Severity: "warning",
						Message:  "'" + u.Text(fn) + "' is deprecated: use '" + repl + "' instead",
						Location: loc,
						Ranges:   []rpc.Range{wireRange(fn)},
					})
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(u.Root())
	if err := ctx.Err(); err != nil {
		return nil, rpc.Cancelled(err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		x, y := out[i].Location, out[j].Location
		return x.Line < y.Line || x.Line == y.Line && x.Column < y.Column
	})
	return out, nil
}

// treeKinds are the declarations reported in a symbol tree.
var treeKinds = map[string]bool{
	KindFunction: true, KindMethod: true, KindStruct: true, KindUnion: true,
	KindEnum: true, KindEnumConstant: true, KindField: true, KindTypedef: true,
	KindVariable: true, KindNamespace: true, KindClass: true,
}

// SymbolTree returns the declarations of path nested by scope, encoded as
// an aa{sv} array.
func (a *Analyzer) SymbolTree(ctx context.Context, path string, flags []string) ([]variant.Map, error) {
	u, err := a.open(ctx, path, flags)
	if err != nil {
		return nil, err
	}
	defer u.Close()
	decls := collectDecls(u)
	return treeMaps(decls, decls.top), nil
}

func treeMaps(s *declSet, ds []*decl) []variant.Map {
	var out []variant.Map
	for _, d := range ds {
		if d.local || !treeKinds[d.kind] || s.hasDefinition(d) {
			continue
		}
		loc := wireLocation(d.ident)
		m := variant.Map{
			{Key: variant.KeyName, Value: variant.String(d.name)},
			{Key: variant.KeyKind, Value: variant.String(d.kind)},
			{Key: variant.KeyLine, Value: variant.Int32(int32(loc.Line))},
			{Key: variant.KeyColumn, Value: variant.Int32(int32(loc.Column))},
		}
		if children := treeMaps(s, d.children); len(children) > 0 {
			m = append(m, variant.Entry{Key: variant.KeyChildren, Value: variant.Maps(children)})
		}
		out = append(out, m)
	}
	return out
}

func (a *Analyzer) symbol(d *decl, path string) *rpc.Symbol {
	if d == nil {
		return nil
	}
	loc := wireLocation(d.ident)
	loc.Path = path
	return &rpc.Symbol{Name: d.name, Kind: d.kind, Location: loc}
}

// NearestScope returns the innermost function, type or namespace
// enclosing line:column, or nil.
func (a *Analyzer) NearestScope(ctx context.Context, path string, flags []string, line, column int) (*rpc.Symbol, error) {
	u, err := a.open(ctx, path, flags)
	if err != nil {
		return nil, err
	}
	defer u.Close()
	scopes := collectDecls(u).enclosing(point(line, column))
	if len(scopes) == 0 {
		return nil, nil
	}
	return a.symbol(scopes[0], path), nil
}

// Locate returns the declaration of the identifier at line:column, or nil.
func (a *Analyzer) Locate(ctx context.Context, path string, flags []string, line, column int) (*rpc.Symbol, error) {
	u, err := a.open(ctx, path, flags)
	if err != nil {
		return nil, err
	}
	defer u.Close()
	d := referenced(u, collectDecls(u), point(line, column))
	return a.symbol(d, path), nil
}

func referenced(u *Unit, s *declSet, p sitter.Point) *decl {
	ident := u.identAt(p)
	if ident == nil {
		return nil
	}
	for _, d := range s.all {
		if sameNode(d.ident, ident) {
			return d
		}
	}
	return s.lookup(u.Text(ident), ident.StartPoint())
}

// IndexKey returns the cross-file key of the declaration referenced at
// line:column. Declarations without external linkage have none.
func (a *Analyzer) IndexKey(ctx context.Context, path string, flags []string, line, column int) (string, error) {
	u, err := a.open(ctx, path, flags)
	if err != nil {
		return "", err
	}
	defer u.Close()
	d := referenced(u, collectDecls(u), point(line, column))
	if d == nil || d.static || d.member() {
		return "", &rpc.WorkerError{Code: rpc.CodeRequestFailed, Message: "failed to locate referenced cursor"}
	}
	return usr(d), nil
}

// usr builds a clang style unified symbol resolution string.
func usr(d *decl) string {
	var b strings.Builder
	b.WriteString("c:")
	var chain []*decl
	for p := d.parent; p != nil; p = p.parent {
		chain = append(chain, p)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		b.WriteString(usrPart(chain[i]))
	}
	b.WriteString(usrPart(d))
	return b.String()
}

func usrPart(d *decl) string {
	switch d.kind {
	case KindFunction, KindMethod:
		return "@F@" + d.name
	case KindStruct, KindClass:
		return "@S@" + d.name
	case KindUnion:
		return "@U@" + d.name
	case KindEnum:
		return "@E@" + d.name
	case KindTypedef:
		return "@T@" + d.name
	case KindNamespace:
		return "@N@" + d.name
	case KindField:
		return "@FI@" + d.name
	case KindMacro:
		return "@macro@" + d.name
	default:
		return "@" + d.name
	}
}

func indexPrefix(kind string) string {
	switch kind {
	case KindFunction:
		return "f\x1F"
	case KindStruct:
		return "s\x1F"
	case KindVariable:
		return "v\x1F"
	case KindUnion:
		return "u\x1F"
	case KindEnum:
		return "e\x1F"
	case KindClass:
		return "c\x1F"
	case KindEnumConstant:
		return "a\x1F"
	case KindMacro:
		return "m\x1F"
	default:
		return "x\x1F"
	}
}

// Index flags.
const (
	FlagDefinition = "definition"
	FlagStatic     = "static"
	FlagMember     = "member"
)

// IndexFile returns an entry for every non-local declaration of path.
func (a *Analyzer) IndexFile(ctx context.Context, path string, flags []string) ([]rpc.IndexEntry, error) {
	u, err := a.open(ctx, path, flags)
	if err != nil {
		return nil, err
	}
	defer u.Close()
	var out []rpc.IndexEntry
	for _, d := range collectDecls(u).all {
		if d.local {
			continue
		}
		e := rpc.IndexEntry{
			Name:     indexPrefix(d.resolved) + d.name,
			Kind:     d.kind,
			Location: wireLocation(d.ident),
		}
		e.Location.Path = path
		if d.definition {
			e.Flags = append(e.Flags, FlagDefinition)
		}
		switch {
		case d.static:
			e.Flags = append(e.Flags, FlagStatic)
		case d.member():
			e.Flags = append(e.Flags, FlagMember)
		default:
			e.Key = usr(d)
		}
		out = append(out, e)
	}
	if err := ctx.Err(); err != nil {
		return nil, rpc.Cancelled(err)
	}
	return out, nil
}
