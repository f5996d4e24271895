package analysis

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Declaration kinds reported to the client.
const (
	KindFunction     = "function"
	KindMethod       = "method"
	KindStruct       = "struct"
	KindUnion        = "union"
	KindEnum         = "enum"
	KindEnumConstant = "enum constant"
	KindField        = "field"
	KindTypedef      = "typedef"
	KindVariable     = "variable"
	KindNamespace    = "namespace"
	KindClass        = "class"
	KindMacro        = "macro"
	KindParameter    = "parameter"
)

// decl is a declaration found in a unit.
type decl struct {
	name string
	kind string
	// resolved is the kind a typedef stands for, or kind itself.
	resolved   string
	node       *sitter.Node
	ident      *sitter.Node
	static     bool
	definition bool
	// local declarations live inside a function body or parameter list.
	local    bool
	detail   string
	params   []string
	parent   *decl
	children []*decl
}

func (d *decl) scope() bool {
	switch d.kind {
	case KindFunction, KindMethod, KindStruct, KindUnion, KindEnum, KindClass, KindNamespace:
		return true
	case KindTypedef:
		return len(d.children) > 0
	}
	return false
}

func (d *decl) member() bool {
	switch d.kind {
	case KindField, KindEnumConstant, KindParameter:
		return true
	}
	return d.local
}

// declSet is every declaration of a unit, top-level ones in source order.
type declSet struct {
	u   *Unit
	top []*decl
	all []*decl
}

func collectDecls(u *Unit) *declSet {
	s := &declSet{u: u}
	s.visitScope(u.Root(), nil)
	return s
}

func (s *declSet) add(d *decl, parent *decl) {
	d.parent = parent
	if d.resolved == "" {
		d.resolved = d.kind
	}
	if parent == nil {
		s.top = append(s.top, d)
	} else {
		parent.children = append(parent.children, d)
	}
	s.all = append(s.all, d)
}

// visitScope walks nodes that can hold top-level declarations.
func (s *declSet) visitScope(n *sitter.Node, parent *decl) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		s.visitDecl(n.NamedChild(i), parent)
	}
}

func (s *declSet) visitDecl(n *sitter.Node, parent *decl) {
	switch n.Type() {
	case "function_definition":
		s.function(n, parent)
	case "declaration", "field_declaration":
		s.declaration(n, parent)
	case "type_definition":
		s.typedef(n, parent)
	case "struct_specifier", "union_specifier", "enum_specifier", "class_specifier":
		s.specifier(n, parent)
	case "namespace_definition":
		d := &decl{
			name:       s.u.Text(n.ChildByFieldName("name")),
			kind:       KindNamespace,
			node:       n,
			ident:      n.ChildByFieldName("name"),
			definition: true,
		}
		if d.ident == nil {
			d.name = "(anonymous)"
			d.ident = n
		}
		s.add(d, parent)
		if body := n.ChildByFieldName("body"); body != nil {
			s.visitScope(body, d)
		}
	case "preproc_def", "preproc_function_def":
		name := n.ChildByFieldName("name")
		if name == nil {
			return
		}
		s.add(&decl{
			name:       s.u.Text(name),
			kind:       KindMacro,
			node:       n,
			ident:      name,
			definition: true,
			detail:     strings.TrimSpace(s.u.Text(n.ChildByFieldName("value"))),
		}, parent)
	case "translation_unit", "declaration_list", "field_declaration_list",
		"preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif",
		"linkage_specification", "template_declaration":
		s.visitScope(n, parent)
	}
}

// declarator resolves a declarator chain to its name node and, for
// functions, the function_declarator.
func declarator(n *sitter.Node) (name, fn *sitter.Node) {
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier", "type_identifier", "qualified_identifier",
			"destructor_name", "operator_name", "namespace_identifier":
			return n, fn
		case "function_declarator":
			if fn == nil {
				fn = n
			}
			n = n.ChildByFieldName("declarator")
		default:
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(int(n.NamedChildCount()) - 1)
			}
			n = next
		}
	}
	return nil, fn
}

var declaratorTypes = map[string]bool{
	"identifier": true, "field_identifier": true, "init_declarator": true,
	"pointer_declarator": true, "function_declarator": true, "array_declarator": true,
	"parenthesized_declarator": true, "reference_declarator": true,
	"qualified_identifier": true, "attributed_declarator": true,
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// simpleName strips the scope of a qualified name.
func (s *declSet) simpleName(n *sitter.Node) string {
	for n != nil && n.Type() == "qualified_identifier" {
		next := n.ChildByFieldName("name")
		if next == nil {
			break
		}
		n = next
	}
	return s.u.Text(n)
}

func (s *declSet) isStatic(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "storage_class_specifier" && s.u.Text(c) == "static" {
			return true
		}
	}
	return false
}

func (s *declSet) isExtern(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "storage_class_specifier" && s.u.Text(c) == "extern" {
			return true
		}
	}
	return false
}

func (s *declSet) parameters(fn *sitter.Node) []*sitter.Node {
	list := fn.ChildByFieldName("parameters")
	if list == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		switch p.Type() {
		case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
			out = append(out, p)
		}
	}
	return out
}

func (s *declSet) paramTexts(fn *sitter.Node) []string {
	var out []string
	for _, p := range s.parameters(fn) {
		text := strings.Join(strings.Fields(s.u.Text(p)), " ")
		if text == "void" {
			continue
		}
		out = append(out, text)
	}
	return out
}

func (s *declSet) signature(typ, fn *sitter.Node) string {
	return strings.Join(strings.Fields(s.u.Text(typ)+" "+s.u.Text(fn)), " ")
}

func (s *declSet) function(n *sitter.Node, parent *decl) {
	name, fn := declarator(n.ChildByFieldName("declarator"))
	if name == nil || fn == nil {
		return
	}
	kind := KindFunction
	if name.Type() == "qualified_identifier" || name.Type() == "field_identifier" || inClass(parent) {
		kind = KindMethod
	}
	d := &decl{
		name:       s.simpleName(name),
		kind:       kind,
		node:       n,
		ident:      name,
		static:     s.isStatic(n),
		definition: true,
		detail:     s.signature(n.ChildByFieldName("type"), fn),
		params:     s.paramTexts(fn),
	}
	s.add(d, parent)
	s.visitType(n.ChildByFieldName("type"), parent)

	for _, p := range s.parameters(fn) {
		pname, _ := declarator(p.ChildByFieldName("declarator"))
		if pname == nil {
			continue
		}
		s.add(&decl{
			name:       s.u.Text(pname),
			kind:       KindParameter,
			node:       p,
			ident:      pname,
			definition: true,
			local:      true,
			detail:     strings.TrimSpace(s.u.Text(p.ChildByFieldName("type"))),
		}, d)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		s.locals(body, d)
	}
}

func inClass(d *decl) bool {
	return d != nil && (d.kind == KindClass || d.kind == KindStruct || d.kind == KindUnion)
}

// locals records every declaration in a function body.
func (s *declSet) locals(n *sitter.Node, fn *decl) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "declaration":
			typ := c.ChildByFieldName("type")
			for j := 0; j < int(c.NamedChildCount()); j++ {
				dc := c.NamedChild(j)
				if !declaratorTypes[dc.Type()] {
					continue
				}
				name, _ := declarator(dc)
				if name == nil {
					continue
				}
				s.add(&decl{
					name:       s.u.Text(name),
					kind:       KindVariable,
					node:       c,
					ident:      name,
					definition: true,
					local:      true,
					detail:     strings.TrimSpace(s.u.Text(typ)),
				}, fn)
			}
			s.locals(c, fn)
		case "function_definition", "struct_specifier", "union_specifier", "enum_specifier", "class_specifier", "lambda_expression":
		default:
			s.locals(c, fn)
		}
	}
}

func (s *declSet) declaration(n *sitter.Node, parent *decl) {
	typ := n.ChildByFieldName("type")
	s.visitType(typ, parent)
	static := s.isStatic(n)
	extern := s.isExtern(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		dc := n.NamedChild(i)
		if sameNode(dc, typ) || !declaratorTypes[dc.Type()] {
			continue
		}
		name, fn := declarator(dc)
		if name == nil {
			continue
		}
		d := &decl{
			name:   s.simpleName(name),
			node:   n,
			ident:  name,
			static: static,
			detail: strings.TrimSpace(s.u.Text(typ)),
		}
		switch {
		case fn != nil && inClass(parent) && s.u.Lang == LangCXX:
			d.kind = KindMethod
			d.detail = s.signature(typ, fn)
			d.params = s.paramTexts(fn)
		case inClass(parent) || n.Type() == "field_declaration":
			d.kind = KindField
			d.definition = true
		case fn != nil:
			d.kind = KindFunction
			d.detail = s.signature(typ, fn)
			d.params = s.paramTexts(fn)
		default:
			d.kind = KindVariable
			d.definition = !extern
		}
		s.add(d, parent)
	}
}

// visitType records a struct, union, enum or class declared inline in a
// type position.
func (s *declSet) visitType(typ *sitter.Node, parent *decl) {
	if typ == nil {
		return
	}
	switch typ.Type() {
	case "struct_specifier", "union_specifier", "enum_specifier", "class_specifier":
		if typ.ChildByFieldName("body") != nil && typ.ChildByFieldName("name") != nil {
			s.specifier(typ, parent)
		}
	}
}

var specifierKinds = map[string]string{
	"struct_specifier": KindStruct,
	"union_specifier":  KindUnion,
	"enum_specifier":   KindEnum,
	"class_specifier":  KindClass,
}

func (s *declSet) specifier(n *sitter.Node, parent *decl) *decl {
	body := n.ChildByFieldName("body")
	name := n.ChildByFieldName("name")
	if body == nil || name == nil {
		return nil
	}
	d := &decl{
		name:       s.simpleName(name),
		kind:       specifierKinds[n.Type()],
		node:       n,
		ident:      name,
		definition: true,
	}
	s.add(d, parent)
	s.members(body, d)
	return d
}

// members fills d with the fields, methods or enumerators of body.
func (s *declSet) members(body *sitter.Node, d *decl) {
	if body.Type() == "enumerator_list" {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			e := body.NamedChild(i)
			if e.Type() != "enumerator" {
				continue
			}
			name := e.ChildByFieldName("name")
			if name == nil {
				continue
			}
			s.add(&decl{
				name:       s.u.Text(name),
				kind:       KindEnumConstant,
				node:       e,
				ident:      name,
				definition: true,
				detail:     strings.TrimSpace(s.u.Text(e.ChildByFieldName("value"))),
			}, d)
		}
		return
	}
	s.visitScope(body, d)
}

func (s *declSet) typedef(n *sitter.Node, parent *decl) {
	typ := n.ChildByFieldName("type")
	var anon *sitter.Node
	resolved := KindTypedef
	if typ != nil {
		if k, ok := specifierKinds[typ.Type()]; ok {
			resolved = k
			if typ.ChildByFieldName("body") != nil {
				if typ.ChildByFieldName("name") != nil {
					s.specifier(typ, parent)
				} else {
					anon = typ
				}
			}
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		dc := n.NamedChild(i)
		if sameNode(dc, typ) {
			continue
		}
		name, _ := declarator(dc)
		if name == nil || name.Type() != "type_identifier" {
			continue
		}
		d := &decl{
			name:       s.u.Text(name),
			kind:       KindTypedef,
			resolved:   resolved,
			node:       n,
			ident:      name,
			definition: true,
			detail:     strings.Join(strings.Fields(s.u.Text(typ)), " "),
		}
		if anon != nil {
			d.detail = strings.Fields(s.u.Text(typ))[0]
		}
		s.add(d, parent)
		if anon != nil {
			s.members(anon.ChildByFieldName("body"), d)
			anon = nil
		}
	}
}

// visible returns the declarations a completion at p can see: the locals
// of the enclosing functions declared before p, then every non-local
// declaration.
func (s *declSet) visible(p sitter.Point) []*decl {
	var out []*decl
	for _, fn := range s.enclosing(p) {
		if fn.kind != KindFunction && fn.kind != KindMethod {
			continue
		}
		for i := len(fn.children) - 1; i >= 0; i-- {
			c := fn.children[i]
			if c.local && before(c.ident.EndPoint(), p) {
				out = append(out, c)
			}
		}
	}
	for _, d := range s.all {
		if !d.local {
			out = append(out, d)
		}
	}
	return out
}

// enclosing returns the scopes containing p, innermost first.
func (s *declSet) enclosing(p sitter.Point) []*decl {
	var out []*decl
	for _, d := range s.all {
		if d.scope() && contains(d.node, p) {
			out = append(out, d)
		}
	}
	// Nested scopes are appended after their parents.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// lookup resolves name as seen from p.
func (s *declSet) lookup(name string, p sitter.Point) *decl {
	for _, d := range s.visible(p) {
		if d.name == name {
			return d
		}
	}
	return nil
}

// hasDefinition reports whether d is a prototype whose definition is in
// the same scope.
func (s *declSet) hasDefinition(d *decl) bool {
	for _, o := range s.all {
		if o != d && !d.definition && o.name == d.name && o.kind == d.kind && o.definition && o.parent == d.parent {
			return true
		}
	}
	return false
}

// identAt returns the identifier under or just before p.
func (u *Unit) identAt(p sitter.Point) *sitter.Node {
	root := u.Root()
	try := []sitter.Point{p}
	if p.Column > 0 {
		try = append(try, sitter.Point{Row: p.Row, Column: p.Column - 1})
	}
	for _, q := range try {
		n := root.NamedDescendantForPointRange(q, q)
		if n == nil {
			continue
		}
		switch n.Type() {
		case "identifier", "field_identifier", "type_identifier", "namespace_identifier":
			return n
		}
	}
	return nil
}
