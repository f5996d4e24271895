package variant

// Symbol tree map keys written by the worker for clang/getSymbolTree.
const (
	KeyName     = "name"
	KeyLine     = "line"
	KeyColumn   = "column"
	KeyChildren = "children"
)

// Nodes is an array of symbol tree nodes (type aa{sv}).
type Nodes struct {
	arr Array
}

// NewNodes wraps buf without copying it.
func NewNodes(buf []byte) Nodes { return Nodes{arr: Array{b: buf}} }

// Len returns the number of nodes.
func (n Nodes) Len() int { return n.arr.Len() }

// At returns the i-th node.
func (n Nodes) At(i int) (Node, error) {
	b, err := n.arr.Elem(i)
	if err != nil {
		return Node{}, err
	}
	return Node{Dict{b: b}}, nil
}

// Check validates the top-level offset table.
func (n Nodes) Check() error { return n.arr.Check() }

// Node is one declaration in a symbol tree. Line and Column are 1-based.
type Node struct {
	Dict
}

func (n Node) Name() string {
	s, _ := n.String(KeyName)
	return s
}

func (n Node) Kind() string {
	s, _ := n.String(KeyKind)
	return s
}

func (n Node) Line() int32 {
	v, _ := n.Int32(KeyLine)
	return v
}

func (n Node) Column() int32 {
	v, _ := n.Int32(KeyColumn)
	return v
}

// Children returns the nested declarations, or an empty array.
func (n Node) Children() Nodes {
	v, err := n.Lookup(KeyChildren)
	if err != nil {
		return Nodes{}
	}
	arr, err := v.Array()
	if err != nil {
		return Nodes{}
	}
	return Nodes{arr: arr}
}
