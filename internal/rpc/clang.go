package rpc

// Worker methods.
const (
	MethodComplete         = "clang/complete"
	MethodDiagnose         = "clang/diagnose"
	MethodGetSymbolTree    = "clang/getSymbolTree"
	MethodSetBuffer        = "clang/setBuffer"
	MethodGetIndexKey      = "clang/getIndexKey"
	MethodFindNearestScope = "clang/findNearestScope"
	MethodLocateSymbol     = "clang/locateSymbol"
	MethodIndexFile        = "clang/indexFile"
)

// Positions on the wire are 1-based.

// FileParams addresses a whole file.
type FileParams struct {
	Path  string   `json:"path"`
	Flags []string `json:"flags"`
}

// PositionParams addresses a position within a file.
type PositionParams struct {
	Path   string   `json:"path"`
	Flags  []string `json:"flags"`
	Line   int      `json:"line"`
	Column int      `json:"column"`
}

// SetBufferParams replaces the worker's view of a file. A nil Content makes
// the worker read the file from disk again.
type SetBufferParams struct {
	Path    string  `json:"path"`
	Content *string `json:"content,omitempty"`
}

// CountResult accompanies replies whose payload travels as a binary
// attachment.
type CountResult struct {
	Count int `json:"count"`
}

// Location is a 1-based file position.
type Location struct {
	Path   string `json:"path,omitempty"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Range spans two locations.
type Range struct {
	Begin Location `json:"begin"`
	End   Location `json:"end"`
}

// Diagnostic is one problem reported by clang/diagnose.
type Diagnostic struct {
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Location Location `json:"location"`
	Ranges   []Range  `json:"ranges,omitempty"`
}

// DiagnoseResult is the reply of clang/diagnose.
type DiagnoseResult struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Symbol is a named declaration.
type Symbol struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Location Location `json:"location"`
}

// SymbolResult is the reply of clang/findNearestScope and
// clang/locateSymbol. Symbol is nil when nothing encloses or matches the
// position.
type SymbolResult struct {
	Symbol *Symbol `json:"symbol"`
}

// IndexKeyResult is the reply of clang/getIndexKey.
type IndexKeyResult struct {
	Key string `json:"key"`
}

// IndexEntry is one declaration reported by clang/indexFile.
type IndexEntry struct {
	Key      string   `json:"key"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Flags    []string `json:"flags,omitempty"`
	Location Location `json:"location"`
}

// IndexFileResult is the reply of clang/indexFile.
type IndexFileResult struct {
	Entries []IndexEntry `json:"entries"`
}

// Completion kinds carried under a proposal's kind key.
const (
	CompletionKeyword int32 = iota
	CompletionFunction
	CompletionMethod
	CompletionVariable
	CompletionParameter
	CompletionField
	CompletionType
	CompletionEnumConstant
	CompletionMacro
	CompletionNamespace
)

var completionKindNames = []string{
	"keyword", "function", "method", "variable", "parameter",
	"field", "type", "enum constant", "macro", "namespace",
}

// CompletionKindName names a completion kind for display.
func CompletionKindName(kind int32) string {
	if kind < 0 || int(kind) >= len(completionKindNames) {
		return "unknown"
	}
	return completionKindNames[kind]
}

// Availability of a proposal.
const (
	Available int32 = iota
	Deprecated
)

// Chunk kinds of a proposal's chunks.
const (
	ChunkTypedText int32 = iota
	ChunkText
	ChunkPlaceholder
	ChunkLeftParen
	ChunkRightParen
	ChunkResultType
)
