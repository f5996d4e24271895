package codeintel

import (
	"strings"

	"github.com/mwiater/codeintel/internal/rpc"
)

// Location is a 0-based file position.
type Location struct {
	Path   string
	Line   int
	Column int
}

func fromWire(l rpc.Location, path string) Location {
	if l.Path != "" {
		path = l.Path
	}
	return Location{Path: path, Line: max(l.Line-1, 0), Column: max(l.Column-1, 0)}
}

// Range spans two locations.
type Range struct {
	Begin Location
	End   Location
}

// Severity ranks diagnostics.
type Severity int

const (
	SeverityIgnored Severity = iota
	SeverityNote
	SeverityDeprecated
	SeverityWarning
	SeverityError
	SeverityFatal
)

var severityNames = map[Severity]string{
	SeverityIgnored:    "ignored",
	SeverityNote:       "note",
	SeverityDeprecated: "deprecated",
	SeverityWarning:    "warning",
	SeverityError:      "error",
	SeverityFatal:      "fatal",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSeverity maps a wire severity name. Unknown names are ignored.
func ParseSeverity(name string) Severity {
	for s, n := range severityNames {
		if n == name {
			return s
		}
	}
	return SeverityIgnored
}

// Diagnostic is a problem found in a file.
type Diagnostic struct {
	Severity Severity
	Message  string
	Location Location
	Ranges   []Range
}

func diagnosticFromWire(d rpc.Diagnostic, path string) Diagnostic {
	sev := ParseSeverity(d.Severity)
	if sev == SeverityWarning && strings.Contains(d.Message, "deprecated") {
		sev = SeverityDeprecated
	}
	out := Diagnostic{
		Severity: sev,
		Message:  d.Message,
		Location: fromWire(d.Location, path),
	}
	for _, r := range d.Ranges {
		out.Ranges = append(out.Ranges, Range{Begin: fromWire(r.Begin, path), End: fromWire(r.End, path)})
	}
	return out
}

// Symbol is a named declaration.
type Symbol struct {
	Name     string
	Kind     string
	Location Location
}

// SymbolNode is a declaration with the declarations nested in it.
type SymbolNode struct {
	Symbol
	Children []SymbolNode
}

// IndexEntry is a declaration prepared for a code index.
type IndexEntry struct {
	Key      string
	Name     string
	Kind     string
	Flags    []string
	Location Location
}
