package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// maxFileSize bounds the sources the analyzer accepts.
const maxFileSize = 10 * 1024 * 1024

// Language is the dialect a file is parsed as.
type Language int

const (
	LangC Language = iota
	LangCXX
)

var cxxExtensions = map[string]bool{
	".cc": true, ".cpp": true, ".cxx": true, ".c++": true,
	".hh": true, ".hpp": true, ".hxx": true, ".mm": true,
}

// LanguageFor picks the dialect from an explicit -x or -std flag, falling
// back to the file extension.
func LanguageFor(path string, flags []string) Language {
	for i, f := range flags {
		lang := ""
		switch {
		case f == "-x" && i+1 < len(flags):
			lang = flags[i+1]
		case strings.HasPrefix(f, "-x"):
			lang = f[2:]
		case strings.HasPrefix(f, "-std="):
			if strings.Contains(f, "++") {
				return LangCXX
			}
			continue
		default:
			continue
		}
		if strings.HasPrefix(lang, "c++") || lang == "objective-c++" {
			return LangCXX
		}
		return LangC
	}
	if cxxExtensions[strings.ToLower(filepath.Ext(path))] {
		return LangCXX
	}
	return LangC
}

// Unit is one parsed file.
type Unit struct {
	Path string
	Src  []byte
	Lang Language
	Tree *sitter.Tree
	// Defines holds macros named by -D flags.
	Defines []string
}

// Root returns the translation unit node.
func (u *Unit) Root() *sitter.Node { return u.Tree.RootNode() }

// Text returns the source covered by n.
func (u *Unit) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(u.Src)
}

// Close releases the syntax tree.
func (u *Unit) Close() { u.Tree.Close() }

func parseUnit(ctx context.Context, path string, src []byte, flags []string) (*Unit, error) {
	if len(src) > maxFileSize {
		return nil, fmt.Errorf("%s: %d bytes exceeds limit %d", path, len(src), maxFileSize)
	}
	lang := LanguageFor(path, flags)
	parser := sitter.NewParser()
	defer parser.Close()
	if lang == LangCXX {
		parser.SetLanguage(cpp.GetLanguage())
	} else {
		parser.SetLanguage(c.GetLanguage())
	}
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Unit{Path: path, Src: src, Lang: lang, Tree: tree, Defines: defines(flags)}, nil
}

func defines(flags []string) []string {
	var out []string
	for i, f := range flags {
		var def string
		switch {
		case f == "-D" && i+1 < len(flags):
			def = flags[i+1]
		case strings.HasPrefix(f, "-D"):
			def = f[2:]
		default:
			continue
		}
		if name, _, _ := strings.Cut(def, "="); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// point converts a 1-based wire position.
func point(line, column int) sitter.Point {
	return sitter.Point{Row: uint32(max(line-1, 0)), Column: uint32(max(column-1, 0))}
}

func before(a, b sitter.Point) bool {
	return a.Row < b.Row || (a.Row == b.Row && a.Column < b.Column)
}

func contains(n *sitter.Node, p sitter.Point) bool {
	return !before(p, n.StartPoint()) && !before(n.EndPoint(), p)
}
