package codeintel

import (
	"context"
	"path/filepath"
	"strings"
)

// FlagProvider supplies compiler flags for a file. It is consulted before
// every content-sensitive query.
type FlagProvider interface {
	Flags(ctx context.Context, path string) ([]string, error)
}

// StaticFlags returns the same flags for every file, adding -x c++ for C++
// sources and an -I for the file's own directory.
type StaticFlags []string

func (f StaticFlags) Flags(ctx context.Context, path string) ([]string, error) {
	out := make([]string, 0, len(f)+3)
	out = append(out, f...)
	if isCXX(path) && !hasLanguage(f) {
		out = append(out, "-x", "c++")
	}
	return append(out, "-I"+filepath.Dir(path)), nil
}

var cxxExtensions = map[string]bool{
	".cc": true, ".cpp": true, ".cxx": true, ".c++": true,
	".hh": true, ".hpp": true, ".hxx": true, ".mm": true,
}

func isCXX(path string) bool {
	return cxxExtensions[strings.ToLower(filepath.Ext(path))]
}

func hasLanguage(flags []string) bool {
	for _, f := range flags {
		if strings.HasPrefix(f, "-x") || strings.HasPrefix(f, "-std=c++") {
			return true
		}
	}
	return false
}
