package proposals

import (
	"math"
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"
)

// exactPriority ranks a keyword equal to the filter ahead of every scored
// match.
const exactPriority = math.MinInt32

// Fold normalizes text for matching.
func Fold(s string) string { return strings.ToLower(s) }

// keySource exposes the folded keys of a candidate list to the matcher.
type keySource []entry

func (s keySource) String(i int) string { return s[i].key }
func (s keySource) Len() int            { return len(s) }

// priorityOf turns a match score into a priority. A key equal to the
// needle always sorts first.
func priorityOf(key, needle string, score int) int {
	if key == needle {
		return exactPriority
	}
	return -score
}

// matchEntries keeps the entries whose key contains the folded needle as a
// subsequence, sets their priority and sorts them. The priority depends only
// on the key and the needle, so narrowing an existing list and matching the
// full result set agree.
func matchEntries(entries []entry, needle string) []entry {
	matches := fuzzy.FindFromNoSort(needle, keySource(entries))
	out := make([]entry, 0, len(matches))
	for _, m := range matches {
		e := entries[m.Index]
		e.priority = priorityOf(e.key, needle, m.Score)
		out = append(out, e)
	}
	slices.SortFunc(out, less)
	return out
}

// Match reports whether the folded needle is a subsequence of the folded
// key and returns its priority. Lower priorities rank first: matches at the
// start of the key, after a separator or on adjacent characters score
// higher. An empty key never matches.
func Match(key, needle string) (priority int, ok bool) {
	if key == "" {
		return 0, false
	}
	if needle == "" {
		return 0, true
	}
	matches := fuzzy.FindFromNoSort(needle, keySource{{key: key}})
	if len(matches) == 0 {
		return 0, false
	}
	return priorityOf(key, needle, matches[0].Score), true
}
