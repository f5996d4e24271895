package proposals

import (
	"cmp"

	"github.com/mwiater/codeintel/internal/variant"
)

// entry is one visible candidate: a span of the raw result set plus its
// folded keyword, priority and position in the original reply.
type entry struct {
	start, end int
	key        string
	priority   int
	rank       int
}

func less(a, b entry) int {
	if c := cmp.Compare(a.priority, b.priority); c != 0 {
		return c
	}
	return cmp.Compare(a.rank, b.rank)
}

// Candidate is a visible proposal. Proposal borrows the cache's buffer; use
// Proposal.Duplicate to keep it past the next requery or Clear.
type Candidate struct {
	Proposal variant.Proposal
	Priority int
	Rank     int
}

// Snapshot is an immutable view of the candidate list at one point in time.
type Snapshot struct {
	raw     variant.Results
	entries []entry
}

// Len returns the number of visible candidates.
func (s Snapshot) Len() int { return len(s.entries) }

// At returns the i-th visible candidate.
func (s Snapshot) At(i int) (Candidate, error) {
	if i < 0 || i >= len(s.entries) {
		return Candidate{}, variant.ErrOutOfRange
	}
	e := s.entries[i]
	p, err := s.raw.Slice(e.start, e.end)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{Proposal: p, Priority: e.priority, Rank: e.rank}, nil
}

// Keywords lists the keywords of the visible candidates in order.
func (s Snapshot) Keywords() []string {
	out := make([]string, 0, len(s.entries))
	for i := range s.entries {
		c, err := s.At(i)
		if err != nil {
			continue
		}
		out = append(out, c.Proposal.Keyword())
	}
	return out
}

// Change is the single notification emitted per refilter: the whole range
// [0, Removed) was replaced by [0, Added). Positions of individual
// candidates are never stable across changes.
type Change struct {
	Removed  int
	Added    int
	Snapshot Snapshot
}
