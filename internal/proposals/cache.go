// Package proposals turns one completion reply into an ordered candidate
// list that is refiltered locally as the user types.
//
// A Cache queries the worker only when the anchor (file, line, column)
// changes. Keystrokes against the same anchor either join the query already
// in flight or refilter the cached result set without a round trip.
package proposals

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/mwiater/codeintel/internal/logging"
	"github.com/mwiater/codeintel/internal/rpc"
	"github.com/mwiater/codeintel/internal/telemetry"
	"github.com/mwiater/codeintel/internal/variant"
)

// Anchor is the 0-based position a query was issued at.
type Anchor struct {
	Path   string
	Line   int
	Column int
}

// Querier fetches the raw result set for an anchor. Implementations push
// unsaved buffers before querying. The cache owns the returned buffer.
type Querier interface {
	Query(ctx context.Context, anchor Anchor) (variant.Results, error)
}

// Pending resolves when the Populate call that returned it has been applied.
type Pending struct {
	done     chan struct{}
	err      error
	resolved bool
	stop     func() bool
}

func newPending() *Pending { return &Pending{done: make(chan struct{})} }

// Done is closed once the candidate list reflects the request.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the request is applied or fails.
func (p *Pending) Wait() error {
	<-p.done
	return p.err
}

// resolve must be called with the cache lock held.
func (p *Pending) resolve(err error) {
	if p.resolved {
		return
	}
	p.resolved = true
	p.err = err
	if p.stop != nil {
		p.stop()
	}
	close(p.done)
}

// Cache is the refilter engine behind a completion list.
type Cache struct {
	q   Querier
	tel *telemetry.Recorder

	mu        sync.Mutex
	raw       variant.Results
	hasRaw    bool
	entries   []entry
	anchor    Anchor
	hasAnchor bool
	filter    string

	generation  uint64
	inflight    bool
	cancelQuery context.CancelFunc
	waiters     []*Pending

	observers map[int]func(Change)
	nextObs   int
	outbox    []Change

	emitMu sync.Mutex
}

// NewCache returns an empty cache querying through q. tel may be nil.
func NewCache(q Querier, tel *telemetry.Recorder) *Cache {
	return &Cache{q: q, tel: tel, observers: make(map[int]func(Change))}
}

// Subscribe registers fn to receive every change. Changes are delivered in
// order from whichever goroutine caused them; fn must not block and must not
// call Populate or Clear. The returned function unsubscribes.
func (c *Cache) Subscribe(fn func(Change)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Populate brings the candidate list in line with anchor and filter.
//
// A new anchor starts a query, superseding any query in flight. The same
// anchor with a query in flight updates the filter that will be applied
// when the reply lands. Otherwise the cached results are refiltered and the
// returned Pending is already resolved. ctx only bounds the caller's wait.
func (c *Cache) Populate(ctx context.Context, anchor Anchor, filter string) *Pending {
	p := newPending()

	c.mu.Lock()
	switch {
	case !c.hasAnchor || anchor != c.anchor:
		c.requeryLocked(anchor, filter, p)
	case c.inflight:
		c.filter = filter
		c.waiters = append(c.waiters, p)
	default:
		if filter != c.filter {
			c.refilterLocked(filter)
		}
		p.resolve(nil)
	}
	if !p.resolved && ctx.Done() != nil {
		p.stop = context.AfterFunc(ctx, func() { c.abandon(p, context.Cause(ctx)) })
	}
	c.mu.Unlock()

	c.flush()
	return p
}

func (c *Cache) requeryLocked(anchor Anchor, filter string, p *Pending) {
	c.supersedeLocked()
	c.generation++
	gen := c.generation
	c.anchor = anchor
	c.hasAnchor = true
	c.filter = filter
	c.inflight = true
	c.waiters = append(c.waiters, p)

	qctx, cancel := context.WithCancel(context.Background())
	c.cancelQuery = cancel
	go c.run(qctx, gen, anchor)
}

// supersedeLocked cancels the query in flight and fails its waiters.
func (c *Cache) supersedeLocked() {
	if c.cancelQuery != nil {
		c.cancelQuery()
		c.cancelQuery = nil
	}
	c.inflight = false
	for _, w := range c.waiters {
		w.resolve(rpc.ErrCancelled)
	}
	c.waiters = nil
}

func (c *Cache) run(ctx context.Context, gen uint64, anchor Anchor) {
	results, err := c.q.Query(ctx, anchor)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		logging.LogEvent("completion reply for %s:%d:%d discarded (generation %d superseded)", anchor.Path, anchor.Line+1, anchor.Column+1, gen)
		c.tel.StaleReply(ctx)
		return
	}
	c.inflight = false
	c.cancelQuery = nil
	waiters := c.waiters
	c.waiters = nil
	if err != nil {
		logging.LogEvent("completion query at %s:%d:%d failed: %v", anchor.Path, anchor.Line+1, anchor.Column+1, err)
		// Keep what is displayed; the next Populate requeries.
		c.hasAnchor = false
		for _, w := range waiters {
			w.resolve(err)
		}
		c.mu.Unlock()
		return
	}
	c.raw = results
	c.hasRaw = true
	c.rebuildLocked(c.filter)
	for _, w := range waiters {
		w.resolve(nil)
	}
	c.mu.Unlock()

	c.flush()
}

// abandon resolves p with a cancellation without affecting the query.
func (c *Cache) abandon(p *Pending, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.resolved {
		return
	}
	c.waiters = slices.DeleteFunc(c.waiters, func(w *Pending) bool { return w == p })
	p.resolve(rpc.Cancelled(cause))
}

// Clear cancels any query, drops the results and fails waiting callers.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.supersedeLocked()
	c.generation++
	removed := len(c.entries)
	c.raw = variant.Results{}
	c.hasRaw = false
	c.entries = nil
	c.anchor = Anchor{}
	c.hasAnchor = false
	c.filter = ""
	if removed > 0 {
		c.emitLocked(removed)
	}
	c.mu.Unlock()

	c.flush()
}

// refilterLocked applies filter to the cached results, narrowing the
// current list when filter continues the previous one.
func (c *Cache) refilterLocked(filter string) {
	prev := Fold(c.filter)
	folded := Fold(filter)
	c.filter = filter

	switch {
	case folded == "":
		c.resetLocked()
	case prev != "" && strings.Contains(folded, prev):
		removed := len(c.entries)
		next := matchEntries(c.entries, folded)
		c.entries = next
		c.tel.Refilter(context.Background(), "fast", len(next))
		c.emitLocked(removed)
	default:
		c.rebuildLocked(filter)
	}
}

// rebuildLocked matches every proposal of the raw result set against filter.
func (c *Cache) rebuildLocked(filter string) {
	folded := Fold(filter)
	if folded == "" {
		c.resetLocked()
		return
	}
	removed := len(c.entries)
	n := c.raw.Len()
	all := make([]entry, 0, n)
	for i := 0; i < n; i++ {
		if e, ok := c.entryAt(i); ok {
			all = append(all, e)
		}
	}
	next := matchEntries(all, folded)
	c.entries = next
	c.tel.Refilter(context.Background(), "full", len(next))
	c.emitLocked(removed)
}

// resetLocked shows every proposal in reply order.
func (c *Cache) resetLocked() {
	removed := len(c.entries)
	n := c.raw.Len()
	next := make([]entry, 0, n)
	for i := 0; i < n; i++ {
		e, ok := c.entryAt(i)
		if !ok {
			continue
		}
		e.priority = i
		next = append(next, e)
	}
	c.entries = next
	c.tel.Refilter(context.Background(), "reset", len(next))
	c.emitLocked(removed)
}

func (c *Cache) entryAt(i int) (entry, bool) {
	start, end, err := c.raw.Span(i)
	if err != nil {
		return entry{}, false
	}
	p, err := c.raw.Slice(start, end)
	if err != nil {
		return entry{}, false
	}
	return entry{start: start, end: end, key: Fold(p.Keyword()), rank: i}, true
}

func (c *Cache) emitLocked(removed int) {
	c.outbox = append(c.outbox, Change{
		Removed:  removed,
		Added:    len(c.entries),
		Snapshot: Snapshot{raw: c.raw, entries: c.entries},
	})
}

// flush delivers queued changes in order. It must be called without the
// cache lock.
func (c *Cache) flush() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	for {
		c.mu.Lock()
		if len(c.outbox) == 0 {
			c.mu.Unlock()
			return
		}
		ch := c.outbox[0]
		c.outbox = c.outbox[1:]
		observers := make([]func(Change), 0, len(c.observers))
		for _, fn := range c.observers {
			observers = append(observers, fn)
		}
		c.mu.Unlock()
		for _, fn := range observers {
			fn(ch)
		}
	}
}

// Snapshot returns the current candidate list.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{raw: c.raw, entries: c.entries}
}

// Len returns the number of visible candidates.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// At returns the i-th visible candidate.
func (c *Cache) At(i int) (Candidate, error) { return c.Snapshot().At(i) }

// Filter returns the filter the list reflects or will reflect once the
// query in flight lands.
func (c *Cache) Filter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Anchor returns the current anchor, if any.
func (c *Cache) Anchor() (Anchor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anchor, c.hasAnchor
}

// Querying reports whether a query is in flight.
func (c *Cache) Querying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}
