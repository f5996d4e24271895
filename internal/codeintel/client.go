// Package codeintel exposes the worker's clang/* methods as typed Go calls.
// Positions are 0-based here and translated to the worker's 1-based
// positions at the boundary.
package codeintel

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mwiater/codeintel/internal/bufsync"
	"github.com/mwiater/codeintel/internal/proposals"
	"github.com/mwiater/codeintel/internal/rpc"
	"github.com/mwiater/codeintel/internal/variant"
	"github.com/mwiater/codeintel/internal/worker"
)

// Client issues analysis queries. Content-sensitive queries first push the
// file's unsaved draft and resolve its compiler flags.
type Client struct {
	w     bufsync.Worker
	sync  *bufsync.Synchronizer
	flags FlagProvider
}

// New returns a Client. A nil flags provider sends no flags.
func New(w bufsync.Worker, s *bufsync.Synchronizer, flags FlagProvider) *Client {
	if flags == nil {
		flags = StaticFlags(nil)
	}
	return &Client{w: w, sync: s, flags: flags}
}

// Synchronizer returns the buffer synchronizer queries go through.
func (c *Client) Synchronizer() *bufsync.Synchronizer { return c.sync }

// localPath accepts absolute paths and file:// URIs. Anything else cannot
// be read by the worker.
func localPath(path string) (string, error) {
	if rest, ok := strings.CutPrefix(path, "file://"); ok {
		path = rest
	} else if strings.Contains(path, "://") {
		return "", fmt.Errorf("%s: %w", path, rpc.ErrNotSupported)
	}
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("%s: not a local file: %w", path, rpc.ErrNotSupported)
	}
	return filepath.Clean(path), nil
}

// prepare resolves path, pushes its draft and fetches its flags.
func (c *Client) prepare(ctx context.Context, path string) (string, []string, error) {
	p, err := localPath(path)
	if err != nil {
		return "", nil, err
	}
	if c.sync != nil {
		if err := c.sync.Sync(ctx, p); err != nil {
			return "", nil, err
		}
	}
	flags, err := c.flags.Flags(ctx, p)
	if err != nil {
		return "", nil, fmt.Errorf("flags for %s: %w", p, err)
	}
	return p, flags, nil
}

func (c *Client) position(ctx context.Context, loc Location) (rpc.PositionParams, error) {
	if loc.Line < 0 || loc.Column < 0 {
		return rpc.PositionParams{}, fmt.Errorf("invalid position %d:%d", loc.Line, loc.Column)
	}
	p, flags, err := c.prepare(ctx, loc.Path)
	if err != nil {
		return rpc.PositionParams{}, err
	}
	return rpc.PositionParams{Path: p, Flags: flags, Line: loc.Line + 1, Column: loc.Column + 1}, nil
}

// Complete returns the completion result set at loc. The buffer is the
// reply's binary attachment and is not copied.
func (c *Client) Complete(ctx context.Context, loc Location) (variant.Results, error) {
	params, err := c.position(ctx, loc)
	if err != nil {
		return variant.Results{}, err
	}
	reply, err := c.w.Call(ctx, rpc.MethodComplete, params)
	if err != nil {
		return variant.Results{}, err
	}
	var count rpc.CountResult
	if err := reply.Decode(&count); err != nil {
		return variant.Results{}, err
	}
	res := variant.NewResults(reply.Binary)
	if err := res.Check(); err != nil {
		return variant.Results{}, rpc.Protocolf("complete: %v", err)
	}
	if res.Len() != count.Count {
		return variant.Results{}, rpc.Protocolf("complete: %d proposals, reply announced %d", res.Len(), count.Count)
	}
	return res, nil
}

// Query implements proposals.Querier.
func (c *Client) Query(ctx context.Context, a proposals.Anchor) (variant.Results, error) {
	return c.Complete(ctx, Location{Path: a.Path, Line: a.Line, Column: a.Column})
}

// Diagnose returns the diagnostics located in path.
func (c *Client) Diagnose(ctx context.Context, path string) ([]Diagnostic, error) {
	p, flags, err := c.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	reply, err := c.w.Call(ctx, rpc.MethodDiagnose, rpc.FileParams{Path: p, Flags: flags})
	if err != nil {
		return nil, err
	}
	var res rpc.DiagnoseResult
	if err := reply.Decode(&res); err != nil {
		return nil, err
	}
	out := make([]Diagnostic, 0, len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		if d.Location.Path != "" && filepath.Clean(d.Location.Path) != p {
			continue
		}
		out = append(out, diagnosticFromWire(d, p))
	}
	return out, nil
}

// DiagnoseAll diagnoses paths concurrently. The result is keyed by the
// cleaned path.
func (c *Client) DiagnoseAll(ctx context.Context, paths []string) (map[string][]Diagnostic, error) {
	results := make([][]Diagnostic, len(paths))
	keys := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		g.Go(func() error {
			p, err := localPath(path)
			if err != nil {
				return err
			}
			d, err := c.Diagnose(gctx, p)
			if err != nil {
				return fmt.Errorf("diagnose %s: %w", p, err)
			}
			keys[i], results[i] = p, d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string][]Diagnostic, len(paths))
	for i, k := range keys {
		out[k] = results[i]
	}
	return out, nil
}

// GetSymbolTree returns the declarations of path, nested by scope.
func (c *Client) GetSymbolTree(ctx context.Context, path string) ([]SymbolNode, error) {
	p, flags, err := c.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	reply, err := c.w.Call(ctx, rpc.MethodGetSymbolTree, rpc.FileParams{Path: p, Flags: flags})
	if err != nil {
		return nil, err
	}
	return DecodeSymbolTree(reply.Binary, p)
}

// DecodeSymbolTree copies a binary symbol tree into SymbolNodes.
func DecodeSymbolTree(buf []byte, path string) ([]SymbolNode, error) {
	nodes := variant.NewNodes(buf)
	if err := nodes.Check(); err != nil {
		return nil, rpc.Protocolf("symbol tree: %v", err)
	}
	return decodeNodes(nodes, path, 0)
}

const maxTreeDepth = 64

func decodeNodes(nodes variant.Nodes, path string, depth int) ([]SymbolNode, error) {
	if depth > maxTreeDepth {
		return nil, rpc.Protocolf("symbol tree deeper than %d", maxTreeDepth)
	}
	n := nodes.Len()
	if n == 0 {
		return nil, nil
	}
	out := make([]SymbolNode, 0, n)
	for i := 0; i < n; i++ {
		node, err := nodes.At(i)
		if err != nil {
			return nil, rpc.Protocolf("symbol tree: %v", err)
		}
		children, err := decodeNodes(node.Children(), path, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, SymbolNode{
			Symbol: Symbol{
				Name: node.Name(),
				Kind: node.Kind(),
				Location: fromWire(rpc.Location{
					Line:   int(node.Line()),
					Column: int(node.Column()),
				}, path),
			},
			Children: children,
		})
	}
	return out, nil
}

// SetBuffer replaces the worker's copy of path. A nil content makes the
// worker read the file from disk.
func (c *Client) SetBuffer(ctx context.Context, path string, content []byte) error {
	p, err := localPath(path)
	if err != nil {
		return err
	}
	params := rpc.SetBufferParams{Path: p}
	if content != nil {
		s := string(content)
		params.Content = &s
	}
	_, err = c.w.Call(ctx, rpc.MethodSetBuffer, params)
	return err
}

// GetIndexKey returns the cross-file key of the declaration referenced at
// loc.
func (c *Client) GetIndexKey(ctx context.Context, loc Location) (string, error) {
	params, err := c.position(ctx, loc)
	if err != nil {
		return "", err
	}
	reply, err := c.w.Call(ctx, rpc.MethodGetIndexKey, params)
	if err != nil {
		return "", err
	}
	var res rpc.IndexKeyResult
	if err := reply.Decode(&res); err != nil {
		return "", err
	}
	return res.Key, nil
}

// FindNearestScope returns the innermost declaration enclosing loc, or nil.
func (c *Client) FindNearestScope(ctx context.Context, loc Location) (*Symbol, error) {
	return c.symbolAt(ctx, rpc.MethodFindNearestScope, loc)
}

// LocateSymbol returns the declaration of the identifier at loc, or nil.
func (c *Client) LocateSymbol(ctx context.Context, loc Location) (*Symbol, error) {
	return c.symbolAt(ctx, rpc.MethodLocateSymbol, loc)
}

func (c *Client) symbolAt(ctx context.Context, method string, loc Location) (*Symbol, error) {
	params, err := c.position(ctx, loc)
	if err != nil {
		return nil, err
	}
	reply, err := c.w.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	var res rpc.SymbolResult
	if err := reply.Decode(&res); err != nil {
		return nil, err
	}
	if res.Symbol == nil {
		return nil, nil
	}
	return &Symbol{
		Name:     res.Symbol.Name,
		Kind:     res.Symbol.Kind,
		Location: fromWire(res.Symbol.Location, params.Path),
	}, nil
}

// IndexFile returns every indexable declaration in path.
func (c *Client) IndexFile(ctx context.Context, path string) ([]IndexEntry, error) {
	p, flags, err := c.prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	reply, err := c.w.Call(ctx, rpc.MethodIndexFile, rpc.FileParams{Path: p, Flags: flags})
	if err != nil {
		return nil, err
	}
	var res rpc.IndexFileResult
	if err := reply.Decode(&res); err != nil {
		return nil, err
	}
	out := make([]IndexEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, IndexEntry{
			Key:      e.Key,
			Name:     e.Name,
			Kind:     e.Kind,
			Flags:    e.Flags,
			Location: fromWire(e.Location, p),
		})
	}
	return out, nil
}

var _ proposals.Querier = (*Client)(nil)
var _ bufsync.Worker = (*worker.Client)(nil)
