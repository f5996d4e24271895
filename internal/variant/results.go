package variant

import "bytes"

// Proposal map keys written by the worker for clang/complete.
const (
	KeyKeyword      = "keyword"
	KeyKind         = "kind"
	KeyAvailability = "availability"
	KeyDetail       = "detail"
	KeyChunks       = "chunks"
	KeyText         = "text"
)

// Results is a view over a completion result set: an ordered array of
// proposals (type aa{sv}).
type Results struct {
	arr Array
}

// NewResults wraps buf without copying or validating it.
func NewResults(buf []byte) Results { return Results{arr: Array{b: buf}} }

// Bytes returns the borrowed backing buffer.
func (r Results) Bytes() []byte { return r.arr.b }

// Len returns the number of proposals.
func (r Results) Len() int { return r.arr.Len() }

// At returns the i-th proposal in O(1).
func (r Results) At(i int) (Proposal, error) {
	b, err := r.arr.Elem(i)
	if err != nil {
		return Proposal{}, err
	}
	return Proposal{Dict{b: b}}, nil
}

// Span returns the byte extent of the i-th proposal within Bytes.
func (r Results) Span(i int) (start, end int, err error) { return r.arr.Span(i) }

// Slice returns the proposal stored at a span previously reported by Span.
func (r Results) Slice(start, end int) (Proposal, error) {
	if start < 0 || start > end || end > len(r.arr.b) {
		return Proposal{}, ErrOutOfRange
	}
	return Proposal{Dict{b: r.arr.b[start:end:end]}}, nil
}

// Check validates the offset table of the result set.
func (r Results) Check() error { return r.arr.Check() }

// Duplicate copies the whole result set.
func (r Results) Duplicate() Results { return Results{arr: r.arr.Duplicate()} }

// Proposal is one completion candidate.
type Proposal struct {
	Dict
}

// Keyword returns the typed text of the proposal.
func (p Proposal) Keyword() string {
	s, _ := p.String(KeyKeyword)
	return s
}

// KeywordBytes returns the typed text borrowed from the buffer.
func (p Proposal) KeywordBytes() []byte {
	s, _ := p.StringBytes(KeyKeyword)
	return s
}

// Kind returns the completion kind, or 0 when absent.
func (p Proposal) Kind() int32 {
	k, _ := p.Int32(KeyKind)
	return k
}

// Availability returns the availability code, or 0 when absent.
func (p Proposal) Availability() int32 {
	a, _ := p.Int32(KeyAvailability)
	return a
}

// Detail returns the optional detail string.
func (p Proposal) Detail() string {
	s, _ := p.String(KeyDetail)
	return s
}

// Chunks returns the completion chunks of the proposal.
func (p Proposal) Chunks() Chunks {
	v, err := p.Lookup(KeyChunks)
	if err != nil {
		return Chunks{}
	}
	arr, err := v.Array()
	if err != nil {
		return Chunks{}
	}
	return Chunks{arr: arr}
}

// Duplicate copies only this proposal's bytes.
func (p Proposal) Duplicate() Proposal { return Proposal{Dict{b: bytes.Clone(p.b)}} }

// Chunks is the array of structured pieces a proposal renders as.
type Chunks struct {
	arr Array
}

// Len returns the number of chunks.
func (c Chunks) Len() int { return c.arr.Len() }

// At returns the i-th chunk.
func (c Chunks) At(i int) (Chunk, error) {
	b, err := c.arr.Elem(i)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Dict{b: b}}, nil
}

// Chunk is a map with "text" and "kind".
type Chunk struct {
	Dict
}

// Text returns the chunk text.
func (c Chunk) Text() string {
	s, _ := c.String(KeyText)
	return s
}

// Kind returns the chunk kind.
func (c Chunk) Kind() int32 {
	k, _ := c.Int32(KeyKind)
	return k
}
