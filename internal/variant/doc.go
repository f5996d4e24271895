// Package variant implements read-only views over the compact binary result
// format returned by the analysis worker.
//
// A result buffer is an array of string-keyed maps (type aa{sv}). Every
// aggregate stores its children back to back, each child starting on an
// 8-byte boundary, followed by a trailing table of frame offsets that locate
// the end of every child. The width of an offset (1, 2, 4 or 8 bytes) is
// chosen by the total size of the aggregate, so small proposals pay one byte
// per child.
//
// Views never copy: Results, Dict, Array and Value all borrow the caller's
// buffer. Offsets are untrusted input and every read is bounds checked; a
// malformed buffer produces ErrMalformed instead of a panic. Callers that
// need a view to outlive its buffer use the Duplicate methods, which copy
// only the bytes of that child.
package variant
