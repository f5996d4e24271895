package variant

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Array is a view over an array of 8-byte aligned, variable sized children,
// such as the proposals of a result set or the entries of a map.
type Array struct {
	b []byte
}

// ArrayOf returns an array view over b without copying it.
func ArrayOf(b []byte) Array { return Array{b: b} }

// Bytes returns the borrowed backing bytes.
func (a Array) Bytes() []byte { return a.b }

// frame decodes the offset width, the end of the last child and the number
// of children. ok is false when the offset table does not describe b.
func (a Array) frame() (width, last, n int, ok bool) {
	if len(a.b) == 0 {
		return 0, 0, 0, true
	}
	width = offsetSize(len(a.b))
	last, ok = readOffset(a.b, 0, width)
	if !ok {
		return 0, 0, 0, false
	}
	table := len(a.b) - last
	if table == 0 || table%width != 0 {
		return 0, 0, 0, false
	}
	return width, last, table / width, true
}

// Len returns the number of children, or 0 if the frame is malformed.
func (a Array) Len() int {
	_, _, n, ok := a.frame()
	if !ok {
		return 0
	}
	return n
}

// Elem returns the borrowed bytes of the i-th child.
func (a Array) Elem(i int) ([]byte, error) {
	start, end, err := a.Span(i)
	if err != nil {
		return nil, err
	}
	return a.b[start:end:end], nil
}

// Span returns the byte extent of the i-th child within the array.
func (a Array) Span(i int) (start, end int, err error) {
	width, last, n, ok := a.frame()
	if !ok {
		return 0, 0, ErrMalformed
	}
	if i < 0 || i >= n {
		return 0, 0, ErrOutOfRange
	}
	end, ok = readOffset(a.b, n-1-i, width)
	if !ok {
		return 0, 0, ErrMalformed
	}
	if i > 0 {
		prev, ok := readOffset(a.b, n-i, width)
		if !ok {
			return 0, 0, ErrMalformed
		}
		start = align(prev, 8)
	}
	if start > end || end > last {
		return 0, 0, ErrMalformed
	}
	return start, end, nil
}

// Check walks the whole offset table and reports the first framing error.
func (a Array) Check() error {
	_, _, n, ok := a.frame()
	if !ok {
		return ErrMalformed
	}
	for i := 0; i < n; i++ {
		if _, _, err := a.Span(i); err != nil {
			return err
		}
	}
	return nil
}

// Duplicate copies the array into a buffer it owns.
func (a Array) Duplicate() Array { return Array{b: bytes.Clone(a.b)} }

// Dict is a view over a string-keyed map of variants (type a{sv}).
type Dict struct {
	b []byte
}

// DictOf returns a map view over b without copying it.
func DictOf(b []byte) Dict { return Dict{b: b} }

// Bytes returns the borrowed backing bytes.
func (d Dict) Bytes() []byte { return d.b }

// Len returns the number of entries, or 0 if the frame is malformed.
func (d Dict) Len() int { return Array{b: d.b}.Len() }

// Entry returns the key and value of the i-th entry.
func (d Dict) Entry(i int) ([]byte, Value, error) {
	raw, err := Array{b: d.b}.Elem(i)
	if err != nil {
		return nil, Value{}, err
	}
	return splitEntry(raw)
}

func splitEntry(b []byte) ([]byte, Value, error) {
	if len(b) == 0 {
		return nil, Value{}, ErrMalformed
	}
	width := offsetSize(len(b))
	keyEnd, ok := readOffset(b, 0, width)
	if !ok || keyEnd == 0 || keyEnd > len(b)-width || b[keyEnd-1] != 0 {
		return nil, Value{}, ErrMalformed
	}
	key := b[:keyEnd-1]
	if bytes.IndexByte(key, 0) >= 0 {
		return nil, Value{}, ErrMalformed
	}
	start, end := align(keyEnd, 8), len(b)-width
	if start > end {
		return nil, Value{}, ErrMalformed
	}
	return key, Value{b: b[start:end:end]}, nil
}

// Lookup returns the value of the first entry whose key equals key. Entries
// are scanned in order without decoding their values, so a lookup costs one
// key comparison per entry.
func (d Dict) Lookup(key string) (Value, error) {
	arr := Array{b: d.b}
	if _, _, _, ok := arr.frame(); !ok {
		return Value{}, ErrMalformed
	}
	n := arr.Len()
	for i := 0; i < n; i++ {
		raw, err := arr.Elem(i)
		if err != nil {
			return Value{}, err
		}
		k, v, err := splitEntry(raw)
		if err != nil {
			return Value{}, err
		}
		if string(k) == key {
			return v, nil
		}
	}
	return Value{}, ErrNotFound
}

// String returns the string stored under key.
func (d Dict) String(key string) (string, bool) {
	v, err := d.Lookup(key)
	if err != nil {
		return "", false
	}
	s, err := v.Str()
	return s, err == nil
}

// StringBytes is like String but borrows the bytes instead of copying.
func (d Dict) StringBytes(key string) ([]byte, bool) {
	v, err := d.Lookup(key)
	if err != nil {
		return nil, false
	}
	s, err := v.StrBytes()
	return s, err == nil
}

// Int32 returns the int32 stored under key.
func (d Dict) Int32(key string) (int32, bool) {
	v, err := d.Lookup(key)
	if err != nil {
		return 0, false
	}
	n, err := v.Int32()
	return n, err == nil
}

// Bool returns the boolean stored under key.
func (d Dict) Bool(key string) (bool, bool) {
	v, err := d.Lookup(key)
	if err != nil {
		return false, false
	}
	b, err := v.Bool()
	return b, err == nil
}

// Duplicate copies the map into a buffer it owns.
func (d Dict) Duplicate() Dict { return Dict{b: bytes.Clone(d.b)} }

// Value is a view over a self-describing variant: the serialized child, a
// NUL byte and the child's type string.
type Value struct {
	b []byte
}

// ValueOf returns a variant view over b without copying it.
func ValueOf(b []byte) Value { return Value{b: b} }

// Bytes returns the borrowed backing bytes.
func (v Value) Bytes() []byte { return v.b }

func (v Value) split() ([]byte, string, error) {
	i := bytes.LastIndexByte(v.b, 0)
	if i < 0 {
		return nil, "", ErrMalformed
	}
	sig := v.b[i+1:]
	if end, ok := scanType(sig, 0, 0); !ok || end != len(sig) {
		return nil, "", ErrMalformed
	}
	return v.b[:i:i], string(sig), nil
}

// Type returns the type string of the child, or "" if malformed.
func (v Value) Type() string {
	_, sig, err := v.split()
	if err != nil {
		return ""
	}
	return sig
}

func (v Value) child(want string, size int) ([]byte, error) {
	data, sig, err := v.split()
	if err != nil {
		return nil, err
	}
	if sig != want {
		return nil, ErrTypeMismatch
	}
	if size >= 0 && len(data) != size {
		return nil, ErrMalformed
	}
	return data, nil
}

// StrBytes returns the borrowed string bytes without the trailing NUL.
func (v Value) StrBytes() ([]byte, error) {
	data, err := v.child("s", -1)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || data[len(data)-1] != 0 {
		return nil, ErrMalformed
	}
	s := data[: len(data)-1 : len(data)-1]
	if bytes.IndexByte(s, 0) >= 0 {
		return nil, ErrMalformed
	}
	return s, nil
}

// Str returns a copy of the string child.
func (v Value) Str() (string, error) {
	s, err := v.StrBytes()
	if err != nil {
		return "", err
	}
	return string(s), nil
}

// Bool reads a boolean child.
func (v Value) Bool() (bool, error) {
	data, err := v.child("b", 1)
	if err != nil {
		return false, err
	}
	return data[0] != 0, nil
}

// Int32 reads an int32 child.
func (v Value) Int32() (int32, error) {
	data, err := v.child("i", 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(data)), nil
}

// Uint32 reads a uint32 child.
func (v Value) Uint32() (uint32, error) {
	data, err := v.child("u", 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// Int64 reads an int64 child.
func (v Value) Int64() (int64, error) {
	data, err := v.child("x", 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(data)), nil
}

// Double reads a float64 child.
func (v Value) Double() (float64, error) {
	data, err := v.child("d", 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
}

// Dict reads an a{sv} child.
func (v Value) Dict() (Dict, error) {
	data, err := v.child("a{sv}", -1)
	if err != nil {
		return Dict{}, err
	}
	return Dict{b: data}, nil
}

// Array reads an aa{sv} child.
func (v Value) Array() (Array, error) {
	data, err := v.child("aa{sv}", -1)
	if err != nil {
		return Array{}, err
	}
	return Array{b: data}, nil
}

// Variant unwraps a nested variant child.
func (v Value) Variant() (Value, error) {
	data, err := v.child("v", -1)
	if err != nil {
		return Value{}, err
	}
	return Value{b: data}, nil
}

// Duplicate copies the variant into a buffer it owns.
func (v Value) Duplicate() Value { return Value{b: bytes.Clone(v.b)} }

const maxTypeDepth = 64

// scanType consumes one complete type from sig starting at pos and returns
// the position after it.
func scanType(sig []byte, pos, depth int) (int, bool) {
	if pos >= len(sig) || depth > maxTypeDepth {
		return 0, false
	}
	switch c := sig[pos]; c {
	case 'b', 'y', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'v', 'h':
		return pos + 1, true
	case 'a', 'm':
		return scanType(sig, pos+1, depth+1)
	case '{':
		if pos+1 >= len(sig) || !isBasic(sig[pos+1]) {
			return 0, false
		}
		end, ok := scanType(sig, pos+2, depth+1)
		if !ok || end >= len(sig) || sig[end] != '}' {
			return 0, false
		}
		return end + 1, true
	case '(':
		pos++
		for pos < len(sig) && sig[pos] != ')' {
			var ok bool
			if pos, ok = scanType(sig, pos, depth+1); !ok {
				return 0, false
			}
		}
		if pos >= len(sig) {
			return 0, false
		}
		return pos + 1, true
	default:
		return 0, false
	}
}

func isBasic(c byte) bool {
	switch c {
	case 'b', 'y', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'h':
		return true
	}
	return false
}
