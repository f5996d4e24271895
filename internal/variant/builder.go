package variant

import (
	"encoding/binary"
	"math"
)

// Encodable is a value the builder can serialize.
type Encodable interface {
	signature() string
	alignment() int
	encode() []byte
}

type scalar struct {
	sig   string
	align int
	data  []byte
}

func (s scalar) signature() string { return s.sig }
func (s scalar) alignment() int    { return s.align }
func (s scalar) encode() []byte    { return s.data }

// String encodes an "s" value.
func String(s string) Encodable {
	data := make([]byte, 0, len(s)+1)
	data = append(data, s...)
	return scalar{sig: "s", align: 1, data: append(data, 0)}
}

// Bool encodes a "b" value.
func Bool(b bool) Encodable {
	var v byte
	if b {
		v = 1
	}
	return scalar{sig: "b", align: 1, data: []byte{v}}
}

// Int32 encodes an "i" value.
func Int32(i int32) Encodable {
	return scalar{sig: "i", align: 4, data: binary.LittleEndian.AppendUint32(nil, uint32(i))}
}

// Uint32 encodes a "u" value.
func Uint32(u uint32) Encodable {
	return scalar{sig: "u", align: 4, data: binary.LittleEndian.AppendUint32(nil, u)}
}

// Int64 encodes an "x" value.
func Int64(i int64) Encodable {
	return scalar{sig: "x", align: 8, data: binary.LittleEndian.AppendUint64(nil, uint64(i))}
}

// Double encodes a "d" value.
func Double(f float64) Encodable {
	return scalar{sig: "d", align: 8, data: binary.LittleEndian.AppendUint64(nil, math.Float64bits(f))}
}

type boxed struct {
	child Encodable
}

// Variant boxes a value so it carries its own type string.
func Variant(child Encodable) Encodable { return boxed{child: child} }

func (b boxed) signature() string { return "v" }
func (b boxed) alignment() int    { return 8 }
func (b boxed) encode() []byte {
	data := b.child.encode()
	out := make([]byte, 0, len(data)+1+len(b.child.signature()))
	out = append(out, data...)
	out = append(out, 0)
	return append(out, b.child.signature()...)
}

// Entry is one key of a Map.
type Entry struct {
	Key   string
	Value Encodable
}

// Map encodes an a{sv} value. Entry order is preserved.
type Map []Entry

func (m Map) signature() string { return "a{sv}" }
func (m Map) alignment() int    { return 8 }
func (m Map) encode() []byte {
	children := make([][]byte, len(m))
	for i, e := range m {
		children[i] = encodeEntry(e)
	}
	return frameChildren(children)
}

func encodeEntry(e Entry) []byte {
	body := make([]byte, 0, len(e.Key)+16)
	body = append(body, e.Key...)
	body = append(body, 0)
	keyEnd := len(body)
	body = pad(body, 8)
	body = append(body, boxed{child: e.Value}.encode()...)
	width := frameWidth(len(body), 1)
	return appendOffset(body, keyEnd, width)
}

// Maps encodes an aa{sv} value, the shape of a result set.
type Maps []Map

func (a Maps) signature() string { return "aa{sv}" }
func (a Maps) alignment() int    { return 8 }
func (a Maps) encode() []byte {
	children := make([][]byte, len(a))
	for i, m := range a {
		children[i] = m.encode()
	}
	return frameChildren(children)
}

// frameChildren lays out 8-byte aligned children followed by their end
// offsets.
func frameChildren(children [][]byte) []byte {
	if len(children) == 0 {
		return nil
	}
	size := 0
	for i, c := range children {
		if i > 0 {
			size = align(size, 8)
		}
		size += len(c)
	}
	width := frameWidth(size, len(children))
	out := make([]byte, 0, size+len(children)*width)
	ends := make([]int, len(children))
	for i, c := range children {
		if i > 0 {
			out = pad(out, 8)
		}
		out = append(out, c...)
		ends[i] = len(out)
	}
	for _, end := range ends {
		out = appendOffset(out, end, width)
	}
	return out
}

func pad(b []byte, to int) []byte {
	for len(b)%to != 0 {
		b = append(b, 0)
	}
	return b
}

// Encode serializes v.
func Encode(v Encodable) []byte { return v.encode() }

// EncodeResults serializes a result set of proposals.
func EncodeResults(proposals []Map) []byte { return Maps(proposals).encode() }
