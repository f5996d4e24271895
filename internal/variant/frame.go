package variant

import "encoding/binary"

const (
	maxUint8  = 1<<8 - 1
	maxUint16 = 1<<16 - 1
	maxUint32 = 1<<32 - 1
)

// offsetSize returns the width of one frame offset for an aggregate of the
// given total size.
func offsetSize(size int) int {
	switch {
	case size <= maxUint8:
		return 1
	case size <= maxUint16:
		return 2
	case uint64(size) <= maxUint32:
		return 4
	default:
		return 8
	}
}

// frameWidth picks the smallest offset width that can address an aggregate
// whose children occupy body bytes and which stores n offsets.
func frameWidth(body, n int) int {
	if n == 0 {
		return 0
	}
	for _, w := range []int{1, 2, 4} {
		total := body + n*w
		if offsetSize(total) == w {
			return w
		}
	}
	return 8
}

func align(n, to int) int {
	return (n + to - 1) &^ (to - 1)
}

// readOffset reads the index-th frame offset counting backwards from the end
// of b. It reports false if the slot or the value falls outside b.
func readOffset(b []byte, index, width int) (int, bool) {
	pos := len(b) - (index+1)*width
	if index < 0 || pos < 0 {
		return 0, false
	}
	var v uint64
	switch width {
	case 1:
		v = uint64(b[pos])
	case 2:
		v = uint64(binary.LittleEndian.Uint16(b[pos:]))
	case 4:
		v = uint64(binary.LittleEndian.Uint32(b[pos:]))
	case 8:
		v = binary.LittleEndian.Uint64(b[pos:])
	default:
		return 0, false
	}
	if v > uint64(len(b)) {
		return 0, false
	}
	return int(v), true
}

func appendOffset(dst []byte, v, width int) []byte {
	switch width {
	case 1:
		return append(dst, byte(v))
	case 2:
		return binary.LittleEndian.AppendUint16(dst, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(dst, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(dst, uint64(v))
	}
}
