package tx

import (
	"errors"
	"fmt"
)

var errShortVecOverflow = errors.New("compact-u16 overflow")

// appendShortVec appends n in the compact-u16 encoding (7 bits per byte).
func appendShortVec(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// shortVecLen is the encoded size of n.
func shortVecLen(n int) int {
	switch {
	case n < 0x80:
		return 1
	case n < 0x4000:
		return 2
	default:
		return 3
	}
}

// readShortVec decodes a compact-u16 and returns the value and bytes read.
func readShortVec(b []byte) (int, int, error) {
	var v, size int
	for {
		if size >= len(b) {
			return 0, 0, fmt.Errorf("compact-u16: %w", errUnexpectedEOF)
		}
		if size >= 3 {
			return 0, 0, errShortVecOverflow
		}
		elem := int(b[size])
		v |= (elem & 0x7f) << (size * 7)
		size++
		if elem&0x80 == 0 {
			break
		}
	}
	if v > 0xffff {
		return 0, 0, errShortVecOverflow
	}
	return v, size, nil
}
