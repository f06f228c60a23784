package tx

import (
	"errors"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

var errUnexpectedEOF = errors.New("unexpected end of data")

type reader struct {
	buf []byte
	pos int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errUnexpectedEOF
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) shortVec() (int, error) {
	v, n, err := readShortVec(r.buf[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

func (r *reader) vec() ([]byte, error) {
	n, err := r.shortVec()
	if err != nil {
		return nil, err
	}
	b, err := r.bytes(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *reader) pubkey() (types.PublicKey, error) {
	b, err := r.bytes(types.PublicKeySize)
	if err != nil {
		return types.PublicKey{}, err
	}
	var k types.PublicKey
	copy(k[:], b)
	return k, nil
}
