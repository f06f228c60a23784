package anchor

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Encoder appends Borsh values to a buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder whose output starts with d.
func NewEncoder(d Discriminator) *Encoder {
	e := &Encoder{buf: make([]byte, 0, 64)}
	e.buf = append(e.buf, d[:]...)
	return e
}

// Bytes returns the encoded data.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) U8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.U8(1)
	}
	return e.U8(0)
}

func (e *Encoder) U32(v uint32) *Encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
	return e
}

func (e *Encoder) U64(v uint64) *Encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return e
}

func (e *Encoder) PublicKey(k types.PublicKey) *Encoder {
	e.buf = append(e.buf, k[:]...)
	return e
}

// VecBytes writes a Vec<u8>: u32 length then the bytes.
func (e *Encoder) VecBytes(b []byte) *Encoder {
	e.U32(uint32(len(b)))
	e.buf = append(e.buf, b...)
	return e
}

// VecU64 writes a Vec<u64>.
func (e *Encoder) VecU64(vs []uint64) *Encoder {
	e.U32(uint32(len(vs)))
	for _, v := range vs {
		e.U64(v)
	}
	return e
}

// OptionPublicKey writes Option<Pubkey>.
func (e *Encoder) OptionPublicKey(o types.Option[types.PublicKey]) *Encoder {
	v, ok := o.Get()
	if !ok {
		return e.U8(0)
	}
	return e.U8(1).PublicKey(v)
}

// OptionU32 writes Option<u32>.
func (e *Encoder) OptionU32(o types.Option[uint32]) *Encoder {
	v, ok := o.Get()
	if !ok {
		return e.U8(0)
	}
	return e.U8(1).U32(v)
}

// Decoder reads Borsh values. The first error sticks; later reads return
// zero values and Err reports it.
type Decoder struct {
	data []byte
	pos  int
	err  error
}

// NewDecoder reads from data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Err returns the first decoding error.
func (d *Decoder) Err() error { return d.err }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.pos }

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.data) {
		d.err = fmt.Errorf("%w: need %d at offset %d, have %d", ErrShortData, n, d.pos, len(d.data))
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *Decoder) U8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) Bool() bool {
	switch v := d.U8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		if d.err == nil {
			d.err = fmt.Errorf("%w: %d", ErrInvalidBool, v)
		}
		return false
	}
}

func (d *Decoder) U32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) U64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) PublicKey() types.PublicKey {
	var k types.PublicKey
	if b := d.take(types.PublicKeySize); b != nil {
		copy(k[:], b)
	}
	return k
}

// VecBytes reads a Vec<u8>.
func (d *Decoder) VecBytes() []byte {
	n := d.U32()
	b := d.take(int(n))
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// VecU64 reads a Vec<u64>.
func (d *Decoder) VecU64() []uint64 {
	n := d.U32()
	if d.err != nil {
		return nil
	}
	if int(n) > d.Remaining()/8 {
		d.err = fmt.Errorf("%w: vec of %d u64", ErrShortData, n)
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = d.U64()
	}
	return out
}

func (d *Decoder) option() bool {
	switch tag := d.U8(); tag {
	case 0:
		return false
	case 1:
		return true
	default:
		if d.err == nil {
			d.err = fmt.Errorf("%w: %d", ErrInvalidOption, tag)
		}
		return false
	}
}

// OptionPublicKey reads Option<Pubkey>.
func (d *Decoder) OptionPublicKey() types.Option[types.PublicKey] {
	if !d.option() {
		return types.None[types.PublicKey]()
	}
	k := d.PublicKey()
	if d.err != nil {
		return types.None[types.PublicKey]()
	}
	return types.Some(k)
}

// OptionU32 reads Option<u32>.
func (d *Decoder) OptionU32() types.Option[uint32] {
	if !d.option() {
		return types.None[uint32]()
	}
	v := d.U32()
	if d.err != nil {
		return types.None[uint32]()
	}
	return types.Some(v)
}
