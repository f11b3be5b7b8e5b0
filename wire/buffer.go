// Package wire implements the binary data primitives shared by the SSH-2
// transport (RFC 4251 §5) and the SFTP v3 sub-protocol, which reuses the
// same encoding rules for its packet bodies.
package wire

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned when a Consume call needs more bytes than the
// Buffer has remaining.
var ErrShortBuffer = errors.New("wire: buffer too short")

// Buffer is an append/consume cursor over a byte slice, used to build and
// parse SSH-encoded values without repeated small allocations.
type Buffer struct {
	b   []byte
	off int
}

// NewBuffer wraps buf for reading. The Buffer takes ownership of buf.
func NewBuffer(buf []byte) *Buffer {
	return &Buffer{b: buf}
}

// NewBufferWithCapacity returns an empty Buffer ready for Append calls,
// with size bytes preallocated.
func NewBufferWithCapacity(size int) *Buffer {
	return &Buffer{b: make([]byte, 0, size)}
}

// Bytes returns the unconsumed tail of the Buffer.
func (b *Buffer) Bytes() []byte { return b.b[b.off:] }

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int { return len(b.b) - b.off }

func (b *Buffer) need(n int) error {
	if b.Len() < n {
		return ErrShortBuffer
	}
	return nil
}

// AppendUint8 appends a single byte.
func (b *Buffer) AppendUint8(v uint8) { b.b = append(b.b, v) }

// AppendBool appends a single boolean byte (0 or 1).
func (b *Buffer) AppendBool(v bool) {
	if v {
		b.AppendUint8(1)
	} else {
		b.AppendUint8(0)
	}
}

// AppendUint32 appends a big-endian uint32.
func (b *Buffer) AppendUint32(v uint32) {
	b.b = append(b.b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// AppendUint64 appends a big-endian uint64.
func (b *Buffer) AppendUint64(v uint64) {
	b.AppendUint32(uint32(v >> 32))
	b.AppendUint32(uint32(v))
}

// AppendRawBytes appends v unframed, with no length prefix.
func (b *Buffer) AppendRawBytes(v []byte) { b.b = append(b.b, v...) }

// AppendString appends v as an SSH string: a uint32 length followed by the
// raw bytes.
func (b *Buffer) AppendString(v string) {
	b.AppendUint32(uint32(len(v)))
	b.b = append(b.b, v...)
}

// AppendBytes appends v as an SSH string (length-prefixed byte slice).
func (b *Buffer) AppendBytes(v []byte) {
	b.AppendUint32(uint32(len(v)))
	b.b = append(b.b, v...)
}

// AppendNameList appends names as a comma-joined SSH string, per RFC 4251
// §5 name-list.
func (b *Buffer) AppendNameList(names []string) {
	total := 0
	for i, n := range names {
		if i > 0 {
			total++
		}
		total += len(n)
	}
	b.AppendUint32(uint32(total))
	for i, n := range names {
		if i > 0 {
			b.b = append(b.b, ',')
		}
		b.b = append(b.b, n...)
	}
}

// AppendMPInt appends n as a signed SSH mpint: big-endian two's-complement
// magnitude, with a leading zero byte when the high bit of the first
// magnitude byte is set for a positive number. Zero encodes as the empty
// string.
func (b *Buffer) AppendMPInt(n *big.Int) {
	if n == nil || n.Sign() == 0 {
		b.AppendUint32(0)
		return
	}
	if n.Sign() < 0 {
		// Two's-complement negative encoding, used for private-key
		// component round-tripping; SSH mpints in this protocol are
		// never negative in practice (K, e, f are all positive), but
		// the helper is kept total.
		mag := new(big.Int).Neg(n)
		bs := mag.Bytes()
		out := make([]byte, len(bs))
		borrow := 1
		for i := len(bs) - 1; i >= 0; i-- {
			v := int(^bs[i]&0xff) + borrow
			out[i] = byte(v)
			borrow = v >> 8
		}
		if len(out) == 0 || out[0]&0x80 == 0 {
			out = append([]byte{0xff}, out...)
		}
		b.AppendBytes(out)
		return
	}
	bs := n.Bytes()
	if bs[0]&0x80 != 0 {
		padded := make([]byte, len(bs)+1)
		copy(padded[1:], bs)
		bs = padded
	}
	b.AppendBytes(bs)
}

// ConsumeUint8 consumes and returns a single byte.
func (b *Buffer) ConsumeUint8() (uint8, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.b[b.off]
	b.off++
	return v, nil
}

// ConsumeBool consumes a single boolean byte.
func (b *Buffer) ConsumeBool() (bool, error) {
	v, err := b.ConsumeUint8()
	return v != 0, err
}

// ConsumeUint32 consumes a big-endian uint32.
func (b *Buffer) ConsumeUint32() (uint32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.b[b.off:])
	b.off += 4
	return v, nil
}

// ConsumeUint64 consumes a big-endian uint64.
func (b *Buffer) ConsumeUint64() (uint64, error) {
	if err := b.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(b.b[b.off:])
	b.off += 8
	return v, nil
}

// ConsumeRawBytes consumes exactly n unframed bytes.
func (b *Buffer) ConsumeRawBytes(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	v := b.b[b.off : b.off+n]
	b.off += n
	return v, nil
}

// ConsumeString consumes an SSH string and returns it as a string.
func (b *Buffer) ConsumeString() (string, error) {
	v, err := b.ConsumeBytes()
	return string(v), err
}

// ConsumeBytes consumes an SSH string and returns its raw bytes. The
// returned slice aliases the Buffer's storage.
func (b *Buffer) ConsumeBytes() ([]byte, error) {
	n, err := b.ConsumeUint32()
	if err != nil {
		return nil, err
	}
	return b.ConsumeRawBytes(int(n))
}

// ConsumeNameList consumes an SSH name-list and splits it on commas. An
// empty list decodes to an empty, non-nil slice.
func (b *Buffer) ConsumeNameList() ([]string, error) {
	s, err := b.ConsumeString()
	if err != nil {
		return nil, err
	}
	if s == "" {
		return []string{}, nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out, nil
}

// ConsumeMPInt consumes a signed SSH mpint.
func (b *Buffer) ConsumeMPInt() (*big.Int, error) {
	bs, err := b.ConsumeBytes()
	if err != nil {
		return nil, err
	}
	n := new(big.Int)
	if len(bs) == 0 {
		return n, nil
	}
	if bs[0]&0x80 != 0 {
		// Negative: two's complement.
		tmp := make([]byte, len(bs))
		copy(tmp, bs)
		for i := range tmp {
			tmp[i] = ^tmp[i]
		}
		mag := new(big.Int).SetBytes(tmp)
		mag.Add(mag, big.NewInt(1))
		n.Neg(mag)
		return n, nil
	}
	n.SetBytes(bs)
	return n, nil
}
