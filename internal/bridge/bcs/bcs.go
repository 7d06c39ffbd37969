// Package bcs encodes and decodes the Move argument subset used by the bridge entry functions:
// byte vectors with a ULEB128 length prefix and little-endian u64 values.
package bcs

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTruncated    = errors.New("bcs: truncated input")
	ErrOverflow     = errors.New("bcs: uleb128 overflows u32")
	ErrTrailingData = errors.New("bcs: trailing bytes")
)

const maxSequenceLength = 1<<31 - 1

func AppendULEB128(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

func EncodeBytes(b []byte) []byte {
	out := make([]byte, 0, len(b)+5)
	out = AppendULEB128(out, uint32(len(b)))
	return append(out, b...)
}

func EncodeU64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

// Decoder reads values in order from a single argument buffer.
type Decoder struct {
	buf []byte
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

func (d *Decoder) ULEB128() (uint32, error) {
	var (
		v     uint64
		shift uint
	)
	for i, b := range d.buf {
		if shift > 28 {
			return 0, ErrOverflow
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if v > maxSequenceLength {
				return 0, ErrOverflow
			}
			d.buf = d.buf[i+1:]
			return uint32(v), nil
		}
		shift += 7
	}
	return 0, ErrTruncated
}

func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.ULEB128()
	if err != nil {
		return nil, err
	}
	if uint64(len(d.buf)) < uint64(n) {
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrTruncated, n, len(d.buf))
	}
	out := append([]byte(nil), d.buf[:n]...)
	d.buf = d.buf[n:]
	return out, nil
}

func (d *Decoder) U64() (uint64, error) {
	if len(d.buf) < 8 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(d.buf)
	d.buf = d.buf[8:]
	return v, nil
}

// Done fails if unread bytes remain.
func (d *Decoder) Done() error {
	if len(d.buf) != 0 {
		return fmt.Errorf("%w: %d", ErrTrailingData, len(d.buf))
	}
	return nil
}

func DecodeBytes(b []byte) ([]byte, error) {
	d := NewDecoder(b)
	out, err := d.Bytes()
	if err != nil {
		return nil, err
	}
	return out, d.Done()
}

func DecodeU64(b []byte) (uint64, error) {
	d := NewDecoder(b)
	v, err := d.U64()
	if err != nil {
		return 0, err
	}
	return v, d.Done()
}
