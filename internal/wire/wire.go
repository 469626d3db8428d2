// Package wire implements the little-endian binary codec used by the
// Rill wire protocol. All multi-byte integers are little-endian; an
// implementation emitting big-endian integers is silently incompatible
// with the server.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Uint32Len = 4
	Uint64Len = 8
)

// ErrMalformed reports a payload shorter than its declared field
// lengths, or a discriminator byte with no known mapping.
var ErrMalformed = errors.New("malformed payload")

// AppendString appends a 4-byte little-endian length followed by the
// raw UTF-8 bytes of s, no terminator.
func AppendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

func AppendBool(b []byte, v bool) []byte {
	return append(b, BoolByte(v))
}

func BoolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// Reader advances a cursor over a response payload. Every read checks
// the remaining length and fails with ErrMalformed on shortfall; a
// Reader never reads past the end of its buffer.
type Reader struct {
	buf []byte
	off int
}

func NewReader(p []byte) *Reader {
	return &Reader{buf: p}
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) Empty() bool {
	return r.off >= len(r.buf)
}

func (r *Reader) Byte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("read byte: %w", ErrMalformed)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.Byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if r.Remaining() < Uint32Len {
		return 0, fmt.Errorf("read uint32: %w", ErrMalformed)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += Uint32Len
	return v, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if r.Remaining() < Uint64Len {
		return 0, fmt.Errorf("read uint64: %w", ErrMalformed)
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += Uint64Len
	return v, nil
}

// Bytes returns the next n bytes without copying. The returned slice
// aliases the underlying payload buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("read %d bytes: %w", n, ErrMalformed)
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p, nil
}

// String reads a 4-byte little-endian length followed by that many
// UTF-8 bytes.
func (r *Reader) String() (string, error) {
	n, err := r.Uint32()
	if err != nil {
		return "", err
	}
	p, err := r.Bytes(int(n))
	if err != nil {
		return "", fmt.Errorf("read string: %w", ErrMalformed)
	}
	return string(p), nil
}

// ShortString reads a 1-byte length followed by that many bytes.
func (r *Reader) ShortString() (string, error) {
	n, err := r.Byte()
	if err != nil {
		return "", err
	}
	p, err := r.Bytes(int(n))
	if err != nil {
		return "", fmt.Errorf("read short string: %w", ErrMalformed)
	}
	return string(p), nil
}
