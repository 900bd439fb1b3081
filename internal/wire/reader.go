// Package wire implements the little-endian primitives shared by every
// packet and tile-entity body: fixed-width integers, floats, 7-bit encoded
// lengths, length-prefixed text and flag bytes.
package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	ErrTruncated      = errors.New("truncated input")
	ErrVarIntTooLong  = errors.New("varint is too long")
	ErrNegativeLength = errors.New("negative length")
	ErrInvalidBool    = errors.New("invalid byte for bool field")
)

// Reader reads primitives from a byte slice without copying.
// Slices returned by ReadBytes and ReadRest alias the underlying buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader creates a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 || n > len(r.buf)-r.off {
		return nil, ErrTruncated
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	return r.ReadUint8()
}

func (r *Reader) ReadUint8() (uint8, error) {
	if r.off >= len(r.buf) {
		return 0, ErrTruncated
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// ReadBool accepts only 0 and 1 so that a decoded value re-encodes to the
// same byte.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, ErrInvalidBool
}

func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.ReadUint8()
	return int8(b), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadBitsByte() (BitsByte, error) {
	b, err := r.ReadUint8()
	return BitsByte(b), err
}

// ReadBytes returns the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.next(n)
}

// ReadRest returns every unread byte and leaves the reader exhausted.
func (r *Reader) ReadRest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

func (r *Reader) ReadVector2() (v Vector2, err error) {
	if v.X, err = r.ReadFloat32(); err != nil {
		return
	}
	v.Y, err = r.ReadFloat32()
	return
}

func (r *Reader) ReadColor() (c Color, err error) {
	b, err := r.next(3)
	if err != nil {
		return
	}
	c.R, c.G, c.B = b[0], b[1], b[2]
	return
}

// ReadString reads a 7-bit encoded length followed by that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadVarUint32()
	if err != nil {
		return "", err
	}
	if int32(n) < 0 {
		return "", ErrNegativeLength
	}
	b, err := r.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
