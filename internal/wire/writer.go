package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer builds little-endian encoded data. Writes never fail; the buffer
// grows as needed.
type Writer struct {
	buf []byte
}

// NewWriter creates a Writer that appends to buf.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Reset clears the writer for reuse, keeping its capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the written bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Truncate discards everything after the first n bytes.
func (w *Writer) Truncate(n int) {
	w.buf = w.buf[:n]
}

// Reserve appends n zero bytes and returns the offset of the first one,
// for values that are only known after the following data is written.
func (w *Writer) Reserve(n int) int {
	off := len(w.buf)
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
	return off
}

// PutUint16At overwrites two previously reserved bytes at off.
func (w *Writer) PutUint16At(off int, v uint16) {
	binary.LittleEndian.PutUint16(w.buf[off:off+2], v)
}

// PutUint8At overwrites one previously reserved byte at off.
func (w *Writer) PutUint8At(off int, v uint8) {
	w.buf[off] = v
}

func (w *Writer) WriteUint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) WriteInt8(v int8) *Writer {
	return w.WriteUint8(uint8(v))
}

func (w *Writer) WriteBool(v bool) *Writer {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

func (w *Writer) WriteBitsByte(v BitsByte) *Writer {
	return w.WriteUint8(uint8(v))
}

func (w *Writer) WriteUint16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) WriteInt16(v int16) *Writer {
	return w.WriteUint16(uint16(v))
}

func (w *Writer) WriteUint32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) WriteInt32(v int32) *Writer {
	return w.WriteUint32(uint32(v))
}

func (w *Writer) WriteFloat32(v float32) *Writer {
	return w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteBytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) WriteVector2(v Vector2) *Writer {
	return w.WriteFloat32(v.X).WriteFloat32(v.Y)
}

func (w *Writer) WriteColor(c Color) *Writer {
	w.buf = append(w.buf, c.R, c.G, c.B)
	return w
}

func (w *Writer) WriteVarUint32(v uint32) *Writer {
	w.buf = AppendVarUint32(w.buf, v)
	return w
}

// WriteString writes a 7-bit encoded byte length followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) *Writer {
	w.buf = AppendVarUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// String returns a hex dump of the written bytes for debugging.
func (w *Writer) String() string {
	return fmt.Sprintf("Writer[%d bytes]: %x", len(w.buf), w.buf)
}
