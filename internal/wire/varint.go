package wire

// MaxVarIntLen is the longest legal encoding of a 32-bit 7-bit encoded
// integer.
const MaxVarIntLen = 5

// AppendVarUint32 appends v using 7 payload bits per byte, least
// significant group first, high bit set on every byte but the last.
func AppendVarUint32(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// VarUint32Len returns the encoded size of v.
func VarUint32Len(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// ReadVarUint32 reads a 7-bit encoded integer of at most MaxVarIntLen bytes.
// The last byte may carry only the 4 bits that remain of a uint32.
func (r *Reader) ReadVarUint32() (uint32, error) {
	var v uint32
	var shift uint

	for n := 0; n < MaxVarIntLen; n++ {
		b, err := r.ReadUint8()
		if err != nil {
			return 0, err
		}
		if n == MaxVarIntLen-1 && b > 0x0F {
			return 0, ErrVarIntTooLong
		}

		v |= uint32(b&0x7F) << shift
		shift += 7

		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, ErrVarIntTooLong
}
