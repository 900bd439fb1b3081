package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type testCase[T any] struct {
	desc      string
	expectErr error
	v         T
	ser       []byte
}

var varintCases = []testCase[uint32]{
	{desc: "zero", v: 0, ser: []byte{0x00}},
	{desc: "one", v: 1, ser: []byte{0x01}},
	{desc: "max single byte", v: 127, ser: []byte{0x7f}},
	{desc: "min two bytes", v: 128, ser: []byte{0x80, 0x01}},
	{desc: "255", v: 255, ser: []byte{0xff, 0x01}},
	{desc: "three bytes", v: 25565, ser: []byte{0xdd, 0xc7, 0x01}},
	{desc: "max int32", v: 2147483647, ser: []byte{0xff, 0xff, 0xff, 0xff, 0x07}},
	{desc: "max uint32", v: 0xffffffff, ser: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	{desc: "fifth byte overflows", expectErr: ErrVarIntTooLong, ser: []byte{0x80, 0x80, 0x80, 0x80, 0x10}},
	{desc: "six bytes", expectErr: ErrVarIntTooLong, ser: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x07}},
	{desc: "truncated", expectErr: ErrTruncated, ser: []byte{0xff, 0xff}},
	{desc: "empty", expectErr: ErrTruncated, ser: []byte{}},
}

func TestAppendVarUint32(t *testing.T) {
	for _, tc := range varintCases {
		if tc.expectErr != nil {
			continue
		}
		t.Run(tc.desc, func(t *testing.T) {
			got := AppendVarUint32(nil, tc.v)
			require.Equal(t, tc.ser, got)
			require.Equal(t, len(tc.ser), VarUint32Len(tc.v))
		})
	}
}

func TestReadVarUint32(t *testing.T) {
	for _, tc := range varintCases {
		t.Run(tc.desc, func(t *testing.T) {
			r := NewReader(tc.ser)
			got, err := r.ReadVarUint32()
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.v, got)
			require.Zero(t, r.Remaining(), "reader did not consume all bytes")
		})
	}
}

var stringCases = []testCase[string]{
	{desc: "empty", v: "", ser: []byte{0x00}},
	{desc: "ascii", v: "Hello", ser: []byte{0x05, 'H', 'e', 'l', 'l', 'o'}},
	{desc: "utf-8", v: "Go é", ser: []byte{0x05, 'G', 'o', ' ', 0xc3, 0xa9}},
	{
		desc: "two byte length",
		v:    string(bytes.Repeat([]byte{'a'}, 128)),
		ser:  append([]byte{0x80, 0x01}, bytes.Repeat([]byte{'a'}, 128)...),
	},
	{desc: "truncated length", expectErr: ErrTruncated, ser: []byte{0x80}},
	{desc: "truncated text", expectErr: ErrTruncated, ser: []byte{0x05, 'H', 'e'}},
	{desc: "negative length", expectErr: ErrNegativeLength, ser: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	{desc: "overlong length", expectErr: ErrVarIntTooLong, ser: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}},
}

func TestWriteString(t *testing.T) {
	for _, tc := range stringCases {
		if tc.expectErr != nil {
			continue
		}
		t.Run(tc.desc, func(t *testing.T) {
			w := NewWriter(nil)
			w.WriteString(tc.v)
			require.Equal(t, tc.ser, w.Bytes())
		})
	}
}

func TestReadString(t *testing.T) {
	for _, tc := range stringCases {
		t.Run(tc.desc, func(t *testing.T) {
			r := NewReader(tc.ser)
			got, err := r.ReadString()
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.v, got)
			require.Zero(t, r.Remaining())
		})
	}
}
