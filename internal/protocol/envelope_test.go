package protocol

import (
	"encoding/binary"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilehook-project/tilehook/internal/wire"
)

func TestEnvelopeLengthField(t *testing.T) {
	packets := []Packet{
		&RequestWorldInfo{},
		&ClientHello{Version: "Terraria279"},
		&PlayerHealth{PlayerSlot: 3, StatLife: 400, StatLifeMax: 500},
		&UnknownPacket{ID: 250, Payload: []byte{1, 2, 3}},
	}
	for _, p := range packets {
		buf, err := Encode(p, ServerSide)
		require.NoError(t, err)
		assert.Equal(t, len(buf), int(binary.LittleEndian.Uint16(buf)), p.Kind().String())
		assert.Equal(t, byte(p.Kind()), buf[2])
	}
}

func TestEnvelopeBytes(t *testing.T) {
	buf, err := Encode(&PlayerHealth{PlayerSlot: 3, StatLife: 400, StatLifeMax: 500}, ClientSide)
	require.NoError(t, err)
	assert.Equal(t, []byte{8, 0, 16, 3, 0x90, 0x01, 0xF4, 0x01}, buf)

	buf, err = Encode(&RequestWorldInfo{}, ClientSide)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 6}, buf)
}

func TestUnknownPacketIsLossless(t *testing.T) {
	buf := []byte{9, 0, 222, 0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}

	for _, side := range []Side{ServerSide, ClientSide} {
		p, err := Decode(buf, side)
		require.NoError(t, err)
		u, ok := p.(*UnknownPacket)
		require.True(t, ok, "got %T", p)
		assert.Equal(t, PacketKind(222), u.Kind())
		assert.Equal(t, buf[3:], u.Payload)

		out, err := Encode(u, side)
		require.NoError(t, err)
		assert.Equal(t, buf, out)
	}
}

func TestDecodeIgnoresBytesPastDeclaredLength(t *testing.T) {
	buf := []byte{5, 0, 200, 1, 2, 3, 4, 5}
	p, err := Decode(buf, ServerSide)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, p.(*UnknownPacket).Payload)
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	testCases := []struct {
		desc  string
		buf   []byte
		errIs error
	}{
		{desc: "empty", buf: nil, errIs: wire.ErrTruncated},
		{desc: "short header", buf: []byte{3, 0}, errIs: wire.ErrTruncated},
		{desc: "length below header", buf: []byte{2, 0, 1}, errIs: ErrBadLength},
		{desc: "length past buffer", buf: []byte{10, 0, 1, 0}, errIs: ErrBadLength},
		{desc: "truncated body", buf: []byte{5, 0, 16, 3, 0}, errIs: wire.ErrTruncated},
		{desc: "bad bool", buf: []byte{5, 0, 3, 1, 7}, errIs: wire.ErrInvalidBool},
		{desc: "bad varint", buf: []byte{9, 0, 1, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, errIs: wire.ErrVarIntTooLong},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			p, err := Decode(tC.buf, ServerSide)
			assert.Nil(t, p)
			require.ErrorIs(t, err, tC.errIs)

			var ce *CodecError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, OpDecode, ce.Op)
			assert.Equal(t, ScopePacket, ce.Scope)
			assert.Equal(t, ServerSide, ce.Side)
		})
	}
}

func TestDecodeErrorCarriesKind(t *testing.T) {
	_, err := Decode([]byte{5, 0, 16, 3, 0}, ClientSide)
	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, uint8(PacketPlayerHealth), ce.Kind)
	assert.Equal(t, ClientSide, ce.Side)
	assert.Contains(t, ce.Error(), "PlayerHealth")
}

func TestEncodeOversizedBody(t *testing.T) {
	fits := &UnknownPacket{ID: 200, Payload: make([]byte, wire.MaxFrameSize-wire.FrameHeaderSize)}
	buf, err := Encode(fits, ServerSide)
	require.NoError(t, err)
	assert.Len(t, buf, wire.MaxFrameSize)

	tooBig := &UnknownPacket{ID: 200, Payload: make([]byte, wire.MaxFrameSize-wire.FrameHeaderSize+1)}
	buf, err = Encode(tooBig, ServerSide)
	require.ErrorIs(t, err, ErrOversizedBody)
	assert.Nil(t, buf)

	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, OpEncode, ce.Op)
	assert.Equal(t, uint8(200), ce.Kind)
}

func TestAppendEncodeKeepsDstOnError(t *testing.T) {
	dst := []byte{0xAA, 0xBB}
	tooBig := &UnknownPacket{ID: 200, Payload: make([]byte, wire.MaxFrameSize)}

	out, err := defaultCodec.AppendEncode(dst, tooBig, ServerSide)
	require.Error(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, out)

	out, err = defaultCodec.AppendEncode(dst, &RequestWorldInfo{}, ServerSide)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 3, 0, 6}, out)
}

func TestEncodeNilPacket(t *testing.T) {
	buf, err := Encode(nil, ServerSide)
	assert.Nil(t, buf)
	assert.ErrorIs(t, err, ErrNilPacket)
}

type panicky struct{}

func (panicky) Kind() PacketKind { return 250 }

func (panicky) DecodeBody(r *wire.Reader, _ Context) error {
	var b []byte
	_ = b[r.Remaining()+1]
	return nil
}

func (panicky) EncodeBody(*wire.Writer, Context) error {
	panic("encode exploded")
}

func TestEntryPointsRecoverPanics(t *testing.T) {
	reg := NewRegistry(packet(250, func() Packet { return panicky{} }))
	codec := NewCodec(WithPacketRegistry(reg))

	_, err := codec.Decode([]byte{3, 0, 250}, ServerSide)
	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, uint8(250), ce.Kind)
	var re runtime.Error
	assert.True(t, errors.As(err, &re), "runtime error should stay in the chain")

	buf, err := codec.Encode(panicky{}, ClientSide)
	assert.Nil(t, buf)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, OpEncode, ce.Op)
	assert.Contains(t, err.Error(), "encode exploded")
}

func TestCodecErrorPassesThrough(t *testing.T) {
	// tile entity errors surface with their own scope through packet decode
	buf := []byte{13, 0, 86, 1, 0, 0, 0, 1, 2, 0, 0, 0, 0}
	_, err := Decode(buf, ServerSide)
	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ScopeTileEntity, ce.Scope)
	assert.Equal(t, uint8(TileLogicSensor), ce.Kind)
	assert.ErrorIs(t, err, wire.ErrTruncated)
}

type recordingObserver struct {
	decoded []PacketKind
	known   []bool
	encoded []PacketKind
	errs    int
}

func (o *recordingObserver) ObserveDecode(kind PacketKind, _ Side, known bool, err error) {
	o.decoded = append(o.decoded, kind)
	o.known = append(o.known, known)
	if err != nil {
		o.errs++
	}
}

func (o *recordingObserver) ObserveEncode(kind PacketKind, _ Side, err error) {
	o.encoded = append(o.encoded, kind)
	if err != nil {
		o.errs++
	}
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	codec := NewCodec(WithObserver(obs))

	_, err := codec.Decode([]byte{3, 0, 6}, ClientSide)
	require.NoError(t, err)
	_, err = codec.Decode([]byte{4, 0, 240, 1}, ClientSide)
	require.NoError(t, err)
	_, err = codec.Decode([]byte{4, 0, 16, 1}, ClientSide)
	require.Error(t, err)
	_, err = codec.Encode(&RequestWorldInfo{}, ServerSide)
	require.NoError(t, err)

	assert.Equal(t, []PacketKind{6, 240, 16}, obs.decoded)
	assert.Equal(t, []bool{true, false, true}, obs.known)
	assert.Equal(t, []PacketKind{6}, obs.encoded)
	assert.Equal(t, 1, obs.errs)
}
