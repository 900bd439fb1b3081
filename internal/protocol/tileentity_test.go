package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilehook-project/tilehook/internal/wire"
)

var serverCtx = Context{Side: ServerSide}

func decodeTile(t *testing.T, buf []byte, withIndex bool) (TileEntity, *wire.Reader) {
	t.Helper()
	r := wire.NewReader(buf)
	te, err := DecodeTileEntity(r, withIndex, serverCtx)
	require.NoError(t, err)
	return te, r
}

func encodeTile(t *testing.T, te TileEntity, withIndex bool) []byte {
	t.Helper()
	w := wire.NewWriter(nil)
	require.NoError(t, EncodeTileEntity(w, te, withIndex, serverCtx))
	return w.Bytes()
}

func TestItemFrameBytes(t *testing.T) {
	buf := []byte{1, 10, 0, 0, 0, 0, 1, 100, 0, 17, 6, 82, 1, 0}

	te, r := decodeTile(t, buf, true)
	assert.Zero(t, r.Remaining())

	frame, ok := te.(*ItemFrame)
	require.True(t, ok, "got %T", te)
	assert.Equal(t, int32(10), frame.Index)
	assert.Equal(t, int16(256), frame.X)
	assert.Equal(t, int16(100), frame.Y)
	assert.Equal(t, ItemData{ID: ItemSDMG, Prefix: PrefixUnreal, Stack: 1}, frame.Item)

	assert.Equal(t, buf, encodeTile(t, frame, true))
}

func TestLogicSensorBytes(t *testing.T) {
	buf := []byte{2, 10, 0, 0, 0, 0, 1, 100, 0, 1, 1}

	te, r := decodeTile(t, buf, true)
	assert.Zero(t, r.Remaining())

	sensor, ok := te.(*LogicSensor)
	require.True(t, ok, "got %T", te)
	assert.Equal(t, TileEntityHeader{Index: 10, X: 256, Y: 100}, sensor.TileEntityHeader)
	assert.Equal(t, LogicDay, sensor.Type)
	assert.True(t, sensor.IsActivated)

	assert.Equal(t, buf, encodeTile(t, sensor, true))
}

func TestMultiSlotAllFlagsClear(t *testing.T) {
	t.Run("hat rack", func(t *testing.T) {
		buf := []byte{5, 10, 0, 0, 0, 0, 1, 100, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

		te, r := decodeTile(t, buf, true)
		rack, ok := te.(*HatRack)
		require.True(t, ok, "got %T", te)
		assert.Equal(t, [2]ItemData{}, rack.Hats)
		assert.Equal(t, [2]ItemData{}, rack.Dyes)
		// one flag byte, no slot bytes
		assert.Equal(t, len(buf)-10, r.Remaining())

		assert.Equal(t, buf[:10], encodeTile(t, rack, true))
	})

	t.Run("display doll", func(t *testing.T) {
		buf := []byte{3, 10, 0, 0, 0, 0, 1, 100, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

		te, r := decodeTile(t, buf, true)
		doll, ok := te.(*DisplayDoll)
		require.True(t, ok, "got %T", te)
		assert.Equal(t, [8]ItemData{}, doll.Items)
		assert.Equal(t, [8]ItemData{}, doll.Dyes)
		assert.Equal(t, len(buf)-11, r.Remaining())

		assert.Equal(t, buf[:11], encodeTile(t, doll, true))
	})
}

func TestSlotFlagsFollowEmptiness(t *testing.T) {
	doll := &DisplayDoll{TileEntityHeader: TileEntityHeader{Index: 1, X: -5, Y: 7}}
	doll.Items[0] = ItemData{ID: 10, Stack: 1}
	doll.Items[7] = ItemData{ID: 11, Prefix: 3, Stack: 1}
	doll.Dyes[1] = ItemData{ID: 12, Stack: 1}
	// prefix alone does not make a slot present
	doll.Dyes[2] = ItemData{Prefix: 9}

	buf := encodeTile(t, doll, false)
	// kind, x, y, then two flag bytes
	require.Len(t, buf, 1+2+2+2+3*ItemDataSize)
	assert.Equal(t, byte(0b1000_0001), buf[5])
	assert.Equal(t, byte(0b0000_0010), buf[6])

	te, r := decodeTile(t, buf, false)
	assert.Zero(t, r.Remaining())
	got := te.(*DisplayDoll)
	assert.Equal(t, doll.Items, got.Items)
	assert.Equal(t, ItemData{ID: 12, Stack: 1}, got.Dyes[1])
	assert.True(t, got.Dyes[2].IsEmpty())
	assert.Equal(t, int32(0), got.Index)
}

func TestTileEntityRoundTrip(t *testing.T) {
	item := ItemData{ID: ItemSDMG, Prefix: PrefixUnreal, Stack: 1}
	hdr := TileEntityHeader{Index: 32000, X: -32768, Y: 32767}
	entities := []TileEntity{
		&TrainingDummy{TileEntityHeader: hdr, NPC: -1},
		&ItemFrame{TileEntityHeader: hdr, Item: item},
		&LogicSensor{TileEntityHeader: hdr, Type: LogicLiquid},
		&DisplayDoll{TileEntityHeader: hdr, Items: [8]ItemData{2: item}, Dyes: [8]ItemData{7: item}},
		&WeaponsRack{TileEntityHeader: hdr, Item: item},
		&HatRack{TileEntityHeader: hdr, Hats: [2]ItemData{item, item}, Dyes: [2]ItemData{1: item}},
		&FoodPlatter{TileEntityHeader: hdr},
		&TeleportationPylon{TileEntityHeader: hdr},
	}
	for _, te := range entities {
		t.Run(te.Kind().String(), func(t *testing.T) {
			buf := encodeTile(t, te, true)
			got, r := decodeTile(t, buf, true)
			assert.Zero(t, r.Remaining())
			assert.Equal(t, te, got)
			assert.Equal(t, buf, encodeTile(t, got, true))
		})
	}
}

func TestTileEntityIndexWidth(t *testing.T) {
	hdr := TileEntityHeader{Index: 7, X: 1, Y: 2}

	legacy := encodeTile(t, &WeaponsRack{TileEntityHeader: hdr}, true)
	assert.Equal(t, []byte{4, 7, 0, 1, 0, 2, 0, 0, 0, 0, 0, 0}, legacy)

	modern := encodeTile(t, &FoodPlatter{TileEntityHeader: hdr}, true)
	assert.Equal(t, []byte{6, 7, 0, 0, 0, 1, 0, 2, 0, 0, 0, 0, 0, 0}, modern)

	noIndex := encodeTile(t, &FoodPlatter{TileEntityHeader: hdr}, false)
	assert.Equal(t, []byte{6, 1, 0, 2, 0, 0, 0, 0, 0, 0}, noIndex)
}

func TestTileEntityIndexOverflow(t *testing.T) {
	w := wire.NewWriter(nil)
	err := EncodeTileEntity(w, &TrainingDummy{TileEntityHeader: TileEntityHeader{Index: 40000}}, true, serverCtx)
	require.ErrorIs(t, err, ErrIndexOverflow)

	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ScopeTileEntity, ce.Scope)
	assert.Equal(t, uint8(TileTrainingDummy), ce.Kind)
	assert.Equal(t, OpEncode, ce.Op)
}

func TestUnknownTileEntityEcho(t *testing.T) {
	buf := []byte{200, 1, 2, 3, 4, 5, 6, 7}

	te, r := decodeTile(t, buf, true)
	assert.Zero(t, r.Remaining())
	u, ok := te.(*UnknownTileEntity)
	require.True(t, ok, "got %T", te)
	assert.Equal(t, TileEntityKind(200), u.Kind())
	assert.Equal(t, buf[1:], u.Payload)

	// the payload is a copy
	buf[1] = 99
	assert.Equal(t, byte(1), u.Payload[0])

	assert.Equal(t, []byte{200, 1, 2, 3, 4, 5, 6, 7}, encodeTile(t, u, true))
}

func TestTileEntityDecodeErrors(t *testing.T) {
	testCases := []struct {
		desc   string
		buf    []byte
		errIs  error
		asEnum bool
	}{
		{desc: "empty", buf: nil, errIs: wire.ErrTruncated},
		{desc: "short index", buf: []byte{1, 10, 0}, errIs: wire.ErrTruncated},
		{desc: "short item", buf: []byte{1, 10, 0, 0, 0, 0, 1, 100, 0, 17}, errIs: wire.ErrTruncated},
		{desc: "sensor enum", buf: []byte{2, 10, 0, 0, 0, 0, 1, 100, 0, 8, 1}, asEnum: true},
		{desc: "sensor bool", buf: []byte{2, 10, 0, 0, 0, 0, 1, 100, 0, 1, 2}, errIs: wire.ErrInvalidBool},
		{desc: "missing slot", buf: []byte{5, 10, 0, 0, 0, 0, 1, 100, 0, 1}, errIs: wire.ErrTruncated},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			te, err := DecodeTileEntity(wire.NewReader(tC.buf), true, serverCtx)
			require.Error(t, err)
			assert.Nil(t, te)

			var ce *CodecError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, ScopeTileEntity, ce.Scope)
			assert.Equal(t, OpDecode, ce.Op)
			if tC.errIs != nil {
				assert.ErrorIs(t, err, tC.errIs)
			}
			if tC.asEnum {
				var ee *InvalidEnumError
				assert.ErrorAs(t, err, &ee)
			}
		})
	}
}

func TestItemSlotsHelpers(t *testing.T) {
	slots := make([]ItemData, 9)
	slots[8] = ItemData{ID: 1, Stack: 2}

	w := wire.NewWriter(nil)
	WriteItemSlots(w, slots)
	assert.Equal(t, []byte{0, 1, 1, 0, 0, 2, 0}, w.Bytes())

	got := make([]ItemData, 9)
	got[0] = ItemData{ID: 5, Stack: 5}
	require.NoError(t, ReadItemSlots(wire.NewReader(w.Bytes()), got))
	assert.Equal(t, slots, got)
}
