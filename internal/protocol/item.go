package protocol

import "github.com/tilehook-project/tilehook/internal/wire"

// Item and prefix ids referenced by tooling and tests.
const (
	ItemNone int16 = 0
	ItemSDMG int16 = 1553

	PrefixNone   uint8 = 0
	PrefixUnreal uint8 = 82
)

// ItemDataSize is the encoded size of an ItemData.
const ItemDataSize = 5

// ItemData is an item stack as stored in tile entity slots.
type ItemData struct {
	ID     int16 `json:"id"`
	Prefix uint8 `json:"prefix"`
	Stack  int16 `json:"stack"`
}

// IsEmpty reports whether the slot holds nothing.
func (i ItemData) IsEmpty() bool {
	return i.ID == ItemNone && i.Stack == 0
}

func readItemData(r *wire.Reader) (it ItemData, err error) {
	if it.ID, err = r.ReadInt16(); err != nil {
		return
	}
	if it.Prefix, err = r.ReadUint8(); err != nil {
		return
	}
	it.Stack, err = r.ReadInt16()
	return
}

func writeItemData(w *wire.Writer, it ItemData) {
	w.WriteInt16(it.ID).WriteUint8(it.Prefix).WriteInt16(it.Stack)
}

// ReadItemSlots fills slots from a flag-gated list: ceil(n/8) flag bytes,
// bit i set when slot i follows. Absent slots are set to empty.
func ReadItemSlots(r *wire.Reader, slots []ItemData) error {
	flags, err := r.ReadBytes(wire.FlagBytes(len(slots)))
	if err != nil {
		return err
	}
	for i := range slots {
		if flags[i/8]&(1<<(i%8)) == 0 {
			slots[i] = ItemData{}
			continue
		}
		if slots[i], err = readItemData(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteItemSlots writes slots as a flag-gated list. Flags are derived from
// emptiness, so an empty slot is never written.
func WriteItemSlots(w *wire.Writer, slots []ItemData) {
	flags := make([]byte, wire.FlagBytes(len(slots)))
	for i, it := range slots {
		if !it.IsEmpty() {
			flags[i/8] |= 1 << (i % 8)
		}
	}
	w.WriteBytes(flags)
	for _, it := range slots {
		if !it.IsEmpty() {
			writeItemData(w, it)
		}
	}
}
