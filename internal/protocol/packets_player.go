package protocol

import "github.com/tilehook-project/tilehook/internal/wire"

// SyncEquipment carries the contents of one inventory slot.
type SyncEquipment struct {
	Tracked
	PlayerSlot uint8 `json:"player_slot"`
	ItemSlot   int16 `json:"item_slot"`
	Stack      int16 `json:"stack"`
	Prefix     uint8 `json:"prefix"`
	ItemType   int16 `json:"item_type"`
}

func (*SyncEquipment) Kind() PacketKind { return PacketSyncEquipment }

// Item returns the slot contents as an ItemData.
func (p *SyncEquipment) Item() ItemData {
	return ItemData{ID: p.ItemType, Prefix: p.Prefix, Stack: p.Stack}
}

// SetItem replaces the slot contents.
func (p *SyncEquipment) SetItem(it ItemData) {
	p.ItemType, p.Prefix, p.Stack = it.ID, it.Prefix, it.Stack
	p.MarkDirty()
}

// SetStack changes the stack size only.
func (p *SyncEquipment) SetStack(n int16) {
	p.Stack = n
	p.MarkDirty()
}

func (p *SyncEquipment) DecodeBody(r *wire.Reader, _ Context) (err error) {
	if p.PlayerSlot, err = r.ReadUint8(); err != nil {
		return
	}
	if p.ItemSlot, err = r.ReadInt16(); err != nil {
		return
	}
	if p.Stack, err = r.ReadInt16(); err != nil {
		return
	}
	if p.Prefix, err = r.ReadUint8(); err != nil {
		return
	}
	p.ItemType, err = r.ReadInt16()
	return
}

func (p *SyncEquipment) EncodeBody(w *wire.Writer, _ Context) error {
	w.WriteUint8(p.PlayerSlot).
		WriteInt16(p.ItemSlot).
		WriteInt16(p.Stack).
		WriteUint8(p.Prefix).
		WriteInt16(p.ItemType)
	return nil
}

// PlayerHealth carries a player's current and maximum life.
type PlayerHealth struct {
	Tracked
	PlayerSlot  uint8 `json:"player_slot"`
	StatLife    int16 `json:"stat_life"`
	StatLifeMax int16 `json:"stat_life_max"`
}

func (*PlayerHealth) Kind() PacketKind { return PacketPlayerHealth }

func (p *PlayerHealth) SetLife(v int16) {
	p.StatLife = v
	p.MarkDirty()
}

func (p *PlayerHealth) SetLifeMax(v int16) {
	p.StatLifeMax = v
	p.MarkDirty()
}

func (p *PlayerHealth) DecodeBody(r *wire.Reader, _ Context) (err error) {
	if p.PlayerSlot, err = r.ReadUint8(); err != nil {
		return
	}
	if p.StatLife, err = r.ReadInt16(); err != nil {
		return
	}
	p.StatLifeMax, err = r.ReadInt16()
	return
}

func (p *PlayerHealth) EncodeBody(w *wire.Writer, _ Context) error {
	w.WriteUint8(p.PlayerSlot).WriteInt16(p.StatLife).WriteInt16(p.StatLifeMax)
	return nil
}

// Teleport flag bits.
const (
	TeleportFlagNPC            = 0
	TeleportFlagPlayerToPlayer = 1
	TeleportFlagHasExtraInfo   = 3
)

// Teleport moves a player or NPC. ExtraInfo is on the wire only when flag
// bit 3 is set; encode sets that bit whenever ExtraInfo is non-zero.
type Teleport struct {
	Tracked
	Flags      wire.BitsByte `json:"flags"`
	PlayerSlot int16         `json:"player_slot"`
	Position   wire.Vector2  `json:"position"`
	Style      uint8         `json:"style"`
	ExtraInfo  int32         `json:"extra_info"`
}

func (*Teleport) Kind() PacketKind { return PacketTeleport }

// SetPosition moves the teleport destination.
func (p *Teleport) SetPosition(v wire.Vector2) {
	p.Position = v
	p.MarkDirty()
}

// SetExtraInfo sets ExtraInfo and the flag that puts it on the wire.
func (p *Teleport) SetExtraInfo(v int32) {
	p.ExtraInfo = v
	p.Flags.Set(TeleportFlagHasExtraInfo, true)
	p.MarkDirty()
}

func (p *Teleport) DecodeBody(r *wire.Reader, _ Context) (err error) {
	if p.Flags, err = r.ReadBitsByte(); err != nil {
		return
	}
	if p.PlayerSlot, err = r.ReadInt16(); err != nil {
		return
	}
	if p.Position, err = r.ReadVector2(); err != nil {
		return
	}
	if p.Style, err = r.ReadUint8(); err != nil {
		return
	}
	if p.Flags.Get(TeleportFlagHasExtraInfo) {
		p.ExtraInfo, err = r.ReadInt32()
	}
	return
}

func (p *Teleport) EncodeBody(w *wire.Writer, _ Context) error {
	flags := p.Flags
	if p.ExtraInfo != 0 {
		flags.Set(TeleportFlagHasExtraInfo, true)
	}
	w.WriteBitsByte(flags).
		WriteInt16(p.PlayerSlot).
		WriteVector2(p.Position).
		WriteUint8(p.Style)
	if flags.Get(TeleportFlagHasExtraInfo) {
		w.WriteInt32(p.ExtraInfo)
	}
	return nil
}
