package protocol

import (
	"fmt"
	"math"

	"github.com/tilehook-project/tilehook/internal/wire"
)

// TileEditAction is the edit a TileChange performs.
type TileEditAction uint8

const (
	ActionKillTile TileEditAction = iota
	ActionPlaceTile
	ActionKillWall
	ActionPlaceWall
	ActionKillTileNoItem
	ActionPlaceWire
	ActionKillWire
	ActionPoundTile
	ActionPlaceActuator
	ActionKillActuator
	ActionPlaceWire2
	ActionKillWire2
	ActionPlaceWire3
	ActionKillWire3
	ActionSlopeTile
	ActionFrameTrack
	ActionPlaceWire4
	ActionKillWire4
	ActionPokeLogicGate
	ActionActuate
	ActionTryKillTile
	ActionReplaceTile
	ActionReplaceWall
	ActionSlopePoundTile
)

var tileEditActionNames = [...]string{
	"KillTile", "PlaceTile", "KillWall", "PlaceWall", "KillTileNoItem",
	"PlaceWire", "KillWire", "PoundTile", "PlaceActuator", "KillActuator",
	"PlaceWire2", "KillWire2", "PlaceWire3", "KillWire3", "SlopeTile",
	"FrameTrack", "PlaceWire4", "KillWire4", "PokeLogicGate", "Actuate",
	"TryKillTile", "ReplaceTile", "ReplaceWall", "SlopePoundTile",
}

func (a TileEditAction) String() string {
	if int(a) < len(tileEditActionNames) {
		return tileEditActionNames[a]
	}
	return fmt.Sprintf("TileEditAction(%d)", uint8(a))
}

func (a TileEditAction) valid() bool {
	return a <= ActionSlopePoundTile
}

// TileChange edits a single tile.
type TileChange struct {
	Action TileEditAction `json:"action"`
	X      int16          `json:"x"`
	Y      int16          `json:"y"`
	Flags1 int16          `json:"flags1"`
	Flags2 uint8          `json:"flags2"`
}

func (*TileChange) Kind() PacketKind { return PacketTileChange }

func (p *TileChange) DecodeBody(r *wire.Reader, _ Context) error {
	a, err := r.ReadUint8()
	if err != nil {
		return err
	}
	p.Action = TileEditAction(a)
	if !p.Action.valid() {
		return &InvalidEnumError{Field: "TileChange.Action", Value: int64(a)}
	}
	if p.X, err = r.ReadInt16(); err != nil {
		return err
	}
	if p.Y, err = r.ReadInt16(); err != nil {
		return err
	}
	if p.Flags1, err = r.ReadInt16(); err != nil {
		return err
	}
	p.Flags2, err = r.ReadUint8()
	return err
}

func (p *TileChange) EncodeBody(w *wire.Writer, _ Context) error {
	if !p.Action.valid() {
		return &InvalidEnumError{Field: "TileChange.Action", Value: int64(p.Action)}
	}
	w.WriteUint8(uint8(p.Action)).
		WriteInt16(p.X).
		WriteInt16(p.Y).
		WriteInt16(p.Flags1).
		WriteUint8(p.Flags2)
	return nil
}

// SyncNPC flag bits.
const (
	npcFlagDirection       = 0
	npcFlagDirectionY      = 1
	npcFlagAI0             = 2
	npcFlagSpriteDirection = 6
	npcFlagFullLife        = 7

	npcFlag2PlayerCountScale   = 0
	npcFlag2SpawnedFromStatue  = 1
	npcFlag2StrengthMultiplier = 2
)

// SyncNPC carries the state of one NPC. Optional fields are gated by two
// flag bytes that are derived from the field values on encode: an AI slot
// is sent when non-zero, PlayerCountScale and StrengthMultiplier when
// non-zero, and Life unless FullLife is set. ReleaseOwner is present only
// for NPCs the game data reports as catchable. A decoded record remembers
// optional fields that were flagged on the wire with a zero value, so they
// are sent again on re-encode.
type SyncNPC struct {
	Tracked
	NPCSlot            int16        `json:"npc_slot"`
	Position           wire.Vector2 `json:"position"`
	Velocity           wire.Vector2 `json:"velocity"`
	Target             uint16       `json:"target"`
	Direction          bool         `json:"direction"`
	DirectionY         bool         `json:"direction_y"`
	SpriteDirection    bool         `json:"sprite_direction"`
	FullLife           bool         `json:"full_life"`
	SpawnedFromStatue  bool         `json:"spawned_from_statue"`
	AI                 [4]float32   `json:"ai"`
	NetID              int16        `json:"net_id"`
	PlayerCountScale   uint8        `json:"player_count_scale,omitempty"`
	StrengthMultiplier float32      `json:"strength_multiplier,omitempty"`
	// LifeBytes is the wire width of Life: 1, 2 or 4. Zero picks the
	// narrowest width that fits; decode stores zero when the wire width is
	// the narrowest one.
	LifeBytes    uint8 `json:"life_bytes,omitempty"`
	Life         int32 `json:"life"`
	ReleaseOwner uint8 `json:"release_owner"`

	// flagged zero values seen on decode
	zeroFlags, zeroFlags2 wire.BitsByte
}

func (*SyncNPC) Kind() PacketKind { return PacketSyncNPC }

// SetLife sets a partial life value; the width is recomputed on encode.
func (p *SyncNPC) SetLife(v int32) {
	p.Life = v
	p.LifeBytes = 0
	p.FullLife = false
	p.MarkDirty()
}

func (p *SyncNPC) SetPosition(pos, vel wire.Vector2) {
	p.Position, p.Velocity = pos, vel
	p.MarkDirty()
}

func (p *SyncNPC) DecodeBody(r *wire.Reader, ctx Context) (err error) {
	if p.NPCSlot, err = r.ReadInt16(); err != nil {
		return
	}
	if p.Position, err = r.ReadVector2(); err != nil {
		return
	}
	if p.Velocity, err = r.ReadVector2(); err != nil {
		return
	}
	if p.Target, err = r.ReadUint16(); err != nil {
		return
	}
	bb, err := r.ReadBitsByte()
	if err != nil {
		return
	}
	bb2, err := r.ReadBitsByte()
	if err != nil {
		return
	}
	p.Direction = bb.Get(npcFlagDirection)
	p.DirectionY = bb.Get(npcFlagDirectionY)
	p.SpriteDirection = bb.Get(npcFlagSpriteDirection)
	p.FullLife = bb.Get(npcFlagFullLife)
	p.SpawnedFromStatue = bb2.Get(npcFlag2SpawnedFromStatue)
	p.zeroFlags, p.zeroFlags2 = 0, 0
	for i := range p.AI {
		if !bb.Get(npcFlagAI0 + i) {
			p.AI[i] = 0
			continue
		}
		if p.AI[i], err = r.ReadFloat32(); err != nil {
			return
		}
		p.zeroFlags.Set(npcFlagAI0+i, p.AI[i] == 0)
	}
	if p.NetID, err = r.ReadInt16(); err != nil {
		return
	}
	p.PlayerCountScale, p.StrengthMultiplier = 0, 0
	if bb2.Get(npcFlag2PlayerCountScale) {
		if p.PlayerCountScale, err = r.ReadUint8(); err != nil {
			return
		}
		p.zeroFlags2.Set(npcFlag2PlayerCountScale, p.PlayerCountScale == 0)
	}
	if bb2.Get(npcFlag2StrengthMultiplier) {
		if p.StrengthMultiplier, err = r.ReadFloat32(); err != nil {
			return
		}
		p.zeroFlags2.Set(npcFlag2StrengthMultiplier, p.StrengthMultiplier == 0)
	}
	if !p.FullLife {
		if err = p.readLife(r); err != nil {
			return
		}
	}
	if ctx.game().IsCatchableNPC(p.NetID) {
		p.ReleaseOwner, err = r.ReadUint8()
	}
	return
}

func (p *SyncNPC) readLife(r *wire.Reader) error {
	n, err := r.ReadUint8()
	if err != nil {
		return err
	}
	switch n {
	case 1:
		var v int8
		v, err = r.ReadInt8()
		p.Life = int32(v)
	case 2:
		var v int16
		v, err = r.ReadInt16()
		p.Life = int32(v)
	case 4:
		p.Life, err = r.ReadInt32()
	default:
		return &InvalidEnumError{Field: "SyncNPC.LifeBytes", Value: int64(n)}
	}
	if err != nil {
		return err
	}
	p.LifeBytes = n
	if n == lifeWidth(p.Life) {
		p.LifeBytes = 0
	}
	return nil
}

func (p *SyncNPC) EncodeBody(w *wire.Writer, ctx Context) error {
	var bb, bb2 wire.BitsByte
	bb.Set(npcFlagDirection, p.Direction)
	bb.Set(npcFlagDirectionY, p.DirectionY)
	bb.Set(npcFlagSpriteDirection, p.SpriteDirection)
	bb.Set(npcFlagFullLife, p.FullLife)
	for i, v := range p.AI {
		bb.Set(npcFlagAI0+i, v != 0 || p.zeroFlags.Get(npcFlagAI0+i))
	}
	bb2.Set(npcFlag2PlayerCountScale, p.PlayerCountScale != 0 || p.zeroFlags2.Get(npcFlag2PlayerCountScale))
	bb2.Set(npcFlag2SpawnedFromStatue, p.SpawnedFromStatue)
	bb2.Set(npcFlag2StrengthMultiplier, p.StrengthMultiplier != 0 || p.zeroFlags2.Get(npcFlag2StrengthMultiplier))

	w.WriteInt16(p.NPCSlot).
		WriteVector2(p.Position).
		WriteVector2(p.Velocity).
		WriteUint16(p.Target).
		WriteBitsByte(bb).
		WriteBitsByte(bb2)
	for i, v := range p.AI {
		if bb.Get(npcFlagAI0 + i) {
			w.WriteFloat32(v)
		}
	}
	w.WriteInt16(p.NetID)
	if bb2.Get(npcFlag2PlayerCountScale) {
		w.WriteUint8(p.PlayerCountScale)
	}
	if bb2.Get(npcFlag2StrengthMultiplier) {
		w.WriteFloat32(p.StrengthMultiplier)
	}
	if !p.FullLife {
		if err := p.writeLife(w); err != nil {
			return err
		}
	}
	if ctx.game().IsCatchableNPC(p.NetID) {
		w.WriteUint8(p.ReleaseOwner)
	}
	return nil
}

func (p *SyncNPC) writeLife(w *wire.Writer) error {
	n := p.LifeBytes
	if n == 0 {
		n = lifeWidth(p.Life)
	}
	switch n {
	case 1:
		if p.Life < math.MinInt8 || p.Life > math.MaxInt8 {
			return fmt.Errorf("npc life %d does not fit in 1 byte", p.Life)
		}
		w.WriteUint8(1).WriteInt8(int8(p.Life))
	case 2:
		if p.Life < math.MinInt16 || p.Life > math.MaxInt16 {
			return fmt.Errorf("npc life %d does not fit in 2 bytes", p.Life)
		}
		w.WriteUint8(2).WriteInt16(int16(p.Life))
	case 4:
		w.WriteUint8(4).WriteInt32(p.Life)
	default:
		return &InvalidEnumError{Field: "SyncNPC.LifeBytes", Value: int64(n)}
	}
	return nil
}

func lifeWidth(v int32) uint8 {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return 1
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return 2
	}
	return 4
}

// TileEntitySharing creates, updates or removes a tile entity. The entity
// follows only when IsNew is set and is sent without its index.
type TileEntitySharing struct {
	Tracked
	ID     int32      `json:"id"`
	IsNew  bool       `json:"is_new"`
	Entity TileEntity `json:"entity,omitempty"`
}

func (*TileEntitySharing) Kind() PacketKind { return PacketTileEntitySharing }

// SetEntity replaces the shared entity. A nil entity turns the packet into
// a removal.
func (p *TileEntitySharing) SetEntity(te TileEntity) {
	p.Entity = te
	p.IsNew = te != nil
	p.MarkDirty()
}

func (p *TileEntitySharing) DecodeBody(r *wire.Reader, ctx Context) (err error) {
	if p.ID, err = r.ReadInt32(); err != nil {
		return
	}
	if p.IsNew, err = r.ReadBool(); err != nil {
		return
	}
	if p.IsNew {
		p.Entity, err = DecodeTileEntity(r, false, ctx)
	}
	return
}

func (p *TileEntitySharing) EncodeBody(w *wire.Writer, ctx Context) error {
	w.WriteInt32(p.ID).WriteBool(p.IsNew)
	if !p.IsNew {
		return nil
	}
	if p.Entity == nil {
		return ErrMissingEntity
	}
	return EncodeTileEntity(w, p.Entity, false, ctx)
}

// TileEntityPlacement asks the server to place a tile entity of Kind.
type TileEntityPlacement struct {
	X          int16          `json:"x"`
	Y          int16          `json:"y"`
	EntityKind TileEntityKind `json:"entity_kind"`
}

func (*TileEntityPlacement) Kind() PacketKind { return PacketTileEntityPlacement }

func (p *TileEntityPlacement) DecodeBody(r *wire.Reader, _ Context) (err error) {
	if p.X, err = r.ReadInt16(); err != nil {
		return
	}
	if p.Y, err = r.ReadInt16(); err != nil {
		return
	}
	k, err := r.ReadUint8()
	p.EntityKind = TileEntityKind(k)
	return
}

func (p *TileEntityPlacement) EncodeBody(w *wire.Writer, _ Context) error {
	w.WriteInt16(p.X).WriteInt16(p.Y).WriteUint8(uint8(p.EntityKind))
	return nil
}

// ItemFrameTryPlacing puts an item into the item frame at X, Y.
type ItemFrameTryPlacing struct {
	Tracked
	X    int16    `json:"x"`
	Y    int16    `json:"y"`
	Item ItemData `json:"item"`
}

func (*ItemFrameTryPlacing) Kind() PacketKind { return PacketItemFrameTryPlacing }

func (p *ItemFrameTryPlacing) SetItem(it ItemData) {
	p.Item = it
	p.MarkDirty()
}

func (p *ItemFrameTryPlacing) DecodeBody(r *wire.Reader, _ Context) (err error) {
	if p.X, err = r.ReadInt16(); err != nil {
		return
	}
	if p.Y, err = r.ReadInt16(); err != nil {
		return
	}
	p.Item, err = readItemData(r)
	return
}

func (p *ItemFrameTryPlacing) EncodeBody(w *wire.Writer, _ Context) error {
	w.WriteInt16(p.X).WriteInt16(p.Y)
	writeItemData(w, p.Item)
	return nil
}
