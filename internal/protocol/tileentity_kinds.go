package protocol

import "github.com/tilehook-project/tilehook/internal/wire"

// TrainingDummy tracks the NPC slot spawned for the dummy.
type TrainingDummy struct {
	TileEntityHeader
	NPC int16 `json:"npc"`
}

func (*TrainingDummy) Kind() TileEntityKind { return TileTrainingDummy }

func (t *TrainingDummy) DecodeBody(r *wire.Reader, _ Context) (err error) {
	t.NPC, err = r.ReadInt16()
	return
}

func (t *TrainingDummy) EncodeBody(w *wire.Writer, _ Context) error {
	w.WriteInt16(t.NPC)
	return nil
}

// ItemFrame displays a single item.
type ItemFrame struct {
	TileEntityHeader
	Item ItemData `json:"item"`
}

func (*ItemFrame) Kind() TileEntityKind { return TileItemFrame }

func (t *ItemFrame) DecodeBody(r *wire.Reader, _ Context) (err error) {
	t.Item, err = readItemData(r)
	return
}

func (t *ItemFrame) EncodeBody(w *wire.Writer, _ Context) error {
	writeItemData(w, t.Item)
	return nil
}

// LogicCheckType is the condition a logic sensor watches.
type LogicCheckType uint8

const (
	LogicNone LogicCheckType = iota
	LogicDay
	LogicNight
	LogicPlayerAbove
	LogicWater
	LogicLava
	LogicHoney
	LogicLiquid
)

var logicCheckNames = [...]string{"none", "day", "night", "player_above", "water", "lava", "honey", "liquid"}

func (l LogicCheckType) String() string {
	if int(l) < len(logicCheckNames) {
		return logicCheckNames[l]
	}
	return "invalid"
}

// LogicSensor is a wiring sensor.
type LogicSensor struct {
	TileEntityHeader
	Type        LogicCheckType `json:"type"`
	IsActivated bool           `json:"is_activated"`
}

func (*LogicSensor) Kind() TileEntityKind { return TileLogicSensor }

func (t *LogicSensor) DecodeBody(r *wire.Reader, _ Context) error {
	v, err := r.ReadUint8()
	if err != nil {
		return err
	}
	if LogicCheckType(v) > LogicLiquid {
		return &InvalidEnumError{Field: "LogicSensor.Type", Value: int64(v)}
	}
	t.Type = LogicCheckType(v)
	t.IsActivated, err = r.ReadBool()
	return err
}

func (t *LogicSensor) EncodeBody(w *wire.Writer, _ Context) error {
	if t.Type > LogicLiquid {
		return &InvalidEnumError{Field: "LogicSensor.Type", Value: int64(t.Type)}
	}
	w.WriteUint8(uint8(t.Type)).WriteBool(t.IsActivated)
	return nil
}

const (
	displayDollSlots = 8
	hatRackSlots     = 2
)

// DisplayDoll (mannequin) holds armor and accessories with matching dyes.
type DisplayDoll struct {
	TileEntityHeader
	Items [displayDollSlots]ItemData `json:"items"`
	Dyes  [displayDollSlots]ItemData `json:"dyes"`
}

func (*DisplayDoll) Kind() TileEntityKind { return TileDisplayDoll }

func (t *DisplayDoll) DecodeBody(r *wire.Reader, _ Context) error {
	var slots [2 * displayDollSlots]ItemData
	if err := ReadItemSlots(r, slots[:]); err != nil {
		return err
	}
	copy(t.Items[:], slots[:displayDollSlots])
	copy(t.Dyes[:], slots[displayDollSlots:])
	return nil
}

func (t *DisplayDoll) EncodeBody(w *wire.Writer, _ Context) error {
	var slots [2 * displayDollSlots]ItemData
	copy(slots[:displayDollSlots], t.Items[:])
	copy(slots[displayDollSlots:], t.Dyes[:])
	WriteItemSlots(w, slots[:])
	return nil
}

// WeaponsRack displays a single weapon.
type WeaponsRack struct {
	TileEntityHeader
	Item ItemData `json:"item"`
}

func (*WeaponsRack) Kind() TileEntityKind { return TileWeaponsRack }

func (t *WeaponsRack) DecodeBody(r *wire.Reader, _ Context) (err error) {
	t.Item, err = readItemData(r)
	return
}

func (t *WeaponsRack) EncodeBody(w *wire.Writer, _ Context) error {
	writeItemData(w, t.Item)
	return nil
}

// HatRack holds two hats with their dyes.
type HatRack struct {
	TileEntityHeader
	Hats [hatRackSlots]ItemData `json:"hats"`
	Dyes [hatRackSlots]ItemData `json:"dyes"`
}

func (*HatRack) Kind() TileEntityKind { return TileHatRack }

func (t *HatRack) DecodeBody(r *wire.Reader, _ Context) error {
	var slots [2 * hatRackSlots]ItemData
	if err := ReadItemSlots(r, slots[:]); err != nil {
		return err
	}
	copy(t.Hats[:], slots[:hatRackSlots])
	copy(t.Dyes[:], slots[hatRackSlots:])
	return nil
}

func (t *HatRack) EncodeBody(w *wire.Writer, _ Context) error {
	var slots [2 * hatRackSlots]ItemData
	copy(slots[:hatRackSlots], t.Hats[:])
	copy(slots[hatRackSlots:], t.Dyes[:])
	WriteItemSlots(w, slots[:])
	return nil
}

// FoodPlatter displays a single food item.
type FoodPlatter struct {
	TileEntityHeader
	Item ItemData `json:"item"`
}

func (*FoodPlatter) Kind() TileEntityKind { return TileFoodPlatter }

func (t *FoodPlatter) DecodeBody(r *wire.Reader, _ Context) (err error) {
	t.Item, err = readItemData(r)
	return
}

func (t *FoodPlatter) EncodeBody(w *wire.Writer, _ Context) error {
	writeItemData(w, t.Item)
	return nil
}

// TeleportationPylon has no state beyond its position.
type TeleportationPylon struct {
	TileEntityHeader
}

func (*TeleportationPylon) Kind() TileEntityKind { return TileTeleportationPylon }

func (*TeleportationPylon) DecodeBody(*wire.Reader, Context) error { return nil }

func (*TeleportationPylon) EncodeBody(*wire.Writer, Context) error { return nil }
