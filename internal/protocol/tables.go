package protocol

// PacketFactory returns a new zero packet of one kind.
type PacketFactory func() Packet

// TileEntityInfo describes a registered tile entity kind. IndexWidth is the
// size of the index field when the frame carries one: 2 for the legacy
// kinds, 4 otherwise.
type TileEntityInfo struct {
	New        func() TileEntity
	IndexWidth int
}

func packet(k PacketKind, f PacketFactory) Entry[PacketKind, PacketFactory] {
	return Entry[PacketKind, PacketFactory]{Kind: k, Value: f}
}

func tileEntity(k TileEntityKind, width int, f func() TileEntity) Entry[TileEntityKind, TileEntityInfo] {
	return Entry[TileEntityKind, TileEntityInfo]{Kind: k, Value: TileEntityInfo{New: f, IndexWidth: width}}
}

// PacketRegistry maps every supported packet kind to its constructor.
var PacketRegistry = NewRegistry(
	packet(PacketClientHello, func() Packet { return &ClientHello{} }),
	packet(PacketKick, func() Packet { return &Kick{} }),
	packet(PacketLoadPlayer, func() Packet { return &LoadPlayer{} }),
	packet(PacketSyncEquipment, func() Packet { return &SyncEquipment{} }),
	packet(PacketRequestWorldInfo, func() Packet { return &RequestWorldInfo{} }),
	packet(PacketPlayerHealth, func() Packet { return &PlayerHealth{} }),
	packet(PacketTileChange, func() Packet { return &TileChange{} }),
	packet(PacketSyncNPC, func() Packet { return &SyncNPC{} }),
	packet(PacketTeleport, func() Packet { return &Teleport{} }),
	packet(PacketNetModules, func() Packet { return &NetModules{} }),
	packet(PacketTileEntitySharing, func() Packet { return &TileEntitySharing{} }),
	packet(PacketTileEntityPlacement, func() Packet { return &TileEntityPlacement{} }),
	packet(PacketItemFrameTryPlacing, func() Packet { return &ItemFrameTryPlacing{} }),
	packet(PacketSmartTextMessage, func() Packet { return &SmartTextMessage{} }),
)

// TileEntityRegistry maps every supported tile entity kind to its
// constructor and index width.
var TileEntityRegistry = NewRegistry(
	tileEntity(TileTrainingDummy, 2, func() TileEntity { return &TrainingDummy{} }),
	tileEntity(TileItemFrame, 4, func() TileEntity { return &ItemFrame{} }),
	tileEntity(TileLogicSensor, 4, func() TileEntity { return &LogicSensor{} }),
	tileEntity(TileDisplayDoll, 4, func() TileEntity { return &DisplayDoll{} }),
	tileEntity(TileWeaponsRack, 2, func() TileEntity { return &WeaponsRack{} }),
	tileEntity(TileHatRack, 4, func() TileEntity { return &HatRack{} }),
	tileEntity(TileFoodPlatter, 4, func() TileEntity { return &FoodPlatter{} }),
	tileEntity(TileTeleportationPylon, 4, func() TileEntity { return &TeleportationPylon{} }),
)
