// Package protocol implements the packet codec for the game's client/server
// traffic. Every packet uses little-endian byte order inside an envelope of
// a 2-byte total length (header included) and a 1-byte kind id. Some
// packets embed tile entities, which carry their own kind id space.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// PacketKind selects the concrete packet type of an envelope.
type PacketKind uint8

const (
	PacketClientHello         PacketKind = 1   // Client version announcement
	PacketKick                PacketKind = 2   // Disconnect with reason
	PacketLoadPlayer          PacketKind = 3   // Player slot assignment
	PacketSyncEquipment       PacketKind = 5   // Inventory slot contents
	PacketRequestWorldInfo    PacketKind = 6   // Client asks for world metadata
	PacketPlayerHealth        PacketKind = 16  // Current and max life
	PacketTileChange          PacketKind = 17  // Single tile edit
	PacketSyncNPC             PacketKind = 23  // NPC state update
	PacketTeleport            PacketKind = 65  // Entity teleport
	PacketNetModules          PacketKind = 82  // Module multiplexed payload (chat, ...)
	PacketTileEntitySharing   PacketKind = 86  // Tile entity create/update/remove
	PacketTileEntityPlacement PacketKind = 87  // Request to place a tile entity
	PacketItemFrameTryPlacing PacketKind = 89  // Put an item into an item frame
	PacketSmartTextMessage    PacketKind = 107 // Colored, width-limited text
)

var packetNames = map[PacketKind]string{
	PacketClientHello:         "ClientHello",
	PacketKick:                "Kick",
	PacketLoadPlayer:          "LoadPlayer",
	PacketSyncEquipment:       "SyncEquipment",
	PacketRequestWorldInfo:    "RequestWorldInfo",
	PacketPlayerHealth:        "PlayerHealth",
	PacketTileChange:          "TileChange",
	PacketSyncNPC:             "SyncNPC",
	PacketTeleport:            "Teleport",
	PacketNetModules:          "NetModules",
	PacketTileEntitySharing:   "TileEntitySharing",
	PacketTileEntityPlacement: "TileEntityPlacement",
	PacketItemFrameTryPlacing: "ItemFrameTryPlacing",
	PacketSmartTextMessage:    "SmartTextMessage",
}

func (k PacketKind) String() string {
	if s, ok := packetNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", uint8(k))
}

// ParsePacketKind accepts a kind name (case-insensitive) or a decimal id.
// Any id in 0-255 is accepted, registered or not.
func ParsePacketKind(s string) (PacketKind, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return PacketKind(n), nil
	}
	for k, name := range packetNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown packet kind %q", s)
}

// TileEntityKind selects the concrete tile entity type.
type TileEntityKind uint8

const (
	TileTrainingDummy      TileEntityKind = 0
	TileItemFrame          TileEntityKind = 1
	TileLogicSensor        TileEntityKind = 2
	TileDisplayDoll        TileEntityKind = 3
	TileWeaponsRack        TileEntityKind = 4
	TileHatRack            TileEntityKind = 5
	TileFoodPlatter        TileEntityKind = 6
	TileTeleportationPylon TileEntityKind = 7
)

var tileEntityNames = map[TileEntityKind]string{
	TileTrainingDummy:      "TrainingDummy",
	TileItemFrame:          "ItemFrame",
	TileLogicSensor:        "LogicSensor",
	TileDisplayDoll:        "DisplayDoll",
	TileWeaponsRack:        "WeaponsRack",
	TileHatRack:            "HatRack",
	TileFoodPlatter:        "FoodPlatter",
	TileTeleportationPylon: "TeleportationPylon",
}

func (k TileEntityKind) String() string {
	if s, ok := tileEntityNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", uint8(k))
}

// KindInfo describes one registered kind for introspection.
type KindInfo struct {
	ID         uint8  `json:"id"`
	Name       string `json:"name"`
	IndexWidth int    `json:"index_width,omitempty"`
}

// PacketKinds lists every registered packet kind in ascending id order.
func PacketKinds() []KindInfo {
	kinds := PacketRegistry.Kinds()
	out := make([]KindInfo, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, KindInfo{ID: uint8(k), Name: k.String()})
	}
	return out
}

// TileEntityKinds lists every registered tile entity kind with its index
// width.
func TileEntityKinds() []KindInfo {
	kinds := TileEntityRegistry.Kinds()
	out := make([]KindInfo, 0, len(kinds))
	for _, k := range kinds {
		info, _ := TileEntityRegistry.Lookup(k)
		out = append(out, KindInfo{ID: uint8(k), Name: k.String(), IndexWidth: info.IndexWidth})
	}
	return out
}
