package protocol

import (
	"fmt"
	"strings"
)

// Side is the perspective of the endpoint that produced a buffer. A buffer
// must be decoded with the Side it was encoded with; a mismatch is not
// detected and yields wrong field values for side-sensitive kinds.
type Side uint8

const (
	// ServerSide buffers were produced by the server (server to client).
	ServerSide Side = iota
	// ClientSide buffers were produced by a client (client to server).
	ClientSide
)

func (s Side) String() string {
	switch s {
	case ServerSide:
		return "server"
	case ClientSide:
		return "client"
	}
	return fmt.Sprintf("side(%d)", uint8(s))
}

// ParseSide accepts "server"/"s" and "client"/"c", case-insensitively.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server", "s":
		return ServerSide, nil
	case "client", "c":
		return ClientSide, nil
	}
	return 0, fmt.Errorf("unknown side %q (want server or client)", s)
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// GameData supplies game state that a few kinds need to know their own
// layout. It is injected per codec instead of looked up globally.
type GameData interface {
	// IsCatchableNPC reports whether NPCs of this net id carry a release
	// owner byte in SyncNPC.
	IsCatchableNPC(netID int16) bool
}

type noGameData struct{}

func (noGameData) IsCatchableNPC(int16) bool { return false }

// NoGameData answers false to every query.
var NoGameData GameData = noGameData{}

// CatchableSet is a GameData backed by a fixed set of catchable NPC ids.
type CatchableSet map[int16]struct{}

// NewCatchableSet builds a CatchableSet from ids.
func NewCatchableSet(ids ...int16) CatchableSet {
	s := make(CatchableSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s CatchableSet) IsCatchableNPC(netID int16) bool {
	_, ok := s[netID]
	return ok
}

// Context is passed to every body decode and encode.
type Context struct {
	Side Side
	Game GameData
}

func (c Context) game() GameData {
	if c.Game == nil {
		return NoGameData
	}
	return c.Game
}
