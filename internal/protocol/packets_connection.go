package protocol

import "github.com/tilehook-project/tilehook/internal/wire"

// ClientHello is the first packet a client sends, naming its build.
type ClientHello struct {
	Version string `json:"version"`
}

func (*ClientHello) Kind() PacketKind { return PacketClientHello }

func (p *ClientHello) DecodeBody(r *wire.Reader, _ Context) (err error) {
	p.Version, err = r.ReadString()
	return
}

func (p *ClientHello) EncodeBody(w *wire.Writer, _ Context) error {
	w.WriteString(p.Version)
	return nil
}

// Kick disconnects a client.
type Kick struct {
	Reason NetworkText `json:"reason"`
}

func (*Kick) Kind() PacketKind { return PacketKick }

func (p *Kick) DecodeBody(r *wire.Reader, _ Context) (err error) {
	p.Reason, err = readNetworkText(r)
	return
}

func (p *Kick) EncodeBody(w *wire.Writer, _ Context) error {
	return writeNetworkText(w, p.Reason)
}

// LoadPlayer assigns the client its player slot.
type LoadPlayer struct {
	PlayerSlot                 uint8 `json:"player_slot"`
	ServerWantsToRunCheckBytes bool  `json:"server_wants_to_run_check_bytes"`
}

func (*LoadPlayer) Kind() PacketKind { return PacketLoadPlayer }

func (p *LoadPlayer) DecodeBody(r *wire.Reader, _ Context) (err error) {
	if p.PlayerSlot, err = r.ReadUint8(); err != nil {
		return
	}
	p.ServerWantsToRunCheckBytes, err = r.ReadBool()
	return
}

func (p *LoadPlayer) EncodeBody(w *wire.Writer, _ Context) error {
	w.WriteUint8(p.PlayerSlot).WriteBool(p.ServerWantsToRunCheckBytes)
	return nil
}

// RequestWorldInfo has no body.
type RequestWorldInfo struct{}

func (*RequestWorldInfo) Kind() PacketKind                       { return PacketRequestWorldInfo }
func (*RequestWorldInfo) DecodeBody(*wire.Reader, Context) error { return nil }
func (*RequestWorldInfo) EncodeBody(*wire.Writer, Context) error { return nil }
