package protocol

import (
	"bytes"

	"github.com/tilehook-project/tilehook/internal/wire"
)

// Net module ids carried by NetModules.
const (
	NetModuleLiquid   uint16 = 0
	NetModuleText     uint16 = 1
	NetModulePing     uint16 = 2
	NetModuleAmbience uint16 = 3
	NetModuleBestiary uint16 = 4
)

// NetTextModule is the chat module. Clients send a command id and raw
// message; the server broadcasts an author, a NetworkText and a color.
type NetTextModule struct {
	// Client to server.
	Command string `json:"command,omitempty"`
	Message string `json:"message,omitempty"`

	// Server to client.
	AuthorIndex uint8       `json:"author_index"`
	Text        NetworkText `json:"text"`
	Color       wire.Color  `json:"color"`
}

func (m *NetTextModule) decode(r *wire.Reader, side Side) (err error) {
	if side == ClientSide {
		if m.Command, err = r.ReadString(); err != nil {
			return
		}
		m.Message, err = r.ReadString()
		return
	}
	if m.AuthorIndex, err = r.ReadUint8(); err != nil {
		return
	}
	if m.Text, err = readNetworkText(r); err != nil {
		return
	}
	m.Color, err = r.ReadColor()
	return
}

func (m *NetTextModule) encode(w *wire.Writer, side Side) error {
	if side == ClientSide {
		w.WriteString(m.Command).WriteString(m.Message)
		return nil
	}
	w.WriteUint8(m.AuthorIndex)
	if err := writeNetworkText(w, m.Text); err != nil {
		return err
	}
	w.WriteColor(m.Color)
	return nil
}

// NetModules multiplexes module payloads. The text module is decoded, with
// a layout that depends on the producing side; every other module keeps its
// payload verbatim.
type NetModules struct {
	Tracked
	ModuleType uint16         `json:"module_type"`
	Text       *NetTextModule `json:"text,omitempty"`
	Payload    []byte         `json:"payload,omitempty"`
}

func (*NetModules) Kind() PacketKind { return PacketNetModules }

// SetText replaces the chat module contents.
func (p *NetModules) SetText(m *NetTextModule) {
	p.ModuleType = NetModuleText
	p.Text = m
	p.Payload = nil
	p.MarkDirty()
}

func (p *NetModules) DecodeBody(r *wire.Reader, ctx Context) (err error) {
	if p.ModuleType, err = r.ReadUint16(); err != nil {
		return
	}
	if p.ModuleType == NetModuleText {
		p.Text = &NetTextModule{}
		return p.Text.decode(r, ctx.Side)
	}
	p.Payload = bytes.Clone(r.ReadRest())
	return nil
}

func (p *NetModules) EncodeBody(w *wire.Writer, ctx Context) error {
	w.WriteUint16(p.ModuleType)
	if p.ModuleType == NetModuleText {
		if p.Text == nil {
			return ErrMissingModule
		}
		return p.Text.encode(w, ctx.Side)
	}
	w.WriteBytes(p.Payload)
	return nil
}

// SmartTextMessage shows colored text wrapped to Width.
type SmartTextMessage struct {
	Color wire.Color  `json:"color"`
	Text  NetworkText `json:"text"`
	Width int16       `json:"width"`
}

func (*SmartTextMessage) Kind() PacketKind { return PacketSmartTextMessage }

func (p *SmartTextMessage) DecodeBody(r *wire.Reader, _ Context) (err error) {
	if p.Color, err = r.ReadColor(); err != nil {
		return
	}
	if p.Text, err = readNetworkText(r); err != nil {
		return
	}
	p.Width, err = r.ReadInt16()
	return
}

func (p *SmartTextMessage) EncodeBody(w *wire.Writer, _ Context) error {
	w.WriteColor(p.Color)
	if err := writeNetworkText(w, p.Text); err != nil {
		return err
	}
	w.WriteInt16(p.Width)
	return nil
}
