package protocol

import (
	"bytes"

	"github.com/tilehook-project/tilehook/internal/wire"
)

// UnknownPacket holds the body of a packet kind with no registered type.
// Re-encoding reproduces the original envelope exactly.
type UnknownPacket struct {
	ID      PacketKind `json:"id"`
	Payload []byte     `json:"payload"`
}

func (p *UnknownPacket) Kind() PacketKind { return p.ID }

func (p *UnknownPacket) DecodeBody(r *wire.Reader, _ Context) error {
	p.Payload = bytes.Clone(r.ReadRest())
	return nil
}

func (p *UnknownPacket) EncodeBody(w *wire.Writer, _ Context) error {
	w.WriteBytes(p.Payload)
	return nil
}

// UnknownTileEntity holds every byte after the kind id of an unregistered
// tile entity kind. Its header stays zero since the index width is unknown.
type UnknownTileEntity struct {
	TileEntityHeader
	ID      TileEntityKind `json:"id"`
	Payload []byte         `json:"payload"`
}

func (t *UnknownTileEntity) Kind() TileEntityKind { return t.ID }

func (t *UnknownTileEntity) DecodeBody(r *wire.Reader, _ Context) error {
	t.Payload = bytes.Clone(r.ReadRest())
	return nil
}

func (t *UnknownTileEntity) EncodeBody(w *wire.Writer, _ Context) error {
	w.WriteBytes(t.Payload)
	return nil
}
