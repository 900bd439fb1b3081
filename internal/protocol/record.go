package protocol

import "github.com/tilehook-project/tilehook/internal/wire"

// Packet is implemented by every concrete packet kind.
type Packet interface {
	Kind() PacketKind
	DecodeBody(r *wire.Reader, ctx Context) error
	EncodeBody(w *wire.Writer, ctx Context) error
}

// Dirtier is implemented by records that track in-place mutation. Setting
// a tracked field marks the record dirty; Clean resets it.
type Dirtier interface {
	IsDirty() bool
	Clean()
}

// Tracked is embedded by records with tracked fields.
type Tracked struct {
	dirty bool
}

func (t *Tracked) IsDirty() bool { return t.dirty }
func (t *Tracked) Clean()        { t.dirty = false }
func (t *Tracked) MarkDirty()    { t.dirty = true }

// IsDirty reports whether v tracks mutation and has been mutated. Records
// without tracked fields are never dirty.
func IsDirty(v any) bool {
	if d, ok := v.(Dirtier); ok {
		return d.IsDirty()
	}
	return false
}

// Clean clears the dirty flag of v if it has one.
func Clean(v any) {
	if d, ok := v.(Dirtier); ok {
		d.Clean()
	}
}
