package protocol

import (
	"fmt"
	"math"

	"github.com/tilehook-project/tilehook/internal/wire"
)

// TileEntityHeader is the part of the tile entity frame shared by every
// kind. Index is only on the wire when the embedding context asks for it.
type TileEntityHeader struct {
	Index int32 `json:"index"`
	X     int16 `json:"x"`
	Y     int16 `json:"y"`
}

func (h *TileEntityHeader) Header() *TileEntityHeader { return h }

// TileEntity is implemented by every concrete tile entity kind.
type TileEntity interface {
	Kind() TileEntityKind
	Header() *TileEntityHeader
	DecodeBody(r *wire.Reader, ctx Context) error
	EncodeBody(w *wire.Writer, ctx Context) error
}

// DecodeTileEntity reads a tile entity frame: kind, index (if withIndex),
// x, y and the kind's body. An unregistered kind consumes the rest of r.
func DecodeTileEntity(r *wire.Reader, withIndex bool, ctx Context) (te TileEntity, err error) {
	k, err := r.ReadUint8()
	if err != nil {
		return nil, &CodecError{Op: OpDecode, Scope: ScopeTileEntity, Side: ctx.Side, Err: err}
	}
	kind := TileEntityKind(k)
	defer func() {
		if v := recover(); v != nil {
			te, err = nil, wrapError(panicError(v), OpDecode, ScopeTileEntity, k, ctx.Side)
		}
	}()

	info, ok := TileEntityRegistry.Lookup(kind)
	if !ok {
		u := &UnknownTileEntity{ID: kind}
		_ = u.DecodeBody(r, ctx)
		return u, nil
	}
	te = info.New()
	if err := decodeTileEntityFrame(r, te, info.IndexWidth, withIndex, ctx); err != nil {
		return nil, wrapError(err, OpDecode, ScopeTileEntity, k, ctx.Side)
	}
	return te, nil
}

func decodeTileEntityFrame(r *wire.Reader, te TileEntity, width int, withIndex bool, ctx Context) error {
	h := te.Header()
	if withIndex {
		switch width {
		case 2:
			v, err := r.ReadInt16()
			if err != nil {
				return err
			}
			h.Index = int32(v)
		default:
			v, err := r.ReadInt32()
			if err != nil {
				return err
			}
			h.Index = v
		}
	}
	var err error
	if h.X, err = r.ReadInt16(); err != nil {
		return err
	}
	if h.Y, err = r.ReadInt16(); err != nil {
		return err
	}
	return te.DecodeBody(r, ctx)
}

// EncodeTileEntity writes te as a tile entity frame. Kinds missing from the
// registry use a 4-byte index.
func EncodeTileEntity(w *wire.Writer, te TileEntity, withIndex bool, ctx Context) (err error) {
	if te == nil {
		return &CodecError{Op: OpEncode, Scope: ScopeTileEntity, Side: ctx.Side, Err: ErrMissingEntity}
	}
	k := uint8(te.Kind())
	defer func() {
		if v := recover(); v != nil {
			err = wrapError(panicError(v), OpEncode, ScopeTileEntity, k, ctx.Side)
		}
	}()

	w.WriteUint8(k)
	if u, ok := te.(*UnknownTileEntity); ok {
		return wrapError(u.EncodeBody(w, ctx), OpEncode, ScopeTileEntity, k, ctx.Side)
	}
	width := 4
	if info, ok := TileEntityRegistry.Lookup(te.Kind()); ok {
		width = info.IndexWidth
	}
	return wrapError(encodeTileEntityFrame(w, te, width, withIndex, ctx), OpEncode, ScopeTileEntity, k, ctx.Side)
}

func encodeTileEntityFrame(w *wire.Writer, te TileEntity, width int, withIndex bool, ctx Context) error {
	h := te.Header()
	if withIndex {
		if width == 2 {
			if h.Index < math.MinInt16 || h.Index > math.MaxInt16 {
				return fmt.Errorf("%w: %d in 2 bytes", ErrIndexOverflow, h.Index)
			}
			w.WriteInt16(int16(h.Index))
		} else {
			w.WriteInt32(h.Index)
		}
	}
	w.WriteInt16(h.X).WriteInt16(h.Y)
	return te.EncodeBody(w, ctx)
}
