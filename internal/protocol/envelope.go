package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tilehook-project/tilehook/internal/wire"
)

// Observer is notified after every envelope decode and encode. It is called
// synchronously and must not block.
type Observer interface {
	ObserveDecode(kind PacketKind, side Side, known bool, err error)
	ObserveEncode(kind PacketKind, side Side, err error)
}

// Codec decodes and encodes packet envelopes. It holds no mutable state
// and is safe for concurrent use.
type Codec struct {
	packets  *Registry[PacketKind, PacketFactory]
	game     GameData
	logger   zerolog.Logger
	observer Observer
}

// Option configures a Codec.
type Option func(*Codec)

// WithGameData injects the game state used by state-dependent layouts.
func WithGameData(g GameData) Option {
	return func(c *Codec) {
		if g != nil {
			c.game = g
		}
	}
}

// WithLogger sets the logger used for unknown-kind diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Codec) { c.logger = l }
}

// WithObserver registers an observer for decode/encode outcomes.
func WithObserver(o Observer) Option {
	return func(c *Codec) { c.observer = o }
}

// WithPacketRegistry replaces the packet registry, typically with one that
// extends PacketRegistry with extra kinds.
func WithPacketRegistry(r *Registry[PacketKind, PacketFactory]) Option {
	return func(c *Codec) {
		if r != nil {
			c.packets = r
		}
	}
}

// NewCodec creates a codec over the static packet registry.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		packets: PacketRegistry,
		game:    NoGameData,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCodec = NewCodec()

// Decode decodes buf with a codec that has no game data.
func Decode(buf []byte, side Side) (Packet, error) {
	return defaultCodec.Decode(buf, side)
}

// Encode encodes p with a codec that has no game data.
func Encode(p Packet, side Side) ([]byte, error) {
	return defaultCodec.Encode(p, side)
}

func (c *Codec) context(side Side) Context {
	return Context{Side: side, Game: c.game}
}

// Decode parses one envelope from the start of buf. Bytes past the declared
// length are ignored. The returned packet never aliases buf.
func (c *Codec) Decode(buf []byte, side Side) (Packet, error) {
	if len(buf) < wire.FrameHeaderSize {
		err := &CodecError{Op: OpDecode, Scope: ScopePacket, Side: side, Err: wire.ErrTruncated}
		c.observeDecode(0, side, false, err)
		return nil, err
	}
	length := int(binary.LittleEndian.Uint16(buf))
	kind := PacketKind(buf[2])
	if length < wire.FrameHeaderSize || length > len(buf) {
		err := &CodecError{
			Op:    OpDecode,
			Scope: ScopePacket,
			Kind:  uint8(kind),
			Side:  side,
			Err:   fmt.Errorf("%w: declared %d, have %d", ErrBadLength, length, len(buf)),
		}
		c.observeDecode(kind, side, false, err)
		return nil, err
	}

	p, known := c.newPacket(kind)
	r := wire.NewReader(buf[wire.FrameHeaderSize:length])
	if err := c.decodeBody(p, r, side); err != nil {
		c.observeDecode(kind, side, known, err)
		return nil, err
	}
	if debugChecks && r.Remaining() != 0 {
		panic(fmt.Sprintf("protocol: %s decode left %d of %d body bytes", kind, r.Remaining(), length-wire.FrameHeaderSize))
	}
	c.observeDecode(kind, side, known, nil)
	return p, nil
}

func (c *Codec) newPacket(kind PacketKind) (Packet, bool) {
	if f, ok := c.packets.Lookup(kind); ok {
		return f(), true
	}
	c.logger.Debug().Uint8("kind", uint8(kind)).Msg("Unknown packet kind, keeping raw payload")
	return &UnknownPacket{ID: kind}, false
}

func (c *Codec) decodeBody(p Packet, r *wire.Reader, side Side) (err error) {
	kind := uint8(p.Kind())
	defer func() {
		if v := recover(); v != nil {
			err = wrapError(panicError(v), OpDecode, ScopePacket, kind, side)
		}
	}()
	return wrapError(p.DecodeBody(r, c.context(side)), OpDecode, ScopePacket, kind, side)
}

// Encode serializes p into a new buffer. On error the result is nil.
func (c *Codec) Encode(p Packet, side Side) ([]byte, error) {
	out, err := c.AppendEncode(nil, p, side)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendEncode appends the envelope for p to dst. On error dst is returned
// unchanged.
func (c *Codec) AppendEncode(dst []byte, p Packet, side Side) ([]byte, error) {
	if p == nil {
		return dst, &CodecError{Op: OpEncode, Scope: ScopePacket, Side: side, Err: ErrNilPacket}
	}
	kind := p.Kind()
	start := len(dst)
	w := wire.NewWriter(dst)
	off := w.Reserve(wire.FrameHeaderSize)
	if err := c.encodeBody(p, w, side); err != nil {
		c.observeEncode(kind, side, err)
		return dst[:start], err
	}
	total := w.Len() - off
	if total > wire.MaxFrameSize {
		err := &CodecError{
			Op:    OpEncode,
			Scope: ScopePacket,
			Kind:  uint8(kind),
			Side:  side,
			Err:   fmt.Errorf("%w: %d > %d", ErrOversizedBody, total, wire.MaxFrameSize),
		}
		c.observeEncode(kind, side, err)
		return dst[:start], err
	}
	w.PutUint16At(off, uint16(total))
	w.PutUint8At(off+2, uint8(kind))
	c.observeEncode(kind, side, nil)
	return w.Bytes(), nil
}

func (c *Codec) encodeBody(p Packet, w *wire.Writer, side Side) (err error) {
	kind := uint8(p.Kind())
	defer func() {
		if v := recover(); v != nil {
			err = wrapError(panicError(v), OpEncode, ScopePacket, kind, side)
		}
	}()
	return wrapError(p.EncodeBody(w, c.context(side)), OpEncode, ScopePacket, kind, side)
}

func (c *Codec) observeDecode(kind PacketKind, side Side, known bool, err error) {
	if c.observer != nil {
		c.observer.ObserveDecode(kind, side, known, err)
	}
}

func (c *Codec) observeEncode(kind PacketKind, side Side, err error) {
	if c.observer != nil {
		c.observer.ObserveEncode(kind, side, err)
	}
}
