// Package intercept runs decoded packets through ordered hooks and decides
// whether the original bytes, re-encoded bytes or nothing is forwarded.
package intercept

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tilehook-project/tilehook/internal/events"
	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/telemetry"
	"github.com/tilehook-project/tilehook/internal/wire"
)

// HookFunc inspects or mutates one packet. A returned error is logged and
// the remaining hooks still run.
type HookFunc func(ctx context.Context, ev *PacketEvent) error

// PacketEvent is the per-packet state hooks operate on.
type PacketEvent struct {
	Packet protocol.Packet
	Side   protocol.Side
	// Raw is the envelope as received. Hooks must not modify it.
	Raw []byte

	cancelled   bool
	cancelledBy string
	dirty       bool
}

// Cancel stops the packet from being forwarded. Later hooks are skipped.
func (e *PacketEvent) Cancel(by string) {
	if !e.cancelled {
		e.cancelled = true
		e.cancelledBy = by
	}
}

// Cancelled reports whether a hook cancelled the packet.
func (e *PacketEvent) Cancelled() bool {
	return e.cancelled
}

// MarkDirty forces re-encoding for packets without their own tracking,
// such as UnknownPacket or a direct field write.
func (e *PacketEvent) MarkDirty() {
	e.dirty = true
}

// Dirty reports whether the packet must be re-encoded.
func (e *PacketEvent) Dirty() bool {
	return e.dirty || protocol.IsDirty(e.Packet)
}

type namedHook struct {
	name string
	fn   HookFunc
}

// Interceptor holds the hook chains. Register hooks before traffic starts;
// Process may then be called from many goroutines.
type Interceptor struct {
	mu    sync.RWMutex
	hooks map[protocol.PacketKind][]namedHook
	all   []namedHook

	codec    *protocol.Codec
	bus      *events.EventBus
	stats    *telemetry.Stats
	unknowns UnknownRecorder
	logger   zerolog.Logger
	strict   bool
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithEventBus publishes drop, rewrite, codec error and unknown kind events.
func WithEventBus(bus *events.EventBus) Option {
	return func(i *Interceptor) { i.bus = bus }
}

// WithStats counts drops and rewrites.
func WithStats(s *telemetry.Stats) Option {
	return func(i *Interceptor) { i.stats = s }
}

// WithUnknownRecorder forwards unknown packet and tile entity bodies to r.
func WithUnknownRecorder(r UnknownRecorder) Option {
	return func(i *Interceptor) { i.unknowns = r }
}

// WithLogger sets the interceptor logger.
func WithLogger(l zerolog.Logger) Option {
	return func(i *Interceptor) { i.logger = l }
}

// WithStrict drops packets that fail to decode instead of forwarding them
// untouched.
func WithStrict(strict bool) Option {
	return func(i *Interceptor) { i.strict = strict }
}

// NewInterceptor creates an interceptor around codec. A nil codec uses a
// codec without game data.
func NewInterceptor(codec *protocol.Codec, opts ...Option) *Interceptor {
	if codec == nil {
		codec = protocol.NewCodec()
	}
	i := &Interceptor{
		hooks:  make(map[protocol.PacketKind][]namedHook),
		codec:  codec,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Codec returns the codec packets are decoded with.
func (i *Interceptor) Codec() *protocol.Codec {
	return i.codec
}

// Handle appends a hook for one kind. Hooks run in registration order.
func (i *Interceptor) Handle(kind protocol.PacketKind, name string, fn HookFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.hooks[kind] = append(i.hooks[kind], namedHook{name: name, fn: fn})
}

// HandleAll appends a hook that runs for every kind after the kind hooks.
func (i *Interceptor) HandleAll(name string, fn HookFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.all = append(i.all, namedHook{name: name, fn: fn})
}

// HookCount returns the number of hooks that would run for kind.
func (i *Interceptor) HookCount(kind protocol.PacketKind) int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.hooks[kind]) + len(i.all)
}

func (i *Interceptor) chain(kind protocol.PacketKind) []namedHook {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]namedHook, 0, len(i.hooks[kind])+len(i.all))
	out = append(out, i.hooks[kind]...)
	return append(out, i.all...)
}

// Process decodes one envelope and runs its hooks. It returns the bytes to
// forward and whether to forward at all. Unchanged packets are forwarded as
// the original envelope bytes, without anything past the declared length.
// A decode error is returned along with the forwarding decision, which
// depends on strict mode.
func (i *Interceptor) Process(ctx context.Context, raw []byte, side protocol.Side) ([]byte, bool, error) {
	p, err := i.codec.Decode(raw, side)
	if err != nil {
		kind := kindOf(raw)
		i.emitCodecError(ctx, err, side)
		if i.strict {
			i.drop(ctx, kind, side, len(raw), events.DropReasonDecodeError, "")
			return nil, false, err
		}
		if n := int(frameLength(raw)); n >= wire.FrameHeaderSize && n <= len(raw) {
			return raw[:n], true, err
		}
		return raw, true, err
	}

	kind := p.Kind()
	i.noteUnknown(ctx, p, side)

	ev := &PacketEvent{Packet: p, Side: side, Raw: raw}
	for _, h := range i.chain(kind) {
		i.runHook(ctx, h, ev)
		if ev.cancelled {
			i.drop(ctx, kind, side, len(raw), events.DropReasonHook, ev.cancelledBy)
			return nil, false, nil
		}
	}

	frame := raw[:frameLength(raw)]
	if !ev.Dirty() {
		return frame, true, nil
	}

	out, err := i.codec.Encode(p, side)
	if err != nil {
		i.emitCodecError(ctx, err, side)
		i.drop(ctx, kind, side, len(raw), events.DropReasonEncodeError, "")
		return nil, false, err
	}
	protocol.Clean(p)

	if !bytes.Equal(out, frame) {
		i.rewritten(ctx, kind, side, len(raw), len(out))
	}
	return out, true, nil
}

func (i *Interceptor) runHook(ctx context.Context, h namedHook, ev *PacketEvent) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error().
				Str("hook", h.name).
				Str("kind", ev.Packet.Kind().String()).
				Interface("panic", r).
				Msg("hook panicked")
		}
	}()
	if err := h.fn(ctx, ev); err != nil {
		i.logger.Warn().
			Err(err).
			Str("hook", h.name).
			Str("kind", ev.Packet.Kind().String()).
			Msg("hook returned error")
	}
}

// ProcessStream reads envelopes from r until EOF, processes each and
// writes the forwarded ones to w. It returns the number of frames read.
func (i *Interceptor) ProcessStream(ctx context.Context, r io.Reader, w io.Writer, side protocol.Side) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		frame, err := wire.ReadFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		n++

		out, forward, err := i.Process(ctx, frame, side)
		if err != nil {
			i.logger.Debug().Err(err).Int("frame", n).Msg("frame did not decode")
		}
		if !forward {
			continue
		}
		if err := wire.WriteFrame(w, out); err != nil {
			return n, fmt.Errorf("frame %d: %w", n, err)
		}
	}
}

// noteUnknown records an unregistered packet kind, or an unregistered tile
// entity kind carried by TileEntitySharing.
func (i *Interceptor) noteUnknown(ctx context.Context, p protocol.Packet, side protocol.Side) {
	var s UnknownSample
	switch v := p.(type) {
	case *protocol.UnknownPacket:
		s = UnknownSample{Scope: protocol.ScopePacket, Kind: uint8(v.ID), Side: side, Payload: v.Payload}
	case *protocol.TileEntitySharing:
		u, ok := v.Entity.(*protocol.UnknownTileEntity)
		if !ok {
			return
		}
		s = UnknownSample{Scope: protocol.ScopeTileEntity, Kind: uint8(u.ID), Side: side, Payload: u.Payload}
	default:
		return
	}
	// hooks may modify the decoded payload afterwards
	s.Payload = bytes.Clone(s.Payload)
	if i.unknowns != nil {
		i.unknowns.RecordUnknown(s)
	}
	i.emit(ctx, events.EventUnknownKind, events.UnknownKindPayload{
		Scope:   string(s.Scope),
		Kind:    s.Kind,
		Side:    side,
		Payload: s.Payload,
	})
}

func (i *Interceptor) drop(ctx context.Context, kind protocol.PacketKind, side protocol.Side, size int, reason events.DropReason, by string) {
	if i.stats != nil {
		i.stats.AddDropped(kind, side)
	}
	i.logger.Debug().
		Str("kind", kind.String()).
		Str("side", side.String()).
		Str("reason", reason.String()).
		Str("by", by).
		Msg("packet dropped")
	i.emit(ctx, events.EventPacketDropped, events.PacketDroppedPayload{
		Kind:   kind,
		Side:   side,
		Size:   size,
		Reason: reason,
		By:     by,
	})
}

func (i *Interceptor) rewritten(ctx context.Context, kind protocol.PacketKind, side protocol.Side, oldSize, newSize int) {
	if i.stats != nil {
		i.stats.AddRewritten(kind, side)
	}
	i.emit(ctx, events.EventPacketRewritten, events.PacketRewrittenPayload{
		Kind:    kind,
		Side:    side,
		OldSize: oldSize,
		NewSize: newSize,
	})
}

func (i *Interceptor) emitCodecError(ctx context.Context, err error, side protocol.Side) {
	payload := events.CodecErrorPayload{Side: side, Error: err.Error()}
	var ce *protocol.CodecError
	if errors.As(err, &ce) {
		payload.Kind = ce.Kind
		payload.Scope = string(ce.Scope)
		payload.Op = ce.Op
	}
	i.emit(ctx, events.EventCodecError, payload)
}

func (i *Interceptor) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if i.bus == nil {
		return
	}
	i.bus.Emit(ctx, events.NewEvent(t, "intercept", payload))
}

func kindOf(raw []byte) protocol.PacketKind {
	if len(raw) < wire.FrameHeaderSize {
		return 0
	}
	return protocol.PacketKind(raw[2])
}

func frameLength(raw []byte) uint16 {
	if len(raw) < 2 {
		return 0
	}
	return uint16(raw[0]) | uint16(raw[1])<<8
}
