package intercept

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilehook-project/tilehook/internal/events"
	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/telemetry"
)

// PlayerHealth: slot 3, life 600, max 600.
var healthFrame = []byte{8, 0, 16, 3, 0x58, 0x02, 0x58, 0x02}

type unknownSink struct {
	mu  sync.Mutex
	got []UnknownSample
}

func (s *unknownSink) RecordUnknown(u UnknownSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, u)
}

func waitEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return events.Event{}
}

func subscribe(bus *events.EventBus, t events.EventType) <-chan events.Event {
	ch := make(chan events.Event, 8)
	bus.Subscribe(t, "test", func(_ context.Context, ev events.Event) error {
		ch <- ev
		return nil
	})
	return ch
}

func TestProcessForwardsOriginalBytes(t *testing.T) {
	i := NewInterceptor(nil)
	called := 0
	i.Handle(protocol.PacketPlayerHealth, "look", func(_ context.Context, ev *PacketEvent) error {
		called++
		ph := ev.Packet.(*protocol.PlayerHealth)
		assert.Equal(t, int16(600), ph.StatLife)
		return nil
	})

	raw := append(bytes.Clone(healthFrame), 0xEE) // trailing byte outside the envelope
	out, forward, err := i.Process(context.Background(), raw, protocol.ClientSide)
	require.NoError(t, err)
	assert.True(t, forward)
	assert.Equal(t, healthFrame, out)
	assert.Equal(t, 1, called)
}

func TestProcessReencodesDirtyPacket(t *testing.T) {
	stats := telemetry.NewStats()
	bus := events.NewEventBus()
	defer bus.Stop()
	rewritten := subscribe(bus, events.EventPacketRewritten)

	i := NewInterceptor(protocol.NewCodec(protocol.WithObserver(stats)), WithStats(stats), WithEventBus(bus))
	i.Handle(protocol.PacketPlayerHealth, "clamp", func(_ context.Context, ev *PacketEvent) error {
		ev.Packet.(*protocol.PlayerHealth).SetLife(500)
		return nil
	})

	out, forward, err := i.Process(context.Background(), healthFrame, protocol.ClientSide)
	require.NoError(t, err)
	assert.True(t, forward)
	assert.Equal(t, []byte{8, 0, 16, 3, 0xF4, 0x01, 0x58, 0x02}, out)

	ev := waitEvent(t, rewritten)
	p := ev.Payload.(events.PacketRewrittenPayload)
	assert.Equal(t, protocol.PacketPlayerHealth, p.Kind)
	assert.Equal(t, 8, p.NewSize)

	totals := stats.Totals()
	assert.Equal(t, int64(1), totals.Decoded)
	assert.Equal(t, int64(1), totals.Encoded)
	assert.Equal(t, int64(1), totals.Rewritten)
}

func TestProcessMarkDirtyOnUnknown(t *testing.T) {
	i := NewInterceptor(nil)
	i.Handle(250, "patch", func(_ context.Context, ev *PacketEvent) error {
		u := ev.Packet.(*protocol.UnknownPacket)
		u.Payload = append(u.Payload, 7)
		ev.MarkDirty()
		return nil
	})

	out, forward, err := i.Process(context.Background(), []byte{5, 0, 250, 1, 2}, protocol.ServerSide)
	require.NoError(t, err)
	assert.True(t, forward)
	assert.Equal(t, []byte{6, 0, 250, 1, 2, 7}, out)
}

func TestProcessCancel(t *testing.T) {
	stats := telemetry.NewStats()
	bus := events.NewEventBus()
	defer bus.Stop()
	dropped := subscribe(bus, events.EventPacketDropped)

	i := NewInterceptor(nil, WithStats(stats), WithEventBus(bus))
	later := false
	i.Handle(protocol.PacketPlayerHealth, "block", func(_ context.Context, ev *PacketEvent) error {
		ev.Cancel("block")
		return nil
	})
	i.HandleAll("after", func(_ context.Context, ev *PacketEvent) error {
		later = true
		return nil
	})

	out, forward, err := i.Process(context.Background(), healthFrame, protocol.ClientSide)
	require.NoError(t, err)
	assert.False(t, forward)
	assert.Nil(t, out)
	assert.False(t, later)

	p := waitEvent(t, dropped).Payload.(events.PacketDroppedPayload)
	assert.Equal(t, events.DropReasonHook, p.Reason)
	assert.Equal(t, "block", p.By)
	assert.Equal(t, int64(1), stats.Totals().Dropped)
}

func TestProcessHookErrorsAndPanics(t *testing.T) {
	i := NewInterceptor(nil)
	i.Handle(protocol.PacketPlayerHealth, "fails", func(context.Context, *PacketEvent) error {
		return errors.New("nope")
	})
	i.Handle(protocol.PacketPlayerHealth, "panics", func(context.Context, *PacketEvent) error {
		panic("hook bug")
	})
	reached := false
	i.HandleAll("last", func(context.Context, *PacketEvent) error {
		reached = true
		return nil
	})
	assert.Equal(t, 3, i.HookCount(protocol.PacketPlayerHealth))

	out, forward, err := i.Process(context.Background(), healthFrame, protocol.ClientSide)
	require.NoError(t, err)
	assert.True(t, forward)
	assert.Equal(t, healthFrame, out)
	assert.True(t, reached)
}

func TestProcessDecodeError(t *testing.T) {
	bad := []byte{6, 0, 16, 3, 0x58, 0x02} // PlayerHealth missing life max

	bus := events.NewEventBus()
	defer bus.Stop()
	codecErrs := subscribe(bus, events.EventCodecError)

	i := NewInterceptor(nil, WithEventBus(bus))
	out, forward, err := i.Process(context.Background(), bad, protocol.ClientSide)
	require.Error(t, err)
	assert.True(t, forward)
	assert.Equal(t, bad, out)

	p := waitEvent(t, codecErrs).Payload.(events.CodecErrorPayload)
	assert.Equal(t, uint8(16), p.Kind)
	assert.Equal(t, "packet", p.Scope)
	assert.Equal(t, protocol.OpDecode, p.Op)

	// forwarded undecoded frames stop at the declared length
	out, forward, err = i.Process(context.Background(), append(bytes.Clone(bad), 0xEE, 0xEF), protocol.ClientSide)
	require.Error(t, err)
	assert.True(t, forward)
	assert.Equal(t, bad, out)

	// a length past the buffer forwards what arrived
	short := []byte{9, 0, 16, 3}
	out, forward, err = i.Process(context.Background(), short, protocol.ClientSide)
	require.Error(t, err)
	assert.True(t, forward)
	assert.Equal(t, short, out)

	strict := NewInterceptor(nil, WithStrict(true))
	out, forward, err = strict.Process(context.Background(), bad, protocol.ClientSide)
	require.Error(t, err)
	assert.False(t, forward)
	assert.Nil(t, out)
}

func TestProcessUnknownKind(t *testing.T) {
	sink := &unknownSink{}
	bus := events.NewEventBus()
	defer bus.Stop()
	unknown := subscribe(bus, events.EventUnknownKind)

	i := NewInterceptor(nil, WithUnknownRecorder(sink), WithEventBus(bus))
	raw := []byte{6, 0, 240, 9, 8, 7}
	out, forward, err := i.Process(context.Background(), raw, protocol.ServerSide)
	require.NoError(t, err)
	assert.True(t, forward)
	assert.Equal(t, raw, out)

	require.Len(t, sink.got, 1)
	assert.Equal(t, UnknownSample{Scope: protocol.ScopePacket, Kind: 240, Side: protocol.ServerSide, Payload: []byte{9, 8, 7}}, sink.got[0])

	p := waitEvent(t, unknown).Payload.(events.UnknownKindPayload)
	assert.Equal(t, "packet", p.Scope)
	assert.Equal(t, uint8(240), p.Kind)
	assert.Equal(t, []byte{9, 8, 7}, p.Payload)
}

func TestProcessUnknownTileEntity(t *testing.T) {
	sink := &unknownSink{}
	bus := events.NewEventBus()
	defer bus.Stop()
	unknown := subscribe(bus, events.EventUnknownKind)

	i := NewInterceptor(nil, WithUnknownRecorder(sink), WithEventBus(bus))
	i.Handle(protocol.PacketTileEntitySharing, "scribble", func(_ context.Context, ev *PacketEvent) error {
		u := ev.Packet.(*protocol.TileEntitySharing).Entity.(*protocol.UnknownTileEntity)
		u.Payload[0] = 0
		return nil
	})

	raw, err := protocol.Encode(&protocol.TileEntitySharing{
		ID:     3,
		IsNew:  true,
		Entity: &protocol.UnknownTileEntity{ID: 200, Payload: []byte{5, 6}},
	}, protocol.ServerSide)
	require.NoError(t, err)

	_, forward, err := i.Process(context.Background(), raw, protocol.ServerSide)
	require.NoError(t, err)
	assert.True(t, forward)

	require.Len(t, sink.got, 1)
	assert.Equal(t, UnknownSample{Scope: protocol.ScopeTileEntity, Kind: 200, Side: protocol.ServerSide, Payload: []byte{5, 6}}, sink.got[0])

	p := waitEvent(t, unknown).Payload.(events.UnknownKindPayload)
	assert.Equal(t, "tile_entity", p.Scope)
	assert.Equal(t, uint8(200), p.Kind)

	// a known entity records nothing
	known, err := protocol.Encode(&protocol.TileEntitySharing{ID: 4}, protocol.ServerSide)
	require.NoError(t, err)
	_, _, err = i.Process(context.Background(), known, protocol.ServerSide)
	require.NoError(t, err)
	assert.Len(t, sink.got, 1)
}

func TestProcessStream(t *testing.T) {
	i := NewInterceptor(nil)
	i.Handle(protocol.PacketKick, "drop-kicks", func(_ context.Context, ev *PacketEvent) error {
		ev.Cancel("drop-kicks")
		return nil
	})

	kick, err := protocol.Encode(&protocol.Kick{Reason: protocol.LiteralText("x")}, protocol.ServerSide)
	require.NoError(t, err)

	var in bytes.Buffer
	in.Write(healthFrame)
	in.Write(kick)
	in.Write([]byte{4, 0, 250, 1})

	var out bytes.Buffer
	n, err := i.ProcessStream(context.Background(), &in, &out, protocol.ServerSide)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, append(bytes.Clone(healthFrame), 4, 0, 250, 1), out.Bytes())
}

func TestProcessStreamTruncated(t *testing.T) {
	i := NewInterceptor(nil)
	var out bytes.Buffer
	n, err := i.ProcessStream(context.Background(), bytes.NewReader(healthFrame[:5]), &out, protocol.ServerSide)
	assert.Error(t, err)
	assert.Equal(t, 0, n)
}
