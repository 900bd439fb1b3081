package capture

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilehook-project/tilehook/internal/events"
	"github.com/tilehook-project/tilehook/internal/intercept"
	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/wire"
)

var healthFrame = []byte{8, 0, 16, 3, 0x58, 0x02, 0x58, 0x02}

type fakeIndex struct {
	mu      sync.Mutex
	started map[string]string
	closed  map[string]int64
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{started: map[string]string{}, closed: map[string]int64{}}
}

func (f *fakeIndex) RecordCaptureStart(id, path string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started[id] = path
	return nil
}

func (f *fakeIndex) RecordCaptureClose(id string, records, _ int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[id] = records
	return nil
}

func TestRecordAndRead(t *testing.T) {
	idx := newFakeIndex()
	rec, err := NewRecorder(t.TempDir(), WithIndex(idx))
	require.NoError(t, err)

	kick, err := protocol.Encode(&protocol.Kick{Reason: protocol.LiteralText("bye")}, protocol.ServerSide)
	require.NoError(t, err)

	require.NoError(t, rec.Record(protocol.ClientSide, append(bytes.Clone(healthFrame), 0xFF)))
	require.NoError(t, rec.Record(protocol.ServerSide, kick))
	assert.Error(t, rec.Record(protocol.ServerSide, []byte{1, 0}))
	assert.Equal(t, int64(2), rec.Count())
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	assert.Error(t, rec.Record(protocol.ServerSide, kick))

	assert.Equal(t, rec.Path(), idx.started[rec.SessionID()])
	assert.Equal(t, int64(2), idx.closed[rec.SessionID()])

	hdr, recs, err := ReadAll(rec.Path())
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, hdr.Format)
	assert.Equal(t, rec.SessionID(), hdr.SessionID)
	require.Len(t, recs, 2)

	assert.Equal(t, int64(1), recs[0].Seq)
	assert.Equal(t, protocol.ClientSide, recs[0].Side)
	assert.Equal(t, protocol.PacketPlayerHealth, recs[0].Kind)
	assert.Equal(t, healthFrame, recs[0].Frame)

	assert.Equal(t, int64(2), recs[1].Seq)
	assert.Equal(t, protocol.ServerSide, recs[1].Side)
	assert.Equal(t, kick, recs[1].Frame)
}

func TestRecorderEvents(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()
	closed := make(chan events.CapturePayload, 1)
	bus.Subscribe(events.EventCaptureClosed, "test", func(_ context.Context, ev events.Event) error {
		closed <- ev.Payload.(events.CapturePayload)
		return nil
	})

	rec, err := NewRecorder(t.TempDir(), WithEventBus(bus))
	require.NoError(t, err)
	require.NoError(t, rec.Record(protocol.ClientSide, healthFrame))
	require.NoError(t, rec.Close())

	select {
	case p := <-closed:
		assert.Equal(t, rec.SessionID(), p.SessionID)
		assert.Equal(t, 1, p.Records)
	case <-time.After(2 * time.Second):
		t.Fatal("no capture_closed event")
	}
}

func TestRecorderHook(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	i := intercept.NewInterceptor(nil)
	i.HandleAll("capture", rec.Hook())
	_, forward, err := i.Process(context.Background(), healthFrame, protocol.ClientSide)
	require.NoError(t, err)
	assert.True(t, forward)
	require.NoError(t, rec.Close())

	_, recs, err := ReadAll(rec.Path())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, healthFrame, recs[0].Frame)
}

func TestReplay(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	tp, err := protocol.Encode(&protocol.Teleport{PlayerSlot: 2, Position: wire.Vector2{X: 16, Y: 32}}, protocol.ClientSide)
	require.NoError(t, err)

	require.NoError(t, rec.Record(protocol.ClientSide, healthFrame))
	require.NoError(t, rec.Record(protocol.ClientSide, tp))
	require.NoError(t, rec.Record(protocol.ServerSide, []byte{5, 0, 240, 1, 2}))
	require.NoError(t, rec.Close())

	report, err := Replay(rec.Path(), protocol.NewCodec())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, ReplayReport{SessionID: rec.SessionID(), Records: 3, Decoded: 2, Unknown: 1}, report)
}

func TestReplayCollectsFailures(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	// PlayerHealth missing a field
	require.NoError(t, rec.Record(protocol.ClientSide, []byte{6, 0, 16, 3, 0x58, 0x02}))
	// LoadPlayer with bool byte 2
	require.NoError(t, rec.Record(protocol.ServerSide, []byte{5, 0, 3, 1, 2}))
	require.NoError(t, rec.Record(protocol.ClientSide, healthFrame))
	// HatRack with a flagged empty slot
	require.NoError(t, rec.Record(protocol.ServerSide, []byte{19, 0, 86, 1, 0, 0, 0, 1, 5, 0, 0, 0, 0, 0x01, 0, 0, 0, 0, 0}))
	require.NoError(t, rec.Close())

	report, err := Replay(rec.Path(), protocol.NewCodec())
	require.Error(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, 4, report.Records)
	assert.Equal(t, 1, report.Decoded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Mismatched)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 3)
}

func TestVerifyMismatch(t *testing.T) {
	// HatRack shared with its first slot flagged but empty; empty slots are
	// never written back.
	frame := []byte{19, 0, 86, 1, 0, 0, 0, 1, 5, 0, 0, 0, 0, 0x01, 0, 0, 0, 0, 0}
	known, err := Verify(protocol.NewCodec(), Record{Seq: 7, Frame: frame, Side: protocol.ServerSide})
	assert.True(t, known)
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, int64(7), mismatch.Seq)
	assert.Equal(t, protocol.PacketTileEntitySharing, mismatch.Kind)
	assert.Equal(t, frame, mismatch.Want)
	assert.Equal(t, []byte{14, 0, 86, 1, 0, 0, 0, 1, 5, 0, 0, 0, 0, 0}, mismatch.Got)
}

func TestImportStream(t *testing.T) {
	var src bytes.Buffer
	src.Write(healthFrame)
	src.Write([]byte{4, 0, 250, 1})

	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)
	n, err := ImportStream(&src, protocol.ClientSide, rec)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, rec.Close())

	_, recs, err := ReadAll(rec.Path())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, protocol.PacketKind(250), recs[1].Kind)

	rec2, err := NewRecorder(t.TempDir())
	require.NoError(t, err)
	defer rec2.Close()
	n, err = ImportStream(bytes.NewReader([]byte{9, 0, 1}), protocol.ClientSide, rec2)
	assert.Error(t, err)
	assert.Equal(t, 0, n)
}

func TestOpenRejectsForeignFiles(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.jsonl.zst")
	require.NoError(t, os.WriteFile(plain, []byte("not zstd"), 0o644))
	_, err := Open(plain)
	assert.Error(t, err)

	wrong := filepath.Join(dir, "wrong.jsonl.zst")
	f, err := os.Create(wrong)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(`{"format":"other/1"}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	_, err = Open(wrong)
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestCleanupOld(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "capture-old"+FileSuffix)
	fresh := filepath.Join(dir, "capture-new"+FileSuffix)
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("12345"), 0o644))
	}
	past := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	res, err := CleanupOld(dir, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Removed: 1, FreedBytes: 5}, res)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
	_, err = os.Stat(other)
	assert.NoError(t, err)

	res, err = CleanupOld(filepath.Join(dir, "missing"), time.Now())
	require.NoError(t, err)
	assert.Zero(t, res.Removed)
}
