// Package capture records packet envelopes to zstd-compressed JSON Lines
// files and replays them through the codec.
package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/tilehook-project/tilehook/internal/events"
	"github.com/tilehook-project/tilehook/internal/intercept"
	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/wire"
)

// FormatVersion identifies the capture line format.
const FormatVersion = "tilehook-capture/1"

// FileSuffix is the extension of capture files.
const FileSuffix = ".jsonl.zst"

// Header is the first line of every capture file.
type Header struct {
	Format    string    `json:"format"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// Record is one captured envelope. Frame holds the header and body exactly
// as seen.
type Record struct {
	Seq   int64               `json:"seq"`
	Time  time.Time           `json:"time"`
	Side  protocol.Side       `json:"side"`
	Kind  protocol.PacketKind `json:"kind"`
	Frame []byte              `json:"frame"`
}

// Index is notified when capture files open and close.
type Index interface {
	RecordCaptureStart(sessionID, path string, at time.Time) error
	RecordCaptureClose(sessionID string, records, size int64, at time.Time) error
}

// Recorder appends records to one capture file. It is safe for concurrent
// use.
type Recorder struct {
	mu     sync.Mutex
	header Header
	path   string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	seq    int64
	closed bool

	index Index
	bus   *events.EventBus
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithIndex registers the capture in idx.
func WithIndex(idx Index) RecorderOption {
	return func(r *Recorder) { r.index = idx }
}

// WithEventBus emits capture_started and capture_closed.
func WithEventBus(bus *events.EventBus) RecorderOption {
	return func(r *Recorder) { r.bus = bus }
}

// NewRecorder creates a new capture file in dir named after the start time
// and a fresh session id.
func NewRecorder(dir string, opts ...RecorderOption) (*Recorder, error) {
	now := time.Now().UTC()
	r := &Recorder{
		header: Header{
			Format:    FormatVersion,
			SessionID: uuid.NewString(),
			StartedAt: now,
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	r.path = filepath.Join(dir, fmt.Sprintf("capture-%s-%s%s",
		now.Format("20060102-150405"), r.header.SessionID[:8], FileSuffix))

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.f = f
	r.enc = enc
	r.w = bufio.NewWriterSize(enc, 128*1024)

	if err := r.writeLine(r.header); err != nil {
		_ = r.closeFile()
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}

	if r.index != nil {
		if err := r.index.RecordCaptureStart(r.header.SessionID, r.path, now); err != nil {
			log.Warn().Err(err).Str("session", r.header.SessionID).Msg("failed to index capture")
		}
	}
	r.emit(events.EventCaptureStarted, 0)

	log.Info().
		Str("session", r.header.SessionID).
		Str("path", r.path).
		Msg("capture started")
	return r, nil
}

// SessionID returns the capture session id.
func (r *Recorder) SessionID() string { return r.header.SessionID }

// Path returns the capture file path.
func (r *Recorder) Path() string { return r.path }

// Count returns how many records were written.
func (r *Recorder) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Record appends one envelope. Bytes past the declared length are not
// stored.
func (r *Recorder) Record(side protocol.Side, raw []byte) error {
	if len(raw) < wire.FrameHeaderSize {
		return fmt.Errorf("capture: %w", wire.ErrTruncated)
	}
	frame := raw
	if n := int(binary.LittleEndian.Uint16(raw)); n >= wire.FrameHeaderSize && n < len(raw) {
		frame = raw[:n]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("capture %s is closed", r.header.SessionID)
	}
	rec := Record{
		Seq:   r.seq + 1,
		Time:  time.Now().UTC(),
		Side:  side,
		Kind:  protocol.PacketKind(frame[2]),
		Frame: frame,
	}
	if err := r.writeLine(rec); err != nil {
		return err
	}
	r.seq++
	return nil
}

// Hook returns an interceptor hook that records every packet it sees.
func (r *Recorder) Hook() intercept.HookFunc {
	return func(_ context.Context, ev *intercept.PacketEvent) error {
		return r.Record(ev.Side, ev.Raw)
	}
}

// Flush pushes buffered records into the compressed stream.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		return err
	}
	return r.enc.Flush()
}

// Close finishes the zstd stream and closes the file. Calling Close twice
// is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	err := r.closeFile()

	var size int64
	if fi, statErr := os.Stat(r.path); statErr == nil {
		size = fi.Size()
	}
	if r.index != nil {
		if ierr := r.index.RecordCaptureClose(r.header.SessionID, r.seq, size, time.Now()); ierr != nil {
			log.Warn().Err(ierr).Str("session", r.header.SessionID).Msg("failed to update capture index")
		}
	}
	r.emit(events.EventCaptureClosed, int(r.seq))

	log.Info().
		Str("session", r.header.SessionID).
		Int64("records", r.seq).
		Int64("bytes", size).
		Msg("capture closed")
	return err
}

func (r *Recorder) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	return r.w.WriteByte('\n')
}

func (r *Recorder) closeFile() error {
	var err error
	if r.w != nil {
		err = r.w.Flush()
	}
	if r.enc != nil {
		if cerr := r.enc.Close(); err == nil {
			err = cerr
		}
	}
	if r.f != nil {
		if cerr := r.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (r *Recorder) emit(t events.EventType, records int) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(context.Background(), events.NewEvent(t, "capture", events.CapturePayload{
		SessionID: r.header.SessionID,
		Path:      r.path,
		Records:   records,
	}))
}
