package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"

	"github.com/tilehook-project/tilehook/internal/protocol"
	"github.com/tilehook-project/tilehook/internal/wire"
)

// ReplayReport summarizes a replay run.
type ReplayReport struct {
	SessionID  string `json:"session_id"`
	Records    int    `json:"records"`
	Decoded    int    `json:"decoded"`
	Unknown    int    `json:"unknown"`
	Failed     int    `json:"failed"`
	Mismatched int    `json:"mismatched"`
}

// OK reports whether every record round-tripped.
func (r ReplayReport) OK() bool {
	return r.Failed == 0 && r.Mismatched == 0
}

// MismatchError describes a record that re-encoded to different bytes.
type MismatchError struct {
	Seq  int64
	Kind protocol.PacketKind
	Want []byte
	Got  []byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("record %d (%s): re-encoded %d bytes differ from captured %d bytes",
		e.Seq, e.Kind, len(e.Got), len(e.Want))
}

// Verify decodes and re-encodes one record and checks the bytes match.
func Verify(codec *protocol.Codec, rec Record) (known bool, err error) {
	p, err := codec.Decode(rec.Frame, rec.Side)
	if err != nil {
		return false, fmt.Errorf("record %d: %w", rec.Seq, err)
	}
	_, unknown := p.(*protocol.UnknownPacket)
	out, err := codec.Encode(p, rec.Side)
	if err != nil {
		return !unknown, fmt.Errorf("record %d: %w", rec.Seq, err)
	}
	if !bytes.Equal(out, rec.Frame) {
		return !unknown, &MismatchError{Seq: rec.Seq, Kind: p.Kind(), Want: rec.Frame, Got: out}
	}
	return !unknown, nil
}

// Replay verifies every record of a capture file. All failures are
// collected; the returned error is a *multierror.Error when any record
// failed, or the read error that stopped the run.
func Replay(path string, codec *protocol.Codec) (ReplayReport, error) {
	r, err := Open(path)
	if err != nil {
		return ReplayReport{}, err
	}
	defer r.Close()

	report := ReplayReport{SessionID: r.Header().SessionID}
	var result *multierror.Error
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, multierror.Append(result, err)
		}
		report.Records++

		known, err := Verify(codec, rec)
		var mismatch *MismatchError
		switch {
		case errors.As(err, &mismatch):
			report.Mismatched++
			result = multierror.Append(result, err)
		case err != nil:
			report.Failed++
			result = multierror.Append(result, err)
		case known:
			report.Decoded++
		default:
			report.Unknown++
		}
	}
	return report, result.ErrorOrNil()
}

// ImportStream reads back-to-back envelopes from src and records each one
// with the given side. It stops at a clean end of stream and returns the
// number of frames imported.
func ImportStream(src io.Reader, side protocol.Side, rec *Recorder) (int, error) {
	n := 0
	for {
		frame, err := wire.ReadFrame(src)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("frame %d: %w", n+1, err)
		}
		if err := rec.Record(side, frame); err != nil {
			return n, err
		}
		n++
	}
}
