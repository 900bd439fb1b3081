package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameHeaderSize is the 2-byte total length plus the 1-byte kind id.
	FrameHeaderSize = 3
	// MaxFrameSize is the largest total length the 16-bit field can carry.
	MaxFrameSize = 65535
)

var ErrBadFrameLength = errors.New("frame length shorter than header")

// ReadFrame reads one complete envelope (header included) from a stream.
// The length prefix counts the header itself.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}

	length := int(binary.LittleEndian.Uint16(hdr[:]))
	if length < FrameHeaderSize {
		return nil, fmt.Errorf("%w: %d", ErrBadFrameLength, length)
	}

	frame := make([]byte, length)
	copy(frame, hdr[:])
	if _, err := io.ReadFull(r, frame[2:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read frame body (%d bytes): %w", length-2, err)
	}

	return frame, nil
}

// WriteFrame writes an already encoded envelope after checking that its
// length field matches its size.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) < FrameHeaderSize {
		return fmt.Errorf("%w: %d", ErrBadFrameLength, len(frame))
	}
	if declared := int(binary.LittleEndian.Uint16(frame)); declared != len(frame) {
		return fmt.Errorf("frame length field %d does not match size %d", declared, len(frame))
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
