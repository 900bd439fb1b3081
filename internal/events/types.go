// Package events defines the event types published by the packet pipeline
// and the bus that delivers them.
package events

import (
	"time"

	"github.com/tilehook-project/tilehook/internal/protocol"
)

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Pipeline events
	EventPacketDropped   EventType = "packet_dropped"
	EventPacketRewritten EventType = "packet_rewritten"
	EventCodecError      EventType = "codec_error"
	EventUnknownKind     EventType = "unknown_kind"

	// Capture events
	EventCaptureStarted EventType = "capture_started"
	EventCaptureClosed  EventType = "capture_closed"
	EventCaptureCleaned EventType = "capture_cleaned"

	// System events
	EventStatsFlushed  EventType = "stats_flushed"
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// DropReason says why the pipeline did not forward a packet.
type DropReason int

const (
	DropReasonUnknown DropReason = iota
	DropReasonRule
	DropReasonHook
	DropReasonDecodeError
	DropReasonEncodeError
)

var dropReasonStrings = map[DropReason]string{
	DropReasonUnknown:     "unknown",
	DropReasonRule:        "rule",
	DropReasonHook:        "hook",
	DropReasonDecodeError: "decode_error",
	DropReasonEncodeError: "encode_error",
}

// String returns the string representation of DropReason.
func (r DropReason) String() string {
	if s, ok := dropReasonStrings[r]; ok {
		return s
	}
	return "unknown"
}

// MarshalJSON serializes DropReason as a JSON string (e.g. "rule").
func (r DropReason) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Time    time.Time
	Payload interface{}
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, source string, payload interface{}) Event {
	return Event{Type: t, Source: source, Time: time.Now(), Payload: payload}
}

// PacketDroppedPayload is emitted when a packet is not forwarded.
type PacketDroppedPayload struct {
	Kind   protocol.PacketKind `json:"kind"`
	Side   protocol.Side       `json:"side"`
	Size   int                 `json:"size"`
	Reason DropReason          `json:"reason"`
	By     string              `json:"by,omitempty"`
}

// PacketRewrittenPayload is emitted when a mutated packet is re-encoded.
type PacketRewrittenPayload struct {
	Kind    protocol.PacketKind `json:"kind"`
	Side    protocol.Side       `json:"side"`
	OldSize int                 `json:"old_size"`
	NewSize int                 `json:"new_size"`
}

// CodecErrorPayload carries a decode or encode failure.
type CodecErrorPayload struct {
	Kind  uint8         `json:"kind"`
	Scope string        `json:"scope"`
	Op    string        `json:"op"`
	Side  protocol.Side `json:"side"`
	Error string        `json:"error"`
}

// UnknownKindPayload carries a sample of a packet or tile entity kind with
// no registered type. Scope is "packet" or "tile_entity".
type UnknownKindPayload struct {
	Scope   string        `json:"scope"`
	Kind    uint8         `json:"kind"`
	Side    protocol.Side `json:"side"`
	Payload []byte        `json:"payload"`
}

// CapturePayload describes a capture file.
type CapturePayload struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	Records   int    `json:"records,omitempty"`
}

// CaptureCleanedPayload is emitted after retention cleanup.
type CaptureCleanedPayload struct {
	Removed    int   `json:"removed"`
	FreedBytes int64 `json:"freed_bytes"`
}

// StatsFlushedPayload is emitted after counters are persisted.
type StatsFlushedPayload struct {
	Rows int       `json:"rows"`
	At   time.Time `json:"at"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
