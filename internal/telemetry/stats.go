// Package telemetry counts codec and pipeline outcomes per packet kind and
// exposes them as Prometheus metrics and MQTT messages.
package telemetry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tilehook-project/tilehook/internal/protocol"
)

// Counters is one set of per-kind counters.
type Counters struct {
	Decoded   int64 `json:"decoded"`
	Encoded   int64 `json:"encoded"`
	Errors    int64 `json:"errors"`
	Unknown   int64 `json:"unknown"`
	Dropped   int64 `json:"dropped"`
	Rewritten int64 `json:"rewritten"`
}

// IsZero reports whether every counter is zero.
func (c Counters) IsZero() bool {
	return c == Counters{}
}

func (c Counters) add(o Counters) Counters {
	return Counters{
		Decoded:   c.Decoded + o.Decoded,
		Encoded:   c.Encoded + o.Encoded,
		Errors:    c.Errors + o.Errors,
		Unknown:   c.Unknown + o.Unknown,
		Dropped:   c.Dropped + o.Dropped,
		Rewritten: c.Rewritten + o.Rewritten,
	}
}

func (c Counters) sub(o Counters) Counters {
	return Counters{
		Decoded:   c.Decoded - o.Decoded,
		Encoded:   c.Encoded - o.Encoded,
		Errors:    c.Errors - o.Errors,
		Unknown:   c.Unknown - o.Unknown,
		Dropped:   c.Dropped - o.Dropped,
		Rewritten: c.Rewritten - o.Rewritten,
	}
}

// KindCounters is the counter set of one kind and side.
type KindCounters struct {
	Kind protocol.PacketKind `json:"kind"`
	Name string              `json:"name"`
	Side protocol.Side       `json:"side"`
	Counters
}

type cell struct {
	decoded   atomic.Int64
	encoded   atomic.Int64
	errors    atomic.Int64
	unknown   atomic.Int64
	dropped   atomic.Int64
	rewritten atomic.Int64
}

func (c *cell) load() Counters {
	return Counters{
		Decoded:   c.decoded.Load(),
		Encoded:   c.encoded.Load(),
		Errors:    c.errors.Load(),
		Unknown:   c.unknown.Load(),
		Dropped:   c.dropped.Load(),
		Rewritten: c.rewritten.Load(),
	}
}

// Stats holds cumulative counters for every kind and side. Updates are
// lock-free; it implements protocol.Observer.
type Stats struct {
	cells [256][2]cell

	flushMu sync.Mutex
	flushed [256][2]Counters
}

var _ protocol.Observer = (*Stats)(nil)

// NewStats creates an empty counter table.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) cell(kind protocol.PacketKind, side protocol.Side) *cell {
	return &s.cells[kind][side&1]
}

// ObserveDecode counts a decode outcome.
func (s *Stats) ObserveDecode(kind protocol.PacketKind, side protocol.Side, known bool, err error) {
	c := s.cell(kind, side)
	switch {
	case err != nil:
		c.errors.Add(1)
	case !known:
		c.unknown.Add(1)
	default:
		c.decoded.Add(1)
	}
}

// ObserveEncode counts an encode outcome.
func (s *Stats) ObserveEncode(kind protocol.PacketKind, side protocol.Side, err error) {
	c := s.cell(kind, side)
	if err != nil {
		c.errors.Add(1)
		return
	}
	c.encoded.Add(1)
}

// AddDropped counts a packet the pipeline did not forward.
func (s *Stats) AddDropped(kind protocol.PacketKind, side protocol.Side) {
	s.cell(kind, side).dropped.Add(1)
}

// AddRewritten counts a packet forwarded with re-encoded bytes.
func (s *Stats) AddRewritten(kind protocol.PacketKind, side protocol.Side) {
	s.cell(kind, side).rewritten.Add(1)
}

// Snapshot returns the non-zero cumulative counters ordered by kind and
// side.
func (s *Stats) Snapshot() []KindCounters {
	var out []KindCounters
	for k := range s.cells {
		for side := range s.cells[k] {
			c := s.cells[k][side].load()
			if c.IsZero() {
				continue
			}
			out = append(out, newKindCounters(k, side, c))
		}
	}
	return out
}

// Totals sums every kind and side.
func (s *Stats) Totals() Counters {
	var total Counters
	for _, kc := range s.Snapshot() {
		total = total.add(kc.Counters)
	}
	return total
}

// Delta returns what changed since the previous Delta call, skipping kinds
// that did not change. Only one flusher should call it.
func (s *Stats) Delta() []KindCounters {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	var out []KindCounters
	for k := range s.cells {
		for side := range s.cells[k] {
			cur := s.cells[k][side].load()
			d := cur.sub(s.flushed[k][side])
			if d.IsZero() {
				continue
			}
			s.flushed[k][side] = cur
			out = append(out, newKindCounters(k, side, d))
		}
	}
	return out
}

func newKindCounters(kind, side int, c Counters) KindCounters {
	k := protocol.PacketKind(kind)
	return KindCounters{
		Kind:     k,
		Name:     k.String(),
		Side:     protocol.Side(side),
		Counters: c,
	}
}

// SortByTotal orders counters by decoded plus encoded traffic, busiest
// first.
func SortByTotal(kcs []KindCounters) {
	sort.SliceStable(kcs, func(i, j int) bool {
		return kcs[i].Decoded+kcs[i].Encoded > kcs[j].Decoded+kcs[j].Encoded
	})
}
