package intercept

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tilehook-project/tilehook/internal/protocol"
)

// DefaultUnknownQueueSize is the buffer used when NewUnknownQueue gets a
// non-positive size.
const DefaultUnknownQueueSize = 256

// UnknownSample is one body of a packet or tile entity kind with no
// registered type.
type UnknownSample struct {
	Scope   protocol.Scope
	Kind    uint8
	Side    protocol.Side
	Payload []byte
}

// UnknownRecorder receives unknown samples. Process calls it on the
// forwarding path, so implementations must return without waiting on I/O.
type UnknownRecorder interface {
	RecordUnknown(s UnknownSample)
}

// UnknownStore persists one sample. It may block.
type UnknownStore interface {
	StoreUnknown(s UnknownSample) error
}

// UnknownQueue hands samples to a single worker that writes them to an
// UnknownStore. Samples that arrive while the buffer is full are dropped.
type UnknownQueue struct {
	store  UnknownStore
	logger zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	ch      chan UnknownSample
	done    chan struct{}
	dropped atomic.Int64
}

// NewUnknownQueue starts the worker. Call Close to drain it.
func NewUnknownQueue(store UnknownStore, size int, logger zerolog.Logger) *UnknownQueue {
	if size <= 0 {
		size = DefaultUnknownQueueSize
	}
	q := &UnknownQueue{
		store:  store,
		logger: logger,
		ch:     make(chan UnknownSample, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// RecordUnknown queues s without blocking.
func (q *UnknownQueue) RecordUnknown(s UnknownSample) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return
	}
	select {
	case q.ch <- s:
	default:
		n := q.dropped.Add(1)
		if n == 1 || n%1000 == 0 {
			q.logger.Warn().
				Str("scope", string(s.Scope)).
				Uint8("kind", s.Kind).
				Int64("dropped", n).
				Msg("unknown sample queue full")
		}
	}
}

// Dropped returns how many samples were discarded.
func (q *UnknownQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Close stops accepting samples and waits until the queued ones are
// stored. Calling Close twice is a no-op.
func (q *UnknownQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *UnknownQueue) run() {
	defer close(q.done)
	for s := range q.ch {
		if err := q.store.StoreUnknown(s); err != nil {
			q.logger.Warn().
				Err(err).
				Str("scope", string(s.Scope)).
				Uint8("kind", s.Kind).
				Msg("failed to record unknown sample")
		}
	}
}
