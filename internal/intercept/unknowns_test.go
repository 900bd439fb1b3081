package intercept

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilehook-project/tilehook/internal/protocol"
)

type blockingStore struct {
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	stored []UnknownSample
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingStore) StoreUnknown(s UnknownSample) error {
	b.entered <- struct{}{}
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stored = append(b.stored, s)
	return nil
}

func sample(kind uint8) UnknownSample {
	return UnknownSample{Scope: protocol.ScopePacket, Kind: kind, Side: protocol.ServerSide, Payload: []byte{kind}}
}

func TestUnknownQueueDropsWhenFull(t *testing.T) {
	store := newBlockingStore()
	q := NewUnknownQueue(store, 1, zerolog.Nop())

	q.RecordUnknown(sample(1))
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first sample")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.RecordUnknown(sample(2)) // fills the buffer
		q.RecordUnknown(sample(3)) // dropped
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RecordUnknown blocked on a full queue")
	}
	assert.Equal(t, int64(1), q.Dropped())

	close(store.release)
	q.Close()

	assert.Equal(t, []UnknownSample{sample(1), sample(2)}, store.stored)
}

type failingStore struct{ calls int }

func (f *failingStore) StoreUnknown(UnknownSample) error {
	f.calls++
	return errors.New("disk full")
}

func TestUnknownQueueCloseDrains(t *testing.T) {
	store := &failingStore{}
	q := NewUnknownQueue(store, 0, zerolog.Nop())
	for k := uint8(0); k < 5; k++ {
		q.RecordUnknown(sample(k))
	}
	q.Close()
	q.Close()
	assert.Equal(t, 5, store.calls)

	q.RecordUnknown(sample(9))
	assert.Equal(t, int64(1), q.Dropped())
}

func TestInterceptorWithUnknownQueue(t *testing.T) {
	store := newBlockingStore()
	close(store.release)
	q := NewUnknownQueue(store, 4, zerolog.Nop())
	i := NewInterceptor(nil, WithUnknownRecorder(q))

	raw := []byte{5, 0, 250, 1, 2}
	out, forward, err := i.Process(context.Background(), raw, protocol.ServerSide)
	require.NoError(t, err)
	assert.True(t, forward)
	assert.Equal(t, raw, out)

	q.Close()
	require.Len(t, store.stored, 1)
	assert.Equal(t, UnknownSample{Scope: protocol.ScopePacket, Kind: 250, Side: protocol.ServerSide, Payload: []byte{1, 2}}, store.stored[0])
}
