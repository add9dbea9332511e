package sync

import (
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest() request {
	return request{reply: make(chan Result, 1)}
}

func TestRequestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()

	reqs := []request{newRequest(), newRequest(), newRequest()}
	for _, r := range reqs {
		require.True(t, q.Enqueue(r))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range reqs {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want.reply, got.reply)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "queue should be empty")
}

func TestRequestQueue_WaitSignalsEnqueue(t *testing.T) {
	q := newRequestQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(newRequest())
	}()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("wait not signalled")
	}
	_, ok := q.TryDequeue()
	assert.True(t, ok)
}

func TestRequestQueue_CloseRejectsAndWakes(t *testing.T) {
	q := newRequestQueue()
	require.True(t, q.Enqueue(newRequest()))

	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(newRequest()))

	select {
	case <-q.Wait():
	default:
		t.Fatal("closed queue should not block waiters")
	}

	// Requests queued before Close are still handed out for draining.
	_, ok := q.TryDequeue()
	assert.True(t, ok)
}

func TestRequestQueue_ConcurrentProducers(t *testing.T) {
	q := newRequestQueue()

	var wg gosync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(newRequest())
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, q.Len())
}
