package supervisor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReserveSingleFlight(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Reserve("628111"))
	assert.False(t, r.Reserve("628111"))
	assert.True(t, r.Has("628111"))

	e, ok := r.Get("628111")
	require.True(t, ok)
	assert.False(t, e.Open)

	r.Release("628111")
	assert.True(t, r.Reserve("628111"))
}

func TestRegistryReserveConcurrent(t *testing.T) {
	r := NewRegistry()

	const attempts = 32
	var wg sync.WaitGroup
	won := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won <- r.Reserve("628111")
		}()
	}
	wg.Wait()
	close(won)

	wins := 0
	for w := range won {
		if w {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryCommitAfterTimeoutEviction(t *testing.T) {
	r := NewRegistry()
	sess := newFakeSession(true)

	require.True(t, r.Reserve("628111"))
	r.Release("628111") // timeout evicted the reservation

	r.Commit("628111", sess)
	e, ok := r.Get("628111")
	require.True(t, ok)
	assert.True(t, e.Open)
	assert.Equal(t, sess, e.Session)
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	a := newFakeSession(true)
	b := newFakeSession(true)

	r.Reserve("628111")
	r.Commit("628111", a)
	r.Reserve("628222")
	r.Commit("628222", b)
	r.Reserve("628333") // reserved only, no session yet

	r.CloseAll()

	assert.Equal(t, 0, r.Len())
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}
