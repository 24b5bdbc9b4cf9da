package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponderFirstWriteWins(t *testing.T) {
	r := NewResponder()

	assert.False(t, r.Responded())
	assert.True(t, r.Write(Result{Status: StatusConnected, Message: "first"}))
	assert.False(t, r.Write(Result{Status: StatusError, Message: "second"}))
	assert.True(t, r.Responded())

	res, ok := r.Wait(context.Background())
	require.True(t, ok)
	assert.Equal(t, StatusConnected, res.Status)
	assert.Equal(t, "first", res.Message)
}

func TestResponderConcurrentWriters(t *testing.T) {
	r := NewResponder()

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- r.Write(Result{Status: StatusConnected})
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for w := range wins {
		if w {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestResponderWaitBlocksUntilWrite(t *testing.T) {
	r := NewResponder()

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Write(Result{Status: StatusQR, QR: "payload"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, ok := r.Wait(ctx)
	require.True(t, ok)
	assert.Equal(t, StatusQR, res.Status)
}

func TestResponderWaitHonorsContext(t *testing.T) {
	r := NewResponder()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok := r.Wait(ctx)
	assert.False(t, ok)
}
