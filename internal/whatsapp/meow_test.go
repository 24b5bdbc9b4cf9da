package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCloseReleasesUpdateConsumers(t *testing.T) {
	s := &meowSession{number: "628111", updates: make(chan Update, 4)}

	var seen []Update
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range s.Updates() {
			seen = append(seen, u)
		}
	}()

	s.emit(Update{State: StateConnecting, QR: "qr"})
	s.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("update consumer still blocked after close")
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, StateConnecting, seen[0].State)
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	s := &meowSession{number: "628111", updates: make(chan Update, 4)}
	s.Close()
	s.Close() // idempotent

	assert.NotPanics(t, func() {
		s.emit(Update{State: StateOpen})
	})
	_, open := <-s.Updates()
	assert.False(t, open)
}
