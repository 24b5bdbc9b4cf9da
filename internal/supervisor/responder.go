package supervisor

import (
	"context"
	"sync"
)

const (
	StatusPairingCode      = "pairing_code_sent"
	StatusConnected        = "connected"
	StatusAlreadyConnected = "already_connected"
	StatusQR               = "qr"
	StatusTimeout          = "timeout"
	StatusError            = "error"
)

// Result is the single terminal status of one connect attempt.
type Result struct {
	Status   string `json:"status"`
	Code     string `json:"code,omitempty"`
	QR       string `json:"qr,omitempty"`
	Message  string `json:"message"`
	HTTPCode int    `json:"-"`
}

// Responder is a write-once result cell modelling a single HTTP response.
// The first Write wins; every later Write is a no-op. Waiters are released
// when the result lands.
type Responder struct {
	mu      sync.Mutex
	done    chan struct{}
	result  Result
	written bool
}

func NewResponder() *Responder {
	return &Responder{done: make(chan struct{})}
}

// Nop returns a responder nobody waits on, used for bootstrapped and
// scheduled reconnects where no HTTP caller exists.
func Nop() *Responder {
	return NewResponder()
}

// Write stores the result if none has been stored yet and reports whether
// this call won.
func (r *Responder) Write(res Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.written {
		return false
	}
	r.written = true
	r.result = res
	close(r.done)
	return true
}

// Responded reports whether a result has been written.
func (r *Responder) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Wait blocks until a result is written or the context ends. The second
// return value is false when the context won the race.
func (r *Responder) Wait(ctx context.Context) (Result, bool) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result, true
	case <-ctx.Done():
		return Result{}, false
	}
}
