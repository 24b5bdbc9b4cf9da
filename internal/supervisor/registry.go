package supervisor

import (
	"sync"
	"time"

	"github.com/silamd/wabothub/internal/whatsapp"
	"go.uber.org/zap"
)

// Entry is one number's slot in the connection registry. A slot is reserved
// before any blocking work starts and becomes open once the connection
// reaches the open state, so check-then-connect cannot race for a number.
type Entry struct {
	Number    string
	Session   whatsapp.Session
	CreatedAt time.Time
	Open      bool
}

// Registry owns the number -> live connection map. It is the only shared
// mutable structure between concurrent connection attempts.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Reserve claims the slot for a number before any suspension point. It
// returns false when the number already holds a reservation or an open
// connection, enforcing the single-flight invariant.
func (r *Registry) Reserve(number string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[number]; ok {
		return false
	}
	r.entries[number] = &Entry{Number: number, CreatedAt: time.Now()}
	return true
}

// Commit marks a reserved slot as open and attaches the live session.
func (r *Registry) Commit(number string, sess whatsapp.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[number]
	if !ok {
		// reservation was cleared meanwhile (timeout); re-create so the
		// registry reflects the live connection
		e = &Entry{Number: number}
		r.entries[number] = e
	}
	e.Session = sess
	e.CreatedAt = time.Now()
	e.Open = true
}

// Release removes the number's slot, whether reserved or open.
func (r *Registry) Release(number string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, number)
}

func (r *Registry) Has(number string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[number]
	return ok
}

// Get returns a snapshot of the number's entry.
func (r *Registry) Get(number string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[number]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// List returns a snapshot of every entry.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll disconnects every open session best-effort and clears the
// registry. Called on process teardown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	for _, e := range entries {
		if e.Session == nil {
			continue
		}
		zap.L().Info("closing connection", zap.String("number", e.Number))
		e.Session.Close()
	}
}
