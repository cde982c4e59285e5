package testsupport

import (
	"sync"

	"github.com/goliatone/go-resource-sync/cache"
)

// EntryRecorder collects cache entries delivered to a subscription callback
// so tests can assert on the sequence of observed states.
type EntryRecorder struct {
	mu      sync.Mutex
	entries []cache.Entry
}

// NewEntryRecorder creates an empty recorder.
func NewEntryRecorder() *EntryRecorder {
	return &EntryRecorder{}
}

// Callback returns a function suitable for Subscribe.
func (r *EntryRecorder) Callback() func(cache.Entry) {
	return func(e cache.Entry) {
		r.mu.Lock()
		r.entries = append(r.entries, e)
		r.mu.Unlock()
	}
}

// Entries returns a copy of everything recorded so far.
func (r *EntryRecorder) Entries() []cache.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cache.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Statuses returns just the status of each recorded entry, in order.
func (r *EntryRecorder) Statuses() []cache.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cache.Status, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Status)
	}
	return out
}

// Last returns the most recent entry, if any.
func (r *EntryRecorder) Last() (cache.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return cache.Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// Len reports how many notifications arrived.
func (r *EntryRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
