// Package session fans out authentication lifecycle events. The sync engine
// listens for logout and unauthorized signals to clear cached data, and
// raises unauthorized itself when a fetch comes back 401.
package session

import "sync"

type listener struct {
	id uint64
	fn func()
}

// Broadcaster delivers logout and unauthorized notifications to registered
// listeners, synchronously and in registration order. All methods are safe
// for concurrent use.
type Broadcaster struct {
	mu           sync.Mutex
	nextID       uint64
	logout       []listener
	unauthorized []listener
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// OnLogout registers fn to run on every logout notification and returns the
// matching unsubscribe function. Unsubscribing is idempotent.
func (b *Broadcaster) OnLogout(fn func()) func() {
	return b.register(&b.logout, fn)
}

// OnUnauthorized registers fn to run whenever the server rejects the
// session's credentials.
func (b *Broadcaster) OnUnauthorized(fn func()) func() {
	return b.register(&b.unauthorized, fn)
}

// NotifyLogout invokes all logout listeners.
func (b *Broadcaster) NotifyLogout() {
	b.notify(&b.logout)
}

// NotifyUnauthorized invokes all unauthorized listeners.
func (b *Broadcaster) NotifyUnauthorized() {
	b.notify(&b.unauthorized)
}

func (b *Broadcaster) register(list *[]listener, fn func()) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	*list = append(*list, listener{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, l := range *list {
				if l.id == id {
					*list = append((*list)[:i], (*list)[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *Broadcaster) notify(list *[]listener) {
	b.mu.Lock()
	listeners := make([]listener, len(*list))
	copy(listeners, *list)
	b.mu.Unlock()

	for _, l := range listeners {
		l.fn()
	}
}
