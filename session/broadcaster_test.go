package session

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBroadcaster_DeliversInRegistrationOrder(t *testing.T) {
	b := NewBroadcaster()

	var order []string
	b.OnLogout(func() { order = append(order, "first") })
	b.OnLogout(func() { order = append(order, "second") })

	b.NotifyLogout()

	if diff := cmp.Diff([]string{"first", "second"}, order); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestBroadcaster_ChannelsAreIndependent(t *testing.T) {
	b := NewBroadcaster()

	logouts, unauthorized := 0, 0
	b.OnLogout(func() { logouts++ })
	b.OnUnauthorized(func() { unauthorized++ })

	b.NotifyUnauthorized()
	b.NotifyUnauthorized()
	b.NotifyLogout()

	if logouts != 1 {
		t.Errorf("logout notifications = %d, want 1", logouts)
	}
	if unauthorized != 2 {
		t.Errorf("unauthorized notifications = %d, want 2", unauthorized)
	}
}

func TestBroadcaster_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster()

	calls := 0
	unsub := b.OnLogout(func() { calls++ })
	kept := 0
	b.OnLogout(func() { kept++ })

	unsub()
	unsub()
	b.NotifyLogout()

	if calls != 0 {
		t.Errorf("unsubscribed listener called %d times, want 0", calls)
	}
	if kept != 1 {
		t.Errorf("remaining listener called %d times, want 1", kept)
	}
}

func TestBroadcaster_NotifyWithNoListeners(t *testing.T) {
	b := NewBroadcaster()
	b.NotifyLogout()
	b.NotifyUnauthorized()
}

func TestBroadcaster_ConcurrentRegistration(t *testing.T) {
	b := NewBroadcaster()

	var mu sync.Mutex
	calls := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.OnUnauthorized(func() {
				mu.Lock()
				calls++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	b.NotifyUnauthorized()

	mu.Lock()
	defer mu.Unlock()
	if calls != 16 {
		t.Errorf("calls = %d, want 16", calls)
	}
}
