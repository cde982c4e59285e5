package testsupport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManualClock_AdvanceMovesNow(t *testing.T) {
	clock := NewManualClock()
	start := clock.Now()

	clock.Advance(90 * time.Second)

	if got := clock.Now().Sub(start); got != 90*time.Second {
		t.Errorf("expected clock to move 90s, moved %v", got)
	}
}

func TestManualClock_TimersFireInDeadlineOrder(t *testing.T) {
	clock := NewManualClock()
	var fired []string

	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "second") })
	clock.AfterFunc(1*time.Second, func() { fired = append(fired, "first") })
	clock.AfterFunc(10*time.Second, func() { fired = append(fired, "late") })

	clock.Advance(5 * time.Second)

	want := []string{"first", "second"}
	if len(fired) != len(want) {
		t.Fatalf("expected %v, got %v", want, fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, fired)
		}
	}
}

func TestManualClock_CallbackSeesDeadlineAsNow(t *testing.T) {
	clock := NewManualClock()
	start := clock.Now()
	var at time.Time

	clock.AfterFunc(3*time.Second, func() { at = clock.Now() })
	clock.Advance(10 * time.Second)

	if got := at.Sub(start); got != 3*time.Second {
		t.Errorf("expected callback to observe its deadline, observed +%v", got)
	}
}

func TestManualClock_StoppedTimerDoesNotFire(t *testing.T) {
	clock := NewManualClock()
	fired := false

	timer := clock.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("expected Stop to succeed on a pending timer")
	}
	if timer.Stop() {
		t.Error("expected second Stop to report false")
	}

	clock.Advance(2 * time.Second)

	if fired {
		t.Error("stopped timer fired")
	}
}

func TestManualClock_TickerCoalescesMissedTicks(t *testing.T) {
	clock := NewManualClock()
	ticker := clock.NewTicker(time.Second)

	clock.Advance(5 * time.Second)

	select {
	case <-ticker.Chan():
	default:
		t.Fatal("expected a pending tick")
	}
	select {
	case <-ticker.Chan():
		t.Error("expected missed ticks to coalesce into one")
	default:
	}

	ticker.Stop()
	clock.Advance(5 * time.Second)
	select {
	case <-ticker.Chan():
		t.Error("stopped ticker delivered a tick")
	default:
	}
}

func TestManualClock_SleepWakesOnAdvance(t *testing.T) {
	clock := NewManualClock()
	done := make(chan error, 1)

	go func() { done <- clock.Sleep(context.Background(), time.Second) }()

	// Wait until the sleeper has registered its wakeup timer.
	deadline := time.Now().Add(2 * time.Second)
	for clock.PendingTimers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sleeper never registered a timer")
		}
		time.Sleep(time.Millisecond)
	}

	clock.Advance(time.Second)

	if err := <-done; err != nil {
		t.Fatalf("expected sleep to complete, got %v", err)
	}
}

func TestManualClock_SleepHonorsCancellation(t *testing.T) {
	clock := NewManualClock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- clock.Sleep(ctx, time.Minute) }()
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
