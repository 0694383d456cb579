package eventbus

import "testing"

func TestPublishFansOutWithoutBlocking(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	Emit(b, TimeChanged, "12:34")
	Emit(b, TimeChanged, "12:35")

	if got := len(a); got != 1 {
		t.Fatalf("small subscriber has %d events, want 1", got)
	}
	if got := len(c); got != 2 {
		t.Fatalf("large subscriber has %d events, want 2", got)
	}
	if b.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", b.Dropped())
	}
	if e := <-c; e.Type != TimeChanged || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: TaskStopped})
}

func TestEmitNilBus(t *testing.T) {
	t.Parallel()
	Emit(nil, TaskStarted, nil)
}

func TestPublishRacesUnsubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			Emit(b, TimeSynced, i)
		}
	}()
	for i := 0; i < 500; i++ {
		ch, unsub := b.Subscribe(1)
		unsub()
		for range ch {
		}
	}
	<-done
}
