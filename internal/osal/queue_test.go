package osal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewQueueValidation(t *testing.T) {
	t.Parallel()
	if _, err := NewQueue[int](0, nil); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("length 0: %v", err)
	}
	if _, err := NewQueue[int](1, &Heap{Name: "ext"}); !errors.Is(err, ErrInvalidInit) {
		t.Fatalf("custom heap: %v", err)
	}
}

func TestQueueFIFOAndCapacity(t *testing.T) {
	t.Parallel()
	const n = 10
	q, err := NewQueue[int](n, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err := q.Send(i, 0); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	if err := q.Send(n, 0); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Send past capacity = %v, want ErrTimeout", err)
	}
	if q.Len() != n || q.Cap() != n {
		t.Fatalf("Len/Cap = %d/%d", q.Len(), q.Cap())
	}
	for i := 0; i < n; i++ {
		v, err := q.Receive(0)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if v != i {
			t.Fatalf("Receive #%d = %d", i, v)
		}
	}
	if _, err := q.Receive(0); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Receive on empty = %v, want ErrTimeout", err)
	}
}

func TestQueueBlockingTimeouts(t *testing.T) {
	t.Parallel()
	q, _ := NewQueue[string](1, nil)

	start := time.Now()
	if _, err := q.Receive(30 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Receive = %v", err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal("Receive returned before its timeout")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Send("late", 0)
	}()
	v, err := q.Receive(Forever)
	if err != nil || v != "late" {
		t.Fatalf("Receive(Forever) = %q, %v", v, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.ReceiveContext(ctx, Forever); !errors.Is(err, context.Canceled) {
		t.Fatalf("ReceiveContext = %v", err)
	}
}

func TestQueueDelete(t *testing.T) {
	t.Parallel()
	q, _ := NewQueue[int](2, nil)
	_ = q.Send(1, 0)

	errc := make(chan error, 1)
	empty, _ := NewQueue[int](1, nil)
	go func() {
		_, err := empty.Receive(Forever)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	empty.Delete()
	if err := <-errc; !errors.Is(err, ErrDeleted) {
		t.Fatalf("blocked Receive = %v, want ErrDeleted", err)
	}

	q.Delete()
	q.Delete()
	if err := q.Send(2, 0); !errors.Is(err, ErrDeleted) {
		t.Fatalf("Send after Delete = %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("pending items should be discarded, Len = %d", q.Len())
	}

	var nilQ *Queue[int]
	if err := nilQ.Send(1, 0); !errors.Is(err, ErrNilHandle) {
		t.Fatalf("nil queue Send = %v", err)
	}
}
