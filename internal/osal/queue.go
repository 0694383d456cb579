package osal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Queue is a fixed-capacity FIFO. Capacity never changes after NewQueue.
//
// A timeout of 0 polls, Forever blocks until space/data is available or the
// queue is deleted. The underlying channel is never closed, so a Send racing
// Delete cannot panic.
type Queue[T any] struct {
	noCopy noCopy

	ch      chan T
	deleted chan struct{}
	once    sync.Once
}

func NewQueue[T any](length int, heap *Heap) (*Queue[T], error) {
	if length < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLength, length)
	}
	if heap != nil {
		return nil, fmt.Errorf("%w: custom heap %q not supported", ErrInvalidInit, heap.Name)
	}
	return &Queue[T]{
		ch:      make(chan T, length),
		deleted: make(chan struct{}),
	}, nil
}

func (q *Queue[T]) Send(item T, timeout time.Duration) error {
	return q.SendContext(context.Background(), item, timeout)
}

// SendContext is Send that also gives up when ctx is done.
func (q *Queue[T]) SendContext(ctx context.Context, item T, timeout time.Duration) error {
	if q == nil {
		return ErrNilHandle
	}
	if q.isDeleted() {
		return ErrDeleted
	}
	if timeout == 0 {
		select {
		case q.ch <- item:
			return nil
		default:
			return ErrTimeout
		}
	}

	expired, stop := deadline(timeout)
	defer stop()
	select {
	case q.ch <- item:
		return nil
	case <-expired:
		return ErrTimeout
	case <-q.deleted:
		return ErrDeleted
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue[T]) Receive(timeout time.Duration) (T, error) {
	return q.ReceiveContext(context.Background(), timeout)
}

// ReceiveContext is Receive that also gives up when ctx is done.
func (q *Queue[T]) ReceiveContext(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	if q == nil {
		return zero, ErrNilHandle
	}
	if q.isDeleted() {
		return zero, ErrDeleted
	}
	if timeout == 0 {
		select {
		case v := <-q.ch:
			return v, nil
		default:
			return zero, ErrTimeout
		}
	}

	expired, stop := deadline(timeout)
	defer stop()
	select {
	case v := <-q.ch:
		return v, nil
	case <-expired:
		return zero, ErrTimeout
	case <-q.deleted:
		return zero, ErrDeleted
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (q *Queue[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}

func (q *Queue[T]) Cap() int {
	if q == nil {
		return 0
	}
	return cap(q.ch)
}

// Delete releases the queue. Pending items are discarded; blocked callers
// return ErrDeleted. Later calls are no-ops.
func (q *Queue[T]) Delete() {
	if q == nil {
		return
	}
	q.once.Do(func() {
		close(q.deleted)
		for {
			select {
			case <-q.ch:
			default:
				return
			}
		}
	})
}

func (q *Queue[T]) isDeleted() bool {
	select {
	case <-q.deleted:
		return true
	default:
		return false
	}
}

// deadline returns a channel that fires after d; negative d never fires.
func deadline(d time.Duration) (<-chan time.Time, func()) {
	if d < 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}
