package osal

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"lampdial/internal/eventbus"
	logx "lampdial/pkg/logx"
)

// Forever waits without a deadline wherever a timeout is accepted.
const Forever time.Duration = -1

// Heap selects a custom allocator. Only the default (nil) heap is supported.
type Heap struct{ Name string }

// TaskInit is the start descriptor of a task.
//
// StackSize and Priority are recorded for diagnostics only; goroutines have
// growable stacks and no priorities.
type TaskInit struct {
	Heap      *Heap
	StackSize int
	Name      string
	Priority  int
}

func (i TaskInit) validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInit)
	}
	if i.Heap != nil {
		return fmt.Errorf("%w: custom heap %q not supported", ErrInvalidInit, i.Heap.Name)
	}
	return nil
}

// Body is the three-phase behavior of a task. Run is expected to loop until
// ctx is done; Teardown runs exactly once after Run returns (or panics).
type Body interface {
	Setup(ctx context.Context)
	Run(ctx context.Context)
	Teardown()
}

// Handle identifies one running instance of a task.
type Handle uuid.UUID

var NilHandle Handle

func (h Handle) IsNil() bool    { return h == NilHandle }
func (h Handle) String() string { return uuid.UUID(h).String() }

// TaskEvent is the payload of task lifecycle bus events.
type TaskEvent struct {
	Name     string        `json:"name"`
	Handle   string        `json:"handle"`
	Priority int           `json:"priority"`
	Runtime  time.Duration `json:"runtime,omitempty"`
	Panic    string        `json:"panic,omitempty"`
}

type TaskOption func(*Task)

func WithTaskLogger(log logx.Logger) TaskOption { return func(t *Task) { t.log = log } }

func WithTaskBus(bus eventbus.Bus) TaskOption { return func(t *Task) { t.bus = bus } }

// Task owns at most one running goroutine executing its Body.
type Task struct {
	noCopy noCopy

	body Body
	log  logx.Logger
	bus  eventbus.Bus

	mu     sync.Mutex
	init   TaskInit
	handle Handle
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTask(body Body, opts ...TaskOption) *Task {
	t := &Task{body: body}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start launches the body on a new goroutine. The goroutine runs Setup, Run
// and Teardown, then clears the handle, then closes Done.
func (t *Task) Start(ctx context.Context, init TaskInit) error {
	if t == nil || t.body == nil {
		return ErrNilBody
	}
	if err := init.validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	if !t.handle.IsNil() {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, init.Name)
	}
	tctx, cancel := context.WithCancel(ctx)
	h := Handle(uuid.New())
	done := make(chan struct{})
	t.init = init
	t.handle = h
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go t.trampoline(tctx, cancel, h, done)
	return nil
}

func (t *Task) trampoline(ctx context.Context, cancel context.CancelFunc, h Handle, done chan struct{}) {
	init := t.Init()
	log := t.log.With(logx.String("task", init.Name))
	started := time.Now()

	eventbus.Emit(t.bus, eventbus.TaskStarted, TaskEvent{Name: init.Name, Handle: h.String(), Priority: init.Priority})
	log.Debug("task started", logx.String("handle", h.String()), logx.Int("priority", init.Priority))

	var panicked string
	if p := t.phase(log, "setup", func() { t.body.Setup(ctx) }); p != "" {
		panicked = p
	} else if p := t.phase(log, "run", func() { t.body.Run(ctx) }); p != "" {
		panicked = p
	}
	if p := t.phase(log, "teardown", t.body.Teardown); p != "" && panicked == "" {
		panicked = p
	}
	cancel()

	t.mu.Lock()
	if t.handle == h {
		t.handle = NilHandle
		t.cancel = nil
	}
	t.mu.Unlock()

	runtime := time.Since(started)
	log.Debug("task stopped", logx.Duration("runtime", runtime))
	eventbus.Emit(t.bus, eventbus.TaskStopped, TaskEvent{
		Name: init.Name, Handle: h.String(), Priority: init.Priority, Runtime: runtime, Panic: panicked,
	})
	close(done)
}

// phase runs fn and converts a panic into a logged string.
func (t *Task) phase(log logx.Logger, name string, fn func()) (panicked string) {
	defer func() {
		if r := recover(); r != nil {
			panicked = fmt.Sprint(r)
			log.Error("task panicked", logx.String("phase", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	fn()
	return ""
}

// Stop cancels the task context and waits up to timeout for Teardown to
// finish. Stopping a task that is not running is a no-op.
func (t *Task) Stop(timeout time.Duration) error {
	t.mu.Lock()
	cancel, done, name := t.cancel, t.done, t.init.Name
	t.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if !waitDone(done, timeout) {
		return fmt.Errorf("%w: %s after %s", ErrJoinTimeout, name, timeout)
	}
	return nil
}

func (t *Task) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.handle.IsNil()
}

func (t *Task) Handle() Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle
}

func (t *Task) Init() TaskInit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.init
}

// Done is closed when the most recent run has fully exited.
// For a task that never started it is already closed.
func (t *Task) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}

// Delay is the per-iteration yield of a run loop. It reports false when ctx
// ended first, which tells the loop to return.
func Delay(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	if timeout < 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// noCopy may be embedded in structs that must not be copied after first use.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
