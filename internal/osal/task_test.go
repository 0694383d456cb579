package osal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lampdial/internal/eventbus"
	logx "lampdial/pkg/logx"
)

type recordingBody struct {
	mu      sync.Mutex
	phases  []string
	runFor  time.Duration
	panicIn string
	block   chan struct{}
}

func (b *recordingBody) note(p string) {
	b.mu.Lock()
	b.phases = append(b.phases, p)
	b.mu.Unlock()
	if b.panicIn == p {
		panic("boom in " + p)
	}
}

func (b *recordingBody) Setup(ctx context.Context) { b.note("setup") }

func (b *recordingBody) Run(ctx context.Context) {
	b.note("run")
	if b.block != nil {
		<-b.block
		return
	}
	if b.runFor > 0 {
		Delay(ctx, b.runFor)
		return
	}
	<-ctx.Done()
}

func (b *recordingBody) Teardown() { b.note("teardown") }

func (b *recordingBody) got() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.phases...)
}

func samePhases(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTaskStartRejectsInvalidInit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		init TaskInit
	}{
		{name: "empty name", init: TaskInit{}},
		{name: "custom heap", init: TaskInit{Name: "rx", Heap: &Heap{Name: "psram"}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			task := NewTask(&recordingBody{}, WithTaskLogger(logx.Nop()))
			if err := task.Start(context.Background(), tt.init); !errors.Is(err, ErrInvalidInit) {
				t.Fatalf("Start() = %v, want ErrInvalidInit", err)
			}
			if task.Alive() {
				t.Fatal("task must not be alive after rejected start")
			}
		})
	}
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	body := &recordingBody{}
	task := NewTask(body, WithTaskLogger(logx.Nop()), WithTaskBus(bus))
	init := TaskInit{Name: "rx", StackSize: 4096, Priority: 5}
	if err := task.Start(context.Background(), init); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !task.Alive() || task.Handle().IsNil() {
		t.Fatal("task should be alive with a handle")
	}
	if err := task.Start(context.Background(), init); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start() = %v, want ErrAlreadyStarted", err)
	}

	if err := task.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if task.Alive() || !task.Handle().IsNil() {
		t.Fatal("handle must be cleared after stop")
	}
	if want := []string{"setup", "run", "teardown"}; !samePhases(body.got(), want) {
		t.Fatalf("phases = %v, want %v", body.got(), want)
	}
	if err := task.Stop(time.Second); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	if e := <-events; e.Type != eventbus.TaskStarted {
		t.Fatalf("first event = %s", e.Type)
	}
	if e := <-events; e.Type != eventbus.TaskStopped {
		t.Fatalf("second event = %s", e.Type)
	}
}

func TestTaskRunReturnsOnItsOwn(t *testing.T) {
	t.Parallel()
	body := &recordingBody{runFor: 10 * time.Millisecond}
	task := NewTask(body, WithTaskLogger(logx.Nop()))
	if err := task.Start(context.Background(), TaskInit{Name: "short"}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
	if task.Alive() {
		t.Fatal("handle must be cleared before Done closes")
	}
	// A finished task may be started again.
	if err := task.Start(context.Background(), TaskInit{Name: "short"}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	<-task.Done()
}

func TestTaskPanicStillTearsDown(t *testing.T) {
	t.Parallel()
	body := &recordingBody{panicIn: "run"}
	task := NewTask(body, WithTaskLogger(logx.Nop()))
	if err := task.Start(context.Background(), TaskInit{Name: "fragile"}); err != nil {
		t.Fatal(err)
	}
	<-task.Done()
	if want := []string{"setup", "run", "teardown"}; !samePhases(body.got(), want) {
		t.Fatalf("phases = %v, want %v", body.got(), want)
	}
}

func TestTaskStopJoinTimeout(t *testing.T) {
	t.Parallel()
	body := &recordingBody{block: make(chan struct{})}
	task := NewTask(body, WithTaskLogger(logx.Nop()))
	if err := task.Start(context.Background(), TaskInit{Name: "stubborn"}); err != nil {
		t.Fatal(err)
	}
	if err := task.Stop(20 * time.Millisecond); !errors.Is(err, ErrJoinTimeout) {
		t.Fatalf("Stop() = %v, want ErrJoinTimeout", err)
	}
	close(body.block)
	if err := task.Stop(Forever); err != nil {
		t.Fatalf("Stop(Forever) = %v", err)
	}
}

func TestDelay(t *testing.T) {
	t.Parallel()
	if !Delay(context.Background(), time.Millisecond) {
		t.Fatal("Delay should complete")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Delay(ctx, time.Hour) {
		t.Fatal("Delay should report cancellation")
	}
}
