package osal

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "lampdial/pkg/logx"
)

// TimerInit is the start descriptor of a timer.
type TimerInit struct {
	OneShot bool
	Period  time.Duration
	Name    string
}

type TimerServiceConfig struct {
	// QueueLength bounds pending start/stop/delete commands.
	QueueLength int
	// DeleteWait bounds how long Timer.Delete waits for confirmation.
	DeleteWait time.Duration
}

type timerOp int

const (
	opStart timerOp = iota
	opStop
	opDelete
)

type timerCmd struct {
	t   *Timer
	op  timerOp
	ack chan struct{}
}

type timerFire struct {
	t   *Timer
	gen uint64
}

// TimerService runs every timer callback on a single goroutine, which is
// itself an osal Task. Callbacks therefore run serially and must not block.
type TimerService struct {
	cfg TimerServiceConfig
	log logx.Logger

	task  *Task
	cmds  chan timerCmd
	fires chan timerFire

	running atomic.Bool
	stopped chan struct{}

	// owned by the service goroutine
	timers map[*Timer]struct{}
}

func NewTimerService(cfg TimerServiceConfig, log logx.Logger) *TimerService {
	if cfg.QueueLength <= 0 {
		cfg.QueueLength = 16
	}
	if cfg.DeleteWait <= 0 {
		cfg.DeleteWait = time.Second
	}
	s := &TimerService{
		cfg:     cfg,
		log:     log,
		cmds:    make(chan timerCmd, cfg.QueueLength),
		fires:   make(chan timerFire, cfg.QueueLength),
		stopped: make(chan struct{}),
		timers:  map[*Timer]struct{}{},
	}
	s.task = NewTask(s, WithTaskLogger(log))
	return s
}

// Start launches the service goroutine. A stopped service cannot be restarted.
func (s *TimerService) Start(ctx context.Context, init TaskInit) error {
	select {
	case <-s.stopped:
		return ErrServiceStopped
	default:
	}
	if err := s.task.Start(ctx, init); err != nil {
		return err
	}
	s.running.Store(true)
	return nil
}

func (s *TimerService) Stop(timeout time.Duration) error {
	return s.task.Stop(timeout)
}

func (s *TimerService) Running() bool { return s.running.Load() }

func (s *TimerService) Setup(ctx context.Context) {}

func (s *TimerService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.cmds:
			s.apply(c)
		case f := <-s.fires:
			s.fire(f)
		}
	}
}

func (s *TimerService) Teardown() {
	s.running.Store(false)
	close(s.stopped)
	for t := range s.timers {
		t.disarm()
		t.active.Store(false)
	}
	s.timers = nil
	// Unblock anyone still waiting on a delete confirmation.
	for {
		select {
		case c := <-s.cmds:
			if c.ack != nil {
				close(c.ack)
			}
		default:
			return
		}
	}
}

func (s *TimerService) apply(c timerCmd) {
	t := c.t
	switch c.op {
	case opStart:
		if t.deleted.Load() {
			return
		}
		t.disarm()
		t.gen++
		t.armedPeriod = t.Period()
		gen := t.gen
		t.armed = time.AfterFunc(t.armedPeriod, func() { s.post(t, gen) })
		t.active.Store(true)
		s.timers[t] = struct{}{}
	case opStop:
		t.disarm()
		t.gen++
		t.active.Store(false)
	case opDelete:
		t.disarm()
		t.gen++
		t.active.Store(false)
		delete(s.timers, t)
		close(c.ack)
	}
}

func (s *TimerService) post(t *Timer, gen uint64) {
	select {
	case s.fires <- timerFire{t: t, gen: gen}:
	case <-s.stopped:
	}
}

func (s *TimerService) fire(f timerFire) {
	t := f.t
	if t.gen != f.gen || t.deleted.Load() {
		return // stale: stopped, restarted or deleted since arming
	}
	if t.init.OneShot {
		t.armed = nil
		t.active.Store(false)
	} else {
		gen := t.gen
		t.armed = time.AfterFunc(t.armedPeriod, func() { s.post(t, gen) })
	}
	s.invoke(t)
}

func (s *TimerService) invoke(t *Timer) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("timer callback panicked",
				logx.String("timer", t.init.Name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	t.fn(t)
}

// send hands a command to the service, waiting at most timeout for queue space.
func (s *TimerService) send(c timerCmd, timeout time.Duration) error {
	if !s.running.Load() {
		return ErrServiceStopped
	}
	if timeout == 0 {
		select {
		case s.cmds <- c:
			return nil
		default:
			return ErrTimeout
		}
	}
	expired, stop := deadline(timeout)
	defer stop()
	select {
	case s.cmds <- c:
		return nil
	case <-s.stopped:
		return ErrServiceStopped
	case <-expired:
		return ErrTimeout
	}
}

// NewTimer creates a dormant timer; Start arms it.
func (s *TimerService) NewTimer(init TimerInit, fn func(*Timer)) (*Timer, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	if init.Period <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, init.Period)
	}
	t := &Timer{svc: s, init: init, fn: fn}
	t.period.Store(int64(init.Period))
	return t, nil
}

// Timer is a one-shot or periodic alarm whose callback runs on the service goroutine.
type Timer struct {
	noCopy noCopy

	svc  *TimerService
	init TimerInit
	fn   func(*Timer)

	period  atomic.Int64 // pending period
	active  atomic.Bool
	deleted atomic.Bool
	delOnce sync.Once

	// owned by the service goroutine
	gen         uint64
	armed       *time.Timer
	armedPeriod time.Duration
}

func (t *Timer) Name() string { return t.init.Name }

// Start arms the timer with the pending period, restarting it if already
// active. timeout bounds the hand-off to the timer service.
func (t *Timer) Start(timeout time.Duration) error {
	if t == nil {
		return ErrNilHandle
	}
	if t.deleted.Load() {
		return ErrDeleted
	}
	return t.svc.send(timerCmd{t: t, op: opStart}, timeout)
}

func (t *Timer) Stop(timeout time.Duration) error {
	if t == nil {
		return ErrNilHandle
	}
	if t.deleted.Load() {
		return ErrDeleted
	}
	return t.svc.send(timerCmd{t: t, op: opStop}, timeout)
}

// SetPeriod changes the pending period only. It never starts or stops the timer.
func (t *Timer) SetPeriod(p time.Duration) error {
	if t == nil {
		return ErrNilHandle
	}
	if p <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	t.period.Store(int64(p))
	return nil
}

// Period returns the pending period.
func (t *Timer) Period() time.Duration { return time.Duration(t.period.Load()) }

// IsActive reports whether the timer is armed. A one-shot timer becomes
// inactive when it fires.
func (t *Timer) IsActive() bool { return t != nil && t.active.Load() }

// Delete stops the timer for good and waits for the service to confirm.
// Calling Delete from the timer's own callback cannot be confirmed and
// returns ErrDeleteUnconfirm after the configured wait.
func (t *Timer) Delete() error {
	if t == nil {
		return ErrNilHandle
	}
	var err error
	t.delOnce.Do(func() {
		t.deleted.Store(true)
		wait := t.svc.cfg.DeleteWait
		ack := make(chan struct{})
		if err = t.svc.send(timerCmd{t: t, op: opDelete, ack: ack}, wait); err != nil {
			if errors.Is(err, ErrServiceStopped) {
				// The service disarmed every timer on teardown.
				t.active.Store(false)
				err = nil
			}
			return
		}
		select {
		case <-ack:
		case <-t.svc.stopped:
			t.active.Store(false)
		case <-time.After(wait):
			err = ErrDeleteUnconfirm
		}
	})
	return err
}

func (t *Timer) disarm() {
	if t.armed != nil {
		t.armed.Stop()
		t.armed = nil
	}
}
