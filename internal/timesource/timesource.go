// Package timesource keeps wall-clock time for the dial.
//
// A task corrects the local clock with an NTP offset (bounded retries, then
// a giving-up state) and notifies subscribers whenever the displayed hour or
// minute changes. A one-shot timer aligned to the next minute boundary wakes
// the task so the dial flips promptly.
package timesource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"lampdial/internal/eventbus"
	"lampdial/internal/osal"
	"lampdial/internal/registry"
	logx "lampdial/pkg/logx"
)

// Event is the closed set of notifications the time source publishes.
type Event uint8

const EventTimeChanged Event = 0

func (e Event) String() string {
	if e == EventTimeChanged {
		return "time.changed"
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

// Message is a request to the time source task.
type Message interface{ timesourceMessage() }

// SyncRequest forces a new synchronization, also after giving up.
type SyncRequest struct{}

// MinuteTick wakes the task at a minute boundary.
type MinuteTick struct{}

func (SyncRequest) timesourceMessage() {}
func (MinuteTick) timesourceMessage()  {}

type SyncState int32

const (
	StateUnsynced SyncState = iota
	StateSyncing
	StateSynced
	StateGaveUp
	// StateLocal means no syncer is configured and the host clock is trusted.
	StateLocal
)

func (s SyncState) String() string {
	switch s {
	case StateUnsynced:
		return "unsynced"
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	case StateGaveUp:
		return "gave_up"
	case StateLocal:
		return "local"
	}
	return fmt.Sprintf("SyncState(%d)", int32(s))
}

// MinValidYear: a clock reading earlier than this has never been set.
const MinValidYear = 2016

const armTimeout = 100 * time.Millisecond

// Clock is the local time base.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Config struct {
	Location     *time.Location
	PollInterval time.Duration
	QueueLength  int
	Callbacks    int
	RetryCount   int
	RetryDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.QueueLength <= 0 {
		c.QueueLength = 10
	}
	if c.Callbacks <= 0 {
		c.Callbacks = registry.DefaultCapacity
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 10
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	return c
}

// SyncResult is the bus payload of time.synced and time.sync_failed.
type SyncResult struct {
	Attempts int           `json:"attempts"`
	Offset   time.Duration `json:"offset"`
	Error    string        `json:"error,omitempty"`
}

type Option func(*Service)

// WithClock replaces the local time base (tests).
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithTimers enables minute-boundary alignment on the given timer service.
func WithTimers(ts *osal.TimerService) Option { return func(s *Service) { s.timers = ts } }

func WithBus(bus eventbus.Bus) Option { return func(s *Service) { s.bus = bus } }

type Service struct {
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	clock  Clock
	syncer Syncer
	timers *osal.TimerService

	cbs   *registry.Registry[Event, time.Time]
	queue atomic.Pointer[osal.Queue[Message]]

	offset atomic.Int64
	state  atomic.Int32

	mu          sync.Mutex
	initialized bool
	task        *osal.Task
}

// New builds a time source. A nil syncer trusts the local clock.
func New(cfg Config, syncer Syncer, log logx.Logger, opts ...Option) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:    cfg,
		log:    log,
		clock:  systemClock{},
		syncer: syncer,
		cbs:    registry.New[Event, time.Time](cfg.Callbacks),
	}
	for _, o := range opts {
		o(s)
	}
	if syncer == nil {
		s.state.Store(int32(StateLocal))
	}
	return s
}

func (s *Service) Init(ctx context.Context, init osal.TaskInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return ErrAlreadyInitialized
	}
	q, err := osal.NewQueue[Message](s.cfg.QueueLength, nil)
	if err != nil {
		return fmt.Errorf("timesource queue: %w", err)
	}
	s.queue.Store(q)
	task := osal.NewTask(newWorker(s, q), osal.WithTaskLogger(s.log), osal.WithTaskBus(s.bus))
	if err := task.Start(ctx, init); err != nil {
		s.queue.Store(nil)
		q.Delete()
		return fmt.Errorf("timesource task: %w", err)
	}
	s.task = task
	s.initialized = true
	return nil
}

// Deinit stops the task. It is a no-op when not initialized.
func (s *Service) Deinit(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil
	}
	s.queue.Store(nil)
	err := s.task.Stop(timeout)
	s.task = nil
	s.initialized = false
	return err
}

func (s *Service) RegisterCallback(ev Event, fn func(time.Time)) error {
	if err := s.cbs.Register(ev, fn); err != nil {
		s.log.Warn("time callback rejected", logx.String("event", ev.String()), logx.Err(err))
		return err
	}
	return nil
}

// Publish hands msg to the task without blocking. Safe to call from timer callbacks.
func (s *Service) Publish(msg Message) error {
	q := s.queue.Load()
	if q == nil {
		s.log.Error("time source publish failed", logx.Err(ErrNotStarted))
		return ErrNotStarted
	}
	switch err := q.Send(msg, 0); {
	case err == nil:
		return nil
	case errors.Is(err, osal.ErrTimeout):
		s.log.Error("time source publish failed", logx.Err(ErrQueueFull))
		return ErrQueueFull
	default:
		s.log.Error("time source publish failed", logx.Err(err))
		return ErrNotStarted
	}
}

// Now is the corrected wall-clock time in the configured location.
func (s *Service) Now() time.Time {
	return s.clock.Now().Add(time.Duration(s.offset.Load())).In(s.cfg.Location)
}

func (s *Service) State() SyncState { return SyncState(s.state.Load()) }

func (s *Service) Offset() time.Duration { return time.Duration(s.offset.Load()) }

// worker is the task body; it is the only writer of offset and state
// once the task runs.
type worker struct {
	s      *Service
	q      *osal.Queue[Message]
	log    logx.Logger
	minute *osal.Timer

	force    bool
	last     time.Time
	shown    bool
	retryLog rate.Sometimes
}

func newWorker(s *Service, q *osal.Queue[Message]) *worker {
	return &worker{
		s:        s,
		q:        q,
		log:      s.log.Named("timesource"),
		retryLog: rate.Sometimes{First: 2, Every: 5},
	}
}

func (w *worker) Setup(ctx context.Context) {
	if w.s.timers == nil {
		return
	}
	t, err := w.s.timers.NewTimer(osal.TimerInit{OneShot: true, Period: time.Minute, Name: "timesource.minute"}, func(*osal.Timer) {
		_ = w.s.Publish(MinuteTick{})
	})
	if err != nil {
		w.log.Warn("minute alignment disabled", logx.Err(err))
		return
	}
	w.minute = t
}

func (w *worker) Run(ctx context.Context) {
	for {
		if w.needsSync() {
			w.sync(ctx)
			if ctx.Err() != nil {
				return
			}
		}
		w.refresh()

		msg, err := w.q.ReceiveContext(ctx, w.s.cfg.PollInterval)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, osal.ErrTimeout):
			continue
		case err != nil:
			return
		}
		if _, ok := msg.(SyncRequest); ok {
			w.force = true
		}
	}
}

func (w *worker) Teardown() {
	if w.minute != nil {
		if err := w.minute.Delete(); err != nil {
			w.log.Warn("minute timer delete failed", logx.Err(err))
		}
	}
	w.q.Delete()
}

func (w *worker) needsSync() bool {
	if w.s.syncer == nil {
		return false
	}
	if w.force {
		return true
	}
	switch w.s.State() {
	case StateUnsynced:
		return true
	case StateSynced:
		return w.s.Now().Year() < MinValidYear
	}
	return false
}

func (w *worker) sync(ctx context.Context) {
	w.force = false
	s := w.s
	s.state.Store(int32(StateSyncing))
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryCount; attempt++ {
		off, err := s.syncer.Offset(ctx)
		if err == nil {
			s.offset.Store(int64(off))
			s.state.Store(int32(StateSynced))
			w.log.Info("time synchronized",
				logx.Int("attempt", attempt),
				logx.Duration("offset", off),
				logx.Time("now", s.Now()),
			)
			eventbus.Emit(s.bus, eventbus.TimeSynced, SyncResult{Attempts: attempt, Offset: off})
			return
		}
		lastErr = err
		w.retryLog.Do(func() {
			w.log.Warn("time sync attempt failed", logx.Int("attempt", attempt), logx.Int("max", s.cfg.RetryCount), logx.Err(err))
		})
		if attempt < s.cfg.RetryCount && !osal.Delay(ctx, s.cfg.RetryDelay) {
			s.state.Store(int32(StateUnsynced))
			return
		}
	}
	s.state.Store(int32(StateGaveUp))
	w.log.Error("time sync gave up", logx.Int("attempts", s.cfg.RetryCount), logx.Err(lastErr))
	eventbus.Emit(s.bus, eventbus.TimeSyncFailed, SyncResult{Attempts: s.cfg.RetryCount, Error: lastErr.Error()})
}

// refresh publishes the time when hour or minute changed and re-arms the
// minute timer for the next boundary.
func (w *worker) refresh() {
	now := w.s.Now()
	w.log.Trace("tick", logx.Time("now", now))
	if w.shown && now.Hour() == w.last.Hour() && now.Minute() == w.last.Minute() {
		return
	}
	w.last, w.shown = now, true
	n := w.s.cbs.Publish(EventTimeChanged, now)
	w.log.Debug("time changed", logx.String("hhmm", now.Format("15:04")), logx.Int("subscribers", n))
	eventbus.Emit(w.s.bus, eventbus.TimeChanged, now.Format(time.RFC3339))
	w.armMinute(now)
}

func (w *worker) armMinute(now time.Time) {
	if w.minute == nil {
		return
	}
	if err := w.minute.SetPeriod(untilNextMinute(now)); err != nil {
		w.log.Warn("minute timer period", logx.Err(err))
		return
	}
	if err := w.minute.Start(armTimeout); err != nil {
		w.log.Warn("minute timer start", logx.Err(err))
	}
}

// untilNextMinute lands slightly after the boundary so the reading there is
// already in the new minute.
func untilNextMinute(now time.Time) time.Duration {
	const slack = 20 * time.Millisecond
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now) + slack
}
