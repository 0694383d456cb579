// Package board is the display controller: a receiver task that owns the dial
// and drains a bounded message queue, and a transmitter task that turns
// button presses into click events on the callback registry.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lampdial/internal/dial"
	"lampdial/internal/eventbus"
	"lampdial/internal/expander"
	"lampdial/internal/osal"
	"lampdial/internal/registry"
	logx "lampdial/pkg/logx"
)

const (
	DefaultQueueLength  = 10
	DefaultPollInterval = 500 * time.Millisecond
)

type Config struct {
	QueueLength  int
	PollInterval time.Duration
	Callbacks    int

	Expander expander.Expander
	Layout   []dial.LampSpec

	Buttons []Input
	Buzzer  Buzzer
	Click   ClickConfig
}

func (c Config) withDefaults() Config {
	if c.QueueLength <= 0 {
		c.QueueLength = DefaultQueueLength
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Callbacks <= 0 {
		c.Callbacks = registry.DefaultCapacity
	}
	if c.Expander == nil {
		c.Expander = expander.NewMemory()
	}
	if c.Layout == nil {
		c.Layout = dial.DefaultLayout
	}
	c.Click = c.Click.withDefaults()
	return c
}

// Stats are best-effort counters for diagnostics.
type Stats struct {
	Published      uint64 `json:"published"`
	PublishFailed  uint64 `json:"publish_failed"`
	Dispatched     uint64 `json:"dispatched"`
	DispatchFailed uint64 `json:"dispatch_failed"`
	Clicks         uint64 `json:"clicks"`
}

// PublishFailure is the bus payload for a rejected Publish.
type PublishFailure struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

type Board struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	cbs   *registry.Registry[Event, Message]
	queue atomic.Pointer[osal.Queue[Message]]

	mu          sync.Mutex
	initialized bool
	rx, tx      *osal.Task

	published      atomic.Uint64
	publishFailed  atomic.Uint64
	dispatched     atomic.Uint64
	dispatchFailed atomic.Uint64
	clicks         atomic.Uint64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Board {
	cfg = cfg.withDefaults()
	return &Board{
		cfg: cfg,
		log: log,
		bus: bus,
		cbs: registry.New[Event, Message](cfg.Callbacks),
	}
}

// Init creates the receiver queue and starts the receiver and transmitter tasks.
func (b *Board) Init(ctx context.Context, rxInit, txInit osal.TaskInit) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return ErrAlreadyInitialized
	}

	q, err := osal.NewQueue[Message](b.cfg.QueueLength, nil)
	if err != nil {
		return fmt.Errorf("board queue: %w", err)
	}
	b.queue.Store(q)

	rx := osal.NewTask(newReceiver(b, q), osal.WithTaskLogger(b.log), osal.WithTaskBus(b.bus))
	if err := rx.Start(ctx, rxInit); err != nil {
		b.queue.Store(nil)
		q.Delete()
		return fmt.Errorf("board receiver: %w", err)
	}
	tx := osal.NewTask(newTransmitter(b), osal.WithTaskLogger(b.log), osal.WithTaskBus(b.bus))
	if err := tx.Start(ctx, txInit); err != nil {
		b.queue.Store(nil)
		_ = rx.Stop(time.Second)
		return fmt.Errorf("board transmitter: %w", err)
	}

	b.rx, b.tx = rx, tx
	b.initialized = true
	b.log.Info("board initialized",
		logx.Int("lamps", len(b.cfg.Layout)),
		logx.Int("buttons", len(b.cfg.Buttons)),
		logx.Int("queue_len", b.cfg.QueueLength),
		logx.Duration("poll", b.cfg.PollInterval),
	)
	return nil
}

// Deinit stops both tasks, waiting up to timeout for each. It is a no-op
// when the board is not initialized.
func (b *Board) Deinit(timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}
	b.queue.Store(nil)
	err := errors.Join(b.tx.Stop(timeout), b.rx.Stop(timeout))
	b.rx, b.tx = nil, nil
	b.initialized = false
	b.log.Info("board deinitialized")
	return err
}

func (b *Board) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// RegisterCallback subscribes fn to event. Capacity is fixed at construction.
func (b *Board) RegisterCallback(event Event, fn func(Message)) error {
	if err := b.cbs.Register(event, fn); err != nil {
		b.log.Warn("board callback rejected", logx.String("event", event.String()), logx.Err(err))
		return err
	}
	return nil
}

// Publish enqueues msg for the receiver without blocking. A missing receiver
// or a full queue is returned to the caller and always logged.
func (b *Board) Publish(msg Message) error {
	if msg == nil {
		return b.reject(nil, fmt.Errorf("%w: nil", ErrInvalidMessage))
	}
	if err := msg.validate(); err != nil {
		return b.reject(msg, err)
	}
	q := b.queue.Load()
	if q == nil {
		return b.reject(msg, ErrNotStarted)
	}
	switch err := q.Send(msg, 0); {
	case err == nil:
		b.published.Add(1)
		return nil
	case errors.Is(err, osal.ErrTimeout):
		return b.reject(msg, ErrQueueFull)
	case errors.Is(err, osal.ErrDeleted):
		return b.reject(msg, ErrNotStarted)
	default:
		return b.reject(msg, err)
	}
}

func (b *Board) reject(msg Message, err error) error {
	b.publishFailed.Add(1)
	ev := "nil"
	if msg != nil {
		ev = msg.Event().String()
	}
	b.log.Error("board publish failed", logx.String("event", ev), logx.Err(err))
	eventbus.Emit(b.bus, eventbus.BoardPublishFailed, PublishFailure{Event: ev, Error: err.Error()})
	return err
}

// emit fans a transmitter message out to registered callbacks.
func (b *Board) emit(msg Message) int {
	return b.cbs.Publish(msg.Event(), msg)
}

func (b *Board) Stats() Stats {
	return Stats{
		Published:      b.published.Load(),
		PublishFailed:  b.publishFailed.Load(),
		Dispatched:     b.dispatched.Load(),
		DispatchFailed: b.dispatchFailed.Load(),
		Clicks:         b.clicks.Load(),
	}
}
