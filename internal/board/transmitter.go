package board

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/gpio"

	"lampdial/internal/eventbus"
	logx "lampdial/pkg/logx"
)

// Input is a button line. Buttons are wired active-low with pull-ups, so
// gpio.Low means pressed. gpio.PinIn satisfies it.
type Input interface {
	Read() gpio.Level
}

// ClickEvent is the bus payload for an emitted click.
type ClickEvent struct {
	Button      int    `json:"button"`
	Double      bool   `json:"double"`
	Subscribers int    `json:"subscribers"`
	Event       string `json:"event"`
}

type transmitter struct {
	b       *Board
	log     logx.Logger
	inputs  []Input
	dets    []*ClickDetector
	limiter *rate.Limiter
	now     func() time.Time
}

func newTransmitter(b *Board) *transmitter {
	cfg := b.cfg.Click
	inputs := b.cfg.Buttons
	if len(inputs) > MessageButtons {
		inputs = inputs[:MessageButtons]
	}
	dets := make([]*ClickDetector, len(inputs))
	for i := range dets {
		dets[i] = NewClickDetector(cfg)
	}
	return &transmitter{
		b:       b,
		log:     b.log.Named("board.tx"),
		inputs:  inputs,
		dets:    dets,
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxPerSec), int(cfg.MaxPerSec)+1),
		now:     time.Now,
	}
}

func (t *transmitter) Setup(ctx context.Context) {
	if len(t.b.cfg.Buttons) > MessageButtons {
		t.log.Warn("extra buttons ignored", logx.Int("configured", len(t.b.cfg.Buttons)), logx.Int("max", MessageButtons))
	}
	t.log.Debug("transmitter ready", logx.Int("buttons", len(t.inputs)))
}

func (t *transmitter) Run(ctx context.Context) {
	if len(t.inputs) == 0 {
		<-ctx.Done()
		return
	}
	tick := time.NewTicker(t.b.cfg.Click.Poll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.sample(t.now())
		}
	}
}

func (t *transmitter) Teardown() {
	t.log.Debug("transmitter stopped")
}

func (t *transmitter) sample(now time.Time) {
	for i, in := range t.inputs {
		c := t.dets[i].Update(in.Read() == gpio.Low, now)
		if c == ClickNone {
			continue
		}
		t.click(ButtonClick{Button: i, Double: c == ClickDouble})
	}
}

func (t *transmitter) click(m ButtonClick) {
	if !t.limiter.Allow() {
		t.log.Debug("click dropped (rate limit)", logx.String("event", m.Event().String()))
		return
	}
	t.b.clicks.Add(1)
	n := t.b.emit(m)
	t.log.Debug("click", logx.String("event", m.Event().String()), logx.Int("subscribers", n))
	eventbus.Emit(t.b.bus, eventbus.ButtonClicked, ClickEvent{
		Button: m.Button, Double: m.Double, Subscribers: n, Event: m.Event().String(),
	})
}
