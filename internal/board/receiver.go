package board

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"lampdial/internal/dial"
	"lampdial/internal/eventbus"
	"lampdial/internal/expander"
	"lampdial/internal/osal"
	logx "lampdial/pkg/logx"
)

// DispatchFailure is the bus payload for a message the receiver could not apply.
type DispatchFailure struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

// receiver owns the dial and is the only writer of the expander.
type receiver struct {
	b    *Board
	q    *osal.Queue[Message]
	log  logx.Logger
	dial *dial.Dial

	// I2C trouble tends to repeat every poll; keep the log readable.
	ioLog rate.Sometimes
}

func newReceiver(b *Board, q *osal.Queue[Message]) *receiver {
	return &receiver{
		b:     b,
		q:     q,
		log:   b.log.Named("board.rx"),
		ioLog: rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
}

func (r *receiver) Setup(ctx context.Context) {
	exp := r.b.cfg.Expander
	if in, ok := exp.(expander.Initializer); ok {
		if err := in.Init(); err != nil {
			// Keep running: lamps may come back once the bus recovers.
			r.log.Error("expander init failed; running degraded", logx.Err(err))
		}
	}
	r.dial = dial.New(exp, r.log, r.b.cfg.Layout...)
	r.log.Debug("receiver ready", logx.Int("lamps", r.dial.Len()))
}

// Run blocks on the queue for at most one poll interval per iteration so the
// loop re-checks ctx even when idle.
func (r *receiver) Run(ctx context.Context) {
	poll := r.b.cfg.PollInterval
	for {
		msg, err := r.q.ReceiveContext(ctx, poll)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, osal.ErrTimeout):
			continue
		case err != nil:
			r.log.Warn("receiver queue closed", logx.Err(err))
			return
		}
		r.dispatch(msg)
	}
}

func (r *receiver) Teardown() {
	r.q.Delete()
	r.log.Debug("receiver stopped")
}

func (r *receiver) dispatch(msg Message) {
	var err error
	switch m := msg.(type) {
	case SetTime:
		err = r.dial.SetTime(m.Time)
	case SetLamp:
		err = r.dial.SetLampValue(m.Lamp, m.Value)
	case SetBuzzer:
		if r.b.cfg.Buzzer != nil {
			if m.Play {
				err = r.b.cfg.Buzzer.Play()
			} else {
				err = r.b.cfg.Buzzer.Stop()
			}
		}
	case ButtonClick:
		// Clicks travel outward through the callback registry, not through here.
	default:
		err = ErrInvalidMessage
	}

	if err == nil {
		r.b.dispatched.Add(1)
		r.log.Trace("dispatched", logx.String("event", msg.Event().String()))
		return
	}
	r.b.dispatchFailed.Add(1)
	r.ioLog.Do(func() {
		r.log.Error("dispatch failed", logx.String("event", msg.Event().String()), logx.Err(err))
	})
	eventbus.Emit(r.b.bus, eventbus.BoardDispatchFailed, DispatchFailure{Event: msg.Event().String(), Error: err.Error()})
}
