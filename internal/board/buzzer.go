package board

import (
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"

	logx "lampdial/pkg/logx"
)

type Buzzer interface {
	Play() error
	Stop() error
}

// PinBuzzer drives an active buzzer from a GPIO output (high = sound).
type PinBuzzer struct {
	pin gpio.PinOut
}

func NewPinBuzzer(pin gpio.PinOut) *PinBuzzer { return &PinBuzzer{pin: pin} }

func (p *PinBuzzer) Play() error { return p.set(gpio.High) }
func (p *PinBuzzer) Stop() error { return p.set(gpio.Low) }

func (p *PinBuzzer) set(l gpio.Level) error {
	if err := p.pin.Out(l); err != nil {
		return fmt.Errorf("buzzer %s: %w", p.pin, err)
	}
	return nil
}

// LogBuzzer stands in when no buzzer pin is wired.
type LogBuzzer struct {
	log     logx.Logger
	playing atomic.Bool
}

func NewLogBuzzer(log logx.Logger) *LogBuzzer { return &LogBuzzer{log: log} }

func (b *LogBuzzer) Play() error {
	b.playing.Store(true)
	b.log.Info("buzzer play")
	return nil
}

func (b *LogBuzzer) Stop() error {
	b.playing.Store(false)
	b.log.Info("buzzer stop")
	return nil
}

func (b *LogBuzzer) Playing() bool { return b.playing.Load() }
