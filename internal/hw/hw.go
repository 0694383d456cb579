// Package hw opens the host peripherals through periph.io: the I2C bus the
// expander sits on and the GPIO lines for buttons and the buzzer.
package hw

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	logx "lampdial/pkg/logx"
)

var ErrPinNotFound = errors.New("gpio pin not found")

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the host drivers once per process.
func Init(log logx.Logger) error {
	initOnce.Do(func() {
		st, err := host.Init()
		if err != nil {
			initErr = fmt.Errorf("periph host init: %w", err)
			return
		}
		for _, d := range st.Loaded {
			log.Debug("periph driver loaded", logx.String("driver", d.String()))
		}
		for _, f := range st.Failed {
			log.Debug("periph driver failed", logx.String("driver", f.D.String()), logx.Err(f.Err))
		}
	})
	return initErr
}

// OpenI2C opens a bus by name; "" picks the first one registered.
func OpenI2C(name string) (i2c.BusCloser, error) {
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("i2c bus %q: %w", name, err)
	}
	return bus, nil
}

// Pin looks up a GPIO line by name, e.g. "GPIO12".
func Pin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return p, nil
}

// Button configures name as an active-low input with the internal pull-up.
func Button(name string) (gpio.PinIn, error) {
	p, err := Pin(name)
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("button %s: %w", name, err)
	}
	return p, nil
}

// Output configures name as an output driven low.
func Output(name string) (gpio.PinOut, error) {
	p, err := Pin(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("output %s: %w", name, err)
	}
	return p, nil
}

// Closer collects what the app opened so shutdown can release it in reverse.
type Closer struct {
	mu  sync.Mutex
	cls []io.Closer
}

func (c *Closer) Add(cl io.Closer) {
	c.mu.Lock()
	c.cls = append(c.cls, cl)
	c.mu.Unlock()
}

func (c *Closer) Close() error {
	c.mu.Lock()
	cls := c.cls
	c.cls = nil
	c.mu.Unlock()
	var errs []error
	for i := len(cls) - 1; i >= 0; i-- {
		if err := cls[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
