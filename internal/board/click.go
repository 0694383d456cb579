package board

import "time"

type ClickConfig struct {
	Poll         time.Duration
	Debounce     time.Duration
	DoubleWindow time.Duration
	// MaxPerSec caps emitted clicks across all buttons.
	MaxPerSec float64
}

func (c ClickConfig) withDefaults() ClickConfig {
	if c.Poll <= 0 {
		c.Poll = 10 * time.Millisecond
	}
	if c.Debounce <= 0 {
		c.Debounce = 30 * time.Millisecond
	}
	if c.DoubleWindow <= 0 {
		c.DoubleWindow = 300 * time.Millisecond
	}
	if c.MaxPerSec <= 0 {
		c.MaxPerSec = 10
	}
	return c
}

type Click int

const (
	ClickNone Click = iota
	ClickSingle
	ClickDouble
)

// ClickDetector debounces one button and classifies releases into single or
// double clicks. It is driven by samples and never reads the clock itself.
type ClickDetector struct {
	cfg ClickConfig

	raw      bool
	rawSince time.Time
	stable   bool

	pending     int
	lastRelease time.Time
}

func NewClickDetector(cfg ClickConfig) *ClickDetector {
	return &ClickDetector{cfg: cfg.withDefaults()}
}

// Update feeds one sample. A single click is reported once DoubleWindow has
// passed after a release with no second release; a double click is reported
// on the second release inside the window. A second press held past the
// window resolves the first click as single and starts a new one.
func (d *ClickDetector) Update(pressed bool, now time.Time) Click {
	if pressed != d.raw {
		d.raw = pressed
		d.rawSince = now
	}
	if d.raw != d.stable && now.Sub(d.rawSince) >= d.cfg.Debounce {
		d.stable = d.raw
		if !d.stable {
			prev := d.lastRelease
			d.lastRelease = now
			if d.pending == 1 && now.Sub(prev) > d.cfg.DoubleWindow {
				return ClickSingle
			}
			d.pending++
			if d.pending >= 2 {
				d.pending = 0
				return ClickDouble
			}
		}
	}
	if d.pending == 1 && !d.stable && !d.raw && now.Sub(d.lastRelease) >= d.cfg.DoubleWindow {
		d.pending = 0
		return ClickSingle
	}
	return ClickNone
}
