// Package dial models the lamp array shown on the board.
//
// A Dial is owned by the board receiver goroutine; it is not safe for
// concurrent use.
package dial

import (
	"fmt"
	"time"

	"lampdial/internal/expander"
	logx "lampdial/pkg/logx"
)

// Lamp is one digit position: the bits of Mask within the Group port.
type Lamp struct {
	exp   expander.Expander
	group expander.Group
	mask  uint8
	value Pattern
}

func (l *Lamp) Group() expander.Group { return l.group }
func (l *Lamp) Mask() uint8           { return l.mask }

// Value is the last successfully written pattern.
func (l *Lamp) Value() Pattern { return l.value }

// SetValue read-modify-writes the group port, replacing only the mask bits.
// On failure the lamp keeps its previous value.
func (l *Lamp) SetValue(p Pattern) error {
	reg, err := l.exp.Read(l.group)
	if err != nil {
		return fmt.Errorf("lamp %s/0x%02X: %w", l.group, l.mask, err)
	}
	reg = reg&^l.mask | uint8(p)&l.mask
	if err := l.exp.Write(l.group, reg); err != nil {
		return fmt.Errorf("lamp %s/0x%02X: %w", l.group, l.mask, err)
	}
	l.value = p
	return nil
}

// LampSpec describes where a lamp lives on the expander.
type LampSpec struct {
	Group expander.Group
	Mask  uint8
}

// DefaultLayout is the four-lamp clock face: hour tens/units, minute tens/units.
var DefaultLayout = []LampSpec{
	{Group: expander.GroupA, Mask: 0xF0},
	{Group: expander.GroupB, Mask: 0x0F},
	{Group: expander.GroupB, Mask: 0xF0},
	{Group: expander.GroupA, Mask: 0x0F},
}

// Dial is an ordered lamp array; index 0 is the most significant digit.
type Dial struct {
	exp   expander.Expander
	lamps []*Lamp
	log   logx.Logger
}

func New(exp expander.Expander, log logx.Logger, layout ...LampSpec) *Dial {
	d := &Dial{exp: exp, log: log}
	for _, s := range layout {
		d.AddLamp(s.Group, s.Mask)
	}
	return d
}

func (d *Dial) AddLamp(g expander.Group, mask uint8) *Lamp {
	l := &Lamp{exp: d.exp, group: g, mask: mask}
	d.lamps = append(d.lamps, l)
	return l
}

func (d *Dial) Len() int { return len(d.lamps) }

// Lamp returns lamp i, or nil when out of range.
func (d *Dial) Lamp(i int) *Lamp {
	if i < 0 || i >= len(d.lamps) {
		return nil
	}
	return d.lamps[i]
}

// SetLampValue shows v (0..9 or Dot) on lamp i. Bad index or value fails
// without touching the expander.
func (d *Dial) SetLampValue(i int, v uint8) error {
	if i < 0 || i >= len(d.lamps) {
		return fmt.Errorf("%w: %d (dial has %d)", ErrIndexOutOfRange, i, len(d.lamps))
	}
	p, err := PatternFor(v)
	if err != nil {
		return err
	}
	if err := d.lamps[i].SetValue(p); err != nil {
		return err
	}
	d.log.Trace("lamp set", logx.Int("lamp", i), logx.Hex8("pattern", uint8(p)))
	return nil
}

// SetTime writes hours to lamps 0/1, minutes to 2/3 and seconds to 5/6.
// Each field is written only when the dial is long enough for it; lamp 4 is
// never written and lamp 6 only when present. Stops at the first failure.
func (d *Dial) SetTime(t time.Time) error {
	n := len(d.lamps)
	if n < 2 {
		return nil
	}
	if err := d.writePair(0, t.Hour()); err != nil {
		return err
	}
	if n < 4 {
		return nil
	}
	if err := d.writePair(2, t.Minute()); err != nil {
		return err
	}
	if n < 6 {
		return nil
	}
	return d.writePair(5, t.Second())
}

func (d *Dial) writePair(first, v int) error {
	if err := d.SetLampValue(first, uint8(v/10)); err != nil {
		return err
	}
	if first+1 >= len(d.lamps) {
		return nil
	}
	return d.SetLampValue(first+1, uint8(v%10))
}
