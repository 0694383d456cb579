package board

import (
	"fmt"
	"time"
)

// Event is the closed set of board message kinds.
type Event uint8

const (
	EventButton1Single Event = iota
	EventButton1Double
	EventButton2Single
	EventButton2Double
	EventButton3Single
	EventButton3Double
	EventDialSetTime
	EventLamp1SetValue
	EventLamp2SetValue
	EventLamp3SetValue
	EventLamp4SetValue
	EventBuzzerPlay
	EventBuzzerStop

	eventCount
)

var eventNames = [...]string{
	EventButton1Single: "btn1.single",
	EventButton1Double: "btn1.double",
	EventButton2Single: "btn2.single",
	EventButton2Double: "btn2.double",
	EventButton3Single: "btn3.single",
	EventButton3Double: "btn3.double",
	EventDialSetTime:   "dial.set_time",
	EventLamp1SetValue: "lamp1.set_value",
	EventLamp2SetValue: "lamp2.set_value",
	EventLamp3SetValue: "lamp3.set_value",
	EventLamp4SetValue: "lamp4.set_value",
	EventBuzzerPlay:    "buzzer.play",
	EventBuzzerStop:    "buzzer.stop",
}

func (e Event) String() string {
	if e < eventCount {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

// Lamp and button counts addressable through messages.
const (
	MessageLamps   = 4
	MessageButtons = 3
)

// Message is a board message. The concrete type carries exactly the payload
// of its Event, so kind and payload cannot disagree.
type Message interface {
	Event() Event
	validate() error
}

// SetTime shows the hour and minute (and seconds on long dials).
type SetTime struct {
	Time time.Time
}

func (SetTime) Event() Event { return EventDialSetTime }

func (m SetTime) validate() error {
	if m.Time.IsZero() {
		return fmt.Errorf("%w: zero time", ErrInvalidMessage)
	}
	return nil
}

// SetLamp shows Value (0..9 or dial.Dot) on lamp index Lamp (0..3).
type SetLamp struct {
	Lamp  int
	Value uint8
}

func (m SetLamp) Event() Event { return EventLamp1SetValue + Event(m.Lamp) }

func (m SetLamp) validate() error {
	if m.Lamp < 0 || m.Lamp >= MessageLamps {
		return fmt.Errorf("%w: lamp %d", ErrInvalidMessage, m.Lamp)
	}
	return nil
}

// SetBuzzer starts or stops the buzzer.
type SetBuzzer struct {
	Play bool
}

func (m SetBuzzer) Event() Event {
	if m.Play {
		return EventBuzzerPlay
	}
	return EventBuzzerStop
}

func (SetBuzzer) validate() error { return nil }

// ButtonClick reports a debounced click on button index Button (0..2).
type ButtonClick struct {
	Button int
	Double bool
}

func (m ButtonClick) Event() Event {
	e := EventButton1Single + Event(2*m.Button)
	if m.Double {
		e++
	}
	return e
}

func (m ButtonClick) validate() error {
	if m.Button < 0 || m.Button >= MessageButtons {
		return fmt.Errorf("%w: button %d", ErrInvalidMessage, m.Button)
	}
	return nil
}
