// Package expander is the register boundary to the I2C GPIO expander.
//
// Only the registers needed to drive lamps are touched: direction, pull-ups,
// and the two output ports.
package expander

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Group selects one 8-bit port of the expander.
type Group uint8

const (
	GroupA Group = iota
	GroupB
)

func (g Group) String() string {
	switch g {
	case GroupA:
		return "A"
	case GroupB:
		return "B"
	}
	return fmt.Sprintf("Group(%d)", uint8(g))
}

var ErrBadGroup = errors.New("unknown gpio group")

// Expander reads and writes the output port of a group.
type Expander interface {
	Read(g Group) (uint8, error)
	Write(g Group, v uint8) error
}

// Initializer is implemented by drivers needing bring-up before first use.
type Initializer interface {
	Init() error
}

// Memory is a hardware-free expander used on development hosts and in tests.
type Memory struct {
	mu     sync.Mutex
	ports  [2]uint8
	writes int
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Init() error {
	m.mu.Lock()
	m.ports = [2]uint8{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Read(g Group) (uint8, error) {
	if g > GroupB {
		return 0, fmt.Errorf("%w: %d", ErrBadGroup, g)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ports[g], nil
}

func (m *Memory) Write(g Group, v uint8) error {
	if g > GroupB {
		return fmt.Errorf("%w: %d", ErrBadGroup, g)
	}
	m.mu.Lock()
	m.ports[g] = v
	m.writes++
	m.mu.Unlock()
	return nil
}

// Writes counts successful writes.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// String renders both ports, e.g. "A=0x11 B=0x44".
func (m *Memory) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "A=0x%02X B=0x%02X", m.ports[GroupA], m.ports[GroupB])
	return b.String()
}
