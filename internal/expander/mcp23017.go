package expander

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// DefaultAddress is the MCP23017 address with A0..A2 tied low.
const DefaultAddress uint16 = 0x20

// MCP23017 register addresses (IOCON.BANK = 0, A/B interleaved).
const (
	regIODIRA = 0x00
	regIODIRB = 0x01
	regGPPUA  = 0x0C
	regGPPUB  = 0x0D
	regGPIOA  = 0x12
	regGPIOB  = 0x13
	regOLATA  = 0x14
	regOLATB  = 0x15
)

// MCP23017 drives the expander over I2C. Reads come from the output latch so
// read-modify-write never picks up external pin levels.
type MCP23017 struct {
	dev i2c.Dev
}

func NewMCP23017(bus i2c.Bus, addr uint16) *MCP23017 {
	if addr == 0 {
		addr = DefaultAddress
	}
	return &MCP23017{dev: i2c.Dev{Bus: bus, Addr: addr}}
}

func (m *MCP23017) String() string { return fmt.Sprintf("mcp23017@0x%02X", m.dev.Addr) }

// Init makes every pin an output with pull-ups disabled.
func (m *MCP23017) Init() error {
	for _, reg := range []byte{regIODIRA, regIODIRB, regGPPUA, regGPPUB} {
		if err := m.writeReg(reg, 0x00); err != nil {
			return err
		}
	}
	return nil
}

func (m *MCP23017) Read(g Group) (uint8, error) {
	reg, err := pick(g, regOLATA, regOLATB)
	if err != nil {
		return 0, err
	}
	var r [1]byte
	if err := m.dev.Tx([]byte{reg}, r[:]); err != nil {
		return 0, fmt.Errorf("%s: read reg 0x%02X: %w", m, reg, err)
	}
	return r[0], nil
}

func (m *MCP23017) Write(g Group, v uint8) error {
	reg, err := pick(g, regGPIOA, regGPIOB)
	if err != nil {
		return err
	}
	return m.writeReg(reg, v)
}

func (m *MCP23017) writeReg(reg, v byte) error {
	if err := m.dev.Tx([]byte{reg, v}, nil); err != nil {
		return fmt.Errorf("%s: write reg 0x%02X: %w", m, reg, err)
	}
	return nil
}

func pick(g Group, a, b byte) (byte, error) {
	switch g {
	case GroupA:
		return a, nil
	case GroupB:
		return b, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrBadGroup, g)
}
