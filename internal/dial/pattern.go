package dial

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownValue    = errors.New("unknown lamp value")
	ErrIndexOutOfRange = errors.New("lamp index out of range")
)

// Dot is the lamp value that shows the dot segment instead of a digit.
const Dot uint8 = 255

// Pattern is the register byte for one displayed symbol. Both nibbles carry
// the same code so a lamp on either half of a port shows it.
type Pattern uint8

const PatternDot Pattern = 0xAA

// PatternFor maps a digit 0..9 to 0xdd and Dot to PatternDot.
func PatternFor(v uint8) (Pattern, error) {
	switch {
	case v <= 9:
		return Pattern(v<<4 | v), nil
	case v == Dot:
		return PatternDot, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownValue, v)
}
