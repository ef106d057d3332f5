//go:build linux

// AmpGate drives a GPIO line that gates power to an amplifier or
// headphone switch for a hardware output endpoint: asserted when the
// endpoint leaves standby, deasserted when it enters it (spec §4.5 step
// 6's "place the device in standby"). Grounded on the teacher's GPIO PTT
// keying in src/ptt.go, which asserts a line on transmit-start and
// deasserts it on transmit-stop via raw sysfs writes; here the same
// "assert on active, deassert on idle" shape drives an amp rail instead
// of a transmitter, via the character-device GPIO API the teacher's
// go.mod already depends on (github.com/warthog618/go-gpiocdev) but never
// calls.
package hal

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// AmpGate gates an amplifier/headphone-switch power rail via a GPIO
// output line.
type AmpGate struct {
	line       *gpiocdev.Line
	activeHigh bool
}

// OpenAmpGate requests offset on chip as an output line, initially
// deasserted (amp powered down / mute engaged).
func OpenAmpGate(chip string, offset int, activeHigh bool) (*AmpGate, error) {
	initial := 0
	if !activeHigh {
		initial = 1
	}

	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(initial),
		gpiocdev.WithConsumer("audioserver-amp"),
	)
	if err != nil {
		return nil, fmt.Errorf("hal: request amp gpio line: %w", err)
	}

	return &AmpGate{line: line, activeHigh: activeHigh}, nil
}

// Assert powers the amp rail on (called on standby exit).
func (g *AmpGate) Assert() error {
	return g.setLevel(true)
}

// Deassert powers the amp rail off (called on standby entry).
func (g *AmpGate) Deassert() error {
	return g.setLevel(false)
}

func (g *AmpGate) setLevel(on bool) error {
	v := 0
	if on == g.activeHigh {
		v = 1
	}
	return g.line.SetValue(v)
}

// Close releases the GPIO line request.
func (g *AmpGate) Close() error {
	return g.line.Close()
}
