// Package hostsim implements platform.Pins on top of periph.io GPIO, so
// the handshake engine (internal/gpib/link) can be driven against a real
// GPIB instrument from a host SBC (e.g. a Raspberry Pi) during bench
// verification — the "host-in-the-loop" testing spec.md §8 calls for.
//
// Grounded on periph-extra's own host-GPIO device wrappers
// (hostextra/d2xx/gpio.go, hostextra/d2xx/pin.go) and on
// seedhammer-seedhammer's use of periph.io/x/conn and periph.io/x/host
// to reach real hardware pins from a plain host binary.
package hostsim

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/Galvant/gpibusb-firmware/internal/platform"
)

// PinMap names the host header pin for every protocol Line.
type PinMap map[platform.Line]string

// Pins drives real GPIO pins through periph.io, open-drain style: Release
// switches the pin to a pulled-up input so an external instrument (or
// pull-up resistor) determines the logical level, DriveLow switches it
// to a driven-low output.
type Pins struct {
	pins map[platform.Line]gpio.PinIO
}

// Open initializes periph's host drivers and resolves every mapped line
// to a concrete GPIO pin.
func Open(m PinMap) (*Pins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hostsim: periph host init: %w", err)
	}

	p := &Pins{pins: make(map[platform.Line]gpio.PinIO, len(m))}
	for line, name := range m {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("hostsim: no such GPIO pin %q", name)
		}
		p.pins[line] = pin
	}
	return p, nil
}

func (p *Pins) DriveLow(l platform.Line) {
	p.pins[l].Out(gpio.Low)
}

func (p *Pins) Release(l platform.Line) {
	p.pins[l].In(gpio.PullUp, gpio.NoEdge)
}

func (p *Pins) Read(l platform.Line) bool {
	return p.pins[l].Read() == gpio.High
}

func (p *Pins) DriveData(b byte) {
	for i := 0; i < 8; i++ {
		line := platform.DIO1 + platform.Line(i)
		if (b>>uint(i))&1 == 0 {
			p.DriveLow(line)
		} else {
			p.Release(line)
		}
	}
}

func (p *Pins) ReleaseData() {
	for i := 0; i < 8; i++ {
		p.Release(platform.DIO1 + platform.Line(i))
	}
}

func (p *Pins) ReadData() byte {
	var b byte
	for i := 0; i < 8; i++ {
		if p.Read(platform.DIO1 + platform.Line(i)) {
			b |= 1 << uint(i)
		}
	}
	return b
}
