// Package fake implements platform.Board entirely in memory, for unit
// tests that exercise the GPIB engine without real hardware. It models
// the bus as a wired-AND: a line reads released only if neither "our"
// side nor the simulated partner side is asserting it low, the same
// electrical behavior open-drain GPIB lines have on real silicon.
package fake

import "github.com/Galvant/gpibusb-firmware/internal/platform"

// Pins is a simulated open-drain GPIB bus with a second, test-controlled
// driver representing whatever instrument or controller the adapter is
// talking to.
type Pins struct {
	mine [20]bool
	peer [20]bool
}

func NewPins() *Pins { return &Pins{} }

func (p *Pins) DriveLow(l platform.Line) { p.mine[l] = true }
func (p *Pins) Release(l platform.Line)  { p.mine[l] = false }
func (p *Pins) Read(l platform.Line) bool {
	return !(p.mine[l] || p.peer[l])
}

// PeerDriveLow/PeerRelease let a test simulate the other side of the bus.
func (p *Pins) PeerDriveLow(l platform.Line) { p.peer[l] = true }
func (p *Pins) PeerRelease(l platform.Line)  { p.peer[l] = false }
func (p *Pins) PeerRead(l platform.Line) bool {
	return !(p.mine[l] || p.peer[l])
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

// PeerDriveData/PeerReadData mirror DriveData/ReadData from the
// simulated partner's point of view.
func (p *Pins) PeerDriveData(b byte) {
	for i := 0; i < 8; i++ {
		line := platform.DIO1 + platform.Line(i)
		if (b>>uint(i))&1 == 0 {
			p.PeerDriveLow(line)
		} else {
			p.PeerRelease(line)
		}
	}
}

func (p *Pins) PeerReadData() byte {
	var b byte
	for i := 0; i < 8; i++ {
		if p.PeerRead(platform.DIO1 + platform.Line(i)) {
			b |= 1 << uint(i)
		}
	}
	return b
}

// Clock is a manually-advanced millisecond counter.
type Clock struct {
	ms uint32
}

func (c *Clock) Millis() uint32  { return c.ms }
func (c *Clock) Advance(d uint32) { c.ms += d }

// Watchdog counts kicks instead of resetting anything.
type Watchdog struct {
	Kicks int
}

func (w *Watchdog) Kick() { w.Kicks++ }

// Resetter records whether a reset was requested instead of halting.
type Resetter struct {
	Reset_ bool
}

func (r *Resetter) Reset() { r.Reset_ = true }

// NVRAM is a plain byte array.
type NVRAM struct {
	bytes [256]byte
}

func (n *NVRAM) ReadByte(addr uint8) byte       { return n.bytes[addr] }
func (n *NVRAM) WriteByte(addr uint8, v byte)   { n.bytes[addr] = v }

// UART records bytes written to the host and lets a test push bytes as
// if they had arrived over the wire.
type UART struct {
	Written []byte
	onRX    func(byte)
}

func (u *UART) WriteByte(b byte) { u.Written = append(u.Written, b) }
func (u *UART) SetReceiveHandler(fn func(byte)) { u.onRX = fn }

// Receive feeds bytes into the registered RX handler, simulating the
// UART RX interrupt.
func (u *UART) Receive(data []byte) {
	for _, b := range data {
		if u.onRX != nil {
			u.onRX(b)
		}
	}
}

// LED tracks on/off state.
type LED struct {
	Lit bool
}

func (l *LED) On()  { l.Lit = true }
func (l *LED) Off() { l.Lit = false }

// NewBoard wires up a complete in-memory platform.Board.
func NewBoard() (platform.Board, *Pins, *Clock, *Watchdog, *Resetter, *NVRAM, *UART, *LED) {
	pins := NewPins()
	clock := &Clock{}
	wdt := &Watchdog{}
	rst := &Resetter{}
	nvram := &NVRAM{}
	uart := &UART{}
	led := &LED{}

	board := platform.Board{
		Pins:     pins,
		Clock:    clock,
		Watchdog: wdt,
		Reset:    rst,
		NVRAM:    nvram,
		UART:     uart,
		LED:      led,
	}

	return board, pins, clock, wdt, rst, nvram, uart, led
}
