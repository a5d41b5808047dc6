// Package tamago implements platform.Board on top of the TamaGo
// bare-metal runtime's i.MX6 peripheral drivers, the way
// board/f-secure/usbarmory/mark-two wraps soc/imx6 in the teacher
// repository. It is the production binding used by cmd/firmware; tests
// use internal/board/fake instead.
//
// Build with `GOOS=tamago GOARCH=arm`.
package tamago

import (
	"github.com/usbarmory/tamago/arm"
	"github.com/usbarmory/tamago/soc/nxp/gpio"
	"github.com/usbarmory/tamago/soc/nxp/i2c"
	"github.com/usbarmory/tamago/soc/nxp/uart"
	"github.com/usbarmory/tamago/soc/nxp/wdog"

	"github.com/Galvant/gpibusb-firmware/internal/platform"
)

// MaskRX runs fn with IRQs disabled on the calling core, for the main
// loop's paired ring-buffer out/lines_buffered update. Grounded on
// arm.CPU's EnableInterrupts/DisableInterrupts pair, the only interrupt
// mask primitive TamaGo exposes.
func MaskRX(cpu *arm.CPU, fn func()) {
	cpu.DisableInterrupts()
	fn()
	cpu.EnableInterrupts()
}

// EEPROM implements platform.NVRAM against an I2C-attached serial
// EEPROM (e.g. a 24C02), addressed the way soc/nxp/i2c.Read/Write
// expect: a target device address, a register address and its width.
type EEPROM struct {
	hw     *i2c.I2C
	target uint8
}

// NewEEPROM wires the config store to a 24xx-family EEPROM on the given
// I2C bus and 7-bit device address.
func NewEEPROM(hw *i2c.I2C, target uint8) *EEPROM {
	return &EEPROM{hw: hw, target: target}
}

func (e *EEPROM) ReadByte(addr uint8) byte {
	buf, err := e.hw.Read(e.target, uint32(addr), 1, 1)
	if err != nil || len(buf) == 0 {
		return 0
	}
	return buf[0]
}

func (e *EEPROM) WriteByte(addr uint8, v byte) {
	e.hw.Write([]byte{v}, e.target, uint32(addr), 1)
}

// Clock is a millisecond counter incremented by Tick — the same
// ms_count design as §5, not a read of a SoC free-running timer
// register. cmd/firmware does not call Tick, so there the counter stays
// at zero.
type Clock struct {
	ms uint32
}

// Tick increments the counter by one millisecond. Call from the 1ms
// timer interrupt vector only.
func (c *Clock) Tick() { c.ms++ }

func (c *Clock) Millis() uint32 { return c.ms }

// lineAssignment maps the protocol-level Line enum onto physical GPIO
// pad numbers on the adapter's i.MX6ULL GPIO1 bank. Real pad numbers
// are board-specific wiring, recorded here once rather than scattered
// through the core packages (§9, "Pin I/O as trait").
var lineAssignment = map[platform.Line]int{
	platform.DIO1: 0, platform.DIO2: 1, platform.DIO3: 2, platform.DIO4: 3,
	platform.DIO5: 4, platform.DIO6: 5, platform.DIO7: 6, platform.DIO8: 7,
	platform.ATN: 8, platform.EOI: 9, platform.DAV: 10, platform.NRFD: 11,
	platform.NDAC: 12, platform.IFC: 13, platform.SRQ: 14, platform.REN: 15,
	platform.SC: 16, platform.TE: 17, platform.PE: 18, platform.DC: 19,
}

// Pins drives the GPIB bus through tamago's NXP GPIO controller.
type Pins struct {
	gpio *gpio.GPIO
	pins map[platform.Line]*gpio.Pin
}

// NewPins initializes one GPIO pin per Line against the given controller.
func NewPins(hw *gpio.GPIO) *Pins {
	p := &Pins{gpio: hw, pins: make(map[platform.Line]*gpio.Pin, len(lineAssignment))}
	for line, num := range lineAssignment {
		pin, err := hw.Init(num)
		if err != nil {
			panic(err)
		}
		p.pins[line] = pin
	}
	return p
}

func (p *Pins) DriveLow(l platform.Line) {
	pin := p.pins[l]
	pin.Out()
	pin.Low()
}

func (p *Pins) Release(l platform.Line) {
	p.pins[l].In()
}

func (p *Pins) Read(l platform.Line) bool {
	return p.pins[l].Value()
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

// Watchdog wraps the NXP WDOG driver.
type Watchdog struct {
	hw *wdog.WDOG
}

func NewWatchdog(hw *wdog.WDOG) *Watchdog { return &Watchdog{hw: hw} }

func (w *Watchdog) Kick() { w.hw.Service(0) }

// Resetter performs a hard reset through the same watchdog peripheral,
// same pattern as the reference's reset_cpu() tripping the WDT.
type Resetter struct {
	hw *wdog.WDOG
}

func NewResetter(hw *wdog.WDOG) *Resetter { return &Resetter{hw: hw} }

func (r *Resetter) Reset() { r.hw.SoftwareReset() }

// UART wraps a tamago UART for host-facing tx and a polled rx path:
// Poll delivers received bytes to the registered handler, matching the
// teacher's printk-over-UART convention
// (board/f-secure/usbarmory/mark-two/uart.go) extended with an RX side.
// cmd/firmware does not call Poll, so there no received byte reaches
// the handler.
type UART struct {
	hw   *uart.UART
	onRX func(byte)
}

func NewUART(hw *uart.UART) *UART { return &UART{hw: hw} }

func (u *UART) WriteByte(b byte) { u.hw.Tx(b) }

func (u *UART) SetReceiveHandler(fn func(byte)) { u.onRX = fn }

// Poll drains any bytes the UART has received and delivers them to the
// registered handler. Call from the UART RX interrupt vector.
func (u *UART) Poll() {
	if u.onRX == nil {
		return
	}
	for {
		c, valid := u.hw.Rx()
		if !valid {
			return
		}
		u.onRX(c)
	}
}

// LED wraps a single GPIO output pin used as the bring-up/error indicator.
type LED struct {
	pin *gpio.Pin
}

func NewLED(pin *gpio.Pin) *LED {
	pin.Out()
	return &LED{pin: pin}
}

func (l *LED) On()  { l.pin.High() }
func (l *LED) Off() { l.pin.Low() }
