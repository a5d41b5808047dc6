// Package platform declares the hardware capabilities the GPIB firmware
// core consumes as thin traits, so the same core runs unmodified on the
// TamaGo runtime, on a host-side simulator or on bench hardware.
//
// An implementer targeting a different MCU only needs to satisfy these
// interfaces; nothing in internal/gpib, internal/command, internal/config
// or internal/ring imports a concrete board package.
package platform

// Line names every GPIO signal the bridge drives or samples: the eight
// data lines, the eight IEEE-488 management/handshake lines, and the four
// adapter-internal direction-control lines (SC/TE/PE/DC) that steer the
// bus transceivers.
type Line int

const (
	DIO1 Line = iota
	DIO2
	DIO3
	DIO4
	DIO5
	DIO6
	DIO7
	DIO8
	ATN
	EOI
	DAV
	NRFD
	NDAC
	IFC
	SRQ
	REN
	SC
	TE
	PE
	DC
)

// Pins is the open-drain GPIO capability the GPIB signal layer (4.B) is
// built on. Lines are never driven high: DriveLow asserts (pulls to 0V),
// Release lets the external pull-up take the line high.
type Pins interface {
	DriveLow(line Line)
	Release(line Line)
	Read(line Line) bool

	// DriveData writes all eight DIO lines atomically, pulling low any
	// bit that is 0 and releasing any bit that is 1.
	DriveData(b byte)
	// ReleaseData floats all eight DIO lines.
	ReleaseData()
	// ReadData samples all eight DIO lines into a single byte.
	ReadData() byte
}

// Clock exposes the free-running millisecond tick (§5) used for
// handshake deadlines. Implementations back it with a 1ms timer ISR.
type Clock interface {
	Millis() uint32
}

// Watchdog must be kicked inside every bounded loop; letting it lapse
// for one full period resets the CPU.
type Watchdog interface {
	Kick()
}

// Resetter performs a hard CPU reset, used by +reset/++rst and by
// unrecoverable bring-up failures.
type Resetter interface {
	Reset()
}

// NVRAM is the byte-addressable non-volatile store backing the 10-byte
// config record of §3. Implementations may be a real EEPROM or a flash
// page emulating one.
type NVRAM interface {
	ReadByte(addr uint8) byte
	WriteByte(addr uint8, v byte)
}

// UART is the host-facing serial link. WriteByte transmits a single byte
// to the host; SetReceiveHandler registers the callback the RX interrupt
// invokes for each byte it receives (the producer side of internal/ring).
type UART interface {
	WriteByte(b byte)
	SetReceiveHandler(func(b byte))
}

// LED drives the bring-up/error indicator.
type LED interface {
	On()
	Off()
}

// Board aggregates every trait the firmware needs at boot, so wiring
// code can pass a single value around instead of seven.
type Board struct {
	Pins     Pins
	Clock    Clock
	Watchdog Watchdog
	Reset    Resetter
	NVRAM    NVRAM
	UART     UART
	LED      LED

	// MaskRX runs fn with the UART RX interrupt masked. §5 requires
	// this around the consumer's paired out+lines_buffered update; a
	// nil MaskRX (the default fake/host adapters use) means the target
	// has no concept of interrupt masking and fn runs directly.
	MaskRX func(fn func())
}

// CriticalSection runs fn with RX interrupts masked when the board
// supports it, otherwise runs fn directly.
func (b Board) CriticalSection(fn func()) {
	if b.MaskRX != nil {
		b.MaskRX(fn)
		return
	}
	fn()
}
