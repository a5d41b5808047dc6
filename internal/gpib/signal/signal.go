// Package signal implements the GPIB physical-layer conventions (4.B):
// which lines float to logical high, which are driven, and the negative
// logic inversion applied to the data port.
package signal

import "github.com/Galvant/gpibusb-firmware/internal/platform"

// Bus wraps a platform.Pins with the line semantics GPIB expects.
type Bus struct {
	Pins platform.Pins
}

func New(pins platform.Pins) *Bus {
	return &Bus{Pins: pins}
}

// DriveLow asserts a control/data line low.
func (b *Bus) DriveLow(line platform.Line) { b.Pins.DriveLow(line) }

// Release floats a control/data line high.
func (b *Bus) Release(line platform.Line) { b.Pins.Release(line) }

// Read samples a control/data line.
func (b *Bus) Read(line platform.Line) bool { return b.Pins.Read(line) }

// WriteDataByte drives the eight DIO lines with the bitwise complement of
// b, since GPIB data lines use negative logic.
func (b *Bus) WriteDataByte(v byte) {
	b.Pins.DriveData(^v)
}

// ReleaseDataByte floats all eight DIO lines.
func (b *Bus) ReleaseDataByte() {
	b.Pins.ReleaseData()
}

// ReadDataByte samples the DIO lines and un-inverts the negative logic.
func (b *Bus) ReadDataByte() byte {
	return b.Pins.ReadData() ^ 0xff
}

// InitController puts the bus into controller-mode idle: SC high, DC low,
// ATN released, EOI/DAV/SRQ high-Z, NRFD/NDAC driven low, IFC driven high,
// REN driven low.
//
// SC and IFC are released like every other line: platform.Pins never
// drives a line high, so their high level comes from the pull-up.
func (b *Bus) InitController() {
	b.Release(platform.SC)
	b.DriveLow(platform.DC)

	b.Release(platform.ATN)
	b.Release(platform.EOI)
	b.Release(platform.DAV)
	b.Release(platform.SRQ)

	b.DriveLow(platform.NRFD)
	b.DriveLow(platform.NDAC)

	b.Release(platform.IFC)
	b.DriveLow(platform.REN)
}

// InitDevice puts the bus into device-mode idle: SC low, DC high, every
// management/handshake line high-Z.
func (b *Bus) InitDevice() {
	b.DriveLow(platform.SC)
	b.Release(platform.DC)

	b.Release(platform.ATN)
	b.Release(platform.EOI)
	b.Release(platform.DAV)
	b.Release(platform.NRFD)
	b.Release(platform.NDAC)
	b.Release(platform.IFC)
	b.Release(platform.REN)
	b.Release(platform.SRQ)
}
