// Package link implements the bit-banged GPIB three-wire handshake
// (4.C): one-byte write and receive primitives guarded by a timeout, on
// top of the signal layer.
package link

import (
	"errors"

	"github.com/Galvant/gpibusb-firmware/internal/gpib/signal"
	"github.com/Galvant/gpibusb-firmware/internal/platform"
)

// ErrTimeout is returned whenever a handshake edge does not arrive
// within the configured timeout.
var ErrTimeout = errors.New("gpib: timeout waiting for handshake")

// Engine drives the DAV/NRFD/NDAC handshake byte by byte.
type Engine struct {
	Bus      *signal.Bus
	Clock    platform.Clock
	Watchdog platform.Watchdog

	// TimeoutMS is the maximum time to wait for any handshake edge.
	// A zero value makes any wait whose condition does not already hold
	// abort immediately.
	TimeoutMS uint32

	// OnTimeout is invoked on any handshake timeout, just before pins are
	// re-initialized, letting the device-mode state machine clear
	// device_talk/device_listen/device_srq without link importing it.
	OnTimeout func()
}

// WriteOpts controls a WriteBytes call.
type WriteOpts struct {
	// Attention asserts ATN before the group and never asserts EOI.
	Attention bool
	// UseEOI asserts EOI on the final byte of the group, when Attention
	// is false.
	UseEOI bool
}

func (e *Engine) deadline() uint32 {
	return e.Clock.Millis() + e.TimeoutMS
}

func (e *Engine) expired(deadline uint32) bool {
	return e.Clock.Millis() >= deadline
}

func (e *Engine) waitUntil(cond func() bool) bool {
	dl := e.deadline()
	for !cond() {
		if e.expired(dl) {
			return false
		}
	}
	return true
}

func (e *Engine) abort() error {
	if e.OnTimeout != nil {
		e.OnTimeout()
	}
	e.reinit()
	return ErrTimeout
}

func (e *Engine) reinit() {
	// Pin re-init after a timeout always returns to controller idle: a
	// device that lost a handshake mid-transaction must still be able
	// to talk to the bus afterwards, and only controller mode issues
	// writes that can time out this way in practice.
	e.Bus.InitController()
}

// WriteBytes writes data onto the bus as one handshake group, per 4.C.
func (e *Engine) WriteBytes(data []byte, opts WriteOpts) error {
	// 1. enable talker
	e.Bus.DriveLow(platform.TE)
	e.Bus.Release(platform.TE)
	e.Bus.Release(platform.PE)
	defer func() {
		e.Bus.DriveLow(platform.TE)
		e.Bus.DriveLow(platform.PE)
	}()

	if opts.Attention {
		e.Bus.DriveLow(platform.ATN)
	}

	e.Bus.Release(platform.EOI)
	e.Bus.Release(platform.DAV)
	e.Bus.Release(platform.NRFD)

	// 3. wait for NRFD high and NDAC low before the first byte
	if !e.waitUntil(func() bool {
		return e.Bus.Read(platform.NRFD) && !e.Bus.Read(platform.NDAC)
	}) {
		return e.abort()
	}

	for i, bb := range data {
		e.Watchdog.Kick()

		if !e.waitUntil(func() bool { return !e.Bus.Read(platform.NDAC) }) {
			return e.abort()
		}

		e.Bus.WriteDataByte(bb)

		e.Bus.Release(platform.NRFD)
		if !e.waitUntil(func() bool { return e.Bus.Read(platform.NRFD) }) {
			return e.abort()
		}

		isLast := i == len(data)-1
		if isLast && opts.UseEOI && !opts.Attention {
			e.Bus.DriveLow(platform.EOI)
		}

		e.Bus.DriveLow(platform.DAV)

		if !e.waitUntil(func() bool { return e.Bus.Read(platform.NDAC) }) {
			return e.abort()
		}

		e.Bus.Release(platform.DAV)
	}

	e.Bus.ReleaseDataByte()
	if opts.Attention {
		e.Bus.Release(platform.ATN)
	}
	e.Bus.Release(platform.EOI)
	e.Bus.Release(platform.NRFD)
	e.Bus.Release(platform.NDAC)

	return nil
}

// ReceiveByte receives one byte and reports whether EOI was asserted
// concurrently with it.
func (e *Engine) ReceiveByte() (b byte, eoi bool, err error) {
	e.Bus.Release(platform.NRFD)
	e.Bus.DriveLow(platform.NDAC)
	e.Bus.Release(platform.DAV)

	if !e.waitUntil(func() bool { return !e.Bus.Read(platform.DAV) }) {
		return 0, false, e.abort()
	}

	e.Bus.DriveLow(platform.NRFD)
	b = e.Bus.ReadDataByte()
	eoi = !e.Bus.Read(platform.EOI)

	e.Bus.Release(platform.NDAC)

	if !e.waitUntil(func() bool { return e.Bus.Read(platform.DAV) }) {
		return 0, false, e.abort()
	}

	e.Bus.DriveLow(platform.NDAC)

	return b, eoi, nil
}
