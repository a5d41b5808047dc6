// Package device implements the device-mode addressing state machine
// (§4.E): responding to controller-sent talk/listen/serial-poll
// addressing when the adapter is configured as a GPIB device rather
// than controller.
package device

import (
	"github.com/Galvant/gpibusb-firmware/internal/config"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/link"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/transaction"
	"github.com/Galvant/gpibusb-firmware/internal/platform"
)

// State tracks the three device-mode flags §4.E names.
type State struct {
	Talk   bool
	Listen bool
	SRQ    bool
}

// Clear resets all three flags, the action taken on link timeout and on
// receiving DCL.
func (s *State) Clear() {
	s.Talk = false
	s.Listen = false
	s.SRQ = false
}

// Machine polls bus state each main-loop iteration and drives the link
// engine directly when acting as device, bypassing the command parser
// for bus-initiated transitions (§4.G: "In device mode, G is bypassed
// for bus-initiated transitions; E drives C/D directly").
type Machine struct {
	State State

	Pins  platform.Pins
	Link  *link.Engine
	Bus   *transaction.Bus
	Sleep func()

	OnDCL func()
}

func New(pins platform.Pins, lnk *link.Engine, bus *transaction.Bus) *Machine {
	m := &Machine{Pins: pins, Link: lnk, Bus: bus}
	lnk.OnTimeout = m.State.Clear
	return m
}

// Poll runs one iteration of the device state machine, per §4.E.
func (m *Machine) Poll(cfg *config.Config) error {
	// Debounce: read ATN twice before trusting it asserted.
	if m.Pins.Read(platform.ATN) || m.Pins.Read(platform.ATN) {
		return m.pollReleased(cfg)
	}
	return m.pollAsserted(cfg)
}

func (m *Machine) pollAsserted(cfg *config.Config) error {
	m.Pins.DriveLow(platform.NDAC)

	cmd, _, err := m.Link.ReceiveByte()
	if err != nil {
		return err
	}

	m.Pins.Release(platform.NRFD)

	switch {
	case cmd == cfg.PartnerAddress+0x40:
		m.State.Talk = true
	case cmd == cfg.PartnerAddress+0x20:
		m.State.Listen = true
	case cmd == transaction.CmdUNL:
		m.State.Listen = false
	case cmd == transaction.CmdUNT:
		m.State.Talk = false
	case cmd == transaction.CmdSPE:
		m.State.SRQ = true
	case cmd == transaction.CmdSPD:
		m.State.SRQ = false
	case cmd == transaction.CmdDCL:
		m.State.Clear()
		cfg.StatusByte = 0
		if m.OnDCL != nil {
			m.OnDCL()
		}
	case cmd == transaction.CmdLLO || cmd == transaction.CmdGTL || cmd == transaction.CmdGET:
		if m.State.Listen && m.OnDCL != nil {
			// echo the command to host, same gate as DCL above
			m.OnDCL()
		}
	}

	return nil
}

func (m *Machine) pollReleased(cfg *config.Config) error {
	if m.Sleep != nil {
		m.Sleep()
	}
	if !(m.Pins.Read(platform.ATN) && m.Pins.Read(platform.ATN)) {
		return nil
	}

	switch {
	case m.State.Listen:
		m.Pins.DriveLow(platform.NDAC)
		if err := m.Bus.ReadBlock(cfg, false, cfg.EOIUse); err != nil {
			return err
		}
		m.State.Listen = false
	case m.State.Talk && m.State.SRQ:
		if err := m.Bus.WriteLine(cfg, false, []byte{cfg.StatusByte}); err != nil {
			return err
		}
		m.State.Talk = false
		m.State.SRQ = false
	}

	return nil
}
