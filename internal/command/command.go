// Package command parses the "+" and "++" ASCII command dialects from a
// NUL-terminated serial record and dispatches to bus operations or
// config mutations (§4.G).
package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/Galvant/gpibusb-firmware/internal/config"
	"github.com/Galvant/gpibusb-firmware/internal/diag"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/device"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/transaction"
	"github.com/Galvant/gpibusb-firmware/internal/platform"
)

// Version is reported by +ver/++ver.
const Version = 5

// Dispatcher owns everything a command needs to run: config, the bus,
// the host reply path and the platform traits only a handful of
// commands touch directly (reset, watchdog-adjacent timing).
type Dispatcher struct {
	Cfg      *config.Config
	Store    *config.Store
	Bus      *transaction.Bus
	Diag     *diag.Sink
	UART     platform.UART
	Reset    platform.Resetter
	Clock    platform.Clock
	Device   *device.State
	OnMode   func(newMode config.Mode)
	resetAt  uint32
	resetSet bool
}

func New(cfg *config.Config, store *config.Store, bus *transaction.Bus, d *diag.Sink, uart platform.UART, reset platform.Resetter, clock platform.Clock, dev *device.State) *Dispatcher {
	return &Dispatcher{Cfg: cfg, Store: store, Bus: bus, Diag: d, UART: uart, Reset: reset, Clock: clock, Device: dev}
}

func (d *Dispatcher) isController() bool { return d.Cfg.Mode == config.ModeController }
func (d *Dispatcher) isDevice() bool     { return d.Cfg.Mode == config.ModeDevice }

func (d *Dispatcher) emit(s string) {
	for i := 0; i < len(s); i++ {
		d.UART.WriteByte(s[i])
	}
	if d.Cfg.EOTEnable {
		d.UART.WriteByte(d.Cfg.EOTChar)
	}
}

func (d *Dispatcher) emitInt(n int) { d.emit(strconv.Itoa(n)) }

func (d *Dispatcher) emitBool(b bool) {
	if b {
		d.emitInt(1)
	} else {
		d.emitInt(0)
	}
}

func (d *Dispatcher) saveIfNeeded() { d.Store.SaveIfEnabled(d.Cfg) }

// Dispatch parses and executes a single NUL-terminated record (already
// delivered without its terminator by the ring buffer consumer).
func (d *Dispatcher) Dispatch(line []byte) error {
	if len(line) == 0 {
		return nil
	}

	if line[0] != '+' {
		return d.dispatchBusWrite(line)
	}

	if len(line) > 1 && line[1] == '+' {
		return d.dispatchPrologix(string(line[2:]))
	}

	return d.dispatchLegacy(string(line[1:]))
}

func (d *Dispatcher) dispatchBusWrite(line []byte) error {
	if d.isController() {
		if err := d.Bus.WriteLine(d.Cfg, true, line); err != nil {
			d.Diag.WriteError()
			return err
		}
		if d.Cfg.Autoread && contains(line, '?') {
			if err := d.Bus.ReadBlock(d.Cfg, true, d.Cfg.EOIUse); err != nil {
				d.Diag.ReadError()
				return err
			}
		}
		return nil
	}

	if d.Device != nil && d.Device.Talk {
		return d.Bus.WriteLine(d.Cfg, false, line)
	}
	return nil
}

func contains(b []byte, c byte) bool {
	for _, v := range b {
		if v == c {
			return true
		}
	}
	return false
}

func splitCmdArg(rest string) (name, arg string, hasArg bool) {
	rest = strings.TrimSpace(rest)
	if i := strings.IndexAny(rest, " :"); i >= 0 {
		return rest[:i], strings.TrimSpace(rest[i+1:]), true
	}
	return rest, "", false
}

func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}

// snapBool coerces an out-of-range boolean argument to a documented
// safe default, per §7 "Invalid argument".
func snapBool(s string, fallback int) int {
	n, ok := parseInt(s)
	if !ok || (n != 0 && n != 1) {
		return fallback
	}
	return n
}

func (d *Dispatcher) requireController() bool {
	if d.isController() {
		return true
	}
	d.Diag.Print("Controller-only command.")
	return false
}

func (d *Dispatcher) requireDevice() bool {
	if d.isDevice() {
		return true
	}
	d.Diag.Print("Device-only command.")
	return false
}

func (d *Dispatcher) dispatchLegacy(rest string) error {
	name, arg, hasArg := splitCmdArg(rest)

	switch name {
	case "a":
		if hasArg {
			if n, ok := parseInt(arg); ok {
				d.Cfg.PartnerAddress = uint8(n)
				d.saveIfNeeded()
			}
		}
	case "t":
		if hasArg {
			if n, ok := parseInt(arg); ok {
				// legacy seconds -> canonical milliseconds (§9 Open
				// Question a).
				d.Cfg.TimeoutMS = uint32(n) * 1000
			}
		}
	case "read":
		if d.requireController() {
			readUntilEOI := d.Cfg.EOIUse
			if err := d.Bus.ReadBlock(d.Cfg, true, readUntilEOI); err != nil {
				d.Diag.ReadError()
				return err
			}
		}
	case "test", "ver":
		d.emitInt(Version)
	case "help":
		if d.Cfg.Debug {
			d.emit(helpText)
		}
	case "eos":
		if hasArg {
			if n, ok := parseInt(arg); ok {
				d.Cfg.SetCustomEOSByte(byte(n))
				d.saveIfNeeded()
			}
		}
	case "eoi":
		if hasArg {
			n := snapBool(arg, 1)
			d.Cfg.EOIUse = n == 1
			d.saveIfNeeded()
		}
	case "strip":
		if hasArg {
			if n, ok := parseInt(arg); ok {
				d.Cfg.Strip = n
			}
		}
	case "get":
		if d.requireController() {
			if err := d.Bus.GroupExecuteTrigger(d.Cfg.PartnerAddress); err != nil {
				d.Diag.WriteError()
				return err
			}
		}
	case "autoread":
		if hasArg {
			n := snapBool(arg, 1)
			d.Cfg.Autoread = n == 1
			d.saveIfNeeded()
		}
	case "reset":
		d.scheduleReset()
	case "debug":
		if hasArg {
			n := snapBool(arg, 0)
			d.Cfg.Debug = n == 1
			d.Diag.Enabled = d.Cfg.Debug
			d.saveIfNeeded()
		}
	default:
		d.Diag.UnrecognizedCommand()
	}

	return nil
}

const helpText = "+a +t +read +test +ver +eos +eoi +strip +get +autoread +reset +debug"

func (d *Dispatcher) scheduleReset() {
	// "reset CPU after 1 ms" — callers poll ResetDue via the main loop;
	// a bare-metal reset primitive has no meaningful "in N ms" variant
	// of its own, so the delay is modeled as a deadline checked each
	// iteration rather than a blocking sleep that would starve the
	// watchdog kick.
	d.resetAt = d.Clock.Millis() + 1
	d.resetSet = true
}

// ResetDue reports whether a scheduled reset's delay has elapsed, and
// performs the reset if so. The firmware main loop calls this every
// iteration.
func (d *Dispatcher) ResetDue() bool {
	if !d.resetSet {
		return false
	}
	if d.Clock.Millis() < d.resetAt {
		return false
	}
	d.Reset.Reset()
	return true
}

func (d *Dispatcher) dispatchPrologix(rest string) error {
	name, arg, hasArg := splitCmdArg(rest)

	switch name {
	case "addr":
		if hasArg {
			if n, ok := parseInt(arg); ok {
				d.Cfg.PartnerAddress = uint8(n)
				d.saveIfNeeded()
				return nil
			}
		}
		d.emitInt(int(d.Cfg.PartnerAddress))
	case "read_tmo_ms":
		if hasArg {
			if n, ok := parseInt(arg); ok {
				d.Cfg.TimeoutMS = uint32(n)
				return nil
			}
		}
		d.emitInt(int(d.Cfg.TimeoutMS))
	case "read":
		if !d.requireController() {
			return nil
		}
		readUntilEOI := arg == "eoi"
		if !hasArg {
			readUntilEOI = d.Cfg.EOIUse
		}
		if err := d.Bus.ReadBlock(d.Cfg, true, readUntilEOI); err != nil {
			d.Diag.ReadError()
			return err
		}
	case "ver":
		d.emit("Version " + strconv.Itoa(Version) + ".0")
	case "help":
		if d.Cfg.Debug {
			d.emit(helpText)
		}
	case "eos":
		if hasArg {
			if n, ok := parseInt(arg); ok && n >= 0 && n <= 3 {
				d.Cfg.SetEOSCode(config.EOSCode(n))
				d.saveIfNeeded()
				return nil
			}
		}
		d.emitInt(int(d.Cfg.EOSCode))
	case "eoi":
		if hasArg {
			n := snapBool(arg, 1)
			d.Cfg.EOIUse = n == 1
			d.saveIfNeeded()
			return nil
		}
		d.emitBool(d.Cfg.EOIUse)
	case "trg":
		if d.requireController() {
			if err := d.Bus.GroupExecuteTrigger(d.Cfg.PartnerAddress); err != nil {
				d.Diag.WriteError()
				return err
			}
		}
	case "rst":
		d.scheduleReset()
	case "clr":
		if d.requireController() {
			if err := d.Bus.SelectedDeviceClear(d.Cfg.PartnerAddress); err != nil {
				d.Diag.WriteError()
				return err
			}
		}
	case "auto":
		if hasArg {
			n := snapBool(arg, 1)
			d.Cfg.Autoread = n == 1
			d.saveIfNeeded()
			return nil
		}
		d.emitBool(d.Cfg.Autoread)
	case "eot_enable":
		if hasArg {
			n := snapBool(arg, 1)
			d.Cfg.EOTEnable = n == 1
			d.saveIfNeeded()
			return nil
		}
		d.emitBool(d.Cfg.EOTEnable)
	case "eot_char":
		if hasArg {
			if n, ok := parseInt(arg); ok {
				d.Cfg.EOTChar = byte(n)
				d.saveIfNeeded()
				return nil
			}
		}
		d.emitInt(int(d.Cfg.EOTChar))
	case "ifc":
		if d.requireController() {
			d.Bus.IFCPulse(150 * time.Microsecond)
		}
	case "llo":
		if d.requireController() {
			if err := d.Bus.LocalLockout(d.Cfg.PartnerAddress); err != nil {
				d.Diag.WriteError()
				return err
			}
		}
	case "loc":
		if d.requireController() {
			if err := d.Bus.GoToLocal(d.Cfg.PartnerAddress); err != nil {
				d.Diag.WriteError()
				return err
			}
		}
	case "lon":
		if !d.requireDevice() {
			return nil
		}
		if hasArg {
			n := snapBool(arg, 1)
			d.Cfg.ListenOnly = n == 1
			d.saveIfNeeded()
			return nil
		}
		d.emitBool(d.Cfg.ListenOnly)
	case "mode":
		if hasArg {
			n := snapBool(arg, 1)
			newMode := config.ModeDevice
			if n == 1 {
				newMode = config.ModeController
			}
			d.Cfg.Mode = newMode
			d.saveIfNeeded()
			if d.OnMode != nil {
				d.OnMode(newMode)
			}
			return nil
		}
		d.emitBool(d.isController())
	case "savecfg":
		if hasArg {
			n := snapBool(arg, 1)
			d.Cfg.SaveCfg = n == 1
			if n == 1 {
				d.Store.Save(d.Cfg)
			}
			return nil
		}
		d.emitBool(d.Cfg.SaveCfg)
	case "srq":
		if d.requireController() {
			d.emitBool(!d.Bus.Pins.Read(platform.SRQ))
		}
	case "spoll":
		if !d.requireController() {
			return nil
		}
		addr := d.Cfg.PartnerAddress
		if hasArg {
			if n, ok := parseInt(arg); ok {
				addr = uint8(n)
			}
		}
		if err := d.Bus.SerialPoll(d.Cfg, addr); err != nil {
			d.Diag.WriteError()
			return err
		}
	case "status":
		if !d.requireDevice() {
			return nil
		}
		if hasArg {
			if n, ok := parseInt(arg); ok {
				d.Cfg.StatusByte = byte(n)
				return nil
			}
		}
		d.emitInt(int(d.Cfg.StatusByte))
	default:
		d.Diag.UnrecognizedCommand()
	}

	return nil
}
