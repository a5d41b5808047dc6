// Package firmware implements the top-level bring-up and scheduling
// loop (§4.I): boot sequence, controller-vs-device dispatch, and the
// cooperative main loop that services the serial ring, command
// dispatcher, and device-mode state machine.
package firmware

import (
	"time"

	"github.com/Galvant/gpibusb-firmware/internal/command"
	"github.com/Galvant/gpibusb-firmware/internal/config"
	"github.com/Galvant/gpibusb-firmware/internal/diag"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/device"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/link"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/signal"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/transaction"
	"github.com/Galvant/gpibusb-firmware/internal/platform"
	"github.com/Galvant/gpibusb-firmware/internal/ring"
)

// App wires every component together and owns the main loop.
type App struct {
	Board platform.Board
	Cfg   *config.Config
	Store *config.Store

	Bus     *signal.Bus
	Link    *link.Engine
	TxnBus  *transaction.Bus
	Device  *device.Machine
	Diag    *diag.Sink
	Ring    *ring.Buffer
	Command *command.Dispatcher

	// Sleep blocks for a duration, overridable in tests to avoid
	// burning real time on the boot-blink delay.
	Sleep func(time.Duration)
}

// New constructs the full dependency graph over the given board traits.
// It does not perform any I/O; call Boot to bring the hardware up.
func New(board platform.Board) *App {
	a := &App{Board: board}

	a.Store = config.NewStore(board.NVRAM)
	a.Cfg = a.Store.Load()

	a.Bus = signal.New(board.Pins)
	a.Link = &link.Engine{
		Bus:       a.Bus,
		Clock:     board.Clock,
		Watchdog:  board.Watchdog,
		TimeoutMS: a.Cfg.TimeoutMS,
	}
	a.TxnBus = &transaction.Bus{
		Link:     a.Link,
		Pins:     board.Pins,
		Clock:    board.Clock,
		Watchdog: board.Watchdog,
		UART:     board.UART,
	}

	a.Diag = diag.New(board.UART)
	a.Diag.Enabled = a.Cfg.Debug

	a.Device = device.New(board.Pins, a.Link, a.TxnBus)

	a.Ring = ring.New()

	a.Command = command.New(a.Cfg, a.Store, a.TxnBus, a.Diag, board.UART, board.Reset, board.Clock, &a.Device.State)
	a.Command.OnMode = a.handleModeChange
	a.Device.OnDCL = func() { a.Diag.Print("DCL") }

	return a
}

func (a *App) sleep(d time.Duration) {
	if a.Sleep != nil {
		a.Sleep(d)
		return
	}
	deadline := a.Board.Clock.Millis() + uint32(d/time.Millisecond)
	for a.Board.Clock.Millis() < deadline {
	}
}

func (a *App) handleModeChange(mode config.Mode) {
	a.Link.TimeoutMS = a.Cfg.TimeoutMS
	if mode == config.ModeController {
		a.Bus.InitController()
		a.TxnBus.ControllerAssign(a.Cfg.MyAddress)
	} else {
		a.Bus.InitDevice()
	}
}

// Boot runs the bring-up sequence: LED on, watchdog armed, pins
// initialized for the loaded mode, controller-assign if applicable, a
// double LED blink with interleaved watchdog kicks (the hotplug
// workaround carried verbatim from the reference firmware), then RX
// interrupts enabled only once bring-up has completed.
func (a *App) Boot() {
	a.Board.LED.On()
	a.Board.Watchdog.Kick()

	if a.Cfg.Mode == config.ModeController {
		a.Bus.InitController()
		a.Board.Watchdog.Kick()
		a.TxnBus.ControllerAssign(a.Cfg.MyAddress)
	} else {
		a.Bus.InitDevice()
	}

	a.blinkBringup()

	a.Board.UART.SetReceiveHandler(a.Ring.Push)
}

// blinkBringup double-blinks the error LED with a watchdog kick between
// each phase. Kept verbatim in spirit from usb_to_gpib.c's bring-up
// sequence, which works around a hotplug enumeration race on the
// USB-serial side of the real hardware.
func (a *App) blinkBringup() {
	for i := 0; i < 2; i++ {
		a.Board.LED.On()
		a.Board.Watchdog.Kick()
		a.sleep(100 * time.Millisecond)

		a.Board.LED.Off()
		a.Board.Watchdog.Kick()
		a.sleep(100 * time.Millisecond)
	}
}

// Step runs one iteration of the main loop: kick the watchdog, dispatch
// at most one buffered line, and step the device-mode state machine.
// Run calls this in an infinite loop; tests call it directly.
func (a *App) Step() {
	a.Board.Watchdog.Kick()

	if a.Command.ResetDue() {
		return
	}

	if a.Ring.LinesBuffered() > 0 {
		line := a.Ring.PeekLine()
		a.Board.CriticalSection(func() {
			a.Ring.Advance(len(line))
		})

		if len(line) > 0 {
			a.Command.Dispatch(line)
		}
	}

	if a.Cfg.Mode == config.ModeDevice {
		a.Device.Poll(a.Cfg)
	}
}

// Run loops Step forever; only returns if a reset primitive itself
// returns control (which on real hardware it never does).
func (a *App) Run() {
	for {
		a.Step()
	}
}
