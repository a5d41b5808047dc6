package firmware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Galvant/gpibusb-firmware/internal/board/fake"
	"github.com/Galvant/gpibusb-firmware/internal/command"
	"github.com/Galvant/gpibusb-firmware/internal/config"
	"github.com/Galvant/gpibusb-firmware/internal/platform"
)

func newDeviceModeApp() (*App, *fake.Watchdog, *fake.LED, *fake.UART) {
	board, _, _, wdt, _, nvram, uart, led := fake.NewBoard()

	cfg := config.Defaults()
	cfg.Mode = config.ModeDevice
	config.NewStore(nvram).Save(cfg)

	app := New(board)
	app.Sleep = func(time.Duration) {} // skip the real bring-up delay
	return app, wdt, led, uart
}

func TestBootInDeviceModeSkipsHandshakeAndEnablesRX(t *testing.T) {
	app, wdt, led, uart := newDeviceModeApp()

	app.Boot()

	assert.False(t, led.Lit, "blinkBringup ends with the LED off")
	assert.Greater(t, wdt.Kicks, 0)

	uart.Receive([]byte("+ver\n"))
	assert.Equal(t, 1, app.Ring.LinesBuffered(), "RX handler should be wired to the ring after Boot")
}

func TestStepDispatchesOneBufferedLine(t *testing.T) {
	app, _, _, uart := newDeviceModeApp()
	app.Boot()

	uart.Receive([]byte("+ver\n"))
	require.Equal(t, 1, app.Ring.LinesBuffered())

	app.Step()

	assert.Equal(t, 0, app.Ring.LinesBuffered())
	assert.Equal(t, append([]byte(nil), byte('0'+command.Version), app.Cfg.EOTChar), uart.Written)
}

func TestStepLeavesExtraBufferedLinesForNextIteration(t *testing.T) {
	app, _, _, uart := newDeviceModeApp()
	app.Boot()

	uart.Receive([]byte("+ver\n+ver\n"))
	require.Equal(t, 2, app.Ring.LinesBuffered())

	app.Step()
	assert.Equal(t, 1, app.Ring.LinesBuffered(), "Step only dispatches one line per call")
}

func TestHandleModeChangeToDeviceReleasesHandshakeLines(t *testing.T) {
	app, _, _, _ := newDeviceModeApp()
	app.Boot() // controller-mode bring-up would hang waiting on a peer; stay in device mode

	app.handleModeChange(config.ModeDevice)

	assert.True(t, app.Board.Pins.Read(platform.NRFD), "device-mode init floats NRFD high")
	assert.True(t, app.Board.Pins.Read(platform.NDAC), "device-mode init floats NDAC high")
}
