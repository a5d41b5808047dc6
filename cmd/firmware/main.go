// Command firmware is the bare-metal entry point for the USB-to-GPIB
// bridge, wiring the TamaGo board adapter to the hardware-agnostic core
// and running the main loop forever. It never returns.
//
// Build with `GOOS=tamago GOARCH=arm`.
package main

import (
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	tamagoboard "github.com/Galvant/gpibusb-firmware/internal/board/tamago"
	"github.com/Galvant/gpibusb-firmware/internal/firmware"
	"github.com/Galvant/gpibusb-firmware/internal/platform"
)

// eepromAddr is the 7-bit I2C device address of the adapter's config
// EEPROM (a 24C02-class part wired on I2C1).
const eepromAddr = 0x50

// ledPad is the GPIO1 pad driving the bring-up/error indicator.
const ledPad = 20

func main() {
	imx6ul.WDOG1.Init()
	imx6ul.I2C1.Init()

	pins := tamagoboard.NewPins(imx6ul.GPIO1)
	clock := &tamagoboard.Clock{}
	watchdog := tamagoboard.NewWatchdog(imx6ul.WDOG1)
	resetter := tamagoboard.NewResetter(imx6ul.WDOG1)
	nvram := tamagoboard.NewEEPROM(imx6ul.I2C1, eepromAddr)

	imx6ul.UART2.Init()
	uart := tamagoboard.NewUART(imx6ul.UART2)

	ledPin, err := imx6ul.GPIO1.Init(ledPad)
	if err != nil {
		panic(err)
	}
	led := tamagoboard.NewLED(ledPin)

	board := platform.Board{
		Pins:     pins,
		Clock:    clock,
		Watchdog: watchdog,
		Reset:    resetter,
		NVRAM:    nvram,
		UART:     uart,
		LED:      led,
		MaskRX: func(fn func()) {
			tamagoboard.MaskRX(imx6ul.ARM, fn)
		},
	}

	app := firmware.New(board)
	app.Boot()
	app.Run()
}
