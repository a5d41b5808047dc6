package transaction

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Galvant/gpibusb-firmware/internal/board/fake"
	"github.com/Galvant/gpibusb-firmware/internal/config"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/link"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/signal"
	"github.com/Galvant/gpibusb-firmware/internal/platform"
)

func spinUntil(cond func() bool) {
	for !cond() {
		time.Sleep(time.Microsecond)
	}
}

func newBus(pins *fake.Pins, uart *fake.UART, wdt *fake.Watchdog) *Bus {
	clock := &fake.Clock{}
	eng := &link.Engine{
		Bus:       signal.New(pins),
		Clock:     clock,
		Watchdog:  wdt,
		TimeoutMS: 1000,
	}
	return &Bus{
		Link:     eng,
		Pins:     pins,
		Clock:    clock,
		Watchdog: wdt,
		UART:     uart,
		Sleep:    func(time.Duration) {}, // no real waiting in tests
	}
}

// peerAcceptOne runs the listener side of a single WriteBytes byte group
// once: it presents itself ready, then releases NDAC once DAV is asserted.
func peerAcceptOne(pins *fake.Pins) {
	pins.PeerRelease(platform.NRFD)
	pins.PeerDriveLow(platform.NDAC)
	spinUntil(func() bool { return !pins.Read(platform.DAV) })
	pins.PeerRelease(platform.NDAC)
}

// peerSendOne runs the talker side of a single ReceiveByte, presenting v
// (already GPIB-encoded as its complement) with the given EOI state.
func peerSendOne(pins *fake.Pins, v byte, eoi bool) {
	pins.PeerDriveData(^v)
	if eoi {
		pins.PeerDriveLow(platform.EOI)
	} else {
		pins.PeerRelease(platform.EOI)
	}
	pins.PeerDriveLow(platform.DAV)
	spinUntil(func() bool { return pins.Read(platform.NDAC) })
	pins.PeerRelease(platform.DAV)
}

func TestAddressTargetSendsUNTUNLThenListenAddress(t *testing.T) {
	pins := fake.NewPins()
	uart := &fake.UART{}
	wdt := &fake.Watchdog{}
	b := newBus(pins, uart, wdt)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 3; i++ {
			peerAcceptOne(pins)
		}
	}()

	err := b.AddressTarget(5)
	wg.Wait()
	require.NoError(t, err)
}

func TestReadBlockStopsOnEOIAndStripsTrailingBytes(t *testing.T) {
	pins := fake.NewPins()
	uart := &fake.UART{}
	wdt := &fake.Watchdog{}
	b := newBus(pins, uart, wdt)

	cfg := config.Defaults()
	cfg.Strip = 1
	cfg.EOTEnable = false

	payload := []byte("HI!")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i, c := range payload {
			peerSendOne(pins, c, i == len(payload)-1)
		}
	}()

	err := b.ReadBlock(cfg, false, true)
	wg.Wait()

	require.NoError(t, err)
	// Last byte ('!') is stripped per cfg.Strip=1.
	assert.Equal(t, []byte("HI"), uart.Written)
}

func TestReadBlockStripsEOSString(t *testing.T) {
	pins := fake.NewPins()
	uart := &fake.UART{}
	wdt := &fake.Watchdog{}
	b := newBus(pins, uart, wdt)

	cfg := config.Defaults()
	cfg.SetEOSCode(config.EOSCRLF)
	cfg.EOTEnable = false

	payload := []byte("DATA\r\n")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, c := range payload {
			peerSendOne(pins, c, false)
		}
	}()

	err := b.ReadBlock(cfg, false, false)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, []byte("DATA"), uart.Written)
}

func TestReadBlockEmitsEOTCharWhenEnabled(t *testing.T) {
	pins := fake.NewPins()
	uart := &fake.UART{}
	wdt := &fake.Watchdog{}
	b := newBus(pins, uart, wdt)

	cfg := config.Defaults()
	cfg.EOTEnable = true
	cfg.EOTChar = '\r'

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		peerSendOne(pins, 'X', true)
	}()

	err := b.ReadBlock(cfg, false, true)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, []byte("X\r"), uart.Written)
}

func TestWriteLineWithNoEOSAssertsEOIOnPayload(t *testing.T) {
	pins := fake.NewPins()
	uart := &fake.UART{}
	wdt := &fake.Watchdog{}
	b := newBus(pins, uart, wdt)

	cfg := config.Defaults()
	cfg.SetEOSCode(config.EOSNone)

	var eoiAsserted bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Same as peerAcceptOne, but samples EOI while DAV is asserted.
		pins.PeerRelease(platform.NRFD)
		pins.PeerDriveLow(platform.NDAC)
		spinUntil(func() bool { return !pins.Read(platform.DAV) })
		eoiAsserted = !pins.Read(platform.EOI)
		pins.PeerRelease(platform.NDAC)
	}()

	err := b.WriteLine(cfg, false, []byte{0x41})
	wg.Wait()
	require.NoError(t, err)
	assert.True(t, eoiAsserted, "EOI should be asserted with the final payload byte")
}

func TestSerialPollReportsStatusByte(t *testing.T) {
	pins := fake.NewPins()
	uart := &fake.UART{}
	wdt := &fake.Watchdog{}
	b := newBus(pins, uart, wdt)

	cfg := config.Defaults()
	cfg.EOTEnable = false

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		peerAcceptOne(pins) // SPE
		peerAcceptOne(pins) // talk address
		peerSendOne(pins, 0x50, false)
		peerAcceptOne(pins) // SPD
	}()

	err := b.SerialPoll(cfg, 5)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, []byte{0x50}, uart.Written)
}
