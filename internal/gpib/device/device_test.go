package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Galvant/gpibusb-firmware/internal/board/fake"
	"github.com/Galvant/gpibusb-firmware/internal/config"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/link"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/signal"
	"github.com/Galvant/gpibusb-firmware/internal/gpib/transaction"
	"github.com/Galvant/gpibusb-firmware/internal/platform"
)

func spinUntil(cond func() bool) {
	for !cond() {
		time.Sleep(time.Microsecond)
	}
}

func newMachine() (*Machine, *fake.Pins, *config.Config) {
	pins := fake.NewPins()
	clock := &fake.Clock{}
	wdt := &fake.Watchdog{}
	uart := &fake.UART{}

	eng := &link.Engine{Bus: signal.New(pins), Clock: clock, Watchdog: wdt, TimeoutMS: 1000}
	bus := &transaction.Bus{Link: eng, Pins: pins, Clock: clock, Watchdog: wdt, UART: uart}

	m := New(pins, eng, bus)
	cfg := config.Defaults()
	cfg.Mode = config.ModeDevice
	cfg.PartnerAddress = 3
	return m, pins, cfg
}

func TestPollAssertedSetsListenOnAddress(t *testing.T) {
	m, pins, cfg := newMachine()
	pins.PeerDriveLow(platform.ATN)

	done := make(chan struct{})
	go func() {
		// controller presents the listen-address command byte
		peerSend(pins, cfg.PartnerAddress+0x20)
		close(done)
	}()

	err := m.Poll(cfg)
	<-done

	require.NoError(t, err)
	assert.True(t, m.State.Listen)
	assert.False(t, m.State.Talk)
}

func TestPollAssertedDCLClearsStateAndFiresCallback(t *testing.T) {
	m, pins, cfg := newMachine()
	pins.PeerDriveLow(platform.ATN)
	m.State.Talk = true
	m.State.Listen = true

	var fired bool
	m.OnDCL = func() { fired = true }

	done := make(chan struct{})
	go func() {
		peerSend(pins, transaction.CmdDCL)
		close(done)
	}()

	err := m.Poll(cfg)
	<-done

	require.NoError(t, err)
	assert.False(t, m.State.Talk)
	assert.False(t, m.State.Listen)
	assert.True(t, fired)
	assert.Equal(t, byte(0), cfg.StatusByte)
}

func TestPollReleasedIsNoopWithoutPendingTransfer(t *testing.T) {
	m, _, cfg := newMachine()
	// ATN not asserted (default released/high): takes the pollReleased path.
	err := m.Poll(cfg)
	require.NoError(t, err)
	assert.False(t, m.State.Listen)
	assert.False(t, m.State.Talk)
}

// peerSend drives one command byte across the ATN-qualified handshake the
// same way the controller would: present the (complemented) byte, assert
// DAV, wait for the listener to accept, then release DAV.
func peerSend(pins *fake.Pins, v byte) {
	pins.PeerDriveData(^v)
	pins.PeerDriveLow(platform.DAV)
	spinUntil(func() bool { return pins.Read(platform.NDAC) })
	pins.PeerRelease(platform.DAV)
}
