package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Galvant/gpibusb-firmware/internal/board/fake"
	"github.com/Galvant/gpibusb-firmware/internal/platform"
)

func TestWriteDataByteInvertsForNegativeLogic(t *testing.T) {
	pins := fake.NewPins()
	bus := New(pins)

	bus.WriteDataByte(0x55)
	assert.Equal(t, ^byte(0x55), pins.ReadData())
}

func TestReadDataByteUnInverts(t *testing.T) {
	pins := fake.NewPins()
	bus := New(pins)

	pins.PeerDriveData(^byte(0x3c))
	assert.Equal(t, byte(0x3c), bus.ReadDataByte())
}

func TestInitControllerLeavesHandshakeLinesAsserted(t *testing.T) {
	pins := fake.NewPins()
	bus := New(pins)

	bus.InitController()

	assert.True(t, pins.Read(platform.NRFD) == false, "NRFD should be driven low")
	assert.True(t, pins.Read(platform.NDAC) == false, "NDAC should be driven low")
	assert.True(t, pins.Read(platform.ATN), "ATN should be released")
}

func TestInitDeviceReleasesHandshakeLines(t *testing.T) {
	pins := fake.NewPins()
	bus := New(pins)

	bus.InitDevice()

	assert.True(t, pins.Read(platform.NRFD), "NRFD should float high in device mode")
	assert.True(t, pins.Read(platform.NDAC), "NDAC should float high in device mode")
}
