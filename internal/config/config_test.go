package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memNVRAM struct {
	bytes [256]byte
}

func (m *memNVRAM) ReadByte(addr uint8) byte     { return m.bytes[addr] }
func (m *memNVRAM) WriteByte(addr uint8, v byte) { m.bytes[addr] = v }

func TestDefaultsDeriveEOS(t *testing.T) {
	c := Defaults()
	assert.Equal(t, ModeController, c.Mode)
	assert.Nil(t, c.EOSString, "default EOS is None")
}

func TestSetEOSCodeDerivesStringAndByte(t *testing.T) {
	c := Defaults()

	c.SetEOSCode(EOSCRLF)
	assert.Equal(t, []byte{'\r', '\n'}, c.EOSString)
	assert.Equal(t, byte('\n'), c.EOSByte)

	c.SetEOSCode(EOSCR)
	assert.Equal(t, []byte{'\r'}, c.EOSString)

	c.SetEOSCode(EOSLF)
	assert.Equal(t, []byte{'\n'}, c.EOSString)

	c.SetEOSCode(EOSNone)
	assert.Nil(t, c.EOSString)
}

func TestSetCustomEOSByteSwitchesCodeToCustom(t *testing.T) {
	c := Defaults()
	c.SetCustomEOSByte('#')

	assert.Equal(t, EOSCustom, c.EOSCode)
	assert.Equal(t, byte('#'), c.EOSByte)
	assert.Equal(t, []byte{'#'}, c.EOSString)
}

func TestSetEOSCodeToCustomKeepsExistingByte(t *testing.T) {
	c := Defaults()
	c.SetCustomEOSByte('#')
	c.SetEOSCode(EOSCustom)

	assert.Equal(t, byte('#'), c.EOSByte)
}

func TestStoreLoadSeedsDefaultsOnVirginHardware(t *testing.T) {
	nvram := &memNVRAM{}
	store := NewStore(nvram)

	c := store.Load()
	require.Equal(t, ModeController, c.Mode)
	assert.Equal(t, Sentinel, nvram.bytes[AddrSentinel], "Load should have written the sentinel")
}

func TestStoreSaveAndLoadRoundTrip(t *testing.T) {
	nvram := &memNVRAM{}
	store := NewStore(nvram)

	c := Defaults()
	c.Mode = ModeDevice
	c.PartnerAddress = 7
	c.EOTChar = 10
	c.SetEOSCode(EOSLF)
	store.Save(c)

	loaded := store.Load()
	assert.Equal(t, ModeDevice, loaded.Mode)
	assert.Equal(t, uint8(7), loaded.PartnerAddress)
	assert.Equal(t, byte(10), loaded.EOTChar)
	assert.Equal(t, EOSLF, loaded.EOSCode)
	assert.Equal(t, []byte{'\n'}, loaded.EOSString)
}

func TestSaveIfEnabledRespectsSaveCfgFlag(t *testing.T) {
	nvram := &memNVRAM{}
	store := NewStore(nvram)

	c := Defaults()
	c.SaveCfg = false
	c.PartnerAddress = 9
	store.SaveIfEnabled(c)
	assert.NotEqual(t, Sentinel, nvram.bytes[AddrSentinel], "save should have been skipped")

	c.SaveCfg = true
	store.SaveIfEnabled(c)
	assert.Equal(t, Sentinel, nvram.bytes[AddrSentinel])
	assert.Equal(t, uint8(9), nvram.bytes[AddrPartnerAddress])
}
