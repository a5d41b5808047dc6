// Package config holds the adapter's persisted/runtime configuration
// record (§3) and its EEPROM layout (§4.H).
package config

import "github.com/Galvant/gpibusb-firmware/internal/platform"

// Mode selects controller or device operation.
type Mode uint8

// Mode is encoded 1=controller, 0=device to match the factory EEPROM
// default of mode=1 (§4.H) alongside the data model's default of
// controller mode (§3) — the source firmware left the encoding implicit,
// this is the documented resolution (see DESIGN.md, Open Questions).
const (
	ModeDevice     Mode = 0
	ModeController Mode = 1
)

// EOSCode selects the end-of-string terminator written after data and
// stripped from reads.
type EOSCode uint8

const (
	EOSCRLF   EOSCode = 0
	EOSCR     EOSCode = 1
	EOSLF     EOSCode = 2
	EOSNone   EOSCode = 3
	EOSCustom EOSCode = 4
)

// EEPROM byte offsets, §3.
const (
	AddrSentinel       uint8 = 0x00
	AddrMode           uint8 = 0x01
	AddrPartnerAddress uint8 = 0x02
	AddrEOTChar        uint8 = 0x03
	AddrEOTEnable      uint8 = 0x04
	AddrEOSCode        uint8 = 0x05
	AddrEOIUse         uint8 = 0x06
	AddrAutoread       uint8 = 0x07
	AddrListenOnly     uint8 = 0x08
	AddrSaveCfg        uint8 = 0x09

	Sentinel byte = 0xaa

	RecordSize = 10
)

// Config is the in-RAM configuration record.
type Config struct {
	Mode           Mode
	PartnerAddress uint8
	MyAddress      uint8
	EOIUse         bool
	EOSCode        EOSCode
	EOSByte        byte
	EOSString      []byte
	Strip          int
	Autoread       bool
	EOTEnable      bool
	EOTChar        byte
	ListenOnly     bool
	TimeoutMS      uint32
	Debug          bool
	SaveCfg        bool
	StatusByte     byte
}

// Defaults matches the factory record written on virgin hardware.
func Defaults() *Config {
	c := &Config{
		Mode:           ModeController,
		PartnerAddress: 1,
		MyAddress:      0,
		EOIUse:         true,
		EOSCode:        EOSNone,
		Strip:          0,
		Autoread:       true,
		EOTEnable:      true,
		EOTChar:        13,
		ListenOnly:     false,
		TimeoutMS:      1000,
		Debug:          false,
		SaveCfg:        true,
		StatusByte:     0,
	}
	c.deriveEOS()
	return c
}

// deriveEOS fills EOSByte/EOSString from EOSCode, per §3 and §4.H.
func (c *Config) deriveEOS() {
	switch c.EOSCode {
	case EOSCRLF:
		c.EOSString = []byte{'\r', '\n'}
		c.EOSByte = '\n'
	case EOSCR:
		c.EOSString = []byte{'\r'}
		c.EOSByte = '\r'
	case EOSLF:
		c.EOSString = []byte{'\n'}
		c.EOSByte = '\n'
	case EOSNone:
		c.EOSString = nil
		c.EOSByte = 0
	case EOSCustom:
		c.EOSString = []byte{c.EOSByte}
	}
}

// SetEOSCode updates EOSCode and re-derives EOSByte/EOSString, unless
// the code is Custom (which keeps the user-supplied EOSByte).
func (c *Config) SetEOSCode(code EOSCode) {
	c.EOSCode = code
	if code != EOSCustom {
		c.deriveEOS()
	}
}

// SetCustomEOSByte sets a single custom EOS byte and switches EOSCode to
// Custom, per the legacy "+eos:N" command.
func (c *Config) SetCustomEOSByte(b byte) {
	c.EOSByte = b
	c.EOSCode = EOSCustom
	c.EOSString = []byte{b}
}

// Store persists/restores the record against an NVRAM trait (§4.H).
type Store struct {
	NVRAM platform.NVRAM
}

func NewStore(nvram platform.NVRAM) *Store {
	return &Store{NVRAM: nvram}
}

// Load reads the sentinel and either restores the persisted record or
// writes factory defaults (including the sentinel) on virgin hardware.
func (s *Store) Load() *Config {
	if s.NVRAM.ReadByte(AddrSentinel) != Sentinel {
		c := Defaults()
		s.Save(c)
		return c
	}

	c := &Config{
		Mode:           Mode(s.NVRAM.ReadByte(AddrMode)),
		PartnerAddress: s.NVRAM.ReadByte(AddrPartnerAddress),
		EOTChar:        s.NVRAM.ReadByte(AddrEOTChar),
		EOTEnable:      s.NVRAM.ReadByte(AddrEOTEnable) != 0,
		EOSCode:        EOSCode(s.NVRAM.ReadByte(AddrEOSCode)),
		EOIUse:         s.NVRAM.ReadByte(AddrEOIUse) != 0,
		Autoread:       s.NVRAM.ReadByte(AddrAutoread) != 0,
		ListenOnly:     s.NVRAM.ReadByte(AddrListenOnly) != 0,
		SaveCfg:        s.NVRAM.ReadByte(AddrSaveCfg) != 0,
		TimeoutMS:      1000,
		MyAddress:      0,
	}
	c.deriveEOS()
	return c
}

// Save writes the full 10-byte record, including the sentinel.
func (s *Store) Save(c *Config) {
	s.NVRAM.WriteByte(AddrSentinel, Sentinel)
	s.NVRAM.WriteByte(AddrMode, byte(c.Mode))
	s.NVRAM.WriteByte(AddrPartnerAddress, c.PartnerAddress)
	s.NVRAM.WriteByte(AddrEOTChar, c.EOTChar)
	s.NVRAM.WriteByte(AddrEOTEnable, boolByte(c.EOTEnable))
	s.NVRAM.WriteByte(AddrEOSCode, byte(c.EOSCode))
	s.NVRAM.WriteByte(AddrEOIUse, boolByte(c.EOIUse))
	s.NVRAM.WriteByte(AddrAutoread, boolByte(c.Autoread))
	s.NVRAM.WriteByte(AddrListenOnly, boolByte(c.ListenOnly))
	s.NVRAM.WriteByte(AddrSaveCfg, boolByte(c.SaveCfg))
}

// SaveIfEnabled writes through to NVRAM only when SaveCfg is set, the
// policy every persisted-field setter in the command dispatcher follows.
func (s *Store) SaveIfEnabled(c *Config) {
	if c.SaveCfg {
		s.Save(c)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
