// Package diag emits debug-gated host-facing diagnostic text, matching
// the reference firmware's habit of only ever printing when the user has
// opted into verbose output (§7: `"Read error occured."` /
// `"Unrecognized command."` iff debug=1).
package diag

import "github.com/Galvant/gpibusb-firmware/internal/platform"

// Sink writes debug text to the host UART, one byte at a time, only
// when Enabled is true.
type Sink struct {
	UART    platform.UART
	Enabled bool
}

func New(uart platform.UART) *Sink {
	return &Sink{UART: uart}
}

// Print writes s verbatim to the host UART when debug is enabled.
func (s *Sink) Print(msg string) {
	if !s.Enabled {
		return
	}
	for i := 0; i < len(msg); i++ {
		s.UART.WriteByte(msg[i])
	}
}

// ReadError reports the reference firmware's read-failure message.
func (s *Sink) ReadError() { s.Print("Read error occured.") }

// WriteError reports the reference firmware's write-failure message.
func (s *Sink) WriteError() { s.Print("Write error occured.") }

// UnrecognizedCommand reports an unmatched "+" command.
func (s *Sink) UnrecognizedCommand() { s.Print("Unrecognized command.") }
