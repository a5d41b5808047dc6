// Package ring implements the serial ingress line-framed ring buffer
// (§4.F): a lock-free single-producer/single-consumer byte ring filled
// from the UART RX interrupt and drained by the main loop.
package ring

const (
	// BufSize is the ring capacity; must be >= 256 per §3.
	BufSize = 512
	// MaxLine sets how far below the end of the array HighWater sits.
	// Record length is not limited by it: a record that reaches
	// HighWater continues at index 0.
	MaxLine = 64
	// HighWater is the last usable index before the producer must wrap
	// back to the start; the MaxLine-1 slots above it are never written.
	HighWater = BufSize - MaxLine
)

// Buffer is the SPSC ring. Producer (Push) and consumer (PeekLine,
// Advance) own disjoint fields per §3's ownership rules; the only
// shared mutable state is `in`, `out` and `linesBuffered`, documented
// per-method below.
type Buffer struct {
	data [BufSize]byte
	in   int
	out  int

	// linesBuffered is incremented by the producer and decremented by
	// the consumer. The consumer's decrement always happens inside
	// MaskRX (§3: "main loop must mask RX interrupts around the paired
	// out+lines_buffered update"), so on real hardware this would be a
	// plain int guarded by interrupt masking rather than an atomic.
	linesBuffered int
}

// New returns an empty ring.
func New() *Buffer {
	return &Buffer{}
}

// Push is the producer side, called from the UART RX interrupt handler
// for each received byte. It never blocks and never allocates.
func (b *Buffer) Push(c byte) {
	if b.wouldCollide() && b.linesBuffered > 0 {
		// Drop-on-full: a subsequent interrupt retries this byte's
		// successor; the current burst is truncated silently (§7,
		// "Buffer overrun").
		return
	}

	switch {
	case c == '\n' || c == '\r':
		b.data[b.in] = 0
		b.advanceIn()
		b.linesBuffered++
	case c >= 0x20 && c <= 0x7e:
		b.data[b.in] = c
		b.advanceIn()
	default:
		// ignored
	}
}

func (b *Buffer) wouldCollide() bool {
	next := b.in + 1
	if next > HighWater {
		next = 0
	}
	return next == b.out
}

func (b *Buffer) advanceIn() {
	b.in++
	if b.in > HighWater {
		b.in = 0
	}
}

// LinesBuffered reports how many NUL-terminated records are queued.
// Safe to call from the main loop without masking interrupts: it only
// observes the producer's monotonic increments.
func (b *Buffer) LinesBuffered() int {
	return b.linesBuffered
}

// PeekLine returns a copy of the NUL-terminated record at `out`, without
// the terminator and without consuming it. The copy stays valid after
// Advance; pass its length to Advance to consume the record.
func (b *Buffer) PeekLine() []byte {
	i := b.out
	start := i
	for b.data[i] != 0 {
		i++
		if i > HighWater {
			i = 0
		}
		if i == start {
			// No terminator found before wrapping all the way
			// around; should be unreachable given linesBuffered
			// accounting, but avoids spinning forever.
			break
		}
	}

	if i >= start {
		out := make([]byte, i-start)
		copy(out, b.data[start:i])
		return out
	}

	out := make([]byte, 0, (BufSize-start)+i)
	out = append(out, b.data[start:HighWater+1]...)
	out = append(out, b.data[:i]...)
	return out
}

// Advance consumes the current line: it moves `out` past the record and
// its terminator and decrements linesBuffered. The caller (main loop)
// is responsible for masking RX interrupts around this call, per §3.
func (b *Buffer) Advance(lineLen int) {
	// A record may straddle the wrap point, so wrap modulo the usable
	// range rather than resetting to 0.
	b.out = (b.out + lineLen + 1) % (HighWater + 1)
	b.linesBuffered--
}
