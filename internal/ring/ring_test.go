package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushFramesLines(t *testing.T) {
	b := New()
	for _, c := range []byte("++addr 3\n") {
		b.Push(c)
	}

	require.Equal(t, 1, b.LinesBuffered())
	assert.Equal(t, []byte("++addr 3"), b.PeekLine())
}

func TestPushIgnoresControlBytes(t *testing.T) {
	b := New()
	b.Push(0x01)
	b.Push('a')
	b.Push(0x7f)
	b.Push('\n')

	require.Equal(t, 1, b.LinesBuffered())
	assert.Equal(t, []byte("a"), b.PeekLine())
}

func TestPushTreatsCRAndLFAsSeparateTerminators(t *testing.T) {
	b := New()
	for _, c := range []byte("a\r\nb\n") {
		b.Push(c)
	}

	// "a", then an empty line (the \n right after \r), then "b".
	assert.Equal(t, 3, b.LinesBuffered())
}

func TestAdvanceConsumesOneLineAtATime(t *testing.T) {
	b := New()
	for _, c := range []byte("one\ntwo\n") {
		b.Push(c)
	}
	require.Equal(t, 2, b.LinesBuffered())

	first := b.PeekLine()
	assert.Equal(t, []byte("one"), first)
	b.Advance(len(first))
	require.Equal(t, 1, b.LinesBuffered())

	second := b.PeekLine()
	assert.Equal(t, []byte("two"), second)
	b.Advance(len(second))
	assert.Equal(t, 0, b.LinesBuffered())
}

func TestAdvanceWrapsAtHighWater(t *testing.T) {
	b := New()
	b.out = HighWater
	b.Advance(0)
	assert.Equal(t, 0, b.out)
}

func TestPeekLineHandlesWraparound(t *testing.T) {
	b := New()
	// Place the record straddling the wrap point.
	b.in = HighWater - 1
	b.out = HighWater - 1
	b.Push('x')
	b.Push('y')
	b.Push('\n')

	require.Equal(t, 1, b.LinesBuffered())
	assert.Equal(t, []byte("xy"), b.PeekLine())
}

func TestPushDropsBytesWhenRingWouldCollideMidLine(t *testing.T) {
	b := New()
	b.in = HighWater
	b.out = 0
	b.linesBuffered = 1

	before := b.in
	b.Push('z')
	assert.Equal(t, before, b.in, "byte should have been dropped, not written")
}
