package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func fill(t *testing.T, b *Buffer, p []byte) {
	t.Helper()
	for _, c := range p {
		require.True(t, b.Push(c))
	}
}

func TestPushDrain(t *testing.T) {
	b := New(8)
	require.Equal(t, 8, b.Cap())
	require.Equal(t, 0, b.Len())

	dst := make([]byte, 8)
	require.Equal(t, 0, b.Drain(dst))

	fill(t, b, []byte("abc"))
	require.Equal(t, 3, b.Len())
	require.Equal(t, 3, b.Drain(dst))
	require.Equal(t, []byte("abc"), dst[:3])
	require.Equal(t, 0, b.Len())
}

func TestDrainWraps(t *testing.T) {
	b := New(4)
	dst := make([]byte, 4)
	// walk the cursors around the wrap point a few times
	for i := 0; i < 10; i++ {
		fill(t, b, []byte{byte(i), byte(i + 1), byte(i + 2)})
		require.Equal(t, 3, b.Drain(dst))
		require.Equal(t, []byte{byte(i), byte(i + 1), byte(i + 2)}, dst[:3])
	}
}

func TestDrainStopsAtFullDst(t *testing.T) {
	b := New(8)
	fill(t, b, []byte("abcde"))
	dst := make([]byte, 2)
	require.Equal(t, 2, b.Drain(dst))
	require.Equal(t, []byte("ab"), dst)
	// the remainder stays queued
	require.Equal(t, 3, b.Len())
	rest := make([]byte, 8)
	require.Equal(t, 3, b.Drain(rest))
	require.Equal(t, []byte("cde"), rest[:3])
}

func TestOverflow(t *testing.T) {
	b := New(4)
	fill(t, b, []byte{1, 2, 3})
	require.False(t, b.Overflowed())

	// the write taking the last slot is accepted and latches overflow
	require.True(t, b.Push(4))
	require.True(t, b.Overflowed())
	require.Equal(t, 4, b.Len())

	// every push after that is dropped and changes nothing
	require.False(t, b.Push(5))
	require.False(t, b.Push(6))
	require.Equal(t, 4, b.Len())

	dst := make([]byte, 8)
	require.Equal(t, 4, b.Drain(dst))
	require.Equal(t, []byte{1, 2, 3, 4}, dst[:4])
	require.False(t, b.Overflowed())

	// pushes resume once drained
	require.True(t, b.Push(7))
	require.Equal(t, 1, b.Drain(dst))
	require.Equal(t, byte(7), dst[0])
}

func TestDrainUntil(t *testing.T) {
	b := New(32)
	fill(t, b, []byte("one\ntwo\n"))

	dst := make([]byte, 16)
	require.Equal(t, 4, b.DrainUntil(dst, '\n'))
	require.Equal(t, []byte("one\n"), dst[:4])

	// messages come out one per call
	require.Equal(t, 4, b.DrainUntil(dst, '\n'))
	require.Equal(t, []byte("two\n"), dst[:4])
	require.Equal(t, 0, b.DrainUntil(dst, '\n'))
}

func TestDrainUntilNoTerminator(t *testing.T) {
	b := New(16)
	fill(t, b, []byte("abc"))
	dst := make([]byte, 16)
	// everything drains; the caller sees no terminator in the output
	require.Equal(t, 3, b.DrainUntil(dst, '\n'))
	require.Equal(t, []byte("abc"), dst[:3])
}

func TestDrainUntilTruncatesOversizedMessage(t *testing.T) {
	b := New(16)
	fill(t, b, []byte("abcd\nxy\n"))
	dst := make([]byte, 2)
	// the tail of the first message is consumed even though it does
	// not fit, so the next call starts at the next message
	require.Equal(t, 2, b.DrainUntil(dst, '\n'))
	require.Equal(t, []byte("ab"), dst)

	rest := make([]byte, 16)
	require.Equal(t, 3, b.DrainUntil(rest, '\n'))
	require.Equal(t, []byte("xy\n"), rest[:3])
}

func TestDrainUntilAfterOverflow(t *testing.T) {
	b := New(4)
	fill(t, b, []byte{'a', 'b', 'c', '\n'})
	require.True(t, b.Overflowed())

	dst := make([]byte, 8)
	require.Equal(t, 4, b.DrainUntil(dst, '\n'))
	require.Equal(t, []byte("abc\n"), dst[:4])
	require.False(t, b.Overflowed())
}

func TestClear(t *testing.T) {
	b := New(4)
	fill(t, b, []byte{1, 2, 3, 4})
	require.True(t, b.Overflowed())
	b.Clear()
	require.Equal(t, 0, b.Len())
	require.False(t, b.Overflowed())
	require.True(t, b.Push(9))
}

func TestConcurrentProducer(t *testing.T) {
	const total = 10000
	b := New(64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if b.Push(byte(i)) {
				i++
			}
		}
	}()

	var got []byte
	dst := make([]byte, 64)
	for len(got) < total {
		n := b.Drain(dst)
		got = append(got, dst[:n]...)
	}
	wg.Wait()

	require.Len(t, got, total)
	for i, c := range got {
		require.Equal(t, byte(i), c, "byte %d out of order", i)
	}
}
