package audio

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, waiters int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, waiters))
}

func runThrottle(th *Throttle, dst io.Writer) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- th.Run(dst) }()
	return errc
}

func TestNewThrottleDefaults(t *testing.T) {
	th := NewThrottle(0, WithChunkSize(-1))
	assert.Equal(t, FallbackBitRate/BitRateDivisor, th.ByteRate())
	assert.Equal(t, DefaultChunkSize, th.chunk)
}

func TestThrottlePacesAtByteRate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	// 1000 B/s in 100 byte chunks: one chunk per 100ms after the first.
	th := NewThrottle(1000, WithClock(clock), WithChunkSize(100))
	src := pattern(500)
	th.Attach(bytes.NewReader(src))

	var out syncBuffer
	errc := runThrottle(th, &out)

	for i := 1; i <= 4; i++ {
		blockUntil(t, clock, 1)
		require.Equal(t, 100*i, out.Len(), "bytes released before advancing %d times", i-1)
		clock.Advance(100 * time.Millisecond)
	}

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("throttle did not finish after upstream EOF")
	}
	assert.Equal(t, src, out.Bytes())
	assert.Equal(t, 500, out.Len())
}

func TestThrottleNeverExceedsRate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	th := NewThrottle(1000, WithClock(clock), WithChunkSize(100))
	th.Attach(bytes.NewReader(pattern(2000)))

	var out syncBuffer
	runThrottle(th, &out)
	defer th.Stop()

	start := clock.Now()
	for i := 0; i < 10; i++ {
		blockUntil(t, clock, 1)
		elapsed := clock.Since(start).Seconds()
		assert.LessOrEqual(t, float64(out.Len()), 1000*elapsed+100)
		clock.Advance(50 * time.Millisecond)
	}
}

func TestThrottleStopEndsImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	th := NewThrottle(1000, WithClock(clock), WithChunkSize(100))
	up := newTrackingReader(pattern(1000))
	th.Attach(up)

	var out syncBuffer
	errc := runThrottle(th, &out)

	blockUntil(t, clock, 1)
	th.Stop()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	<-th.Done()

	clock.Advance(time.Second)
	assert.Equal(t, 100, out.Len(), "nothing is released after Stop")
	assert.True(t, up.isClosed(), "owned upstream is closed on exit")
	assert.True(t, th.Stopped())
}

func TestThrottleWithoutUpstreamIdlesUntilAttach(t *testing.T) {
	th := NewThrottle(1 << 20)
	var out syncBuffer
	errc := runThrottle(th, &out)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, out.Len())

	th.Attach(bytes.NewReader([]byte("late upstream")))
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish after Attach")
	}
	assert.Equal(t, "late upstream", string(out.Bytes()))
}

func TestThrottlePauseDetachHandsBackRemainder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	th := NewThrottle(1000, WithClock(clock), WithChunkSize(100))
	src := pattern(500)
	up := newTrackingReader(src)
	th.Attach(up)

	var out syncBuffer
	runThrottle(th, &out)
	defer th.Stop()

	// First chunk is out; the second has been read and waits for tokens.
	blockUntil(t, clock, 1)
	th.Pause()

	detached := make(chan io.Reader, 1)
	go func() { detached <- th.Detach() }()

	select {
	case <-detached:
		t.Fatal("Detach returned while a chunk was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(100 * time.Millisecond)

	var rest io.Reader
	select {
	case rest = <-detached:
	case <-time.After(2 * time.Second):
		t.Fatal("Detach did not return")
	}
	require.Same(t, up, rest)

	remainder, err := io.ReadAll(rest)
	require.NoError(t, err)

	got := append(out.Bytes(), remainder...)
	assert.Equal(t, src, got, "no byte duplicated or lost across detach")
	assert.Equal(t, 200, out.Len())
	assert.False(t, up.isClosed(), "detached upstream belongs to the caller")
}

func TestThrottleResumeContinues(t *testing.T) {
	th := NewThrottle(1 << 20)
	th.Pause()
	th.Attach(bytes.NewReader([]byte("paused bytes")))

	var out syncBuffer
	errc := runThrottle(th, &out)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, out.Len(), "paused throttle reads nothing")

	th.Resume()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish after Resume")
	}
	assert.Equal(t, "paused bytes", string(out.Bytes()))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrShortWrite }

func TestThrottleReturnsWriteError(t *testing.T) {
	th := NewThrottle(1 << 20)
	th.Attach(bytes.NewReader([]byte("data")))
	err := th.Run(failingWriter{})
	assert.ErrorIs(t, err, io.ErrShortWrite)
}
