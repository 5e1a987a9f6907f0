package audio

import (
	"io"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Throttle releases bytes from an upstream reader at a fixed byte rate.
//
// Over any window the bytes written to the destination never exceed
// rate*elapsed plus one chunk. The rate is fixed for the lifetime of a
// Throttle; a new rate needs a new Throttle.
//
// The upstream can be swapped while Run is pumping: Pause, then Detach
// hands the current upstream back to the caller once the chunk in flight
// has been written. A Throttle without an upstream idles until Attach.
type Throttle struct {
	byteRate int64
	chunk    int
	clock    clockwork.Clock
	limiter  *rate.Limiter

	mu       sync.Mutex
	cond     *sync.Cond
	upstream io.Reader
	paused   bool
	busy     bool
	stopped  bool

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// ThrottleOption configures a Throttle.
type ThrottleOption func(*Throttle)

// WithClock sets the clock used for pacing waits.
func WithClock(c clockwork.Clock) ThrottleOption {
	return func(t *Throttle) { t.clock = c }
}

// WithChunkSize sets the buffering unit read and released per step.
func WithChunkSize(n int) ThrottleOption {
	return func(t *Throttle) {
		if n > 0 {
			t.chunk = n
		}
	}
}

// NewThrottle creates a Throttle releasing byteRate bytes per second.
func NewThrottle(byteRate int64, opts ...ThrottleOption) *Throttle {
	if byteRate <= 0 {
		byteRate = FallbackBitRate / BitRateDivisor
	}
	t := &Throttle{
		byteRate: byteRate,
		chunk:    DefaultChunkSize,
		clock:    clockwork.NewRealClock(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.cond = sync.NewCond(&t.mu)
	t.limiter = rate.NewLimiter(rate.Limit(byteRate), t.chunk)
	return t
}

// ByteRate returns the pacing rate in bytes/s.
func (t *Throttle) ByteRate() int64 {
	return t.byteRate
}

// Attach sets the upstream the pump reads from.
func (t *Throttle) Attach(r io.Reader) {
	t.mu.Lock()
	t.upstream = r
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Pause stops the pump from reading upstream without closing it.
func (t *Throttle) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

// Resume lets a paused pump continue reading.
func (t *Throttle) Resume() {
	t.mu.Lock()
	t.paused = false
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Detach waits for the chunk in flight to be written, then removes and
// returns the upstream. The caller owns the returned reader. Detach should
// follow Pause, otherwise the pump may pick the upstream up again first.
func (t *Throttle) Detach() io.Reader {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.busy {
		t.cond.Wait()
	}
	up := t.upstream
	t.upstream = nil
	return up
}

// Stop ends pacing immediately. Nothing reaches the destination after Stop returns.
func (t *Throttle) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.cond.Broadcast()
	t.mu.Unlock()
	t.stopOnce.Do(func() { close(t.quit) })
}

// Stopped reports whether Stop has been called.
func (t *Throttle) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Done is closed when Run returns.
func (t *Throttle) Done() <-chan struct{} {
	return t.done
}

// Run pumps upstream into dst at the configured rate until the upstream
// ends or Stop is called. An upstream still attached on return is closed
// if it implements io.Closer.
func (t *Throttle) Run(dst io.Writer) error {
	defer close(t.done)
	defer t.release()

	buf := make([]byte, t.chunk)
	for {
		up, ok := t.acquire()
		if !ok {
			return nil
		}

		n, rerr := up.Read(buf)
		if n > 0 {
			if !t.pace(n) {
				t.idle()
				return nil
			}
			written, werr := t.emit(dst, buf[:n])
			if !written {
				t.idle()
				return werr
			}
		}
		t.idle()

		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// acquire blocks until the pump may read, marking the iteration busy.
func (t *Throttle) acquire() (io.Reader, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.stopped && (t.paused || t.upstream == nil) {
		t.cond.Wait()
	}
	if t.stopped {
		return nil, false
	}
	t.busy = true
	return t.upstream, true
}

func (t *Throttle) idle() {
	t.mu.Lock()
	t.busy = false
	t.cond.Broadcast()
	t.mu.Unlock()
}

// pace waits until n bytes may be released. It returns false if stopped meanwhile.
func (t *Throttle) pace(n int) bool {
	now := t.clock.Now()
	r := t.limiter.ReserveN(now, n)
	if !r.OK() {
		return false
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return true
	}
	select {
	case <-t.clock.After(delay):
		return true
	case <-t.quit:
		r.CancelAt(t.clock.Now())
		return false
	}
}

func (t *Throttle) emit(dst io.Writer, p []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false, nil
	}
	if _, err := dst.Write(p); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Throttle) release() {
	t.mu.Lock()
	up := t.upstream
	t.upstream = nil
	t.mu.Unlock()
	if c, ok := up.(io.Closer); ok {
		_ = c.Close()
	}
}
