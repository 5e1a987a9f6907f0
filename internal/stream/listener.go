package stream

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/satindergrewal/fxradio/internal/metrics"
)

// DefaultBacklog is the number of chunks queued per listener before dropping.
const DefaultBacklog = 64

// ErrListenerClosed is returned when writing to a listener whose consumer is gone.
var ErrListenerClosed = errors.New("listener closed")

// Listener is one connected consumer of the broadcast.
type Listener struct {
	id string

	mu     sync.Mutex
	c      chan []byte
	done   chan struct{}
	closed bool

	dropped atomic.Uint64
}

func newListener(id string, backlog int) *Listener {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Listener{
		id:   id,
		c:    make(chan []byte, backlog),
		done: make(chan struct{}),
	}
}

// ID returns the listener's identifier.
func (l *Listener) ID() string { return l.id }

// Chunks delivers broadcast audio chunks in pacing order.
func (l *Listener) Chunks() <-chan []byte { return l.c }

// Done is closed once the listener is closed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Dropped returns how many chunks were skipped because the backlog was full.
func (l *Listener) Dropped() uint64 { return l.dropped.Load() }

// Close marks the listener's write side closed. It is safe to call more than once.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}

// Closed reports whether the listener no longer accepts chunks.
func (l *Listener) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// write queues a chunk without blocking. A full backlog drops the chunk.
func (l *Listener) write(chunk []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrListenerClosed
	}
	select {
	case l.c <- chunk:
	default:
		// listener too slow, drop chunk to keep the broadcast moving
		l.dropped.Add(1)
		metrics.ListenerDroppedChunks.Inc()
	}
	return nil
}

// WriteTo copies chunks to w until the listener closes or w fails.
// w is flushed after every chunk when it is an http.Flusher.
func (l *Listener) WriteTo(w io.Writer) (int64, error) {
	flusher, _ := w.(http.Flusher)
	var total int64
	for {
		select {
		case <-l.done:
			return total, nil
		case chunk := <-l.c:
			n, err := w.Write(chunk)
			total += int64(n)
			if err != nil {
				return total, err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
