package audio

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

// fakeRunner stands in for sox. start builds the process for each invocation.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	ctxs  []context.Context
	start func(args []string) (*Process, error)
}

func (r *fakeRunner) Start(ctx context.Context, args ...string) (*Process, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), args...))
	r.ctxs = append(r.ctxs, ctx)
	r.mu.Unlock()

	proc, err := r.start(args)
	if proc != nil && proc.Stdout != nil {
		// Like exec.CommandContext, a cancelled context kills the process.
		context.AfterFunc(ctx, func() { _ = proc.Stdout.Close() })
	}
	return proc, err
}

func (r *fakeRunner) lastCall() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func (r *fakeRunner) lastCtx() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctxs[len(r.ctxs)-1]
}

// outputProcess emits fixed stdout/stderr text and exits.
func outputProcess(stdout, stderr string) *Process {
	return &Process{
		Stdin:  nopWriteCloser{io.Discard},
		Stdout: io.NopCloser(strings.NewReader(stdout)),
		Stderr: io.NopCloser(strings.NewReader(stderr)),
	}
}

// pipeProcess runs fn as the process body, wired to piped stdin/stdout.
func pipeProcess(fn func(stdin io.Reader, stdout io.Writer) error) *Process {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		err := fn(inR, outW)
		outW.CloseWithError(err)
		inR.Close()
		errc <- err
	}()
	return &Process{
		Stdin:  inW,
		Stdout: outR,
		Stderr: io.NopCloser(strings.NewReader("")),
		wait:   func() error { return <-errc },
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// trackingReader records whether it was closed.
type trackingReader struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func newTrackingReader(b []byte) *trackingReader {
	return &trackingReader{Reader: bytes.NewReader(b)}
}

func (r *trackingReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *trackingReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// syncBuffer is a bytes.Buffer safe for a pump goroutine and a test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
