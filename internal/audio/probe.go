package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/fxradio/internal/metrics"
)

// maxProbeOutput bounds how much of each probe channel is read.
const maxProbeOutput = 4096

// Probe determines the bitrate of a track with `sox --i -B`.
type Probe struct {
	runner   Runner
	fallback int64
	log      zerolog.Logger
}

// NewProbe creates a bitrate probe. A non-positive fallback uses FallbackBitRate.
func NewProbe(runner Runner, fallback int64, log zerolog.Logger) *Probe {
	if fallback <= 0 {
		fallback = FallbackBitRate
	}
	return &Probe{
		runner:   runner,
		fallback: fallback,
		log:      log.With().Str("component", "probe").Logger(),
	}
}

// Fallback returns the rate used when probing fails (bits/s).
func (p *Probe) Fallback() int64 {
	return p.fallback
}

// Probe returns the bitrate of the file at path in bits/s.
// Failures are logged and degrade to the fallback rate.
func (p *Probe) Probe(ctx context.Context, path string) int64 {
	bits, err := p.probe(ctx, path)
	if err != nil {
		metrics.ProbeFailures.Inc()
		p.log.Error().Err(err).Str("path", path).Int64("fallback", p.fallback).Msg("error getting bitrate")
		return p.fallback
	}
	p.log.Debug().Str("path", path).Int64("bit_rate", bits).Msg("bitrate probed")
	return bits
}

func (p *Probe) probe(ctx context.Context, path string) (int64, error) {
	proc, err := p.runner.Start(ctx, "--i", "-B", path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	if proc.Stdin != nil {
		_ = proc.Stdin.Close()
	}

	var stdout, stderr []byte
	var g errgroup.Group
	g.Go(func() (err error) {
		stdout, err = readBounded(proc.Stdout)
		return err
	})
	g.Go(func() (err error) {
		stderr, err = readBounded(proc.Stderr)
		return err
	})
	readErr := g.Wait()
	waitErr := proc.Wait()

	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		return 0, fmt.Errorf("%w: %s", ErrProbeFailed, msg)
	}
	if readErr != nil {
		return 0, fmt.Errorf("%w: read output: %w", ErrProbeFailed, readErr)
	}
	if waitErr != nil {
		return 0, fmt.Errorf("%w: %w", ErrProbeFailed, waitErr)
	}

	bits, err := ParseBitRate(string(stdout))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	return bits, nil
}

func readBounded(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	_, err := io.Copy(&buf, io.LimitReader(r, maxProbeOutput))
	// Drain whatever is left so the process is not blocked on a full pipe.
	_, _ = io.Copy(io.Discard, r)
	return buf.Bytes(), err
}

// ParseBitRate parses sox's bitrate output ("128k", "1.41M", "96000") into bits/s.
func ParseBitRate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty bitrate")
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1000
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1000000
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse bitrate %q: %w", s, err)
	}
	bits := int64(math.Round(v * mult))
	if bits <= 0 {
		return 0, fmt.Errorf("non-positive bitrate %q", s)
	}
	return bits, nil
}
