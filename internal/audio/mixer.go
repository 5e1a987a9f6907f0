package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/fxradio/internal/metrics"
)

// MixerConfig holds the sox parameters for merging an effect into the stream.
type MixerConfig struct {
	MediaType  string // sox file type of every leg, e.g. "mp3"
	SongVolume string // weight of the live stream leg
	FxVolume   string // weight of the effect leg
}

// Mixer overlays effect clips onto a live stream with `sox -m`.
type Mixer struct {
	runner Runner
	cfg    MixerConfig
	log    zerolog.Logger
}

// NewMixer creates a mixer. Empty config fields take the radio defaults.
func NewMixer(runner Runner, cfg MixerConfig, log zerolog.Logger) *Mixer {
	if cfg.MediaType == "" {
		cfg.MediaType = "mp3"
	}
	if cfg.SongVolume == "" {
		cfg.SongVolume = "0.99"
	}
	if cfg.FxVolume == "" {
		cfg.FxVolume = "0.1"
	}
	return &Mixer{
		runner: runner,
		cfg:    cfg,
		log:    log.With().Str("component", "mixer").Logger(),
	}
}

// MergeArgs returns the sox arguments mixing stdin with the effect file onto stdout.
func (m *Mixer) MergeArgs(fxPath string) []string {
	return []string{
		"-t", m.cfg.MediaType,
		"-v", m.cfg.SongVolume,
		"-m", "-",
		"-t", m.cfg.MediaType,
		"-v", m.cfg.FxVolume,
		fxPath,
		"-t", m.cfg.MediaType,
		"-",
	}
}

// Merge starts a mixer process fed by upstream and returns its mixed output.
//
// Two legs run concurrently: upstream into the process's stdin, and the
// process's stdout into the returned stream. A failing leg is logged and
// ends on its own; the other leg drains naturally. Upstream is closed once
// the input leg finishes. Closing the returned stream kills the process;
// its Done channel closes once both legs are over and the process is reaped.
func (m *Mixer) Merge(ctx context.Context, fxPath string, upstream io.Reader) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	proc, err := m.runner.Start(ctx, m.MergeArgs(fxPath)...)
	if err != nil {
		cancel()
		metrics.MixerLegFailures.WithLabelValues("spawn").Inc()
		return nil, fmt.Errorf("start mixer: %w", err)
	}

	pr, pw := io.Pipe()
	log := m.log.With().Str("fx", fxPath).Logger()
	ms := &MergedStream{PipeReader: pr, cancel: cancel, done: make(chan struct{})}

	// A cancelled mix must not leave the input leg parked in upstream.Read.
	context.AfterFunc(ctx, func() { closeReader(upstream) })

	var g errgroup.Group
	g.Go(func() error {
		defer closeReader(upstream)
		_, err := io.Copy(proc.Stdin, upstream)
		if cerr := proc.Stdin.Close(); err == nil {
			err = cerr
		}
		if err != nil && !isClosedPipe(err) {
			metrics.MixerLegFailures.WithLabelValues("input").Inc()
			log.Error().Err(err).Msg("error on sending stream to sox")
			return fmt.Errorf("input leg: %w", err)
		}
		return nil
	})

	if proc.Stderr != nil {
		g.Go(func() error {
			_, _ = io.Copy(io.Discard, proc.Stderr)
			return nil
		})
	}

	g.Go(func() error {
		_, err := io.Copy(pw, proc.Stdout)
		werr := proc.Wait()
		if err == nil && werr != nil && ctx.Err() == nil {
			err = werr
		}
		pw.CloseWithError(err)
		cancel()
		if err != nil && !isClosedPipe(err) {
			metrics.MixerLegFailures.WithLabelValues("output").Inc()
			log.Error().Err(err).Msg("error on receiving stream from sox")
			return fmt.Errorf("output leg: %w", err)
		}
		return nil
	})

	go func() {
		defer close(ms.done)
		if err := g.Wait(); err != nil {
			log.Debug().Err(err).Msg("mixer finished with errors")
			return
		}
		log.Debug().Msg("mixer finished")
	}()

	log.Debug().Msg("mixer started")
	return ms, nil
}

// MergedStream is the read side of a running mix.
type MergedStream struct {
	*io.PipeReader
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Close stops the mix and kills the mixer process.
func (s *MergedStream) Close() error {
	s.once.Do(s.cancel)
	return s.PipeReader.Close()
}

// Done is closed once both legs have ended and the process was reaped.
func (s *MergedStream) Done() <-chan struct{} {
	return s.done
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

func isClosedPipe(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}
