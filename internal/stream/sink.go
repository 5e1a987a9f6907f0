package stream

import (
	"bytes"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/fxradio/internal/metrics"
)

// Sink fans every chunk written to it out to the registry's live listeners.
type Sink struct {
	registry *Registry
	log      zerolog.Logger
}

// NewSink creates a broadcast sink over registry.
func NewSink(registry *Registry, log zerolog.Logger) *Sink {
	return &Sink{
		registry: registry,
		log:      log.With().Str("component", "sink").Logger(),
	}
}

// Write delivers a copy of p to every live listener. It never fails:
// listeners that are closed or reject the chunk are pruned and the
// broadcast to the others proceeds.
func (s *Sink) Write(p []byte) (int, error) {
	chunk := bytes.Clone(p)
	pruned := s.registry.forEachLive(func(l *Listener) error {
		return l.write(chunk)
	})
	if pruned > 0 {
		s.log.Debug().Int("pruned", pruned).Int("listeners", s.registry.Len()).Msg("pruned closed listeners")
	}
	metrics.BroadcastBytes.Add(float64(len(p)))
	return len(p), nil
}
