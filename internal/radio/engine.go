package radio

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/fxradio/internal/audio"
	"github.com/satindergrewal/fxradio/internal/metrics"
	"github.com/satindergrewal/fxradio/internal/stream"
)

// State is the playback state of the engine.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
)

// Prober determines the bitrate of a track in bits/s.
type Prober interface {
	Probe(ctx context.Context, path string) int64
}

// Merger overlays an effect file onto a live upstream.
type Merger interface {
	Merge(ctx context.Context, fxPath string, upstream io.Reader) (io.ReadCloser, error)
}

// EffectResolver maps effect names to files.
type EffectResolver interface {
	Resolve(name string) (string, error)
	List() []string
}

// Config wires an Engine to its collaborators.
type Config struct {
	TrackPath string
	Prober    Prober
	Merger    Merger
	Effects   EffectResolver
	Registry  *stream.Registry

	ChunkSize int
	Clock     clockwork.Clock
	// Open reads a track. Defaults to os.Open.
	Open func(path string) (io.ReadCloser, error)
}

// session is the active pipeline: upstream -> throttle -> sink.
type session struct {
	track    audio.Track
	byteRate int64
	throttle *audio.Throttle
	upstream io.Reader // raw track or merged-effect stream
}

// Engine owns the single playback session and the live re-pipe used to
// overlay effects. All session changes are serialized by mu.
type Engine struct {
	cfg      Config
	sink     *stream.Sink
	registry *stream.Registry
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	session *session
	gen     uint64 // bumped by every Start and Stop; a pending Start only installs if still current
	closed  bool
}

// New creates an idle engine.
func New(cfg Config, log zerolog.Logger) *Engine {
	if cfg.Registry == nil {
		cfg.Registry = stream.NewRegistry(stream.DefaultBacklog)
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = audio.DefaultChunkSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Open == nil {
		cfg.Open = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		sink:     stream.NewSink(cfg.Registry, log),
		registry: cfg.Registry,
		log:      log.With().Str("component", "engine").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start probes the track and begins broadcasting it, replacing any
// running session. Failures are logged; the engine stays idle if the
// track cannot be opened. The engine lock is not held while probing, so
// Stop, Status and effects keep working; a Stop or a later Start issued
// meanwhile wins over this one.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	// The probe outlives the request that asked for a start, not the engine.
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	defer context.AfterFunc(e.ctx, cancel)()

	track := audio.Track{Name: filepath.Base(e.cfg.TrackPath), Path: e.cfg.TrackPath}
	e.log.Info().Str("track", track.Name).Msg("starting stream")
	track.BitRate = e.cfg.Prober.Probe(ctx, track.Path)

	f, err := e.cfg.Open(track.Path)
	if err != nil {
		e.log.Error().Err(err).Str("path", track.Path).Msg("opening track")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.closed {
		_ = f.Close()
		e.log.Debug().Str("track", track.Name).Msg("start superseded")
		return
	}
	e.stopLocked()

	t := e.newThrottle(track.ByteRate())
	t.Attach(f)
	sess := &session{
		track:    track,
		byteRate: track.ByteRate(),
		throttle: t,
		upstream: f,
	}
	e.session = sess
	metrics.SessionsStarted.Inc()

	e.wg.Add(1)
	go e.pump(sess, t)
}

// Stop halts the active session and abandons a Start still probing. It
// is a no-op while idle. Listeners stay registered for the next Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.session == nil {
		return
	}
	e.log.Info().Str("track", e.session.track.Name).Msg("stopping stream")
	e.session.throttle.Stop()
	e.session = nil
}

// AppendEffect overlays the named effect onto the live stream. It fails
// with audio.ErrEffectNotFound when no effect matches, without touching
// the session. While idle it resolves the name and does nothing else.
//
// The re-pipe runs pause -> detach -> merge -> attach: the active
// throttle stops reading, hands back its upstream once the chunk in
// flight is out, the upstream is fed to the mixer, and the mixed output
// drives a new throttle at the session's byte rate.
func (e *Engine) AppendEffect(name string) error {
	fx, err := e.cfg.Effects.Resolve(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.session
	if sess == nil {
		e.log.Debug().Str("fx", fx).Msg("no active session, effect ignored")
		return nil
	}
	log := e.log.With().Str("fx", filepath.Base(fx)).Logger()

	prev := sess.throttle
	next := e.newThrottle(sess.byteRate)
	e.wg.Add(1)
	go e.pump(sess, next)

	prev.Pause()
	up := prev.Detach()
	if up == nil {
		// the track ran out before the effect could be merged
		next.Stop()
		prev.Resume()
		return nil
	}

	merged, err := e.cfg.Merger.Merge(e.ctx, fx, up)
	if err != nil {
		log.Error().Err(err).Msg("merging effect, continuing without it")
		next.Stop()
		prev.Attach(up)
		prev.Resume()
		return nil
	}

	if m, ok := merged.(interface{ Done() <-chan struct{} }); ok {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			<-m.Done()
		}()
	}

	next.Attach(merged)
	sess.throttle = next
	sess.upstream = merged
	prev.Stop()

	metrics.EffectsAppended.Inc()
	log.Info().Msg("added fx to stream")
	return nil
}

// pump drives one throttle into the sink. When the throttle that is still
// current for the session ends on its own, the session is over.
func (e *Engine) pump(sess *session, t *audio.Throttle) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("pump panicked")
			t.Stop()
		}
	}()

	if err := t.Run(e.sink); err != nil {
		e.log.Warn().Err(err).Msg("stream pump ended with error")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == sess && sess.throttle == t {
		e.log.Info().Str("track", sess.track.Name).Msg("track finished")
		e.session = nil
	}
}

func (e *Engine) newThrottle(byteRate int64) *audio.Throttle {
	return audio.NewThrottle(byteRate,
		audio.WithClock(e.cfg.Clock),
		audio.WithChunkSize(e.cfg.ChunkSize),
	)
}

// CreateListener registers a new listener of the broadcast.
func (e *Engine) CreateListener() (string, *stream.Listener) {
	return e.registry.Register()
}

// RemoveListener unregisters a listener. Unknown ids are ignored.
func (e *Engine) RemoveListener(id string) {
	e.registry.Unregister(id)
}

// Effects returns the names of the available effects.
func (e *Engine) Effects() []string {
	return e.cfg.Effects.List()
}

// Close stops playback, cancels running probes and mixers, and waits for
// the pumps and mixer processes to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.Stop()
	e.cancel()
	e.wg.Wait()
}
