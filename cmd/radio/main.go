package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/satindergrewal/fxradio/internal/audio"
	"github.com/satindergrewal/fxradio/internal/config"
	"github.com/satindergrewal/fxradio/internal/logging"
	"github.com/satindergrewal/fxradio/internal/radio"
	"github.com/satindergrewal/fxradio/internal/server"
	"github.com/satindergrewal/fxradio/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("fxradio starting up...")

	// External sound tool
	sox := audio.NewSoxRunner(cfg.SoxPath)
	probe := audio.NewProbe(sox, cfg.FallbackBitRate, log)
	mixer := audio.NewMixer(sox, audio.MixerConfig{
		MediaType:  cfg.MediaType,
		SongVolume: cfg.SongVolume,
		FxVolume:   cfg.FxVolume,
	}, log)

	// Effect catalogue, kept current while the directory changes
	effects := audio.NewEffects(cfg.FxDir, log)
	go func() {
		if err := effects.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("effects watcher stopped, listing refreshes on demand")
		}
	}()

	registry := stream.NewRegistry(cfg.ListenerBacklog)
	engine := radio.New(radio.Config{
		TrackPath: cfg.TrackPath(),
		Prober:    probe,
		Merger:    mixer,
		Effects:   effects,
		Registry:  registry,
		ChunkSize: cfg.ChunkSize,
	}, log)

	srv := server.NewServer(cfg, engine, log)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down...")
	case err := <-errc:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}

	// Streams never finish on their own: stop the broadcast and end every
	// listener before draining connections.
	engine.Close()
	registry.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("bye")
}
