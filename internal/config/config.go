package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port            int           `env:"PORT" default:"3000"`
	PublicDir       string        `env:"PUBLIC_DIR" default:"public"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Audio library
	AudioDir     string `env:"AUDIO_DIR" default:"audio"`
	SongsDir     string `env:"SONGS_DIR"` // defaults to <AudioDir>/songs
	FxDir        string `env:"FX_DIR"`    // defaults to <AudioDir>/fx
	DefaultTrack string `env:"DEFAULT_TRACK" default:"conversation.mp3"`

	// sox invocation
	SoxPath    string `env:"SOX_PATH" default:"sox"`
	MediaType  string `env:"AUDIO_MEDIA_TYPE" default:"mp3"`
	SongVolume string `env:"SONG_VOLUME" default:"0.99"`
	FxVolume   string `env:"FX_VOLUME" default:"0.1"`

	// Broadcast behaviour
	FallbackBitRate int64 `env:"FALLBACK_BIT_RATE" default:"128000"` // bits/s
	ChunkSize       int   `env:"CHUNK_SIZE" default:"4096"`          // bytes per paced chunk
	ListenerBacklog int   `env:"LISTENER_BACKLOG" default:"64"`      // chunks queued per listener

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"console"`
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if cfg.SongsDir == "" {
		cfg.SongsDir = filepath.Join(cfg.AudioDir, "songs")
	}
	if cfg.FxDir == "" {
		cfg.FxDir = filepath.Join(cfg.AudioDir, "fx")
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TrackPath is the absolute-or-relative path of the track played on start.
func (c *Config) TrackPath() string {
	if filepath.IsAbs(c.DefaultTrack) {
		return c.DefaultTrack
	}
	return filepath.Join(c.SongsDir, c.DefaultTrack)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be 1-65535, got %d", cfg.Port)
	}
	if cfg.ChunkSize <= 0 {
		return errors.New("CHUNK_SIZE must be positive")
	}
	if cfg.ListenerBacklog <= 0 {
		return errors.New("LISTENER_BACKLOG must be positive")
	}
	if cfg.FallbackBitRate <= 0 {
		return errors.New("FALLBACK_BIT_RATE must be positive")
	}
	for name, v := range map[string]string{
		"SONG_VOLUME": cfg.SongVolume,
		"FX_VOLUME":   cfg.FxVolume,
	} {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", name, err)
		}
		if f < 0 || f > 1 {
			return fmt.Errorf("%s must be within 0-1, got %s", name, v)
		}
	}
	return nil
}
