package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/fxradio/internal/config"
	"github.com/satindergrewal/fxradio/internal/radio"
	"github.com/satindergrewal/fxradio/internal/stream"
)

// Radio is the broadcast engine surface the HTTP layer drives. Listener
// transports attach through its CreateListener/RemoveListener.
type Radio interface {
	stream.ListenerSource
	HandleCommand(ctx context.Context, command string) (radio.CommandResult, error)
	Status() radio.Status
	Effects() []string
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	radio     Radio
	webrtc    *stream.WebRTCHandler
	log       zerolog.Logger
	startTime time.Time
}

func NewServer(cfg *config.Config, r Radio, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		config:    cfg,
		radio:     r,
		webrtc:    stream.NewWebRTCHandler(r, log),
		log:       log.With().Str("component", "http").Logger(),
		startTime: time.Now(),
	}

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := srv.log.Debug()
			if v.Error != nil {
				ev = srv.log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	srv.registerRoutes()
	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.config.Addr()).Msg("server is running")
	err := s.echo.Start(s.config.Addr())
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.webrtc.Close()
	return s.echo.Shutdown(ctx)
}
