package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satindergrewal/fxradio/internal/stream"
)

const (
	homePage       = "home/index.html"
	controllerPage = "controller/index.html"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Static assets; the exact routes below win over the wildcard.
	s.echo.Static("/", s.config.PublicDir)
	s.echo.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/home")
	})
	s.echo.GET("/home", s.page(homePage))
	s.echo.GET("/controller", s.page(controllerPage))

	// Listener transports
	s.echo.GET("/stream", echo.WrapHandler(stream.NewHTTPHandler(s.radio, s.log)))
	s.echo.GET("/ws/stream", echo.WrapHandler(stream.NewWebSocketHandler(s.radio, s.log)))
	s.echo.Match([]string{http.MethodPost, http.MethodOptions}, "/offer", echo.WrapHandler(s.webrtc))

	// Controller
	s.echo.POST("/controller", s.handleCommand)
	s.echo.GET("/api/status", s.handleStatus)
	s.echo.GET("/api/effects", s.handleEffects)
}
