package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/satindergrewal/fxradio/internal/audio"
)

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) page(name string) echo.HandlerFunc {
	path := filepath.Join(s.config.PublicDir, name)
	return func(c echo.Context) error {
		return c.File(path)
	}
}

func (s *Server) handleCommand(c echo.Context) error {
	var req commandRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Command) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "command is required"})
	}

	res, err := s.radio.HandleCommand(c.Request().Context(), req.Command)
	if errors.Is(err, audio.ErrEffectNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	if err != nil {
		s.log.Error().Err(err).Str("command", req.Command).Msg("command failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "command failed"})
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.radio.Status())
}

func (s *Server) handleEffects(c echo.Context) error {
	effects := s.radio.Effects()
	if effects == nil {
		effects = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"effects": effects})
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}
