package stream

import (
	"net/http"

	"github.com/rs/zerolog"
)

// ListenerSource hands out listeners to transports.
type ListenerSource interface {
	CreateListener() (string, *Listener)
	RemoveListener(id string)
}

// HTTPHandler serves the live broadcast as a chunked MP3 response body.
type HTTPHandler struct {
	listeners ListenerSource
	log       zerolog.Logger
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(listeners ListenerSource, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		listeners: listeners,
		log:       log.With().Str("component", "http-stream").Logger(),
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	id, listener := h.listeners.CreateListener()
	defer h.listeners.RemoveListener(id)
	log := h.log.With().Str("listener", id).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("listener connected")
	flusher.Flush()

	// The request context ends when the client goes away.
	go func() {
		select {
		case <-r.Context().Done():
			listener.Close()
		case <-listener.Done():
		}
	}()

	n, err := listener.WriteTo(w)
	if err != nil {
		log.Debug().Err(err).Msg("listener write failed")
	}
	log.Info().Int64("bytes", n).Msg("closing connection of client")
}
