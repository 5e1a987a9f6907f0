package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeDeadline = 5 * time.Second
	pongDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: DefaultChunkBuffer,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// DefaultChunkBuffer sizes the websocket write buffer to one paced chunk.
const DefaultChunkBuffer = 4096

// WebSocketHandler streams the broadcast as binary websocket messages, one per chunk.
type WebSocketHandler struct {
	listeners ListenerSource
	log       zerolog.Logger
}

// NewWebSocketHandler creates a websocket stream handler.
func NewWebSocketHandler(listeners ListenerSource, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		listeners: listeners,
		log:       log.With().Str("component", "ws-stream").Logger(),
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, listener := h.listeners.CreateListener()
	defer h.listeners.RemoveListener(id)
	log := h.log.With().Str("listener", id).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("websocket listener connected")

	// Read pump: detects the client going away and answers control frames.
	_ = conn.SetReadDeadline(time.Now().Add(pongDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongDeadline))
	})
	go func() {
		defer listener.Close()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-listener.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeDeadline))
			log.Info().Msg("websocket listener disconnected")
			return
		case chunk := <-listener.Chunks():
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
