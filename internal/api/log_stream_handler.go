package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"overture/internal/logging"
)

// LogStreamHandler streams server log entries over a WebSocket at
// /ws/logs. Each frame is one JSON-encoded LogEntry; entries logged
// before the connection are served by /api/logs instead.
type LogStreamHandler struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (h *LogStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, h.AuthToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.Logger == nil {
		http.Error(w, "log stream unavailable", http.StatusInternalServerError)
		return
	}

	entries, cancel := h.Logger.Subscribe(0)
	if entries == nil {
		http.Error(w, "log stream unavailable", http.StatusInternalServerError)
		return
	}
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, h.AllowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Drain control frames; a read error means the client is gone.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "log stream closed"),
					time.Now().Add(outputWriteTimeout))
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(outputWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
