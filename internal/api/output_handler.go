package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"overture/internal/logging"
	"overture/internal/supervisor"
)

const outputWriteTimeout = 10 * time.Second

// OutputStreamHandler streams an environment's captured output lines
// over a WebSocket at /ws/environments/{id}/output. Each frame is one
// JSON-encoded OutputEvent; the stream closes when the environment
// ends.
type OutputStreamHandler struct {
	Supervisor     *supervisor.Supervisor
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (h *OutputStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, h.AuthToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.Supervisor == nil {
		http.Error(w, "supervisor unavailable", http.StatusInternalServerError)
		return
	}

	id, ok := parseOutputPath(r.URL.Path)
	if !ok {
		http.Error(w, "missing environment id", http.StatusBadRequest)
		return
	}

	events, cancel, err := h.Supervisor.Subscribe(id, 0)
	if err != nil {
		var notFound *supervisor.NotFoundError
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
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
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "environment ended"),
					time.Now().Add(outputWriteTimeout))
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(outputWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func parseOutputPath(path string) (string, bool) {
	rest := strings.TrimPrefix(path, "/ws/environments/")
	if rest == path {
		return "", false
	}
	id, verb, found := strings.Cut(rest, "/")
	if !found || id == "" || verb != "output" {
		return "", false
	}
	return id, true
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if host == "" {
		return false
	}
	if len(allowed) > 0 {
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, host) {
				return true
			}
		}
		return false
	}
	// Default to same-host connections only.
	requestHost := r.Host
	if colon := strings.LastIndex(requestHost, ":"); colon >= 0 {
		requestHost = requestHost[:colon]
	}
	return strings.EqualFold(host, requestHost)
}
