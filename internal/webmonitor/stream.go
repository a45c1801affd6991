package webmonitor

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
)

const (
	formatJSON     = "application/json"
	formatProtobuf = "application/protobuf"
)

// wantsProtobuf reports whether the client asked for protobuf events,
// through the Accept header or ?format=protobuf.
func wantsProtobuf(r *http.Request) bool {
	if r.URL.Query().Get("format") == "protobuf" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

// streamStateEvents streams pre-serialized state events to an SSE client
// until the client leaves or the channel closes.
func streamStateEvents(w http.ResponseWriter, r *http.Request, eventCh <-chan *SerializedEvent, useProtobuf bool, keepalive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if useProtobuf {
		w.Header().Set("X-Content-Format", formatProtobuf)
	} else {
		w.Header().Set("X-Content-Format", formatJSON)
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}
			data := event.JSONData
			if useProtobuf {
				data = event.ProtobufData
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				logger.Debug("SSE", "Client disconnected during state write: %v", err)
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				logger.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// streamStateWebSocket upgrades the request and sends every state as a
// JSON text message. Messages from the client are discarded; its close
// frame ends the stream.
func streamStateWebSocket(w http.ResponseWriter, r *http.Request, eventCh <-chan *SerializedEvent, keepalive time.Duration) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("WebSocket", "Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	pongWait := keepalive * 2
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return

		case event, ok := <-eventCh:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteWait))
				select {
				case <-gone:
				case <-time.After(wsWriteWait):
				}
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, event.JSONData); err != nil {
				logger.Debug("WebSocket", "Client disconnected during state write: %v", err)
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				logger.Debug("WebSocket", "Ping failed: %v", err)
				return
			}
		}
	}
}
