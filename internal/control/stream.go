package control

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// stream forwards every published quote to the client as a text frame.
// A slow client loses messages rather than holding up the tap.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	msgs := make(chan []byte, streamBuffer)
	var dropped atomic.Int64

	cancel, err := h.tap.Subscribe(func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		select {
		case msgs <- buf:
		default:
			dropped.Add(1)
		}
	})
	if err != nil {
		h.logger.Warn("stream subscribe failed", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(streamWriteTimeout))
		return
	}
	defer cancel()

	h.logger.Debug("stream client connected", "remote", r.RemoteAddr)

	// The read loop only exists to observe the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Debug("stream client disconnected", "remote", r.RemoteAddr, "dropped", dropped.Load())
			return
		case <-r.Context().Done():
			return
		case data := <-msgs:
			if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				h.logger.Debug("stream write deadline", "error", err)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(streamWriteTimeout)); err != nil {
				h.logger.Debug("stream ping failed", "error", err)
				return
			}
		}
	}
}
