package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 54 * time.Second
	wsReadTimeout  = 60 * time.Second
)

// StatusEvent is one message on the sync event stream.
type StatusEvent struct {
	Type      string    `json:"type"`
	Status    any       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	// The server binds to loopback only; browser-origin checks do not
	// apply to local CLI clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSyncEvents upgrades the connection and streams status changes
// until the client disconnects.
func (s *APIServer) handleSyncEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[APIServer] WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	statuses, cancel := s.engine.Subscribe()
	defer cancel()

	// Reader goroutine: consume control frames and detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case status, ok := <-statuses:
			if !ok {
				return
			}
			payload, err := json.Marshal(StatusEvent{
				Type:      "sync_status",
				Status:    status,
				Timestamp: time.Now(),
			})
			if err != nil {
				log.Printf("[APIServer] encode status event: %v", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
