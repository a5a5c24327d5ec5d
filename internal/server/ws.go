package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard may be served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHub fans engine events out to connected websocket clients. A client that
// cannot keep up is dropped rather than allowed to block the bus.
type wsHub struct {
	logger arbor.ILogger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan interfaces.Event
	closed  bool
}

func newWSHub(logger arbor.ILogger) *wsHub {
	return &wsHub{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan interfaces.Event),
	}
}

// broadcast queues the event for every connected client.
func (h *wsHub) broadcast(event interfaces.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- event:
		default:
			h.logger.Debug().Msg("Dropping websocket client with full queue")
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}

// add registers a connection and starts its writer loop.
func (h *wsHub) add(conn *websocket.Conn) {
	ch := make(chan interfaces.Event, 64)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = ch
	h.mu.Unlock()

	go func() {
		defer conn.Close()
		for ev := range ch {
			if err := conn.WriteJSON(ev); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

func (h *wsHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
}

func (h *wsHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn, ch := range h.clients {
		delete(h.clients, conn)
		close(ch)
		conn.Close()
	}
}

// handleWebsocket upgrades the connection and streams events until the
// client disconnects.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.app.Logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	s.hub.add(conn)

	// Reader loop: discard client messages, detect disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.remove(conn)
				conn.Close()
				return
			}
		}
	}()
}
