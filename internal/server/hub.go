package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub fans broadcast payloads out to websocket clients and byte subscribers.
type Hub struct {
	log        *slog.Logger
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	mu        sync.Mutex
	subs      map[int]chan []byte
	nextSubID int
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		subs:       make(map[int]chan []byte),
	}
}

// Broadcast queues payload for all connected clients. Drops when the hub is
// saturated rather than blocking the caller.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("hub broadcast queue full, dropping message")
	}
}

// SubscribeBytes returns a channel of broadcast payloads and an unsubscribe
// function. Used by the SSE handler.
func (h *Hub) SubscribeBytes() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSubID
	h.nextSubID++
	ch := make(chan []byte, 8)
	h.subs[id] = ch
	unsub := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			close(c)
			delete(h.subs, id)
		}
		h.mu.Unlock()
	}
	return ch, unsub
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug("websocket client connected", "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				h.log.Debug("websocket client disconnected", "total", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mu.Lock()
			for id, ch := range h.subs {
				select {
				case ch <- message:
				default:
					h.log.Warn("subscriber channel full", "subscriber", id)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.hub.register <- conn

	go func() {
		defer func() {
			s.hub.unregister <- conn
			conn.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
