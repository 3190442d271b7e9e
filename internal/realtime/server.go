package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/itsjustbrian/qspot/internal/events"
	"github.com/itsjustbrian/qspot/internal/player"
)

var upgrader = websocket.Upgrader{
	// Origin enforcement happens at the gateway.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	hub     *Hub
	bus     *events.Bus
	players *player.Manager
	ctx     context.Context
}

func NewServer(hub *Hub, rdb *redis.Client, players *player.Manager, ctx context.Context) *Server {
	return &Server{
		hub:     hub,
		bus:     events.NewBus(rdb),
		players: players,
		ctx:     ctx,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)

	return r
}

// RunRedisSubscriber feeds broadcast events into the hub, routed to the
// clients watching the event's party.
func (s *Server) RunRedisSubscriber() {
	sub := s.bus.Subscribe(s.ctx, "")
	defer sub.Unsubscribe()

	for event := range sub.C {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("realtime: marshal event: %v", err)
			continue
		}
		s.hub.broadcast <- message{partyID: event.PartyID, data: data}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"service": "realtime-service",
	})
}

// handleWS upgrades a follower (or host device) connection. The party id
// comes from the query string, the user id from the auth middleware.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	partyID := r.URL.Query().Get("party")
	if partyID == "" {
		http.Error(w, "missing party id", http.StatusBadRequest)
		return
	}
	userID := r.Header.Get("X-User-Id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: ws upgrade: %v", err)
		return
	}

	client := &Client{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		partyID: partyID,
		userID:  userID,
		server:  s,
	}
	s.hub.register <- client

	welcome := map[string]any{
		"type": "welcome",
		"now":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.send <- b
	}

	go client.writePump()
	go client.readPump()
}
