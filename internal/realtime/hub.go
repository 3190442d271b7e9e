package realtime

// message is one frame routed through the hub. An empty partyID broadcasts
// to every client.
type message struct {
	partyID string
	data    []byte
}

// Hub owns the set of connected clients and fans messages out to the ones
// watching the same party.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Inbound messages from Redis to route to clients.
	broadcast chan message

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				_ = client.conn.Close()
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if msg.partyID != "" && client.partyID != msg.partyID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					delete(h.clients, client)
					close(client.send)
					_ = client.conn.Close()
				}
			}
		}
	}
}
