package ws

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages snapshot stream subscriptions by session ID. All map
// access happens on the run goroutine.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with session identifier.
type message struct {
	sessionID string
	payload   []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	sessionID string
	client    Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.sessionID]; !ok {
				h.clients[sub.sessionID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.sessionID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.sessionID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.sessionID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.sessionID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.sessionID)
				}
			}
		}
	}
}

// Register adds a client to a session's snapshot stream.
func (h *Hub) Register(sessionID string, client Subscriber) {
	h.register <- subscription{sessionID: sessionID, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(sessionID string, client Subscriber) {
	h.unreg <- subscription{sessionID: sessionID, client: client}
}

// Broadcast sends payload to all of a session's clients.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.broadcast <- message{sessionID: sessionID, payload: payload}
}
