package websocket

import (
	"log"
	"sync"
)

// Message is one broadcast frame. An empty GameID reaches every client;
// otherwise only unfiltered clients and clients watching that game get it.
type Message struct {
	GameID string
	Data   []byte
}

// Hub maintains the set of active clients and fans messages out to them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	stopOnce   sync.Once

	mu    sync.RWMutex
	count int

	logger *log.Logger
}

// NewHub creates a hub. Call Run to start dispatching.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags)
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run dispatches registrations and broadcasts until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(msg.GameID) {
					continue
				}
				select {
				case client.send <- msg.Data:
				default:
					// Slow consumer: drop it rather than stall everyone else.
					h.logger.Printf("dropping slow client %s", client.remoteAddr)
					h.remove(client)
				}
			}
		}
	}
}

// Stop terminates Run and closes every client
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast queues a message for delivery. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.Printf("broadcast queue full, dropping message for game %q", msg.GameID)
		return false
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setCount(len(h.clients))
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
