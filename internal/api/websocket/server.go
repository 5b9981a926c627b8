package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server represents the WebSocket server
type Server struct {
	port     string
	server   *http.Server
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewServer creates a new WebSocket server. Browser connections are accepted
// only from allowedOrigins; requests without an Origin header are always
// accepted.
func NewServer(allowedOrigins []string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags)
	}

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &Server{
		hub:    NewHub(logger),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin] || allowed["*"]
			},
		},
	}
}

// Handler returns the HTTP routes served by the WebSocket server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/ratings", s.handleRatings)
	mux.HandleFunc("/ws/health", s.handleHealth)
	return mux
}

// Start starts the hub and the WebSocket server. It blocks until the server
// stops.
func (s *Server) Start(port string) error {
	s.port = port

	// Start the hub in a goroutine
	go s.hub.Run()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Printf("WebSocket server listening on :%s", port)
	return s.server.ListenAndServe()
}

// handleRatings streams game and rating events. ?game_id= limits the feed
// to one game.
func (s *Server) handleRatings(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := newClient(s.hub, conn, r.URL.Query().Get("game_id"))
	if !s.hub.join(client) {
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// handleHealth returns WebSocket server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"clients": s.hub.ClientCount(),
	})
}

// Hub exposes the broadcaster used by the realtime relay
func (s *Server) Hub() *Hub {
	return s.hub
}

// Shutdown gracefully shuts down the server and disconnects clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
