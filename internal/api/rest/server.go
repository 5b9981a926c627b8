package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server represents the REST API server
type Server struct {
	port    string
	server  *http.Server
	handler *Handler
}

// NewServer creates a new REST API server. backfillHandler may be nil, in
// which case the backfill routes are not registered.
func NewServer(port string, handler *Handler, backfillHandler *BackfillHandler, allowedOrigins []string) *Server {
	return &Server{
		port:    port,
		handler: handler,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           NewRouter(handler, backfillHandler, allowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewRouter builds the route table with middleware applied
func NewRouter(handler *Handler, backfillHandler *BackfillHandler, allowedOrigins []string) *mux.Router {
	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(CORSMiddleware(allowedOrigins))
	router.Use(IdentityMiddleware)

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Players
	api.HandleFunc("/players/me", handler.GetMe).Methods("GET")
	api.HandleFunc("/players/me", handler.EnsureMe).Methods("PUT")
	api.HandleFunc("/players/{playerID}", handler.GetPlayer).Methods("GET")
	api.HandleFunc("/players/{playerID}/history", handler.GetPlayerHistory).Methods("GET")
	api.HandleFunc("/leaderboard", handler.GetLeaderboard).Methods("GET")

	// Games
	api.HandleFunc("/games", handler.CreateGame).Methods("POST")
	api.HandleFunc("/games", handler.ListGames).Methods("GET")
	api.HandleFunc("/games/{gameID}", handler.GetGame).Methods("GET")
	api.HandleFunc("/games/{gameID}", handler.DeleteGame).Methods("DELETE")
	api.HandleFunc("/games/{gameID}/join", handler.JoinGame).Methods("POST")
	api.HandleFunc("/games/{gameID}/leave", handler.LeaveGame).Methods("POST")
	api.HandleFunc("/games/{gameID}/start", handler.StartGame).Methods("POST")
	api.HandleFunc("/games/{gameID}/result", handler.SubmitResult).Methods("POST")
	api.HandleFunc("/games/{gameID}/preview", handler.PreviewGame).Methods("GET")

	// Ratings
	api.HandleFunc("/ratings/calculate", handler.CalculateRatings).Methods("POST")
	api.HandleFunc("/ratings/analyze", handler.AnalyzeGap).Methods("POST")
	api.HandleFunc("/ratings/simulate", handler.SimulateOutcomes).Methods("POST")

	// Backfill operations
	if backfillHandler != nil {
		api.HandleFunc("/backfill", backfillHandler.HandleBackfillRequest).Methods("POST")
		api.HandleFunc("/backfill/status", backfillHandler.HandleBackfillStatus).Methods("GET")
	}

	// Preflight requests only need a matched route so the CORS middleware runs
	api.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return router
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
