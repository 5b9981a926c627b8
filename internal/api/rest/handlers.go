package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fortuna/hoopelo/internal/elo"
	"github.com/fortuna/hoopelo/internal/service"
	"github.com/fortuna/hoopelo/internal/store"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// HealthChecker is a dependency the health endpoint can probe
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	players   *service.PlayerService
	games     *service.GameService
	analytics *service.AnalyticsService
	checks    map[string]HealthChecker
}

// NewHandler creates a new handler. checks are probed by the health endpoint
// and may be empty.
func NewHandler(players *service.PlayerService, games *service.GameService, analytics *service.AnalyticsService, checks map[string]HealthChecker) *Handler {
	return &Handler{
		players:   players,
		games:     games,
		analytics: analytics,
		checks:    checks,
	}
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := map[string]string{}
	for name, check := range h.checks {
		if check == nil {
			continue
		}
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}

	respondJSON(w, status, map[string]interface{}{
		"status":     state,
		"service":    "hoopelo",
		"version":    "1.0.0",
		"components": components,
	})
}

// GetPlayer returns a player profile
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	profile, err := h.players.GetProfile(r.Context(), mux.Vars(r)["playerID"])
	if err != nil {
		writeServiceError(w, "Failed to fetch player", err)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// GetMe returns the caller's profile, creating it on first use
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	callerID, callerName, ok := requireCaller(w, r)
	if !ok {
		return
	}

	profile, err := h.players.EnsureProfile(r.Context(), callerID, callerName)
	if err != nil {
		writeServiceError(w, "Failed to load profile", err)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

type ensureProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// EnsureMe creates the caller's profile if it does not exist yet
func (h *Handler) EnsureMe(w http.ResponseWriter, r *http.Request) {
	callerID, callerName, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req ensureProfileRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = callerName
	}

	profile, err := h.players.EnsureProfile(r.Context(), callerID, req.DisplayName)
	if err != nil {
		writeServiceError(w, "Failed to ensure profile", err)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// GetPlayerHistory returns a player's rating history, newest first
func (h *Handler) GetPlayerHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	history, err := h.players.GetRatingHistory(r.Context(), mux.Vars(r)["playerID"], limit)
	if err != nil {
		writeServiceError(w, "Failed to fetch rating history", err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

// GetLeaderboard returns the top players by rating
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	board, err := h.players.GetLeaderboard(r.Context(), limit)
	if err != nil {
		writeServiceError(w, "Failed to fetch leaderboard", err)
		return
	}

	respondJSON(w, http.StatusOK, board)
}

type createGameRequest struct {
	TeamSize int `json:"team_size"`
}

// CreateGame opens a new game hosted by the caller
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	callerID, _, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req createGameRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	game, err := h.games.CreateGame(r.Context(), callerID, req.TeamSize)
	if err != nil {
		writeServiceError(w, "Failed to create game", err)
		return
	}

	respondJSON(w, http.StatusCreated, game)
}

// ListGames returns recent games, optionally filtered by status
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	status := store.GameStatus(r.URL.Query().Get("status"))
	games, err := h.games.ListGames(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, "Failed to fetch games", err)
		return
	}

	respondJSON(w, http.StatusOK, games)
}

// GetGame returns a game with both rosters
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.games.GetGame(r.Context(), mux.Vars(r)["gameID"])
	if err != nil {
		writeServiceError(w, "Failed to fetch game", err)
		return
	}

	respondJSON(w, http.StatusOK, game)
}

type joinGameRequest struct {
	Team store.Team `json:"team"`
}

// JoinGame seats the caller on a team
func (h *Handler) JoinGame(w http.ResponseWriter, r *http.Request) {
	callerID, callerName, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req joinGameRequest
	if !decodeBody(w, r, &req) {
		return
	}

	game, err := h.games.JoinGame(r.Context(), callerID, callerName, mux.Vars(r)["gameID"], req.Team)
	if err != nil {
		writeServiceError(w, "Failed to join game", err)
		return
	}

	respondJSON(w, http.StatusOK, game)
}

// LeaveGame removes the caller from a pending game
func (h *Handler) LeaveGame(w http.ResponseWriter, r *http.Request) {
	callerID, _, ok := requireCaller(w, r)
	if !ok {
		return
	}

	game, err := h.games.LeaveGame(r.Context(), callerID, mux.Vars(r)["gameID"])
	if err != nil {
		writeServiceError(w, "Failed to leave game", err)
		return
	}

	respondJSON(w, http.StatusOK, game)
}

// StartGame moves a pending game to in progress
func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	callerID, _, ok := requireCaller(w, r)
	if !ok {
		return
	}

	game, err := h.games.StartGame(r.Context(), callerID, mux.Vars(r)["gameID"])
	if err != nil {
		writeServiceError(w, "Failed to start game", err)
		return
	}

	respondJSON(w, http.StatusOK, game)
}

// DeleteGame removes a game that has not been completed
func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	callerID, _, ok := requireCaller(w, r)
	if !ok {
		return
	}

	gameID := mux.Vars(r)["gameID"]
	if err := h.games.DeleteGame(r.Context(), callerID, gameID); err != nil {
		writeServiceError(w, "Failed to delete game", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Game deleted",
		"game_id": gameID,
	})
}

type submitResultRequest struct {
	WinningTeam store.Team `json:"winning_team"`
	TeamAScore  *int       `json:"team_a_score"`
	TeamBScore  *int       `json:"team_b_score"`
}

// SubmitResult records the winner and commits the rating changes
func (h *Handler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	callerID, _, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req submitResultRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.games.SubmitResult(r.Context(), callerID, mux.Vars(r)["gameID"], req.WinningTeam, req.TeamAScore, req.TeamBScore)
	if err != nil {
		writeServiceError(w, "Failed to submit result", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// PreviewGame returns the gap analysis and both simulated outcomes for the
// current rosters
func (h *Handler) PreviewGame(w http.ResponseWriter, r *http.Request) {
	var overrides elo.Options
	if r.URL.Query().Get("k") != "" {
		k, ok := queryFloat(w, r, "k")
		if !ok {
			return
		}
		overrides.KFactor = elo.Float64(k)
	}

	preview, err := h.analytics.PreviewGame(r.Context(), mux.Vars(r)["gameID"], overrides)
	if err != nil {
		writeServiceError(w, "Failed to preview game", err)
		return
	}

	respondJSON(w, http.StatusOK, preview)
}

type calculateRequest struct {
	Team1    []elo.Player `json:"team1"`
	Team2    []elo.Player `json:"team2"`
	Team1Won bool         `json:"team1Won"`
	Options  elo.Options  `json:"options"`
}

// CalculateRatings rates an ad-hoc matchup without storing anything
func (h *Handler) CalculateRatings(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.analytics.WhatIf(req.Team1, req.Team2, req.Team1Won, req.Options)
	if err != nil {
		writeServiceError(w, "Failed to calculate ratings", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

type analyzeRequest struct {
	Team1AverageRating float64 `json:"team1AverageRating"`
	Team2AverageRating float64 `json:"team2AverageRating"`
	KFactor            *float64 `json:"kFactor"`
}

// AnalyzeGap returns the gap analysis for two team averages
func (h *Handler) AnalyzeGap(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	analysis, err := h.analytics.Analyze(req.Team1AverageRating, req.Team2AverageRating, req.KFactor)
	if err != nil {
		writeServiceError(w, "Failed to analyze rating gap", err)
		return
	}

	respondJSON(w, http.StatusOK, analysis)
}

type simulateRequest struct {
	Team1   []elo.Player `json:"team1"`
	Team2   []elo.Player `json:"team2"`
	Options elo.Options  `json:"options"`
}

// SimulateOutcomes rates an ad-hoc matchup for both possible winners
func (h *Handler) SimulateOutcomes(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sim, err := h.analytics.Simulate(req.Team1, req.Team2, req.Options)
	if err != nil {
		writeServiceError(w, "Failed to simulate outcomes", err)
		return
	}

	respondJSON(w, http.StatusOK, sim)
}

// statusFor maps service and engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, elo.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, message string, err error) {
	respondError(w, statusFor(err), message, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body and leaves dest untouched
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return decodeBody(w, r, dest)
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name), err)
		return 0, false
	}
	return v, true
}

func queryFloat(w http.ResponseWriter, r *http.Request, name string) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name), err)
		return 0, false
	}
	return v, true
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}
