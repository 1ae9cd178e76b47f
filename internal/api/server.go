// Package api provides the HTTP API for watching the town.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (start, pause, restart).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/mini-tycoon/internal/agents"
	"github.com/talgya/mini-tycoon/internal/engine"
	"github.com/talgya/mini-tycoon/internal/persistence"
	"github.com/talgya/mini-tycoon/internal/world"
)

// Server serves the town state over HTTP and WebSocket.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	Journal  *persistence.Journal // optional
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// ControlLimiter throttles the POST endpoints. Nil uses 30 per minute.
	ControlLimiter *RateLimiter
	// TrustedProxies are peer addresses whose X-Forwarded-For is believed.
	TrustedProxies []string

	ws wsState
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	limiter := s.ControlLimiter
	if limiter == nil {
		limiter = NewRateLimiter(30, time.Minute)
	}
	limiter.TrustProxies(s.TrustedProxies...)
	control := func(h http.HandlerFunc) http.HandlerFunc {
		return RateLimitMiddleware(limiter, s.adminOnly(h))
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("GET /api/v1/agent/{id}", s.handleAgentDetail)
	mux.HandleFunc("/api/v1/map", s.handleMap)
	mux.HandleFunc("/api/v1/interactions", s.handleInteractions)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/v1/journal", s.handleJournal)
	mux.HandleFunc("/api/v1/ws", s.handleWS)

	// Control endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/start", control(s.handleStart))
	mux.HandleFunc("/api/v1/pause", control(s.handlePause))
	mux.HandleFunc("/api/v1/restart", control(s.handleRestart))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "journal", s.Journal != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require POST with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no TOWNSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	agentList := s.Sim.Agents()
	var total float64
	for _, a := range agentList {
		total += a.Stats.Money
	}

	status := map[string]any{
		"name":          "Mini Tycoon",
		"tick":          s.Sim.Ticks(),
		"clock":         s.Sim.Clock(),
		"epoch":         s.Sim.Epoch(),
		"running":       s.Eng.Running(),
		"agents":        len(agentList),
		"interactions":  len(s.Sim.Interactions()),
		"pending":       len(s.Sim.Pending()),
		"in_flight":     s.Sim.InFlight(),
		"total_money":   total,
		"win_threshold": s.Sim.Config().WinThreshold,
		"winner":        nil,
	}
	if winner, ok := s.Sim.Winner(); ok {
		status["winner"] = map[string]any{"id": winner.ID, "name": winner.Name, "money": winner.Stats.Money}
	}
	writeJSON(w, status)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agentList := s.Sim.Agents()

	if role := r.URL.Query().Get("role"); role != "" {
		want, err := agents.ParseRole(role)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filtered := agentList[:0]
		for _, a := range agentList {
			if a.Role == want {
				filtered = append(filtered, a)
			}
		}
		agentList = filtered
	}
	writeJSON(w, agentList)
}

// handleAgentDetail serves GET /api/v1/agent/{id} with the agent and its
// conversations.
func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	id := agents.ID(r.PathValue("id"))
	agent, ok := s.Sim.Agent(id)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	var mine []engine.Interaction
	for _, rec := range s.Sim.Interactions() {
		if rec.Participants[0] == id || rec.Participants[1] == id {
			mine = append(mine, rec)
		}
	}
	writeJSON(w, map[string]any{
		"agent":        agent,
		"interactions": mine,
	})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	g := s.Sim.Grid
	writeJSON(w, map[string]any{
		"width":  g.Width,
		"height": g.Height,
		"tiles":  g.Tiles,
		"counts": world.TileCounts(g),
	})
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	recs := s.Sim.Interactions()
	if limit := queryLimit(r, 0, 1000); limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	writeJSON(w, recs)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.RecentEvents(queryLimit(r, 50, 200)))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot())
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}
	entries, err := s.Journal.RecentInteractions(r.Context(), queryLimit(r, 20, 200))
	if err != nil {
		slog.Error("journal query failed", "error", err)
		http.Error(w, "journal query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.Eng.Start() {
		http.Error(w, "simulation already won; restart first", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{"running": true, "clock": s.Sim.Clock()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Eng.Pause()
	writeJSON(w, map[string]any{"running": false, "clock": s.Sim.Clock()})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.Eng.Restart()
	writeJSON(w, map[string]any{
		"running": false,
		"epoch":   s.Sim.Epoch(),
		"clock":   s.Sim.Clock(),
	})
}

// queryLimit parses ?limit=, falling back to def and capping at max.
func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
