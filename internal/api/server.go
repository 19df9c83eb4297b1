// Package api provides the HTTP surface: agent registration, authenticated
// action submission and voting, and public read-only queries over city state.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/engine"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
	"github.com/talgya/civitas/internal/transport"
)

// Server is the HTTP API over one city.
type Server struct {
	Port     int
	Sched    *engine.Scheduler
	DB       *store.DB
	Ledger   *ledger.Engine
	Hub      *transport.Hub
	AdminKey string // bearer token for admin endpoints; empty disables them

	httpServer *http.Server
}

// New wires the router and returns a ready-to-start server.
func New(port int, sched *engine.Scheduler, db *store.DB, led *ledger.Engine, hub *transport.Hub, adminKey string) *Server {
	s := &Server{
		Port:     port,
		Sched:    sched,
		DB:       db,
		Ledger:   led,
		Hub:      hub,
		AdminKey: adminKey,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/actions", s.handleSubmitAction)
		r.Post("/vote", s.handleVote)

		r.Get("/status", s.handleStatus)
		r.Get("/agents", s.handleAgents)
		r.Get("/agents/{id}", s.handleAgentDetail)
		r.Get("/buildings", s.handleBuildings)
		r.Get("/events", s.handleEvents)
		r.Get("/economy", s.handleEconomy)
		r.Get("/goals", s.handleGoals)
		r.Get("/policy", s.handlePolicy)
		r.Get("/replay/{tick}", s.handleReplay)
		r.Get("/ledger/verify", s.handleLedgerVerify)

		r.Post("/admin/pause", s.adminOnly(s.handlePause))
		r.Post("/admin/resume", s.adminOnly(s.handleResume))
	})

	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves in a goroutine.
func (s *Server) Start() {
	slog.Info("HTTP API starting", "addr", s.httpServer.Addr, "admin_auth", s.AdminKey != "")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Close shuts the listener down.
func (s *Server) Close() error {
	return s.httpServer.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// authedAgent validates the X-API-Key header against the stored hash for the
// claimed agent. Returns the agent ID or writes the error itself.
func (s *Server) authedAgent(w http.ResponseWriter, r *http.Request, agentID string) bool {
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId is required")
		return false
	}
	rawKey := r.Header.Get("X-API-Key")
	if rawKey == "" {
		writeError(w, http.StatusUnauthorized, "missing X-API-Key header")
		return false
	}
	stored, err := s.DB.AgentKeyHash(agentID)
	if err != nil || stored == "" || !VerifyKey(rawKey, stored) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return false
	}
	return true
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			writeError(w, http.StatusForbidden, "admin endpoints disabled")
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.AdminKey {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

type registerRequest struct {
	Name       string `json:"name"`
	AIModel    string `json:"aiModel"`
	Profession string `json:"profession"`
}

type registerResponse struct {
	OK      bool         `json:"ok"`
	AgentID string       `json:"agentId"`
	APIKey  string       `json:"apiKey"` // shown exactly once
	Agent   agents.Agent `json:"agent"`
}

func registerRejected(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]any{"ok": false, "reason": reason})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		registerRejected(w, http.StatusBadRequest, "invalid json")
		return
	}

	a, err := s.Sched.City().RegisterAgent(req.Name, req.AIModel, agents.Profession(req.Profession))
	if err != nil {
		registerRejected(w, http.StatusBadRequest, err.Error())
		return
	}

	rawKey := uuid.NewString()
	hash, err := HashKey(rawKey)
	if err != nil {
		registerRejected(w, http.StatusInternalServerError, "credential setup failed")
		return
	}
	if err := s.DB.SetAgentKeyHash(a.ID, hash); err != nil {
		registerRejected(w, http.StatusInternalServerError, "credential setup failed")
		return
	}

	slog.Info("agent registered", "agent", a.ID, "name", a.Name, "profession", a.Profession)
	writeJSON(w, http.StatusCreated, registerResponse{OK: true, AgentID: a.ID, APIKey: rawKey, Agent: a.Snapshot()})
}

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	var req engine.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !s.authedAgent(w, r, req.AgentID) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	s.Sched.Queue().Submit(req)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued":    true,
		"requestId": req.RequestID,
		"tick":      s.Sched.City().CurrentTick(),
	})
}

type voteRequest struct {
	AgentID  string `json:"agentId"`
	OptionID string `json:"optionId"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !s.authedAgent(w, r, req.AgentID) {
		return
	}
	if err := s.Sched.City().Policy().CastBallot(req.AgentID, req.OptionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c := s.Sched.City()
	snap := c.LastSnapshot()
	status := map[string]any{
		"tick":        c.CurrentTick(),
		"paused":      s.Sched.Paused(),
		"connections": 0,
		"snapshot":    snap,
	}
	if s.Hub != nil {
		status["connections"] = s.Hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sched.City().AgentSnapshots())
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := s.Sched.City().AgentSnapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	bal, err := s.Ledger.Balance(a.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "balance read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": a, "balance": bal})
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sched.City().BuildingSnapshots())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since := uint64(0)
	limit := 100
	if v := r.URL.Query().Get("since"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			since = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	events, err := s.DB.EventsSince(since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "event query failed")
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleEconomy(w http.ResponseWriter, r *http.Request) {
	c := s.Sched.City()
	band, avg := c.BandState()

	treasury, _ := s.Ledger.Balance(store.AccountTreasury)
	pool, _ := s.Ledger.Balance(store.AccountDemandPool)
	supply, err := s.Ledger.MoneySupply()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "supply read failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"band":         band,
		"band_average": avg,
		"treasury":     treasury,
		"demand_pool":  pool,
		"money_supply": supply,
	})
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sched.City().Goals())
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	p := s.Sched.City().Policy()
	writeJSON(w, http.StatusOK, map[string]any{
		"vote":      p.CurrentVote(),
		"modifiers": p.ActiveModifiers(),
		"history":   p.History(),
	})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	tick, err := strconv.ParseUint(chi.URLParam(r, "tick"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tick")
		return
	}
	results, ok := s.Sched.City().ReplayResults(tick)
	if !ok {
		writeError(w, http.StatusNotFound, "tick not in replay window")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tick": tick, "results": results})
}

func (s *Server) handleLedgerVerify(w http.ResponseWriter, r *http.Request) {
	brokenID, err := s.Ledger.VerifyChain()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"intact":    brokenID < 0,
		"broken_id": brokenID,
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Sched.Pause()
	slog.Info("simulation paused by admin")
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Sched.Resume()
	slog.Info("simulation resumed by admin")
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}
