// Package api provides the HTTP surface over the village simulation.
// GET endpoints are public (read-only observation).
// POST endpoints mutate state; they run on the simulation goroutine via the
// command queue, and the admin control plane additionally requires a bearer
// token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/villagers/internal/clock"
	"github.com/talgya/villagers/internal/config"
	"github.com/talgya/villagers/internal/engine"
	"github.com/talgya/villagers/internal/favor"
	"github.com/talgya/villagers/internal/npc"
	"github.com/talgya/villagers/internal/persistence"
	"github.com/talgya/villagers/internal/social"
)

// talkDelta is the relationship gain from the actor chatting with an agent.
// The graph caps it at once per sim-day per agent.
const talkDelta = 2.0

// simReplyTimeout bounds how long a handler waits for the simulation
// goroutine to execute its command.
const simReplyTimeout = 5 * time.Second

var errSimBusy = errors.New("simulation did not respond in time")

// Server serves the village state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB
	Port     int
	AdminKey string           // Bearer token for admin endpoints. Empty = admin disabled.
	API      config.APIConfig // Rate limiting for player action endpoints.
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	// Player mutation endpoints share one limiter; they spend daily-capped
	// resources, so bursts past the cap are wasted calls anyway.
	actionLimiter := NewRateLimiter(s.API)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentRoutes(actionLimiter))
	mux.HandleFunc("/api/v1/favors", s.handleFavors)
	mux.HandleFunc("/api/v1/favor/", RateLimitMiddleware(actionLimiter, s.handleFavorRoutes))
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/social", s.handleSocial)
	mux.HandleFunc("/api/v1/gifts", s.handleGifts)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/relationship", s.adminOnly(s.handleRelationshipOverride))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		handler := corsMiddleware(mux)
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
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

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no VILLAGERS_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

// runOnSim executes fn on the simulation goroutine and waits for its result.
// All state mutation goes through here so handlers never race the tick loop.
func (s *Server) runOnSim(fn func() error) error {
	done := make(chan error, 1)
	s.Sim.Enqueue(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-time.After(simReplyTimeout):
		return errSimBusy
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tick := s.Sim.CurrentTick()
	wt := s.Sim.Clock.Now(tick)

	writeJSON(w, map[string]any{
		"tick":     tick,
		"sim_time": clock.SimTime(tick),
		"season":   wt.Season.String(),
		"weather": map[string]any{
			"kind":     wt.Weather.Kind.String(),
			"severity": wt.Weather.Severity,
		},
		"speed":      s.Eng.Speed,
		"running":    s.Eng.Running,
		"population": len(s.Sim.Agents),
		"wallet":     s.Sim.Wallet,
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	type agentSummary struct {
		ID           npc.AgentID `json:"id"`
		Name         string      `json:"name"`
		Personality  string      `json:"personality"`
		State        string      `json:"state"`
		Action       string      `json:"action"`
		Mood         string      `json:"mood"`
		Position     npc.Point   `json:"position"`
		Relationship float64     `json:"relationship"`
		Tier         string      `json:"tier"`
	}

	stateFilter := r.URL.Query().Get("state")

	var result []agentSummary
	for _, a := range s.Sim.Agents {
		if stateFilter != "" && a.State.String() != stateFilter {
			continue
		}
		result = append(result, agentSummary{
			ID:           a.ID,
			Name:         a.Name,
			Personality:  a.Personality.String(),
			State:        a.State.String(),
			Action:       a.ActionLabel(),
			Mood:         npc.DeriveMood(a).String(),
			Position:     a.Position,
			Relationship: a.RelationshipToActor,
			Tier:         social.TierFor(a.RelationshipToActor).String(),
		})
	}
	writeJSON(w, result)
}

// handleAgentRoutes dispatches /api/v1/agent/:id and its action subroutes.
func (s *Server) handleAgentRoutes(limiter *RateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 5 || parts[4] == "" {
			http.Error(w, "missing agent id", http.StatusBadRequest)
			return
		}
		id, err := strconv.ParseUint(parts[4], 10, 64)
		if err != nil {
			http.Error(w, "invalid agent id", http.StatusBadRequest)
			return
		}

		agent, ok := s.Sim.AgentIndex[npc.AgentID(id)]
		if !ok {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}

		if len(parts) >= 6 && parts[5] != "" {
			RateLimitMiddleware(limiter, func(w http.ResponseWriter, r *http.Request) {
				s.handleAgentAction(w, r, agent, parts[5])
			})(w, r)
			return
		}

		s.handleAgentDetail(w, r, agent)
	}
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request, a *npc.Agent) {
	tick := s.Sim.CurrentTick()
	wt := s.Sim.Clock.Now(tick)

	info, err := s.Sim.Graph.RelationshipInfo(a.ID)
	if err != nil {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	plans := npc.NextActivities(a.Personality, wt, 4)
	planNames := make([]string, len(plans))
	for i, p := range plans {
		planNames[i] = p.String()
	}

	detail := map[string]any{
		"agent":              a,
		"mood":               npc.DeriveMood(a).String(),
		"action":             a.ActionLabel(),
		"relationship":       info,
		"plans":              planNames,
		"social_willingness": npc.SocialWillingness(a),
		"memory":             a.Memory.Timeline(),
	}
	if f, ok := s.Sim.Favors.ActiveFavor(a.ID); ok {
		detail["active_favor"] = f
	}
	writeJSON(w, detail)
}

// handleAgentAction serves POST /api/v1/agent/:id/{talk,gift,gift-ack}.
func (s *Server) handleAgentAction(w http.ResponseWriter, r *http.Request, a *npc.Agent, action string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var value float64
	var acknowledged bool
	err := s.runOnSim(func() error {
		tick := s.Sim.CurrentTick()
		switch action {
		case "talk":
			v, err := s.Sim.Graph.UpdateRelationship(a.ID, talkDelta, social.ReasonDailyInteraction, tick)
			value = v
			return err
		case "gift":
			v, err := s.Sim.Graph.GiveGift(a.ID, tick)
			value = v
			return err
		case "gift-ack":
			acknowledged = s.Sim.Graph.AcknowledgeGift(a.ID, tick)
			value = a.RelationshipToActor
			return nil
		default:
			return fmt.Errorf("unknown action %q", action)
		}
	})
	if err != nil {
		writeActionError(w, err)
		return
	}

	resp := map[string]any{
		"agent":        a.ID,
		"action":       action,
		"relationship": value,
		"tier":         social.TierFor(value).String(),
	}
	if action == "gift-ack" {
		resp["acknowledged"] = acknowledged
	}
	writeJSON(w, resp)
}

func (s *Server) handleFavors(w http.ResponseWriter, r *http.Request) {
	type favorEntry struct {
		ID            string      `json:"id"`
		AgentID       npc.AgentID `json:"agent_id"`
		AgentName     string      `json:"agent_name"`
		Type          string      `json:"type"`
		Status        string      `json:"status"`
		Progress      float64     `json:"progress"`
		TimeRemaining float64     `json:"time_remaining"`
		RewardMoney   int         `json:"reward_money"`
	}

	var result []favorEntry
	for _, f := range s.Sim.Favors.ActiveFavors() {
		name := ""
		if a, ok := s.Sim.AgentIndex[f.AgentID]; ok {
			name = a.Name
		}
		result = append(result, favorEntry{
			ID:            f.ID,
			AgentID:       f.AgentID,
			AgentName:     name,
			Type:          f.Type.String(),
			Status:        f.Status.String(),
			Progress:      f.Progress,
			TimeRemaining: f.TimeRemaining,
			RewardMoney:   f.Reward.Money,
		})
	}
	writeJSON(w, result)
}

// handleFavorRoutes serves POST /api/v1/favor/:id/{accept,progress,complete,abandon}.
func (s *Server) handleFavorRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 6 || parts[4] == "" || parts[5] == "" {
		http.Error(w, "expected /api/v1/favor/:id/:action", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	favorID, action := parts[4], parts[5]

	var progressDelta float64
	if action == "progress" {
		var req struct {
			Delta float64 `json:"delta"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Delta <= 0 || req.Delta > 100 {
			http.Error(w, "delta must be in (0, 100]", http.StatusBadRequest)
			return
		}
		progressDelta = req.Delta
	}

	err := s.runOnSim(func() error {
		tick := s.Sim.CurrentTick()
		switch action {
		case "accept":
			return s.Sim.Favors.Accept(favorID)
		case "progress":
			return s.Sim.Favors.ReportProgress(favorID, progressDelta, tick)
		case "complete":
			return s.Sim.Favors.Complete(favorID, tick)
		case "abandon":
			return s.Sim.Favors.Abandon(favorID, tick)
		default:
			return fmt.Errorf("unknown action %q", action)
		}
	})
	if err != nil {
		writeActionError(w, err)
		return
	}

	writeJSON(w, map[string]any{"favor": favorID, "action": action, "ok": true})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	writeJSON(w, s.Sim.RecentEvents(limit))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Stats)
}

// handleSocial lists NPC-NPC edges, strongest first is left to the client.
func (s *Server) handleSocial(w http.ResponseWriter, r *http.Request) {
	type edgeEntry struct {
		AgentA        npc.AgentID `json:"agent_a"`
		AgentB        npc.AgentID `json:"agent_b"`
		Value         float64     `json:"value"`
		Compatibility float64     `json:"compatibility"`
		Grudge        float64     `json:"grudge,omitempty"`
	}

	var result []edgeEntry
	for key, e := range s.Sim.Graph.Edges() {
		result = append(result, edgeEntry{
			AgentA:        key.A,
			AgentB:        key.B,
			Value:         e.Value,
			Compatibility: e.Compatibility,
			Grudge:        e.Grudge,
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleGifts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Graph.PendingGifts())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.Speed = req.Speed
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	err := s.runOnSim(func() error {
		return s.DB.SaveWorldState(s.Sim)
	})
	if err != nil {
		slog.Error("snapshot save failed", "error", err)
		writeActionError(w, err)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

// handleRelationshipOverride applies a raw relationship delta, bypassing the
// daily cap and grudge dampening. Admin-only escape hatch.
func (s *Server) handleRelationshipOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AgentID uint64  `json:"agent_id"`
		Delta   float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var value float64
	err := s.runOnSim(func() error {
		v, err := s.Sim.Graph.SetRelationshipDirect(npc.AgentID(req.AgentID), req.Delta)
		value = v
		return err
	})
	if err != nil {
		writeActionError(w, err)
		return
	}

	slog.Info("relationship override applied", "agent", req.AgentID, "delta", req.Delta, "value", value)
	writeJSON(w, map[string]any{
		"agent":        req.AgentID,
		"relationship": value,
		"tier":         social.TierFor(value).String(),
	})
}

// writeActionError maps domain errors onto HTTP status codes.
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, social.ErrUnknownAgent), errors.Is(err, favor.ErrUnknownFavor):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, social.ErrNotEligible), errors.Is(err, social.ErrDailyCapReached),
		errors.Is(err, favor.ErrBadTransition), errors.Is(err, favor.ErrNotEligible):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, errSimBusy):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
