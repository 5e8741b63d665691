// Package api provides the HTTP API the presentation layer uses to drive
// and observe the city.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/markov-city/internal/city"
	"github.com/talgya/markov-city/internal/engine"
	"github.com/talgya/markov-city/internal/persistence"
)

// maxSpeed caps the engine speed multiplier accepted over the API.
const maxSpeed = 1000

// Server serves the city state over HTTP.
type Server struct {
	Driver   *engine.Driver
	Eng      *engine.Engine       // Optional; speed control is disabled without it.
	DB       *persistence.DB      // Optional; save is disabled without it.
	Hub      *Hub                 // Optional; streaming is disabled without it.
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// StepLimit caps manual steps per client per minute (0 = default).
	StepLimit int
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	stepLimit := s.StepLimit
	if stepLimit <= 0 {
		stepLimit = 600
	}
	stepLimiter := NewRateLimiter(stepLimit, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/v1/nodes", s.handleNodes)
	mux.HandleFunc("/api/v1/node/", s.handleNodeDetail)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/initialize", s.adminOnly(s.handleInitialize))
	mux.HandleFunc("/api/v1/step", s.adminOnly(RateLimitMiddleware(stepLimiter, s.handleStep)))
	mux.HandleFunc("/api/v1/reset", s.adminOnly(s.handleReset))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/save", s.adminOnly(s.handleSave))

	return mux
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
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
			http.Error(w, "admin endpoints disabled (no CITYSIM_ADMIN_KEY set)", http.StatusForbidden)
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
	status := map[string]any{
		"name":        "markov-city",
		"initialized": false,
	}
	if s.Eng != nil {
		status["running"] = s.Eng.Running()
		status["speed"] = s.Eng.Speed()
	}
	if h, ok := s.Driver.Handle(); ok {
		status["initialized"] = true
		status["run"] = h
	}
	if snap, err := s.Driver.Snapshot(); err == nil {
		status["tick"] = snap.Tick
		status["counts"] = snap.Counts
	}
	writeJSON(w, status)
}

// currentSnapshot writes 409 and returns false when nothing is initialized.
func (s *Server) currentSnapshot(w http.ResponseWriter) (city.Snapshot, bool) {
	snap, err := s.Driver.Snapshot()
	if errors.Is(err, engine.ErrNotInitialized) {
		http.Error(w, "simulation not initialized", http.StatusConflict)
		return city.Snapshot{}, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return city.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.currentSnapshot(w); ok {
		writeJSON(w, snap)
	}
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.currentSnapshot(w)
	if !ok {
		return
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		writeJSON(w, snap.Nodes)
		return
	}
	k, err := city.ParsePlaceKind(kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	nodes := make([]city.NodeSnapshot, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.Kind == k {
			nodes = append(nodes, n)
		}
	}
	writeJSON(w, nodes)
}

func (s *Server) handleNodeDetail(w http.ResponseWriter, r *http.Request) {
	// /api/v1/node/:id → parts[0]="" [1]="api" [2]="v1" [3]="node" [4]=id
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing node id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[4], 10, 32)
	if err != nil {
		http.Error(w, "invalid node id", http.StatusBadRequest)
		return
	}

	snap, ok := s.currentSnapshot(w)
	if !ok {
		return
	}
	n, found := snap.Node(city.NodeID(id))
	if !found {
		http.Error(w, "node not found", http.StatusNotFound)
		return
	}
	writeJSON(w, n)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Total    int `json:"total"`
		Infected int `json:"infected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	h, err := s.Driver.Initialize(req.Total, req.Infected)
	if errors.Is(err, city.ErrConfig) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("initialize failed", "error", err)
		http.Error(w, "initialize failed", http.StatusInternalServerError)
		return
	}

	snap, ok := s.currentSnapshot(w)
	if !ok {
		return
	}
	s.Hub.Publish(snap)
	writeJSON(w, map[string]any{
		"run":      h,
		"snapshot": snap,
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Driver.Step()
	switch {
	case errors.Is(err, engine.ErrNotInitialized):
		http.Error(w, "simulation not initialized", http.StatusConflict)
		return
	case err != nil:
		slog.Error("manual step failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.Hub.Publish(snap)
	writeJSON(w, snap)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.Driver.Reset()
	if s.DB != nil {
		if err := s.DB.Clear(); err != nil {
			slog.Error("clear export failed", "error", err)
		}
	}
	writeJSON(w, map[string]any{"initialized": false})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > maxSpeed {
		http.Error(w, fmt.Sprintf("speed must be 0-%d", maxSpeed), http.StatusBadRequest)
		return
	}
	s.Eng.SetSpeed(req.Speed)
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	h, ok := s.Driver.Handle()
	if !ok {
		http.Error(w, "simulation not initialized", http.StatusConflict)
		return
	}
	snap, ok := s.currentSnapshot(w)
	if !ok {
		return
	}
	if err := s.DB.SaveSnapshot(h, snap); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"tick":    snap.Tick,
		"message": "snapshot saved",
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
