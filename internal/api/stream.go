package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/talgya/markov-city/internal/city"
)

// maxStreamConns caps concurrent SSE clients.
const maxStreamConns = 8

// Hub fans tick snapshots out to streaming clients. Slow clients miss
// snapshots rather than blocking the tick loop. A nil Hub drops everything.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan city.Snapshot
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan city.Snapshot)}
}

// Publish delivers snap to every subscriber with room in its buffer.
func (h *Hub) Publish(snap city.Snapshot) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribe registers a subscriber. ok is false when the hub is full.
func (h *Hub) Subscribe() (id int, ch <-chan city.Snapshot, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) >= maxStreamConns {
		return 0, nil, false
	}
	h.nextID++
	c := make(chan city.Snapshot, 16)
	h.subs[h.nextID] = c
	return h.nextID, c, true
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// handleStream sends the current snapshot, then one "tick" event per step.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	subID, ch, ok := s.Hub.Subscribe()
	if !ok {
		http.Error(w, "too many stream clients", http.StatusServiceUnavailable)
		return
	}
	defer s.Hub.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Catch-up: the state as of now.
	if snap, err := s.Driver.Snapshot(); err == nil {
		writeSSEEvent(w, snap)
	}
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, snap)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEEvent writes a single snapshot in SSE format.
func writeSSEEvent(w http.ResponseWriter, snap city.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: tick\nid: %d\ndata: %s\n\n", snap.Tick, data)
}
