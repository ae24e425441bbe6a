package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/hausbot/internal/gateway"
	"github.com/user/hausbot/internal/session"
	"github.com/user/hausbot/internal/types"
)

// HealthChecker reports whether the generation backend is reachable.
type HealthChecker interface {
	CheckRunning(ctx context.Context) error
}

// Server is a lightweight HTTP handler for the local status API.
type Server struct {
	store   *session.Store
	gw      *gateway.Gateway
	backend HealthChecker
	mux     *http.ServeMux
}

// NewServer creates a Server over the given session store, gateway, and
// backend health probe.
func NewServer(store *session.Store, gw *gateway.Gateway, backend HealthChecker) *Server {
	s := &Server{
		store:   store,
		gw:      gw,
		backend: backend,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("POST /api/message", s.handleMessage)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend := "ok"
	if s.backend != nil {
		if err := s.backend.CheckRunning(r.Context()); err != nil {
			slog.Warn("backend health probe failed", "error", err)
			backend = "unreachable"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "backend": backend})
}

type sessionResponse struct {
	SessionKey   string `json:"session_key"`
	Turns        int    `json:"turns"`
	LastActivity string `json:"last_activity"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	result := make([]sessionResponse, 0, len(stats))
	for _, stat := range stats {
		result = append(result, sessionResponse{
			SessionKey:   string(stat.Key),
			Turns:        stat.Turns,
			LastActivity: stat.LastActivity.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// messageRequest is the JSON body for POST /api/message.
type messageRequest struct {
	SessionKey string `json:"session_key"`
	Text       string `json:"text"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Text == "" || req.SessionKey == "" {
		http.Error(w, `{"error":"text and session_key are required"}`, http.StatusBadRequest)
		return
	}

	done := make(chan string, 1)
	err := s.gw.HandleInbound(r.Context(), &types.InboundMessage{
		Source:     "httpapi",
		SessionKey: types.SessionKey(req.SessionKey),
		Sender:     "httpapi",
		Text:       req.Text,
	}, gateway.WithOnComplete(func(response string) { done <- response }))
	if errors.Is(err, gateway.ErrSessionBusy) {
		http.Error(w, `{"error":"session busy"}`, http.StatusConflict)
		return
	}
	if err != nil {
		slog.Error("inject message failed", "session_key", req.SessionKey, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	select {
	case resp := <-done:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"response": resp})
	case <-r.Context().Done():
		// Client gave up; the turn still finishes in the background.
	}
}
