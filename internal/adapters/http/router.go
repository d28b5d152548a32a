package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
	"github.com/agromitra/citrus-advisor/internal/core/ports"
	"github.com/agromitra/citrus-advisor/internal/observability/metrics"
)

const (
	maxChatBodyBytes   = 64 << 10
	healthCheckTimeout = 2 * time.Second
)

// DependencyCheck probes one external dependency for the health endpoint.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options carries the traffic control knobs applied in front of the router.
type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueTimeout   time.Duration
}

type Router struct {
	chat    ports.ChatService
	metrics *metrics.HTTPServerMetrics
	checks  []DependencyCheck
}

// NewHandler builds the full HTTP surface with middleware applied
// outermost-first: request id, access log, rate limit, backpressure.
func NewHandler(chat ports.ChatService, m *metrics.HTTPServerMetrics, checks []DependencyCheck, opts Options) http.Handler {
	router := &Router{chat: chat, metrics: m, checks: checks}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", router.handleChat)
	mux.HandleFunc("POST /sessions/{id}/clear", router.handleClearSession)
	mux.HandleFunc("GET /health", router.handleHealth)
	mux.Handle("GET /metrics", m.Handler())

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, opts.MaxInFlight, opts.QueueTimeout)
	handler = rateLimitMiddleware(handler, opts.RateLimitRPS, opts.RateLimitBurst)
	handler = accessLogMiddleware(m, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (rt *Router) handleChat(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req chatRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	query := domain.Query{
		Text:       req.Query,
		SessionID:  strings.TrimSpace(req.SessionID),
		ReceivedAt: time.Now(),
	}

	resp, err := rt.chat.Chat(r.Context(), query)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		slog.Error("chat_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"session_id", query.SessionID,
			"status", status,
			"error", err)
		writeJSON(w, status, map[string]string{"error": userFacingError(err)})
		return
	}

	rt.metrics.ObserveChat(
		string(resp.Intent.Label),
		len(resp.Citations),
		resp.Intent.Label == domain.IntentUnclear,
		resp.ProcessingTime,
	)
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	if err := rt.chat.ClearSession(r.Context(), sessionID); err != nil {
		status := mapErrorToHTTPStatus(err)
		slog.Error("clear_session_failed",
			"request_id", requestIDFromContext(r.Context()),
			"session_id", sessionID,
			"error", err)
		writeJSON(w, status, map[string]string{"error": userFacingError(err)})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:       "active",
		Dependencies: make(map[string]string, len(rt.checks)),
	}
	for _, check := range rt.checks {
		if err := check.Check(ctx); err != nil {
			resp.Status = "degraded"
			resp.Dependencies[check.Name] = "unavailable"
			slog.Warn("health_check_failed", "dependency", check.Name, "error", err)
			continue
		}
		resp.Dependencies[check.Name] = "connected"
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("response_encode_failed", "error", err)
	}
}
