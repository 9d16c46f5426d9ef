// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SampleDependencies
	ReadingDependencies
	EmergencyDependencies
}

// Server wires HTTP routes for the telemetry API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	samplesHandler   *SamplesHandler
	readingHandler   *ReadingHandler
	emergencyHandler *EmergencyHandler
}

// NewServer creates a new API server with all handlers. maxHistoryLimit caps
// the limit query parameter of /history.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxHistoryLimit int) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		samplesHandler:   NewSamplesHandler(deps),
		readingHandler:   NewReadingHandler(deps, maxHistoryLimit),
		emergencyHandler: NewEmergencyHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/samples", MetricsMiddleware(s.samplesHandler.HandlePostSamples, "samples"))
	mux.HandleFunc("/reading", MetricsMiddleware(s.readingHandler.HandleGetReading, "reading"))
	mux.HandleFunc("/history", MetricsMiddleware(s.readingHandler.HandleGetHistory, "history"))
	mux.HandleFunc("/emergency", MetricsMiddleware(s.emergencyHandler.HandleGetEmergency, "emergency"))
	mux.HandleFunc("/emergency/cancel", MetricsMiddleware(s.emergencyHandler.HandleCancel, "emergency_cancel"))
	mux.HandleFunc("/emergency/call", MetricsMiddleware(s.emergencyHandler.HandleCallNow, "emergency_call"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
