package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/ridesafe/internal/domain/emergency"
	"github.com/okian/ridesafe/internal/domain/types"
)

// EmergencyDependencies exposes the countdown controller.
type EmergencyDependencies interface {
	Emergency() emergency.State
	CancelEmergency(ctx context.Context) (string, error)
	CallNow(ctx context.Context) (string, error)
}

// EmergencyHandler serves countdown state and the rider's commands.
type EmergencyHandler struct {
	deps EmergencyDependencies
}

// NewEmergencyHandler creates a new emergency handler.
func NewEmergencyHandler(deps EmergencyDependencies) *EmergencyHandler {
	return &EmergencyHandler{deps: deps}
}

// HandleGetEmergency handles GET /emergency.
func (h *EmergencyHandler) HandleGetEmergency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Emergency())
}

// HandleCancel handles POST /emergency/cancel.
func (h *EmergencyHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "api.emergency_cancel", "cancelled", h.deps.CancelEmergency)
}

// HandleCallNow handles POST /emergency/call.
func (h *EmergencyHandler) HandleCallNow(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "api.emergency_call", "called", h.deps.CallNow)
}

func (h *EmergencyHandler) command(w http.ResponseWriter, r *http.Request, op, status string, run func(context.Context) (string, error)) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	episodeID, err := run(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, emergency.ErrNotActive):
			writeError(w, http.StatusConflict, "conflict", WrapKind(op, ErrConflict, err))
		case errors.Is(err, emergency.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		default:
			writeError(w, http.StatusInternalServerError, "internal", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusOK, types.CommandResult{
		Status:    status,
		EpisodeID: episodeID,
	})
}
