package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/edvin/devhost/internal/agent"
	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/orchestrator"
	"github.com/edvin/devhost/internal/probe"
	"github.com/edvin/devhost/internal/settings"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteServiceError maps a domain error to its HTTP status.
func WriteServiceError(w http.ResponseWriter, err error) {
	WriteError(w, StatusFor(err), err.Error())
}

// StatusFor returns the HTTP status for a domain error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrSiteNotFound),
		errors.Is(err, agent.ErrUnknownService),
		errors.Is(err, runtime.ErrInterpreterNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrNoPort),
		errors.Is(err, agent.ErrBroadcastNotInstalled):
		return http.StatusConflict
	case errors.Is(err, settings.ErrInvalidKey),
		errors.Is(err, agent.ErrInvalidCommand),
		errors.Is(err, runtime.ErrInvalidVersion),
		errors.Is(err, orchestrator.ErrOutsideRoot):
		return http.StatusBadRequest
	case errors.Is(err, probe.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
