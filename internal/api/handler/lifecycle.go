package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/api/response"
	"github.com/edvin/devhost/internal/orchestrator"
	"github.com/edvin/devhost/internal/site"
)

// Lifecycle serves the global start/stop/restart operations. A pass runs to
// completion even if the client goes away.
type Lifecycle struct {
	orch Orchestrator
}

func NewLifecycle(orch Orchestrator) *Lifecycle {
	return &Lifecycle{orch: orch}
}

type statusResponse struct {
	Running bool `json:"running"`
}

type startResponse struct {
	Sites    []site.Site `json:"sites"`
	Warnings []string    `json:"warnings,omitempty"`
}

type stopResponse struct {
	Running  bool     `json:"running"`
	Warnings []string `json:"warnings,omitempty"`
}

func (h *Lifecycle) Status(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, statusResponse{Running: h.orch.GetServicesStatus()})
}

// Start runs a planning pass. Component failures come back as warnings
// next to the sites; only a failed discovery is an error.
func (h *Lifecycle) Start(w http.ResponseWriter, r *http.Request) {
	sites, err := h.orch.StartAll(context.WithoutCancel(r.Context()))
	warnings, fatal := splitDegraded(err)
	if fatal != nil {
		response.WriteServiceError(w, fatal)
		return
	}
	if sites == nil {
		sites = []site.Site{}
	}
	response.WriteJSON(w, http.StatusOK, startResponse{Sites: sites, Warnings: warnings})
}

func (h *Lifecycle) Stop(w http.ResponseWriter, r *http.Request) {
	err := h.orch.StopAll(context.WithoutCancel(r.Context()))
	warnings, fatal := splitDegraded(err)
	if fatal != nil {
		response.WriteServiceError(w, fatal)
		return
	}
	response.WriteJSON(w, http.StatusOK, stopResponse{Running: false, Warnings: warnings})
}

func (h *Lifecycle) Restart(w http.ResponseWriter, r *http.Request) {
	res := h.orch.RestartAll(context.WithoutCancel(r.Context()))
	if !res.Success {
		zerolog.Ctx(r.Context()).Error().Str("error", res.Error).Msg("restart failed")
		response.WriteJSON(w, http.StatusInternalServerError, res)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

// splitDegraded turns a *DegradedError into warnings. Any other error is
// returned as fatal.
func splitDegraded(err error) ([]string, error) {
	if err == nil {
		return nil, nil
	}
	var de *orchestrator.DegradedError
	if errors.As(err, &de) {
		return de.Messages(), nil
	}
	return nil, err
}
