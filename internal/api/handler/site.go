package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/api/request"
	"github.com/edvin/devhost/internal/api/response"
	"github.com/edvin/devhost/internal/orchestrator"
	"github.com/edvin/devhost/internal/probe"
	"github.com/edvin/devhost/internal/site"
)

type Site struct {
	orch      Orchestrator
	devtools  DevTools
	broadcast Broadcasts
	prober    Capturer
	logger    zerolog.Logger
}

func NewSite(logger zerolog.Logger, orch Orchestrator, devtools DevTools, broadcast Broadcasts, prober Capturer) *Site {
	return &Site{
		orch:      orch,
		devtools:  devtools,
		broadcast: broadcast,
		prober:    prober,
		logger:    logger.With().Str("component", "site-handler").Logger(),
	}
}

type broadcastStatus struct {
	Installed bool `json:"installed"`
	Running   bool `json:"running"`
}

type siteDetail struct {
	orchestrator.SiteStatus
	Commands  []string        `json:"commands"`
	Broadcast broadcastStatus `json:"broadcast"`
}

func (h *Site) List(w http.ResponseWriter, r *http.Request) {
	sites, err := h.orch.GetSites(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if sites == nil {
		sites = []site.Site{}
	}
	response.WriteJSON(w, http.StatusOK, sites)
}

func (h *Site) Get(w http.ResponseWriter, r *http.Request) {
	st, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.WriteJSON(w, http.StatusOK, siteDetail{
		SiteStatus: st,
		Commands:   h.devtools.Running(st.Name),
		Broadcast: broadcastStatus{
			Installed: h.broadcast.Installed(st.Site),
			Running:   h.broadcast.IsRunning(st.Name),
		},
	})
}

// Toggle flips one site in the background and answers 202 at once. The
// outcome arrives as a site-status-changed event.
func (h *Site) Toggle(w http.ResponseWriter, r *http.Request) {
	name, err := request.RequireName(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		running, err := h.orch.ToggleSite(ctx, name)
		if err != nil {
			h.logger.Error().Err(err).Str("site", name).Msg("toggle failed")
			return
		}
		h.logger.Info().Str("site", name).Bool("running", running).Msg("site toggled")
	}()

	response.WriteJSON(w, http.StatusAccepted, map[string]string{"site": name, "status": "accepted"})
}

func (h *Site) Delete(w http.ResponseWriter, r *http.Request) {
	name, err := request.RequireName(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.orch.DeleteSite(context.WithoutCancel(r.Context()), name); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Capture fetches the site's front page straight from its backend port.
func (h *Site) Capture(w http.ResponseWriter, r *http.Request) {
	st, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !st.Running || st.Port == 0 {
		response.WriteError(w, http.StatusConflict, fmt.Sprintf("site %s is not running", st.Name))
		return
	}

	snap, err := h.prober.Capture(r.Context(), fmt.Sprintf("http://127.0.0.1:%d/", st.Port))
	switch {
	case err == nil:
		response.WriteJSON(w, http.StatusOK, snap)
	case errors.Is(err, probe.ErrTimeout):
		response.WriteServiceError(w, err)
	default:
		response.WriteError(w, http.StatusBadGateway, err.Error())
	}
}

// lookup resolves the {name} parameter, writing the error response itself.
func (h *Site) lookup(w http.ResponseWriter, r *http.Request) (orchestrator.SiteStatus, bool) {
	name, err := request.RequireName(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return orchestrator.SiteStatus{}, false
	}
	st, err := h.orch.GetSiteStatus(r.Context(), name)
	if err != nil {
		response.WriteServiceError(w, err)
		return orchestrator.SiteStatus{}, false
	}
	return st, true
}
