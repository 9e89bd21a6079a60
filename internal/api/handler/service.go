package handler

import (
	"fmt"
	"net/http"
	goruntime "runtime"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/api/request"
	"github.com/edvin/devhost/internal/api/response"
	"github.com/edvin/devhost/internal/settings"
)

// Service manages the auxiliary services listed in the settings store.
type Service struct {
	services Services
	store    SettingsStore
	logger   zerolog.Logger
}

func NewService(logger zerolog.Logger, services Services, store SettingsStore) *Service {
	return &Service{
		services: services,
		store:    store,
		logger:   logger.With().Str("component", "service-handler").Logger(),
	}
}

func (h *Service) List(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, h.services.Status(r.Context(), h.store.Services()))
}

func (h *Service) Start(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.find(w, r)
	if !ok {
		return
	}
	if err := svc.Start(r.Context()); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"key": svc.Key(), "running": true})
}

func (h *Service) Stop(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.find(w, r)
	if !ok {
		return
	}
	if err := svc.Stop(r.Context()); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"key": svc.Key(), "running": false})
}

func (h *Service) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateService
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	def := settings.ServiceDef{
		Category: req.Category,
		Name:     req.Name,
		Unit:     req.Unit,
		Command:  req.Command,
		Dir:      req.Dir,
	}
	if len(def.Command) == 0 && def.Unit == "" {
		if _, ok := runtime.UnitFor(def.Name, goruntime.GOOS); !ok {
			response.WriteError(w, http.StatusBadRequest, fmt.Sprintf("service %s needs a unit or a command", def.Key()))
			return
		}
	}

	defs := h.store.Services()
	for _, d := range defs {
		if d.Category == def.Category && d.Name == def.Name {
			response.WriteError(w, http.StatusConflict, fmt.Sprintf("service %s already exists", def.Key()))
			return
		}
	}
	if err := h.store.SetServices(append(defs, def)); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, def)
}

// Delete stops the service before forgetting its definition.
func (h *Service) Delete(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.find(w, r)
	if !ok {
		return
	}
	if err := svc.Stop(r.Context()); err != nil {
		h.logger.Warn().Err(err).Str("service", svc.Key()).Msg("stopping deleted service")
	}

	category, name := chi.URLParam(r, "category"), chi.URLParam(r, "name")
	defs := h.store.Services()
	kept := make([]settings.ServiceDef, 0, len(defs))
	for _, d := range defs {
		if d.Category == category && d.Name == name {
			continue
		}
		kept = append(kept, d)
	}
	if err := h.store.SetServices(kept); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Service) find(w http.ResponseWriter, r *http.Request) (runtime.Service, bool) {
	category, name := chi.URLParam(r, "category"), chi.URLParam(r, "name")
	if category == "" || name == "" {
		response.WriteError(w, http.StatusBadRequest, "missing required category or name")
		return nil, false
	}
	svc, err := h.services.Find(h.store.Services(), category, name)
	if err != nil {
		response.WriteServiceError(w, err)
		return nil, false
	}
	return svc, true
}
