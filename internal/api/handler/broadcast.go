package handler

import (
	"net/http"

	"github.com/edvin/devhost/internal/api/response"
)

// Broadcast manages a site's websocket broadcast server.
type Broadcast struct {
	sites     *Site
	broadcast Broadcasts
}

func NewBroadcast(sites *Site, broadcast Broadcasts) *Broadcast {
	return &Broadcast{sites: sites, broadcast: broadcast}
}

func (h *Broadcast) Get(w http.ResponseWriter, r *http.Request) {
	st, ok := h.sites.lookup(w, r)
	if !ok {
		return
	}
	response.WriteJSON(w, http.StatusOK, broadcastStatus{
		Installed: h.broadcast.Installed(st.Site),
		Running:   h.broadcast.IsRunning(st.Name),
	})
}

// Install runs the framework installer and waits for it.
func (h *Broadcast) Install(w http.ResponseWriter, r *http.Request) {
	st, ok := h.sites.lookup(w, r)
	if !ok {
		return
	}
	if err := h.broadcast.Install(r.Context(), st.Site); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, broadcastStatus{Installed: h.broadcast.Installed(st.Site)})
}

func (h *Broadcast) Start(w http.ResponseWriter, r *http.Request) {
	st, ok := h.sites.lookup(w, r)
	if !ok {
		return
	}
	if err := h.broadcast.Start(r.Context(), st.Site); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, broadcastStatus{Installed: true, Running: h.broadcast.IsRunning(st.Name)})
}

func (h *Broadcast) Stop(w http.ResponseWriter, r *http.Request) {
	st, ok := h.sites.lookup(w, r)
	if !ok {
		return
	}
	if err := h.broadcast.Stop(r.Context(), st.Name); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, broadcastStatus{
		Installed: h.broadcast.Installed(st.Site),
		Running:   false,
	})
}
