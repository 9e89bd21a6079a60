package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/devhost/internal/api/request"
	"github.com/edvin/devhost/internal/api/response"
)

// Command runs package-manager scripts inside a site. Output and exit
// codes are delivered on the event stream under the returned key.
type Command struct {
	sites    *Site
	devtools DevTools
}

func NewCommand(sites *Site, devtools DevTools) *Command {
	return &Command{sites: sites, devtools: devtools}
}

func (h *Command) List(w http.ResponseWriter, r *http.Request) {
	st, ok := h.sites.lookup(w, r)
	if !ok {
		return
	}
	response.WriteJSON(w, http.StatusOK, h.devtools.Running(st.Name))
}

func (h *Command) Run(w http.ResponseWriter, r *http.Request) {
	st, ok := h.sites.lookup(w, r)
	if !ok {
		return
	}
	var req request.RunCommand
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.devtools.Run(r.Context(), st.Site, req.Command)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, map[string]string{"key": key})
}

func (h *Command) Stop(w http.ResponseWriter, r *http.Request) {
	st, ok := h.sites.lookup(w, r)
	if !ok {
		return
	}
	command, err := request.RequireName(chi.URLParam(r, "command"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.devtools.Stop(r.Context(), st.Name, command); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
