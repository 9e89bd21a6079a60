package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/api/request"
	"github.com/edvin/devhost/internal/api/response"
	"github.com/edvin/devhost/internal/settings"
)

// PHP lists, selects and removes bundled interpreter versions. Selecting a
// version only stores it; sites pick it up on their next start.
type PHP struct {
	interp Interpreters
	store  SettingsStore
}

func NewPHP(interp Interpreters, store SettingsStore) *PHP {
	return &PHP{interp: interp, store: store}
}

type phpVersionsResponse struct {
	Versions []string `json:"versions"`
	Current  string   `json:"current"`
}

func (h *PHP) Versions(w http.ResponseWriter, _ *http.Request) {
	versions, err := h.interp.Versions()
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if versions == nil {
		versions = []string{}
	}
	response.WriteJSON(w, http.StatusOK, phpVersionsResponse{Versions: versions, Current: h.store.PHPVersion()})
}

func (h *PHP) SetVersion(w http.ResponseWriter, r *http.Request) {
	var req request.SetPHPVersion
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.interp.Installed(req.Version) {
		response.WriteServiceError(w, fmt.Errorf("%w: %s", runtime.ErrInterpreterNotFound, req.Version))
		return
	}
	if err := h.store.Set(settings.KeyPHPVersion, req.Version); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"current": req.Version})
}

func (h *PHP) Remove(w http.ResponseWriter, r *http.Request) {
	version, err := request.RequireName(chi.URLParam(r, "version"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if version == h.store.PHPVersion() {
		response.WriteError(w, http.StatusConflict, fmt.Sprintf("php %s is the current version", version))
		return
	}
	if err := h.interp.Remove(version); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
