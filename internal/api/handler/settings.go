package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/devhost/internal/api/request"
	"github.com/edvin/devhost/internal/api/response"
)

type Settings struct {
	store SettingsStore
}

func NewSettings(store SettingsStore) *Settings {
	return &Settings{store: store}
}

type settingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *Settings) Get(w http.ResponseWriter, r *http.Request) {
	key, err := request.RequireName(chi.URLParam(r, "key"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, ok := h.store.Get(key)
	if !ok {
		response.WriteError(w, http.StatusNotFound, fmt.Sprintf("setting %s not found", key))
		return
	}
	response.WriteJSON(w, http.StatusOK, settingResponse{Key: key, Value: value})
}

func (h *Settings) Put(w http.ResponseWriter, r *http.Request) {
	key, err := request.RequireName(chi.URLParam(r, "key"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.SetSetting
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Set(key, req.Value); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, settingResponse{Key: key, Value: req.Value})
}
