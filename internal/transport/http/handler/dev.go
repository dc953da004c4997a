package handler

import (
	"net/http"

	"github.com/medconnect-auth/internal/application/devbypass"
)

// DevHandler serves the developer sign-in. It is only routed in developer mode.
type DevHandler struct {
	svc devbypass.Service
}

func NewDevHandler(svc devbypass.Service) *DevHandler { return &DevHandler{svc: svc} }

func (h *DevHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.LoginOrCreate(r.Context(), req.Username)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authEnvelope(res))
}
