package handler

import (
	"context"
	"net/http"

	"github.com/medconnect-auth/internal/domain"
	"github.com/medconnect-auth/internal/transport/http/middleware"
)

type sessionService interface {
	GoogleSignIn(ctx context.Context, idToken string) (*domain.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthResult, error)
	Logout(ctx context.Context, sessionID string) error
	Current(ctx context.Context, sessionID string) (*domain.Session, error)
}

// SessionHandler handles session endpoints and Google sign-in.
type SessionHandler struct {
	svc sessionService
}

func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"id_token" validate:"required"`
	}
	if !bind(w, r, &req) {
		return
	}
	res, err := h.svc.GoogleSignIn(r.Context(), req.IDToken)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authEnvelope(res))
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}
	if err := decode(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token required")
		return
	}
	res, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authEnvelope(res))
}

func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sess, err := h.svc.Current(r.Context(), claims.SessionID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{Session: sess})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), claims.SessionID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}
