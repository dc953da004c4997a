package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/medconnect-auth/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// AuthEnvelope wraps responses that open or refresh a session.
type AuthEnvelope struct {
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	Session      *domain.Session `json:"session,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Session *domain.Session `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// FlowEnvelope wraps every flow response. Auth is set once the flow is authenticated.
type FlowEnvelope struct {
	Flow *domain.Flow  `json:"flow,omitempty"`
	Auth *AuthEnvelope `json:"auth,omitempty"`
}

func authEnvelope(res *domain.AuthResult) *AuthEnvelope {
	if res == nil {
		return nil
	}
	return &AuthEnvelope{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken, Session: res.Session}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// httpError maps a service error to its HTTP status. Unclassified errors are
// logged and reported as 500 without their text.
func httpError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrUnsupportedDomain),
		errors.Is(err, domain.ErrInvalidOrExpiredCode):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrEmailNotConfirmed):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrAccountAlreadyExists),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCooldownActive),
		errors.Is(err, domain.ErrAttemptsExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrChannelDelivery):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into dst. An empty body leaves dst unchanged.
func decode(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}
