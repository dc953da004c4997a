package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medconnect-auth/internal/application/orchestrator"
	"github.com/medconnect-auth/internal/domain"
	"github.com/medconnect-auth/internal/pkg/validate"
)

type startFlowRequest struct {
	EntryView string `json:"entry_view" validate:"omitempty,oneof=sign_in sign_up"`
}

type methodRequest struct {
	Method string `json:"method" validate:"required,oneof=email phone"`
}

type viewRequest struct {
	View string `json:"view" validate:"required,oneof=sign_in sign_up forgot_password"`
}

type accountTypeRequest struct {
	Type       string `json:"type" validate:"required,oneof=doctor organization"`
	OrgName    string `json:"org_name" validate:"max=200"`
	OrgType    string `json:"org_type" validate:"max=100"`
	OrgCountry string `json:"org_country" validate:"max=100"`
}

type phoneRequest struct {
	Phone string `json:"phone" validate:"max=20"`
}

type channelRequest struct {
	Override string `json:"override" validate:"omitempty,oneof=sms whatsapp"`
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"max=320"`
	Password string `json:"password" validate:"max=128"`
	Phone    string `json:"phone" validate:"max=20"`
}

type verifyRequest struct {
	Code        string `json:"code"`
	NewPassword string `json:"new_password" validate:"max=128"`
}

// FlowHandler exposes the authentication flow state machine.
type FlowHandler struct {
	svc orchestrator.Service
}

func NewFlowHandler(svc orchestrator.Service) *FlowHandler { return &FlowHandler{svc: svc} }

// bind decodes and validates the body. It writes the error response itself.
func bind(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decode(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func writeFlow(w http.ResponseWriter, status int, f *domain.Flow, err error) {
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, status, FlowEnvelope{Flow: f})
}

func writeOutcome(w http.ResponseWriter, out *orchestrator.Outcome, err error) {
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FlowEnvelope{Flow: out.Flow, Auth: authEnvelope(out.Auth)})
}

func (h *FlowHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startFlowRequest
	if !bind(w, r, &req) {
		return
	}
	f, err := h.svc.Start(r.Context(), domain.View(req.EntryView))
	writeFlow(w, http.StatusCreated, f, err)
}

func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	writeFlow(w, http.StatusOK, f, err)
}

func (h *FlowHandler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	var req methodRequest
	if !bind(w, r, &req) {
		return
	}
	f, err := h.svc.SelectMethod(r.Context(), chi.URLParam(r, "id"), domain.Method(req.Method))
	writeFlow(w, http.StatusOK, f, err)
}

func (h *FlowHandler) SelectView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if !bind(w, r, &req) {
		return
	}
	f, err := h.svc.SelectView(r.Context(), chi.URLParam(r, "id"), domain.View(req.View))
	writeFlow(w, http.StatusOK, f, err)
}

func (h *FlowHandler) ChooseAccountType(w http.ResponseWriter, r *http.Request) {
	var req accountTypeRequest
	if !bind(w, r, &req) {
		return
	}
	sel := domain.AccountTypeSelection{Type: domain.AccountType(req.Type)}
	if sel.Type == domain.AccountTypeOrganization {
		sel.Organization = domain.Organization{Name: req.OrgName, Type: req.OrgType, Country: req.OrgCountry}
	}
	out, err := h.svc.ChooseAccountType(r.Context(), chi.URLParam(r, "id"), sel)
	writeOutcome(w, out, err)
}

func (h *FlowHandler) SetPhone(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !bind(w, r, &req) {
		return
	}
	f, err := h.svc.SetPhone(r.Context(), chi.URLParam(r, "id"), req.Phone)
	writeFlow(w, http.StatusOK, f, err)
}

func (h *FlowHandler) SetChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if !bind(w, r, &req) {
		return
	}
	f, err := h.svc.SetChannelOverride(r.Context(), chi.URLParam(r, "id"), domain.Channel(req.Override))
	writeFlow(w, http.StatusOK, f, err)
}

func (h *FlowHandler) SubmitCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !bind(w, r, &req) {
		return
	}
	out, err := h.svc.SubmitCredentials(r.Context(), chi.URLParam(r, "id"), domain.Credential{
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	writeOutcome(w, out, err)
}

func (h *FlowHandler) Resend(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Resend(r.Context(), chi.URLParam(r, "id"))
	writeFlow(w, http.StatusOK, f, err)
}

func (h *FlowHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !bind(w, r, &req) {
		return
	}
	out, err := h.svc.Verify(r.Context(), chi.URLParam(r, "id"), req.Code, req.NewPassword)
	writeOutcome(w, out, err)
}

func (h *FlowHandler) Back(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Back(r.Context(), chi.URLParam(r, "id"))
	writeFlow(w, http.StatusOK, f, err)
}
