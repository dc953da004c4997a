package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/medconnect-auth/internal/application/domains"
)

type domainChecker interface {
	Check(ctx context.Context, email string) domains.Verdict
}

// DomainHandler gives instant feedback on an email's domain while the user types.
type DomainHandler struct {
	checker domainChecker
}

func NewDomainHandler(checker domainChecker) *DomainHandler { return &DomainHandler{checker: checker} }

func (h *DomainHandler) Check(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter required")
		return
	}
	writeJSON(w, http.StatusOK, h.checker.Check(r.Context(), email))
}
