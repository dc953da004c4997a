package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/medconnect-auth/internal/domain"
	"google.golang.org/api/idtoken"
)

// Verifier checks Google ID tokens issued for one OAuth client.
type Verifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewVerifier(clientID string) *Verifier {
	return &Verifier{clientID: clientID, validate: idtoken.Validate}
}

// Verify validates token and maps its claims to an ExternalIdentity.
// Any validation failure is reported as ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, token string) (*domain.ExternalIdentity, error) {
	if v.clientID == "" {
		return nil, errors.New("google sign-in is not configured")
	}
	p, err := v.validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid google token: %w", domain.ErrUnauthorized)
	}
	email, _ := p.Claims["email"].(string)
	verified, _ := p.Claims["email_verified"].(bool)
	name, _ := p.Claims["name"].(string)
	return &domain.ExternalIdentity{
		Provider:      "google",
		Subject:       p.Subject,
		Email:         strings.ToLower(email),
		EmailVerified: verified,
		Name:          name,
	}, nil
}
