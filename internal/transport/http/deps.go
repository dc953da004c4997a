package http

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/medconnect-auth/internal/application/domains"
	"github.com/medconnect-auth/internal/application/orchestrator"
	"github.com/medconnect-auth/internal/domain"
	"github.com/medconnect-auth/internal/infrastructure/dynamo"
	jwtinfra "github.com/medconnect-auth/internal/infrastructure/jwt"
)

// SMSSender delivers plain text messages. Satisfied by the SNS and Twilio senders.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Mailer sends transactional email.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

// RemoteVerifier is a provider that generates and checks its own codes
// (the WhatsApp service and the email OTP service).
type RemoteVerifier interface {
	Send(ctx context.Context, target string) error
	Verify(ctx context.Context, target, code string) (string, error)
}

// IDTokenVerifier validates a third-party ID token.
type IDTokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.ExternalIdentity, error)
}

// Deps holds all infrastructure dependencies for the router.
// Interface-typed fields are optional and may be left nil.
type Deps struct {
	AccountRepo    *dynamo.AccountRepo
	SessionRepo    *dynamo.SessionRepo
	ProfileRepo    *dynamo.ProfileRepo
	ChallengeRepo  *dynamo.ChallengeRepo
	DomainPolicy   domains.Policy
	FlowStore      orchestrator.FlowStore
	SMSSender      SMSSender
	Mailer         Mailer
	WhatsApp       RemoteVerifier
	EmailOTP       RemoteVerifier
	Google         IDTokenVerifier
	JWTProvider    *jwtinfra.Provider
	Clock          clockwork.Clock
	AllowedDomains []string // general allow-list, env and file merged
}
