// Package verification sends and checks one-time codes over email, SMS and
// WhatsApp. WhatsApp delivery falls back to SMS once per send.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/medconnect-auth/internal/domain"
	"github.com/medconnect-auth/internal/pkg/id"
	"github.com/medconnect-auth/internal/pkg/otp"
)

const (
	fieldStatus            = "status"
	fieldAttemptsRemaining = "attempts_remaining"
)

type Service interface {
	// SendCode issues a new challenge for target, superseding any earlier one.
	// The returned challenge's Channel is the channel actually used.
	SendCode(ctx context.Context, target string, channel domain.Channel) (*domain.Challenge, error)
	// VerifyCode checks code against the challenge sent over channel.
	VerifyCode(ctx context.Context, target, code string, channel domain.Channel) (*domain.VerifiedIdentity, error)
}

type challengeStore interface {
	Put(ctx context.Context, c *domain.Challenge) error
	Get(ctx context.Context, target string) (*domain.Challenge, error)
	Update(ctx context.Context, target, challengeID string, updates map[string]interface{}) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

// remoteVerifier is a service that issues and checks codes itself.
type remoteVerifier interface {
	Send(ctx context.Context, target string) error
	Verify(ctx context.Context, target, code string) (session string, err error)
}

type service struct {
	challenges  challengeStore
	sms         smsSender
	mailer      mailer
	whatsApp    remoteVerifier
	emailOTP    remoteVerifier
	testNumbers map[string]string
	clock       clockwork.Clock
	generate    func() (string, error)
	ttl         time.Duration
	maxAttempts int
}

type ServiceDeps struct {
	ChallengeRepo challengeStore
	SMSSender     smsSender
	Mailer        mailer
	WhatsApp      remoteVerifier    // optional; without it WhatsApp sends go out as SMS
	EmailOTP      remoteVerifier    // optional; without it email codes are generated and mailed locally
	TestNumbers   map[string]string // phone -> fixed code, never delivered
	Clock         clockwork.Clock
	GenerateCode  func() (string, error)
	CodeTTL       time.Duration
	MaxAttempts   int
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		challenges:  deps.ChallengeRepo,
		sms:         deps.SMSSender,
		mailer:      deps.Mailer,
		whatsApp:    deps.WhatsApp,
		emailOTP:    deps.EmailOTP,
		testNumbers: deps.TestNumbers,
		clock:       deps.Clock,
		generate:    deps.GenerateCode,
		ttl:         deps.CodeTTL,
		maxAttempts: deps.MaxAttempts,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.generate == nil {
		s.generate = otp.Generate
	}
	if s.ttl <= 0 {
		s.ttl = 5 * time.Minute
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = 5
	}
	return s
}

func normalizeTarget(target string, ch domain.Channel) string {
	target = strings.TrimSpace(target)
	if ch == domain.ChannelEmail {
		return strings.ToLower(target)
	}
	return target
}

func (s *service) SendCode(ctx context.Context, target string, ch domain.Channel) (*domain.Challenge, error) {
	target = normalizeTarget(target, ch)
	if target == "" {
		return nil, fmt.Errorf("empty target: %w", domain.ErrValidation)
	}
	if ch != domain.ChannelEmail {
		if _, ok := s.testNumbers[target]; ok {
			return s.newChallenge(target, ch, ""), nil
		}
	}

	switch ch {
	case domain.ChannelEmail:
		if s.emailOTP != nil {
			return s.sendRemote(ctx, s.emailOTP, target, ch)
		}
		return s.sendLocal(ctx, target, ch)
	case domain.ChannelSMS:
		return s.sendLocal(ctx, target, ch)
	case domain.ChannelWhatsApp:
		if s.whatsApp == nil {
			return s.sendLocal(ctx, target, domain.ChannelSMS)
		}
		c, err := s.sendRemote(ctx, s.whatsApp, target, ch)
		if err != nil {
			slog.Warn("whatsapp delivery failed, falling back to sms", "target", target, "err", err)
			return s.sendLocal(ctx, target, domain.ChannelSMS)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown channel %q: %w", ch, domain.ErrValidation)
}

func (s *service) newChallenge(target string, ch domain.Channel, codeHash string) *domain.Challenge {
	now := s.clock.Now()
	return &domain.Challenge{
		ChallengeID:       id.New(),
		Target:            target,
		Channel:           ch,
		CodeHash:          codeHash,
		Status:            domain.ChallengePending,
		AttemptsRemaining: s.maxAttempts,
		IssuedAt:          now.Unix(),
		ExpiresAt:         now.Add(s.ttl).Unix(),
	}
}

// sendRemote asks a remote service to issue the code and records a hashless
// challenge so later sends still supersede it.
func (s *service) sendRemote(ctx context.Context, remote remoteVerifier, target string, ch domain.Channel) (*domain.Challenge, error) {
	if err := remote.Send(ctx, target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrChannelDelivery, ch, err)
	}
	c := s.newChallenge(target, ch, "")
	if err := s.challenges.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	return c, nil
}

func (s *service) sendLocal(ctx context.Context, target string, ch domain.Channel) (*domain.Challenge, error) {
	switch {
	case ch == domain.ChannelEmail && s.mailer == nil:
		return nil, fmt.Errorf("%w: %s: no mailer configured", domain.ErrChannelDelivery, ch)
	case ch != domain.ChannelEmail && s.sms == nil:
		return nil, fmt.Errorf("%w: %s: no sms sender configured", domain.ErrChannelDelivery, ch)
	}
	code, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	c := s.newChallenge(target, ch, otp.Hash(code))
	if err := s.challenges.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	minutes := int(s.ttl / time.Minute)
	if ch == domain.ChannelEmail {
		err = s.mailer.SendEmail(target, "Your MedConnect verification code",
			fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes))
	} else {
		err = s.sms.SendSMS(ctx, target,
			fmt.Sprintf("MedConnect code: %s (valid %d min)", code, minutes))
	}
	if err != nil {
		if uerr := s.challenges.Update(ctx, target, c.ChallengeID, map[string]interface{}{
			fieldStatus: domain.ChallengeFailed,
		}); uerr != nil {
			slog.Warn("failed to mark challenge failed", "challenge_id", c.ChallengeID, "err", uerr)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrChannelDelivery, ch, err)
	}
	return c, nil
}

func (s *service) VerifyCode(ctx context.Context, target, code string, ch domain.Channel) (*domain.VerifiedIdentity, error) {
	target = normalizeTarget(target, ch)
	code = strings.TrimSpace(code)
	if ch != domain.ChannelEmail {
		if fixed, ok := s.testNumbers[target]; ok {
			if code != fixed {
				return nil, domain.ErrInvalidCode
			}
			return s.identity(target, ch, "", ""), nil
		}
	}

	switch ch {
	case domain.ChannelEmail:
		if s.emailOTP != nil {
			return s.verifyRemote(ctx, s.emailOTP, target, code, ch)
		}
		return s.verifyLocal(ctx, target, code, ch)
	case domain.ChannelSMS:
		return s.verifyLocal(ctx, target, code, ch)
	case domain.ChannelWhatsApp:
		if s.whatsApp == nil {
			return s.verifyLocal(ctx, target, code, domain.ChannelSMS)
		}
		vi, err := s.verifyRemote(ctx, s.whatsApp, target, code, ch)
		if errors.Is(err, domain.ErrNoPendingVerification) {
			// The send may have fallen back to SMS.
			return s.verifyLocal(ctx, target, code, domain.ChannelSMS)
		}
		return vi, err
	}
	return nil, fmt.Errorf("unknown channel %q: %w", ch, domain.ErrValidation)
}

func (s *service) verifyRemote(ctx context.Context, remote remoteVerifier, target, code string, ch domain.Channel) (*domain.VerifiedIdentity, error) {
	session, err := remote.Verify(ctx, target, code)
	if err != nil {
		return nil, err
	}
	challengeID := ""
	if c, err := s.challenges.Get(ctx, target); err == nil && c.Channel == ch {
		challengeID = c.ChallengeID
		if err := s.challenges.Update(ctx, target, c.ChallengeID, map[string]interface{}{
			fieldStatus: domain.ChallengeVerified,
		}); err != nil {
			slog.Warn("failed to mark remote challenge verified", "challenge_id", c.ChallengeID, "err", err)
		}
	}
	return s.identity(target, ch, challengeID, session), nil
}

func (s *service) verifyLocal(ctx context.Context, target, code string, ch domain.Channel) (*domain.VerifiedIdentity, error) {
	c, err := s.challenges.Get(ctx, target)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("no challenge for %s: %w", target, domain.ErrInvalidOrExpiredCode)
	}
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ChallengePending || c.CodeHash == "" || c.Channel != ch {
		return nil, fmt.Errorf("challenge %s is %s: %w", c.ChallengeID, c.Status, domain.ErrInvalidOrExpiredCode)
	}
	if c.Expired(s.clock.Now()) {
		s.markStatus(ctx, c, domain.ChallengeExpired)
		return nil, domain.ErrCodeExpired
	}

	if !otp.Equal(code, c.CodeHash) {
		remaining := c.AttemptsRemaining - 1
		if remaining <= 0 {
			if err := s.challenges.Update(ctx, target, c.ChallengeID, map[string]interface{}{
				fieldStatus:            domain.ChallengeFailed,
				fieldAttemptsRemaining: 0,
			}); err != nil && !errors.Is(err, domain.ErrConflict) {
				return nil, err
			}
			return nil, domain.ErrAttemptsExhausted
		}
		if err := s.challenges.Update(ctx, target, c.ChallengeID, map[string]interface{}{
			fieldAttemptsRemaining: remaining,
		}); err != nil && !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, domain.ErrInvalidCode
	}

	if err := s.challenges.Update(ctx, target, c.ChallengeID, map[string]interface{}{
		fieldStatus: domain.ChallengeVerified,
	}); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("challenge superseded: %w", domain.ErrInvalidOrExpiredCode)
		}
		return nil, err
	}
	return s.identity(target, ch, c.ChallengeID, ""), nil
}

func (s *service) markStatus(ctx context.Context, c *domain.Challenge, status domain.ChallengeStatus) {
	if err := s.challenges.Update(ctx, c.Target, c.ChallengeID, map[string]interface{}{fieldStatus: status}); err != nil {
		slog.Warn("failed to update challenge status", "challenge_id", c.ChallengeID, "status", status, "err", err)
	}
}

func (s *service) identity(target string, ch domain.Channel, challengeID, session string) *domain.VerifiedIdentity {
	return &domain.VerifiedIdentity{
		Target:        target,
		Channel:       ch,
		ChallengeID:   challengeID,
		VerifiedAt:    s.clock.Now(),
		RemoteSession: session,
	}
}
