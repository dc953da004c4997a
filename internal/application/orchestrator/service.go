// Package orchestrator drives one authentication attempt through its states,
// from method choice to an authenticated session.
//
// Every operation that calls a backend runs in three steps: claim the flow
// (in-flight guard plus generation snapshot), call out without holding the
// flow, then apply the result only if the generation is unchanged.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/medconnect-auth/internal/application/cooldown"
	"github.com/medconnect-auth/internal/application/domains"
	"github.com/medconnect-auth/internal/domain"
	"github.com/medconnect-auth/internal/pkg/id"
	"github.com/medconnect-auth/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// An in-flight marker older than this belongs to a request that died.
const inFlightStale = 30 * time.Second

const minPasswordLen = 8

// Outcome is the flow after an operation plus the session, when one was opened.
type Outcome struct {
	Flow *domain.Flow
	Auth *domain.AuthResult
}

type Service interface {
	Start(ctx context.Context, entry domain.View) (*domain.Flow, error)
	Get(ctx context.Context, flowID string) (*domain.Flow, error)
	SelectMethod(ctx context.Context, flowID string, method domain.Method) (*domain.Flow, error)
	SelectView(ctx context.Context, flowID string, view domain.View) (*domain.Flow, error)
	ChooseAccountType(ctx context.Context, flowID string, sel domain.AccountTypeSelection) (*Outcome, error)
	SetPhone(ctx context.Context, flowID, phone string) (*domain.Flow, error)
	SetChannelOverride(ctx context.Context, flowID string, override domain.Channel) (*domain.Flow, error)
	SubmitCredentials(ctx context.Context, flowID string, cred domain.Credential) (*Outcome, error)
	Resend(ctx context.Context, flowID string) (*domain.Flow, error)
	Verify(ctx context.Context, flowID, code, newPassword string) (*Outcome, error)
	Back(ctx context.Context, flowID string) (*domain.Flow, error)
}

type gateway interface {
	SendCode(ctx context.Context, target string, channel domain.Channel) (*domain.Challenge, error)
	VerifyCode(ctx context.Context, target, code string, channel domain.Channel) (*domain.VerifiedIdentity, error)
}

type identityBackend interface {
	AccountExists(ctx context.Context, email string) (bool, error)
	PasswordSignIn(ctx context.Context, email, password string) (*domain.AuthResult, error)
	CreateAccount(ctx context.Context, req domain.NewAccount) (*domain.Account, error)
	SignInVerified(ctx context.Context, identity domain.VerifiedIdentity, createIfMissing *domain.NewAccount) (*domain.AuthResult, error)
	ResetPassword(ctx context.Context, email, newPassword string) error
}

type domainValidator interface {
	IsAllowed(email string) bool
	Check(ctx context.Context, email string) domains.Verdict
}

type channelSelector interface {
	Select(phoneE164 string, override domain.Channel) domain.Channel
}

type service struct {
	flows           FlowStore
	gateway         gateway
	identity        identityBackend
	domains         domainValidator
	selector        channelSelector
	clock           clockwork.Clock
	cooldownSeconds int
	switchDelay     time.Duration
}

type ServiceDeps struct {
	FlowStore       FlowStore
	Gateway         gateway
	Identity        identityBackend
	Domains         domainValidator
	Selector        channelSelector
	Clock           clockwork.Clock
	CooldownSeconds int
	SwitchDelay     time.Duration
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		flows:           deps.FlowStore,
		gateway:         deps.Gateway,
		identity:        deps.Identity,
		domains:         deps.Domains,
		selector:        deps.Selector,
		clock:           deps.Clock,
		cooldownSeconds: deps.CooldownSeconds,
		switchDelay:     deps.SwitchDelay,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s
}

// ticket is what a claimed flow hands to the backend call.
type ticket struct {
	generation int
	method     domain.Method
	view       domain.View
	email      string
	phone      string
	channel    domain.Channel // selected for the next send
	effective  domain.Channel // used by the outstanding challenge
	selection  domain.AccountTypeSelection
	target     string
	verified   bool

	// bcrypt hash of the sign-up password, empty for OTP-only sign-up
	passwordHash string
}

func (s *service) Start(ctx context.Context, entry domain.View) (*domain.Flow, error) {
	now := s.clock.Now()
	view := domain.ViewSignIn
	if entry == domain.ViewSignUp {
		view = domain.ViewSignUp
	}
	f := &domain.Flow{
		FlowID:    id.New(),
		State:     domain.StateChoosingMethod,
		Method:    domain.MethodEmail,
		View:      view,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.flows.Create(ctx, f); err != nil {
		return nil, err
	}
	return s.present(f), nil
}

func (s *service) Get(ctx context.Context, flowID string) (*domain.Flow, error) {
	now := s.clock.Now()
	f, err := s.flows.Get(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if switchDue(f, now) {
		return s.mutate(ctx, flowID, func(*domain.Flow, time.Time) error { return nil })
	}
	return s.present(f), nil
}

func (s *service) SelectMethod(ctx context.Context, flowID string, method domain.Method) (*domain.Flow, error) {
	if method != domain.MethodEmail && method != domain.MethodPhone {
		return nil, fmt.Errorf("unknown method %q: %w", method, domain.ErrValidation)
	}
	return s.mutate(ctx, flowID, func(f *domain.Flow, _ time.Time) error {
		if f.State == domain.StateAuthenticated {
			return fmt.Errorf("flow is authenticated: %w", domain.ErrInvalidTransition)
		}
		discardChallenge(f)
		f.Method = method
		f.Message = nil
		f.PendingSwitch = nil
		if method == domain.MethodEmail {
			f.State = domain.StateChoosingView
			return nil
		}
		f.State = domain.StateAwaitingCredentialInput
		s.reselectChannel(f)
		return nil
	})
}

func (s *service) SelectView(ctx context.Context, flowID string, view domain.View) (*domain.Flow, error) {
	if !view.Valid() {
		return nil, fmt.Errorf("unknown view %q: %w", view, domain.ErrValidation)
	}
	return s.mutate(ctx, flowID, func(f *domain.Flow, _ time.Time) error {
		if f.Method != domain.MethodEmail || f.State == domain.StateAuthenticated || f.State == domain.StateChoosingMethod {
			return fmt.Errorf("cannot choose a view in %s: %w", f.State, domain.ErrInvalidTransition)
		}
		discardChallenge(f)
		f.PendingSwitch = nil
		f.Message = nil
		enterView(f, view)
		return nil
	})
}

func enterView(f *domain.Flow, view domain.View) {
	f.View = view
	if view == domain.ViewSignUp {
		f.State = domain.StateAccountTypeChoice
		return
	}
	f.State = domain.StateAwaitingCredentialInput
}

func (s *service) ChooseAccountType(ctx context.Context, flowID string, sel domain.AccountTypeSelection) (*Outcome, error) {
	if !sel.Type.Valid() {
		return nil, fmt.Errorf("unknown account type %q: %w", sel.Type, domain.ErrValidation)
	}
	sel.Organization.Name = strings.TrimSpace(sel.Organization.Name)
	sel.Organization.Type = strings.TrimSpace(sel.Organization.Type)
	sel.Organization.Country = strings.TrimSpace(sel.Organization.Country)

	var t ticket
	finish := false
	f, err := s.mutate(ctx, flowID, func(f *domain.Flow, now time.Time) error {
		if f.View != domain.ViewSignUp {
			return fmt.Errorf("account type is only chosen on sign up: %w", domain.ErrInvalidTransition)
		}
		switch f.State {
		case domain.StateAccountTypeChoice:
			f.Selection, f.SelectionMade = sel, true
			f.State = domain.StateAwaitingCredentialInput
			f.Message = nil
			return nil
		case domain.StateAwaitingCredentialInput:
			f.Selection, f.SelectionMade = sel, true
			return nil
		case domain.StateChallengeSent:
		default:
			return fmt.Errorf("cannot change account type in %s: %w", f.State, domain.ErrInvalidTransition)
		}
		f.Selection, f.SelectionMade = sel, true
		if !f.CodeVerified {
			return nil
		}
		if !sel.Complete() {
			f.Message = orgDetailsMessage()
			return nil
		}
		if err := claim(f, now, "complete_sign_up"); err != nil {
			return err
		}
		f.State = domain.StateVerifying
		t = snapshot(f)
		finish = true
		return nil
	})
	if err != nil || !finish {
		return &Outcome{Flow: f}, err
	}

	vi := domain.VerifiedIdentity{Target: t.target, Channel: t.effective, VerifiedAt: s.clock.Now()}
	auth, err := s.completeSignUp(ctx, t, vi)
	return s.applyVerification(ctx, flowID, t, auth, err)
}

func (s *service) SetPhone(ctx context.Context, flowID, phone string) (*domain.Flow, error) {
	return s.mutate(ctx, flowID, func(f *domain.Flow, _ time.Time) error {
		if f.Method != domain.MethodPhone || f.State != domain.StateAwaitingCredentialInput {
			return fmt.Errorf("cannot set phone in %s: %w", f.State, domain.ErrInvalidTransition)
		}
		f.Phone = strings.TrimSpace(phone)
		s.reselectChannel(f)
		return nil
	})
}

func (s *service) SetChannelOverride(ctx context.Context, flowID string, override domain.Channel) (*domain.Flow, error) {
	if override != "" && override != domain.ChannelSMS && override != domain.ChannelWhatsApp {
		return nil, fmt.Errorf("override must be sms or whatsapp: %w", domain.ErrValidation)
	}
	return s.mutate(ctx, flowID, func(f *domain.Flow, _ time.Time) error {
		if f.Method != domain.MethodPhone || f.State != domain.StateAwaitingCredentialInput {
			return fmt.Errorf("cannot change channel in %s: %w", f.State, domain.ErrInvalidTransition)
		}
		f.ChannelOverride = override
		s.reselectChannel(f)
		return nil
	})
}

func (s *service) reselectChannel(f *domain.Flow) {
	if f.Phone == "" && f.ChannelOverride == "" {
		f.Channel = ""
		return
	}
	f.Channel = s.selector.Select(f.Phone, f.ChannelOverride)
}

func (s *service) SubmitCredentials(ctx context.Context, flowID string, cred domain.Credential) (*Outcome, error) {
	var (
		t        ticket
		password = cred.Password
		proceed  bool
	)
	f, err := s.mutate(ctx, flowID, func(f *domain.Flow, now time.Time) error {
		if f.State != domain.StateAwaitingCredentialInput {
			return fmt.Errorf("cannot submit credentials in %s: %w", f.State, domain.ErrInvalidTransition)
		}
		if f.InFlight != "" && now.Sub(f.InFlightSince) < inFlightStale {
			return domain.ErrRequestInFlight
		}
		f.PendingSwitch = nil
		if f.Method == domain.MethodEmail {
			f.Email = strings.ToLower(strings.TrimSpace(cred.Email))
			switch {
			case !validate.Email(f.Email):
				f.Message = validationMessage("email", "Enter a valid email address.")
				return nil
			case !s.domains.IsAllowed(f.Email):
				f.Message = messageFor(domain.ErrUnsupportedDomain)
				f.Message.Field = "email"
				return nil
			case f.View == domain.ViewSignUp && !f.SelectionMade:
				f.Message = validationMessage("account_type", "Choose doctor or organization first.")
				return nil
			case f.View == domain.ViewSignUp && password != "" && len(password) < minPasswordLen:
				f.Message = validationMessage("password", fmt.Sprintf("Choose a password of at least %d characters.", minPasswordLen))
				return nil
			}
		} else {
			if cred.Phone != "" {
				f.Phone = strings.TrimSpace(cred.Phone)
			}
			if !validate.Phone(f.Phone) {
				f.Message = validationMessage("phone", "Enter the phone number in international format, e.g. +971501234567.")
				return nil
			}
			s.reselectChannel(f)
		}
		if err := claim(f, now, "submit_credentials"); err != nil {
			return err
		}
		f.PasswordHash = ""
		if f.Method == domain.MethodEmail && f.View == domain.ViewSignUp && password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			f.PasswordHash = string(hash)
		}
		f.Message = nil
		t = snapshot(f)
		proceed = true
		return nil
	})
	if err != nil || !proceed {
		return &Outcome{Flow: f}, err
	}

	if t.method == domain.MethodEmail && t.view == domain.ViewSignIn && password != "" {
		auth, err := s.identity.PasswordSignIn(ctx, t.email, password)
		return s.applyVerification(ctx, flowID, t, auth, err)
	}

	c, sendErr := s.sendFor(ctx, t)
	f, err = s.release(ctx, flowID, t, func(f *domain.Flow, now time.Time) {
		if sendErr != nil {
			s.fail(f, sendErr, now)
			return
		}
		s.enterChallenge(f, c, t.channel, now)
	})
	return &Outcome{Flow: f}, err
}

// sendFor runs the pre-send checks for the flow's view and sends the code.
func (s *service) sendFor(ctx context.Context, t ticket) (*domain.Challenge, error) {
	if t.method == domain.MethodPhone {
		return s.gateway.SendCode(ctx, t.phone, t.channel)
	}
	if v := s.domains.Check(ctx, t.email); !v.Allowed {
		return nil, fmt.Errorf("%s: %w", v.Domain, domain.ErrUnsupportedDomain)
	}
	exists, err := s.identity.AccountExists(ctx, t.email)
	if err != nil {
		return nil, err
	}
	switch {
	case t.view == domain.ViewSignUp && exists:
		return nil, domain.ErrAccountAlreadyExists
	case t.view != domain.ViewSignUp && !exists:
		return nil, domain.ErrAccountNotFound
	}
	return s.gateway.SendCode(ctx, t.email, domain.ChannelEmail)
}

func (s *service) Resend(ctx context.Context, flowID string) (*domain.Flow, error) {
	var (
		t       ticket
		proceed bool
	)
	f, err := s.mutate(ctx, flowID, func(f *domain.Flow, now time.Time) error {
		if f.State != domain.StateChallengeSent && f.State != domain.StateFailed {
			return fmt.Errorf("nothing to resend in %s: %w", f.State, domain.ErrInvalidTransition)
		}
		if now.Before(f.ResendAvailable) {
			return domain.ErrCooldownActive
		}
		if err := claim(f, now, "resend"); err != nil {
			return err
		}
		if f.Method == domain.MethodPhone {
			s.reselectChannel(f)
		}
		t = snapshot(f)
		proceed = true
		return nil
	})
	if err != nil || !proceed {
		return f, err
	}

	target := t.email
	if t.method == domain.MethodPhone {
		target = t.phone
	}
	c, sendErr := s.gateway.SendCode(ctx, target, t.channel)
	return s.release(ctx, flowID, t, func(f *domain.Flow, _ time.Time) {
		if sendErr != nil {
			f.Message = messageFor(sendErr)
			return
		}
		s.enterChallenge(f, c, t.channel, s.clock.Now())
	})
}

func (s *service) Verify(ctx context.Context, flowID, code, newPassword string) (*Outcome, error) {
	code = strings.TrimSpace(code)
	var (
		t       ticket
		proceed bool
	)
	f, err := s.mutate(ctx, flowID, func(f *domain.Flow, now time.Time) error {
		stale := f.State == domain.StateVerifying && now.Sub(f.InFlightSince) >= inFlightStale
		if f.State != domain.StateChallengeSent && !stale {
			if f.State == domain.StateVerifying {
				return domain.ErrRequestInFlight
			}
			return fmt.Errorf("cannot verify in %s: %w", f.State, domain.ErrInvalidTransition)
		}
		if !validate.Code(code) {
			f.State = domain.StateChallengeSent
			f.Message = validationMessage("code", "Enter the 6-digit code.")
			return nil
		}
		if f.View == domain.ViewForgotPassword && f.Method == domain.MethodEmail && len(newPassword) < minPasswordLen {
			f.State = domain.StateChallengeSent
			f.Message = validationMessage("new_password", fmt.Sprintf("Choose a password of at least %d characters.", minPasswordLen))
			return nil
		}
		if err := claim(f, now, "verify"); err != nil {
			return err
		}
		f.State = domain.StateVerifying
		f.Message = nil
		t = snapshot(f)
		proceed = true
		return nil
	})
	if err != nil || !proceed {
		return &Outcome{Flow: f}, err
	}

	var vi *domain.VerifiedIdentity
	if t.method == domain.MethodPhone {
		// a first phone login creates the account with this selection
		ctx = domain.WithUserData(ctx, t.selection)
	}
	if t.verified {
		vi = &domain.VerifiedIdentity{Target: t.target, Channel: t.effective, VerifiedAt: s.clock.Now()}
	} else if vi, err = s.gateway.VerifyCode(ctx, t.target, code, t.effective); err != nil {
		return s.applyVerification(ctx, flowID, t, nil, err)
	}

	var auth *domain.AuthResult
	switch {
	case t.method == domain.MethodPhone:
		auth, err = s.identity.SignInVerified(ctx, *vi, &domain.NewAccount{Selection: t.selection})
	case t.view == domain.ViewSignUp:
		if !t.selection.Complete() {
			return s.holdForOrgDetails(ctx, flowID, t)
		}
		auth, err = s.completeSignUp(ctx, t, *vi)
	case t.view == domain.ViewForgotPassword:
		if err = s.identity.ResetPassword(ctx, t.email, newPassword); err == nil {
			auth, err = s.identity.SignInVerified(ctx, *vi, nil)
		}
	default:
		auth, err = s.identity.SignInVerified(ctx, *vi, nil)
	}
	return s.applyVerification(ctx, flowID, t, auth, err)
}

func (s *service) completeSignUp(ctx context.Context, t ticket, vi domain.VerifiedIdentity) (*domain.AuthResult, error) {
	if _, err := s.identity.CreateAccount(ctx, domain.NewAccount{
		Email:          t.email,
		PasswordHash:   t.passwordHash,
		EmailConfirmed: true,
		Selection:      t.selection,
	}); err != nil {
		return nil, err
	}
	return s.identity.SignInVerified(ctx, vi, nil)
}

// holdForOrgDetails records a verified code while organization fields are missing.
func (s *service) holdForOrgDetails(ctx context.Context, flowID string, t ticket) (*Outcome, error) {
	f, err := s.release(ctx, flowID, t, func(f *domain.Flow, _ time.Time) {
		f.State = domain.StateChallengeSent
		f.CodeVerified = true
		f.Message = orgDetailsMessage()
	})
	return &Outcome{Flow: f}, err
}

// applyVerification stores the result of a sign-in attempt.
func (s *service) applyVerification(ctx context.Context, flowID string, t ticket, auth *domain.AuthResult, callErr error) (*Outcome, error) {
	var applied bool
	f, err := s.release(ctx, flowID, t, func(f *domain.Flow, now time.Time) {
		if callErr != nil {
			if f.State == domain.StateVerifying {
				f.State = domain.StateChallengeSent
				if errors.Is(callErr, domain.ErrAttemptsExhausted) {
					f.State = domain.StateFailed
				}
			}
			s.fail(f, callErr, now)
			return
		}
		applied = true
		f.PasswordHash = ""
		f.State = domain.StateAuthenticated
		f.AccountID = auth.Session.AccountID
		f.PendingSwitch = nil
		f.Message = &domain.FlowMessage{Kind: domain.MsgAuthenticated, Text: "You are signed in."}
		if t.view == domain.ViewForgotPassword && t.method == domain.MethodEmail {
			f.Message = &domain.FlowMessage{Kind: domain.MsgPasswordResetCompleted, Text: "Your password was updated and you are signed in."}
		}
	})
	out := &Outcome{Flow: f}
	if applied {
		out.Auth = auth
	}
	return out, err
}

// fail turns err into the flow message and schedules the automatic view
// switch for the two errors that have an obvious other view.
func (s *service) fail(f *domain.Flow, err error, now time.Time) {
	f.Message = messageFor(err)
	if f.Method != domain.MethodEmail {
		return
	}
	switch {
	case errors.Is(err, domain.ErrAccountNotFound) && f.View == domain.ViewSignIn:
		f.PendingSwitch = &domain.ViewSwitch{View: domain.ViewSignUp, At: now.Add(s.switchDelay)}
	case errors.Is(err, domain.ErrAccountAlreadyExists) && f.View == domain.ViewSignUp:
		f.PendingSwitch = &domain.ViewSwitch{View: domain.ViewSignIn, At: now.Add(s.switchDelay)}
	}
}

func (s *service) enterChallenge(f *domain.Flow, c *domain.Challenge, requested domain.Channel, now time.Time) {
	timer := cooldown.New(s.clock)
	timer.Start(s.cooldownSeconds)

	f.State = domain.StateChallengeSent
	f.ChallengeID = c.ChallengeID
	f.ChallengeTarget = c.Target
	f.ChallengeSentAt = now
	f.EffectiveChannel = c.Channel
	f.CodeVerified = false
	f.ResendAvailable = timer.Deadline()
	f.Message = codeSentMessage(c.Target, requested, c.Channel)
}

func (s *service) Back(ctx context.Context, flowID string) (*domain.Flow, error) {
	return s.mutate(ctx, flowID, func(f *domain.Flow, _ time.Time) error {
		switch f.State {
		case domain.StateChallengeSent, domain.StateVerifying, domain.StateFailed, domain.StateAwaitingCredentialInput:
		default:
			return fmt.Errorf("cannot go back from %s: %w", f.State, domain.ErrInvalidTransition)
		}
		discardChallenge(f)
		f.State = domain.StateAwaitingCredentialInput
		f.Message = nil
		return nil
	})
}

// mutate applies fn to the stored flow after any due automatic view switch.
func (s *service) mutate(ctx context.Context, flowID string, fn func(f *domain.Flow, now time.Time) error) (*domain.Flow, error) {
	now := s.clock.Now()
	f, err := s.flows.Update(ctx, flowID, func(f *domain.Flow) error {
		applyDueSwitch(f, now)
		if err := fn(f, now); err != nil {
			return err
		}
		f.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.present(f), nil
}

// release applies a backend result if the flow is still on the ticket's
// generation. Results for abandoned attempts are logged and dropped.
func (s *service) release(ctx context.Context, flowID string, t ticket, apply func(f *domain.Flow, now time.Time)) (*domain.Flow, error) {
	return s.mutate(ctx, flowID, func(f *domain.Flow, now time.Time) error {
		if f.Generation != t.generation {
			slog.Info("dropping late result", "flow_id", flowID, "generation", t.generation, "current", f.Generation)
			return nil
		}
		f.InFlight = ""
		f.InFlightSince = time.Time{}
		apply(f, now)
		return nil
	})
}

// present prepares a stored flow for callers. The password hash stays server side.
func (s *service) present(f *domain.Flow) *domain.Flow {
	f.PasswordHash = ""
	f.ResendIn = cooldown.Restore(s.clock, f.ResendAvailable).Remaining()
	return f
}

func claim(f *domain.Flow, now time.Time, action string) error {
	if f.InFlight != "" && now.Sub(f.InFlightSince) < inFlightStale {
		return domain.ErrRequestInFlight
	}
	f.InFlight = action
	f.InFlightSince = now
	return nil
}

func snapshot(f *domain.Flow) ticket {
	t := ticket{
		generation: f.Generation,
		method:     f.Method,
		view:       f.View,
		email:      f.Email,
		phone:      f.Phone,
		channel:    f.Channel,
		effective:  f.EffectiveChannel,
		selection:  f.Selection,
		target:     f.ChallengeTarget,
		verified:   f.CodeVerified,

		passwordHash: f.PasswordHash,
	}
	if t.method == domain.MethodEmail {
		t.channel = domain.ChannelEmail
	}
	return t
}

// discardChallenge forgets the outstanding challenge and invalidates any
// backend call still running for this flow.
func discardChallenge(f *domain.Flow) {
	f.ChallengeID = ""
	f.ChallengeTarget = ""
	f.ChallengeSentAt = time.Time{}
	f.EffectiveChannel = ""
	f.CodeVerified = false
	f.PasswordHash = ""
	f.ResendAvailable = time.Time{}
	f.InFlight = ""
	f.InFlightSince = time.Time{}
	f.Generation++
}

func switchDue(f *domain.Flow, now time.Time) bool {
	return f.PendingSwitch != nil && !now.Before(f.PendingSwitch.At)
}

func applyDueSwitch(f *domain.Flow, now time.Time) {
	if !switchDue(f, now) {
		return
	}
	sw := f.PendingSwitch
	f.PendingSwitch = nil
	if f.State != domain.StateAwaitingCredentialInput || f.Method != domain.MethodEmail {
		return
	}
	discardChallenge(f)
	enterView(f, sw.View)
	f.Message = nil
}
