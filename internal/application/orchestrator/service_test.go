package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/medconnect-auth/internal/application/channel"
	"github.com/medconnect-auth/internal/application/domains"
	"github.com/medconnect-auth/internal/application/verification"
	"github.com/medconnect-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockGateway struct{ mock.Mock }

func (m *mockGateway) SendCode(ctx context.Context, target string, ch domain.Channel) (*domain.Challenge, error) {
	args := m.Called(ctx, target, ch)
	if c, _ := args.Get(0).(*domain.Challenge); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockGateway) VerifyCode(ctx context.Context, target, code string, ch domain.Channel) (*domain.VerifiedIdentity, error) {
	args := m.Called(ctx, target, code, ch)
	if vi, _ := args.Get(0).(*domain.VerifiedIdentity); vi != nil {
		return vi, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockIdentity struct{ mock.Mock }

func (m *mockIdentity) AccountExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}
func (m *mockIdentity) PasswordSignIn(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	args := m.Called(ctx, email, password)
	if r, _ := args.Get(0).(*domain.AuthResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockIdentity) CreateAccount(ctx context.Context, req domain.NewAccount) (*domain.Account, error) {
	args := m.Called(ctx, req)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockIdentity) SignInVerified(ctx context.Context, identity domain.VerifiedIdentity, createIfMissing *domain.NewAccount) (*domain.AuthResult, error) {
	args := m.Called(ctx, identity, createIfMissing)
	if r, _ := args.Get(0).(*domain.AuthResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockIdentity) ResetPassword(ctx context.Context, email, newPassword string) error {
	return m.Called(ctx, email, newPassword).Error(0)
}

// --- helpers ---

type harness struct {
	svc      Service
	gateway  *mockGateway
	identity *mockIdentity
	flows    *MemoryStore
	clock    *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{gateway: &mockGateway{}, identity: &mockIdentity{}, clock: clockwork.NewFakeClock()}
	h.svc = h.build(h.gateway)
	return h
}

func (h *harness) build(gw gateway) Service {
	h.flows = NewMemoryStore(30*time.Minute, h.clock)
	return NewService(ServiceDeps{
		FlowStore:       h.flows,
		Gateway:         gw,
		Identity:        h.identity,
		Domains:         domains.NewValidator([]string{"gmail.com", "outlook.com"}, []string{"medconnect.org"}, nil),
		Selector:        channel.NewSelector([]string{"86"}, []string{"971", "966"}),
		Clock:           h.clock,
		CooldownSeconds: 60,
		SwitchDelay:     3 * time.Second,
	})
}

func (h *harness) emailFlow(t *testing.T, view domain.View) string {
	t.Helper()
	ctx := context.Background()
	f, err := h.svc.Start(ctx, view)
	require.NoError(t, err)
	_, err = h.svc.SelectMethod(ctx, f.FlowID, domain.MethodEmail)
	require.NoError(t, err)
	_, err = h.svc.SelectView(ctx, f.FlowID, view)
	require.NoError(t, err)
	return f.FlowID
}

func (h *harness) phoneFlow(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	f, err := h.svc.Start(ctx, domain.ViewSignIn)
	require.NoError(t, err)
	_, err = h.svc.SelectMethod(ctx, f.FlowID, domain.MethodPhone)
	require.NoError(t, err)
	return f.FlowID
}

func challengeFor(id, target string, ch domain.Channel) *domain.Challenge {
	return &domain.Challenge{ChallengeID: id, Target: target, Channel: ch, Status: domain.ChallengePending}
}

func authFor(accountID string) *domain.AuthResult {
	return &domain.AuthResult{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Session:      &domain.Session{SessionID: "sess-1", AccountID: accountID, Enable: true},
	}
}

// --- end-to-end scenarios ---

func TestScenario_DoctorSignUpWithEmailCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	vi := &domain.VerifiedIdentity{Target: "doctor@gmail.com", Channel: domain.ChannelEmail}
	auth := authFor("acc-1")

	h.identity.On("AccountExists", mock.Anything, "doctor@gmail.com").Return(false, nil).Once()
	h.gateway.On("SendCode", mock.Anything, "doctor@gmail.com", domain.ChannelEmail).
		Return(challengeFor("ch-1", "doctor@gmail.com", domain.ChannelEmail), nil).Once()
	h.gateway.On("VerifyCode", mock.Anything, "doctor@gmail.com", "482910", domain.ChannelEmail).Return(vi, nil).Once()
	h.identity.On("CreateAccount", mock.Anything, mock.MatchedBy(func(req domain.NewAccount) bool {
		return req.Email == "doctor@gmail.com" && req.EmailConfirmed && req.Selection.Type == domain.AccountTypeDoctor
	})).Return(&domain.Account{AccountID: "acc-1"}, nil).Once()
	h.identity.On("SignInVerified", mock.Anything, *vi, (*domain.NewAccount)(nil)).Return(auth, nil).Once()

	id := h.emailFlow(t, domain.ViewSignUp)
	f, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAccountTypeChoice, f.State)

	out, err := h.svc.ChooseAccountType(ctx, id, domain.AccountTypeSelection{Type: domain.AccountTypeDoctor})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingCredentialInput, out.Flow.State)

	out, err = h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "Doctor@Gmail.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateChallengeSent, out.Flow.State)
	assert.Equal(t, domain.ChannelEmail, out.Flow.EffectiveChannel)
	assert.Equal(t, 60, out.Flow.ResendIn)
	require.NotNil(t, out.Flow.Message)
	assert.Equal(t, domain.MsgCodeSent, out.Flow.Message.Kind)

	h.clock.Advance(30 * time.Second)
	out, err = h.svc.Verify(ctx, id, "482910", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthenticated, out.Flow.State)
	assert.Equal(t, "acc-1", out.Flow.AccountID)
	assert.Same(t, auth, out.Auth)
	assert.Empty(t, out.Flow.InFlight)

	h.gateway.AssertExpectations(t)
	h.identity.AssertExpectations(t)
}

func TestScenario_UnsupportedDomainNeverReachesNetwork(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.emailFlow(t, domain.ViewSignUp)
	_, err := h.svc.ChooseAccountType(ctx, id, domain.AccountTypeSelection{Type: domain.AccountTypeDoctor})
	require.NoError(t, err)

	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "someone@unsupported.example"})
	require.NoError(t, err)

	assert.Equal(t, domain.StateAwaitingCredentialInput, out.Flow.State)
	require.NotNil(t, out.Flow.Message)
	assert.Equal(t, domain.MsgUnsupportedDomain, out.Flow.Message.Kind)
	assert.Equal(t, domain.SuggestRetry, out.Flow.Message.Suggestion)
	assert.Equal(t, "someone@unsupported.example", out.Flow.Email)
	assert.Empty(t, h.gateway.Calls)
	assert.Empty(t, h.identity.Calls)
}

func TestScenario_TestPhoneNumberSkipsDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// No SMS sender, WhatsApp client or challenge store: any real delivery would fail.
	gw := verification.NewService(verification.ServiceDeps{
		TestNumbers: map[string]string{"+8613138607996": "123456"},
		Clock:       h.clock,
	})
	h.svc = h.build(gw)

	_, err := gw.VerifyCode(ctx, "+8613138607996", "000000", domain.ChannelSMS)
	require.ErrorIs(t, err, domain.ErrInvalidCode)

	id := h.phoneFlow(t)
	f, err := h.svc.SetPhone(ctx, id, "+8613138607996")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelSMS, f.Channel)

	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateChallengeSent, out.Flow.State)
	assert.Equal(t, domain.ChannelSMS, out.Flow.EffectiveChannel)

	out, err = h.svc.Verify(ctx, id, "000000", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateChallengeSent, out.Flow.State)
	require.NotNil(t, out.Flow.Message)
	assert.Equal(t, domain.MsgInvalidOrExpiredCode, out.Flow.Message.Kind)
	assert.Nil(t, out.Auth)

	h.identity.On("SignInVerified", mock.Anything, mock.MatchedBy(func(vi domain.VerifiedIdentity) bool {
		return vi.Target == "+8613138607996" && vi.Channel == domain.ChannelSMS
	}), mock.AnythingOfType("*domain.NewAccount")).Return(authFor("acc-phone"), nil).Once()

	out, err = h.svc.Verify(ctx, id, "123456", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthenticated, out.Flow.State)
	require.NotNil(t, out.Auth)
	h.identity.AssertExpectations(t)
}

func TestScenario_OrganizationSignUpWaitsForAllFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	vi := &domain.VerifiedIdentity{Target: "admin@gmail.com", Channel: domain.ChannelEmail}

	h.identity.On("AccountExists", mock.Anything, "admin@gmail.com").Return(false, nil).Once()
	h.gateway.On("SendCode", mock.Anything, "admin@gmail.com", domain.ChannelEmail).
		Return(challengeFor("ch-1", "admin@gmail.com", domain.ChannelEmail), nil).Once()
	h.gateway.On("VerifyCode", mock.Anything, "admin@gmail.com", "111222", domain.ChannelEmail).Return(vi, nil).Once()

	id := h.emailFlow(t, domain.ViewSignUp)
	partial := domain.AccountTypeSelection{
		Type:         domain.AccountTypeOrganization,
		Organization: domain.Organization{Name: "Al Noor Clinic", Type: "clinic"},
	}
	_, err := h.svc.ChooseAccountType(ctx, id, partial)
	require.NoError(t, err)
	_, err = h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "admin@gmail.com"})
	require.NoError(t, err)

	out, err := h.svc.Verify(ctx, id, "111222", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateChallengeSent, out.Flow.State)
	assert.True(t, out.Flow.CodeVerified)
	require.NotNil(t, out.Flow.Message)
	assert.Equal(t, domain.MsgOrgDetailsRequired, out.Flow.Message.Kind)
	assert.Nil(t, out.Auth)
	h.identity.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)

	// Whitespace does not count as a value.
	partial.Organization.Country = "   "
	out, err = h.svc.ChooseAccountType(ctx, id, partial)
	require.NoError(t, err)
	assert.Equal(t, domain.StateChallengeSent, out.Flow.State)
	assert.Equal(t, domain.MsgOrgDetailsRequired, out.Flow.Message.Kind)

	complete := partial
	complete.Organization.Country = "AE"
	h.identity.On("CreateAccount", mock.Anything, mock.MatchedBy(func(req domain.NewAccount) bool {
		return req.Selection.Complete() && req.Selection.Organization.Country == "AE"
	})).Return(&domain.Account{AccountID: "acc-org"}, nil).Once()
	h.identity.On("SignInVerified", mock.Anything, mock.Anything, (*domain.NewAccount)(nil)).Return(authFor("acc-org"), nil).Once()

	out, err = h.svc.ChooseAccountType(ctx, id, complete)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthenticated, out.Flow.State)
	require.NotNil(t, out.Auth)
	h.gateway.AssertExpectations(t)
	h.identity.AssertExpectations(t)
}

// --- transitions and messages ---

func TestStart_EntryView(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	f, err := h.svc.Start(ctx, domain.ViewSignUp)
	require.NoError(t, err)
	assert.Equal(t, domain.StateChoosingMethod, f.State)
	assert.Equal(t, domain.MethodEmail, f.Method)
	assert.Equal(t, domain.ViewSignUp, f.View)

	f, err = h.svc.Start(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewSignIn, f.View)
}

func TestGet_UnknownFlow(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSelectView_RequiresEmailMethod(t *testing.T) {
	h := newHarness(t)
	id := h.phoneFlow(t)
	_, err := h.svc.SelectView(context.Background(), id, domain.ViewSignUp)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSubmitCredentials_InvalidEmailKeepsInput(t *testing.T) {
	h := newHarness(t)
	id := h.emailFlow(t, domain.ViewSignIn)

	out, err := h.svc.SubmitCredentials(context.Background(), id, domain.Credential{Email: "not-an-email", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingCredentialInput, out.Flow.State)
	assert.Equal(t, "not-an-email", out.Flow.Email)
	require.NotNil(t, out.Flow.Message)
	assert.Equal(t, domain.MsgValidation, out.Flow.Message.Kind)
	assert.Equal(t, "email", out.Flow.Message.Field)
	assert.Empty(t, h.identity.Calls)
}

func TestSubmitCredentials_InvalidPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
	}{
		{"national format", "0501234567"},
		{"missing plus", "8613138607996"},
		{"letters", "+97150abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			id := h.phoneFlow(t)

			out, err := h.svc.SubmitCredentials(context.Background(), id, domain.Credential{Phone: tt.phone})
			require.NoError(t, err)
			assert.Equal(t, domain.StateAwaitingCredentialInput, out.Flow.State)
			assert.Equal(t, tt.phone, out.Flow.Phone)
			require.NotNil(t, out.Flow.Message)
			assert.Equal(t, "phone", out.Flow.Message.Field)
			assert.Empty(t, out.Flow.InFlight)
			assert.Empty(t, h.gateway.Calls)
		})
	}
}

func TestScenario_SignUpWithPasswordCreatesPasswordAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const password = "S3cretPassw0rd"
	vi := &domain.VerifiedIdentity{Target: "doctor@gmail.com", Channel: domain.ChannelEmail}

	var created domain.NewAccount
	h.identity.On("AccountExists", mock.Anything, "doctor@gmail.com").Return(false, nil).Once()
	h.gateway.On("SendCode", mock.Anything, "doctor@gmail.com", domain.ChannelEmail).
		Return(challengeFor("ch-1", "doctor@gmail.com", domain.ChannelEmail), nil).Once()
	h.gateway.On("VerifyCode", mock.Anything, "doctor@gmail.com", "482910", domain.ChannelEmail).Return(vi, nil).Once()
	h.identity.On("CreateAccount", mock.Anything, mock.AnythingOfType("domain.NewAccount")).
		Run(func(args mock.Arguments) { created = args.Get(1).(domain.NewAccount) }).
		Return(&domain.Account{AccountID: "acc-1"}, nil).Once()
	h.identity.On("SignInVerified", mock.Anything, *vi, (*domain.NewAccount)(nil)).Return(authFor("acc-1"), nil).Once()

	id := h.emailFlow(t, domain.ViewSignUp)
	_, err := h.svc.ChooseAccountType(ctx, id, domain.AccountTypeSelection{Type: domain.AccountTypeDoctor})
	require.NoError(t, err)

	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "doctor@gmail.com", Password: password})
	require.NoError(t, err)
	assert.Equal(t, domain.StateChallengeSent, out.Flow.State)
	assert.Empty(t, out.Flow.PasswordHash)

	stored, err := h.flows.Get(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, stored.PasswordHash)
	assert.NotContains(t, stored.PasswordHash, password)

	out, err = h.svc.Verify(ctx, id, "482910", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthenticated, out.Flow.State)

	assert.Empty(t, created.Password)
	require.NotEmpty(t, created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte(password)))

	stored, err = h.flows.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored.PasswordHash)
	h.identity.AssertExpectations(t)
}

func TestSubmitCredentials_ShortSignUpPasswordRejectedLocally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.emailFlow(t, domain.ViewSignUp)
	_, err := h.svc.ChooseAccountType(ctx, id, domain.AccountTypeSelection{Type: domain.AccountTypeDoctor})
	require.NoError(t, err)

	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "doctor@gmail.com", Password: "short"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingCredentialInput, out.Flow.State)
	require.NotNil(t, out.Flow.Message)
	assert.Equal(t, "password", out.Flow.Message.Field)
	assert.Empty(t, h.gateway.Calls)
	assert.Empty(t, h.identity.Calls)
}

func TestBack_ForgetsSignUpPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.identity.On("AccountExists", mock.Anything, "doctor@gmail.com").Return(false, nil).Once()
	h.gateway.On("SendCode", mock.Anything, "doctor@gmail.com", domain.ChannelEmail).
		Return(challengeFor("ch-1", "doctor@gmail.com", domain.ChannelEmail), nil).Once()

	id := h.emailFlow(t, domain.ViewSignUp)
	_, err := h.svc.ChooseAccountType(ctx, id, domain.AccountTypeSelection{Type: domain.AccountTypeDoctor})
	require.NoError(t, err)
	_, err = h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "doctor@gmail.com", Password: "S3cretPassw0rd"})
	require.NoError(t, err)

	_, err = h.svc.Back(ctx, id)
	require.NoError(t, err)
	stored, err := h.flows.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored.PasswordHash)
}

func TestSubmitCredentials_PasswordSignIn(t *testing.T) {
	h := newHarness(t)
	auth := authFor("acc-9")
	h.identity.On("PasswordSignIn", mock.Anything, "nurse@outlook.com", "correct-horse").Return(auth, nil).Once()

	id := h.emailFlow(t, domain.ViewSignIn)
	out, err := h.svc.SubmitCredentials(context.Background(), id, domain.Credential{Email: "nurse@outlook.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthenticated, out.Flow.State)
	assert.Same(t, auth, out.Auth)
	assert.Equal(t, domain.MsgAuthenticated, out.Flow.Message.Kind)
	h.identity.AssertExpectations(t)
}

func TestSubmitCredentials_WrongPasswordSuggestsReset(t *testing.T) {
	h := newHarness(t)
	h.identity.On("PasswordSignIn", mock.Anything, "nurse@outlook.com", "wrong").
		Return(nil, fmt.Errorf("sign in: %w", domain.ErrInvalidCredentials)).Once()

	id := h.emailFlow(t, domain.ViewSignIn)
	out, err := h.svc.SubmitCredentials(context.Background(), id, domain.Credential{Email: "nurse@outlook.com", Password: "wrong"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingCredentialInput, out.Flow.State)
	assert.Equal(t, domain.MsgInvalidCredentials, out.Flow.Message.Kind)
	assert.Equal(t, domain.SuggestResetPassword, out.Flow.Message.Suggestion)
	assert.Equal(t, "nurse@outlook.com", out.Flow.Email)
	assert.Nil(t, out.Flow.PendingSwitch)
}

func TestSubmitCredentials_UnknownErrorKeepsText(t *testing.T) {
	h := newHarness(t)
	h.identity.On("PasswordSignIn", mock.Anything, "nurse@outlook.com", "pw").
		Return(nil, errors.New("upstream exploded")).Once()

	id := h.emailFlow(t, domain.ViewSignIn)
	out, err := h.svc.SubmitCredentials(context.Background(), id, domain.Credential{Email: "nurse@outlook.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, domain.MsgUnknown, out.Flow.Message.Kind)
	assert.Equal(t, "upstream exploded", out.Flow.Message.Text)
}

func TestAutoSwitch_AccountNotFoundMovesToSignUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.identity.On("PasswordSignIn", mock.Anything, "new@gmail.com", "whatever1").
		Return(nil, fmt.Errorf("sign in: %w", domain.ErrAccountNotFound)).Once()

	id := h.emailFlow(t, domain.ViewSignIn)
	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "new@gmail.com", Password: "whatever1"})
	require.NoError(t, err)
	assert.Equal(t, domain.MsgAccountNotFound, out.Flow.Message.Kind)
	assert.Equal(t, domain.SuggestSwitchToSignUp, out.Flow.Message.Suggestion)
	require.NotNil(t, out.Flow.PendingSwitch)

	h.clock.Advance(2 * time.Second)
	f, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewSignIn, f.View)

	h.clock.Advance(time.Second)
	f, err = h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewSignUp, f.View)
	assert.Equal(t, domain.StateAccountTypeChoice, f.State)
	assert.Equal(t, "new@gmail.com", f.Email)
	assert.Nil(t, f.PendingSwitch)
	assert.Nil(t, f.Message)
}

func TestAutoSwitch_AccountExistsMovesToSignIn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.identity.On("AccountExists", mock.Anything, "taken@gmail.com").Return(true, nil).Once()

	id := h.emailFlow(t, domain.ViewSignUp)
	_, err := h.svc.ChooseAccountType(ctx, id, domain.AccountTypeSelection{Type: domain.AccountTypeDoctor})
	require.NoError(t, err)
	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "taken@gmail.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.MsgAccountAlreadyExists, out.Flow.Message.Kind)
	h.gateway.AssertNotCalled(t, "SendCode", mock.Anything, mock.Anything, mock.Anything)

	h.clock.Advance(3 * time.Second)
	f, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewSignIn, f.View)
	assert.Equal(t, domain.StateAwaitingCredentialInput, f.State)
}

func TestAutoSwitch_CancelledByManualViewChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.identity.On("PasswordSignIn", mock.Anything, "new@gmail.com", "whatever1").
		Return(nil, domain.ErrAccountNotFound).Once()

	id := h.emailFlow(t, domain.ViewSignIn)
	_, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "new@gmail.com", Password: "whatever1"})
	require.NoError(t, err)

	f, err := h.svc.SelectView(ctx, id, domain.ViewForgotPassword)
	require.NoError(t, err)
	assert.Nil(t, f.PendingSwitch)

	h.clock.Advance(10 * time.Second)
	f, err = h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewForgotPassword, f.View)
}

func TestPhone_ChannelFollowsNumberUntilOverridden(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.phoneFlow(t)

	f, err := h.svc.SetPhone(ctx, id, "+971501234567")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelWhatsApp, f.Channel)

	f, err = h.svc.SetPhone(ctx, id, "+8613800000000")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelSMS, f.Channel)

	f, err = h.svc.SetChannelOverride(ctx, id, domain.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelWhatsApp, f.Channel)

	f, err = h.svc.SetPhone(ctx, id, "+8613900000000")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelWhatsApp, f.Channel)

	f, err = h.svc.SetChannelOverride(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelSMS, f.Channel)

	_, err = h.svc.SetChannelOverride(ctx, id, domain.ChannelEmail)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPhone_WhatsAppFallbackIsReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	vi := &domain.VerifiedIdentity{Target: "+971501234567", Channel: domain.ChannelSMS}
	h.gateway.On("SendCode", mock.Anything, "+971501234567", domain.ChannelWhatsApp).
		Return(challengeFor("ch-1", "+971501234567", domain.ChannelSMS), nil).Once()
	h.gateway.On("VerifyCode", mock.Anything, "+971501234567", "654321", domain.ChannelSMS).Return(vi, nil).Once()
	h.identity.On("SignInVerified", mock.Anything, *vi, mock.AnythingOfType("*domain.NewAccount")).Return(authFor("acc-2"), nil).Once()

	id := h.phoneFlow(t)
	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Phone: "+971501234567"})
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelWhatsApp, out.Flow.Channel)
	assert.Equal(t, domain.ChannelSMS, out.Flow.EffectiveChannel)
	assert.Contains(t, out.Flow.Message.Text, "SMS")
	assert.Contains(t, out.Flow.Message.Text, "+97******4567")

	out, err = h.svc.Verify(ctx, id, "654321", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthenticated, out.Flow.State)
	h.gateway.AssertExpectations(t)
}

func TestPhone_SignUpSelectionReachesVerifier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sel := domain.AccountTypeSelection{Type: domain.AccountTypeDoctor}
	vi := &domain.VerifiedIdentity{Target: "+971501234567", Channel: domain.ChannelWhatsApp}
	h.gateway.On("SendCode", mock.Anything, "+971501234567", domain.ChannelWhatsApp).
		Return(challengeFor("ch-1", "+971501234567", domain.ChannelWhatsApp), nil).Once()
	h.gateway.On("VerifyCode", mock.MatchedBy(func(ctx context.Context) bool {
		return domain.UserData(ctx) == sel
	}), "+971501234567", "654321", domain.ChannelWhatsApp).Return(vi, nil).Once()
	h.identity.On("SignInVerified", mock.Anything, *vi, &domain.NewAccount{Selection: sel}).Return(authFor("acc-3"), nil).Once()

	f, err := h.svc.Start(ctx, domain.ViewSignUp)
	require.NoError(t, err)
	_, err = h.svc.SelectMethod(ctx, f.FlowID, domain.MethodPhone)
	require.NoError(t, err)
	_, err = h.svc.ChooseAccountType(ctx, f.FlowID, sel)
	require.NoError(t, err)
	_, err = h.svc.SubmitCredentials(ctx, f.FlowID, domain.Credential{Phone: "+971501234567"})
	require.NoError(t, err)

	out, err := h.svc.Verify(ctx, f.FlowID, "654321", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthenticated, out.Flow.State)
	h.gateway.AssertExpectations(t)
	h.identity.AssertExpectations(t)
}

func TestPhone_DeliveryFailureKeepsNumber(t *testing.T) {
	h := newHarness(t)
	h.gateway.On("SendCode", mock.Anything, "+8613800000000", domain.ChannelSMS).
		Return(nil, fmt.Errorf("sns publish: %w", domain.ErrChannelDelivery)).Once()

	id := h.phoneFlow(t)
	out, err := h.svc.SubmitCredentials(context.Background(), id, domain.Credential{Phone: "+8613800000000"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingCredentialInput, out.Flow.State)
	assert.Equal(t, "+8613800000000", out.Flow.Phone)
	assert.Equal(t, domain.MsgChannelDelivery, out.Flow.Message.Kind)
	assert.Empty(t, out.Flow.InFlight)
}

func TestVerify_RejectsMalformedCodeLocally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gateway.On("SendCode", mock.Anything, "+8613800000000", domain.ChannelSMS).
		Return(challengeFor("ch-1", "+8613800000000", domain.ChannelSMS), nil).Once()

	id := h.phoneFlow(t)
	_, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Phone: "+8613800000000"})
	require.NoError(t, err)

	out, err := h.svc.Verify(ctx, id, "12ab", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateChallengeSent, out.Flow.State)
	assert.Equal(t, "code", out.Flow.Message.Field)
	h.gateway.AssertNotCalled(t, "VerifyCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_AttemptsExhaustedFailsFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gateway.On("SendCode", mock.Anything, "+8613800000000", domain.ChannelSMS).
		Return(challengeFor("ch-1", "+8613800000000", domain.ChannelSMS), nil).Once()
	h.gateway.On("VerifyCode", mock.Anything, "+8613800000000", "999999", domain.ChannelSMS).
		Return(nil, domain.ErrAttemptsExhausted).Once()

	id := h.phoneFlow(t)
	_, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Phone: "+8613800000000"})
	require.NoError(t, err)

	out, err := h.svc.Verify(ctx, id, "999999", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, out.Flow.State)
	assert.Equal(t, domain.MsgAttemptsExhausted, out.Flow.Message.Kind)
	assert.Equal(t, domain.SuggestResend, out.Flow.Message.Suggestion)

	_, err = h.svc.Verify(ctx, id, "123456", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	h.clock.Advance(time.Minute)
	h.gateway.On("SendCode", mock.Anything, "+8613800000000", domain.ChannelSMS).
		Return(challengeFor("ch-2", "+8613800000000", domain.ChannelSMS), nil).Once()
	f, err := h.svc.Resend(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateChallengeSent, f.State)
	assert.Equal(t, "ch-2", f.ChallengeID)
}

func TestVerify_ForgotPasswordSetsNewPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	vi := &domain.VerifiedIdentity{Target: "doc@gmail.com", Channel: domain.ChannelEmail}
	h.identity.On("AccountExists", mock.Anything, "doc@gmail.com").Return(true, nil).Once()
	h.gateway.On("SendCode", mock.Anything, "doc@gmail.com", domain.ChannelEmail).
		Return(challengeFor("ch-1", "doc@gmail.com", domain.ChannelEmail), nil).Once()

	id := h.emailFlow(t, domain.ViewForgotPassword)
	_, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "doc@gmail.com"})
	require.NoError(t, err)

	out, err := h.svc.Verify(ctx, id, "123123", "short")
	require.NoError(t, err)
	assert.Equal(t, "new_password", out.Flow.Message.Field)
	assert.Equal(t, domain.StateChallengeSent, out.Flow.State)

	h.gateway.On("VerifyCode", mock.Anything, "doc@gmail.com", "123123", domain.ChannelEmail).Return(vi, nil).Once()
	h.identity.On("ResetPassword", mock.Anything, "doc@gmail.com", "a-much-longer-one").Return(nil).Once()
	h.identity.On("SignInVerified", mock.Anything, *vi, (*domain.NewAccount)(nil)).Return(authFor("acc-3"), nil).Once()

	out, err = h.svc.Verify(ctx, id, "123123", "a-much-longer-one")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthenticated, out.Flow.State)
	assert.Equal(t, domain.MsgPasswordResetCompleted, out.Flow.Message.Kind)
	h.identity.AssertExpectations(t)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	h := newHarness(t)
	h.identity.On("AccountExists", mock.Anything, "ghost@gmail.com").Return(false, nil).Once()

	id := h.emailFlow(t, domain.ViewForgotPassword)
	out, err := h.svc.SubmitCredentials(context.Background(), id, domain.Credential{Email: "ghost@gmail.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.MsgAccountNotFound, out.Flow.Message.Kind)
	// Only sign-in failures switch views automatically.
	assert.Nil(t, out.Flow.PendingSwitch)
}

// --- cooldown ---

func TestResend_RefusedDuringCooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gateway.On("SendCode", mock.Anything, "+8613800000000", domain.ChannelSMS).
		Return(challengeFor("ch-1", "+8613800000000", domain.ChannelSMS), nil).Once()

	id := h.phoneFlow(t)
	_, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Phone: "+8613800000000"})
	require.NoError(t, err)

	_, err = h.svc.Resend(ctx, id)
	assert.ErrorIs(t, err, domain.ErrCooldownActive)

	h.clock.Advance(59 * time.Second)
	f, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, f.ResendIn)
	_, err = h.svc.Resend(ctx, id)
	assert.ErrorIs(t, err, domain.ErrCooldownActive)

	h.clock.Advance(time.Second)
	h.gateway.On("SendCode", mock.Anything, "+8613800000000", domain.ChannelSMS).
		Return(challengeFor("ch-2", "+8613800000000", domain.ChannelSMS), nil).Once()
	f, err = h.svc.Resend(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ch-2", f.ChallengeID)
	assert.Equal(t, 60, f.ResendIn)
	h.gateway.AssertExpectations(t)
}

// --- concurrency ---

func TestBack_DropsLateSendResult(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.phoneFlow(t)

	h.gateway.On("SendCode", mock.Anything, "+971501234567", domain.ChannelWhatsApp).
		Run(func(mock.Arguments) {
			_, err := h.svc.Back(ctx, id)
			require.NoError(t, err)
		}).
		Return(challengeFor("ch-late", "+971501234567", domain.ChannelWhatsApp), nil).Once()

	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Phone: "+971501234567"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingCredentialInput, out.Flow.State)
	assert.Empty(t, out.Flow.ChallengeID)
	assert.Empty(t, out.Flow.InFlight)
	assert.Equal(t, "+971501234567", out.Flow.Phone)
}

func TestSubmitCredentials_SecondRequestWhileInFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.phoneFlow(t)

	var nestedErr error
	h.gateway.On("SendCode", mock.Anything, "+8613800000000", domain.ChannelSMS).
		Run(func(mock.Arguments) {
			_, nestedErr = h.svc.SubmitCredentials(ctx, id, domain.Credential{Phone: "+8613800000000"})
		}).
		Return(challengeFor("ch-1", "+8613800000000", domain.ChannelSMS), nil).Once()

	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Phone: "+8613800000000"})
	require.NoError(t, err)
	assert.ErrorIs(t, nestedErr, domain.ErrRequestInFlight)
	assert.Equal(t, domain.StateChallengeSent, out.Flow.State)
	h.gateway.AssertNumberOfCalls(t, "SendCode", 1)
}

func TestSubmitCredentials_StaleInFlightMarkerIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.phoneFlow(t)
	_, err := h.flows.Update(ctx, id, func(f *domain.Flow) error {
		f.InFlight = "submit_credentials"
		f.InFlightSince = h.clock.Now()
		return nil
	})
	require.NoError(t, err)

	_, err = h.svc.SubmitCredentials(ctx, id, domain.Credential{Phone: "+8613800000000"})
	assert.ErrorIs(t, err, domain.ErrRequestInFlight)

	h.clock.Advance(31 * time.Second)
	h.gateway.On("SendCode", mock.Anything, "+8613800000000", domain.ChannelSMS).
		Return(challengeFor("ch-1", "+8613800000000", domain.ChannelSMS), nil).Once()
	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Phone: "+8613800000000"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateChallengeSent, out.Flow.State)
}

func TestBack_KeepsTypedInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.identity.On("AccountExists", mock.Anything, "doc@gmail.com").Return(true, nil).Once()
	h.gateway.On("SendCode", mock.Anything, "doc@gmail.com", domain.ChannelEmail).
		Return(challengeFor("ch-1", "doc@gmail.com", domain.ChannelEmail), nil).Once()

	id := h.emailFlow(t, domain.ViewSignIn)
	out, err := h.svc.SubmitCredentials(ctx, id, domain.Credential{Email: "doc@gmail.com"})
	require.NoError(t, err)
	generation := out.Flow.Generation

	f, err := h.svc.Back(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingCredentialInput, f.State)
	assert.Equal(t, "doc@gmail.com", f.Email)
	assert.Empty(t, f.ChallengeID)
	assert.Zero(t, f.ResendIn)
	assert.Greater(t, f.Generation, generation)

	_, err = h.svc.Verify(ctx, id, "123456", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
